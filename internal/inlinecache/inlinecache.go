// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package inlinecache is a polymorphic inline cache for property lookups:
// it memoizes, per receiver object, which object in its prototype chain
// actually owns a given property name and at which slot, so a repeat
// `obj.method()` call from a hot loop skips internal/jsobject.Store's
// prototype-chain walk. Consulted by internal/abi's member/set_member
// entries before falling back to the slow Store.Lookup path.
package inlinecache

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/embedjs/jsrt/internal/jsvalue"
)

// DefaultSize is the number of (receiver, name) entries kept resident,
// chosen the way a call-site cache is usually sized: enough to cover a
// hot function's distinct property accesses without growing unbounded
// across the life of a long-running script.
const DefaultSize = 4096

type key struct {
	Receiver jsvalue.ObjectRef
	Name     string
}

// Entry is a resolved property location: owner is the object in the
// receiver's prototype chain (possibly the receiver itself) that holds
// the property, at slot Index in its property list.
type Entry struct {
	Owner jsvalue.ObjectRef
	Index int
}

// Cache is a fixed-capacity LRU cache of resolved property locations, one
// shared instance per Runtime (internal/abi.Machine holds it).
type Cache struct {
	lru *lru.Cache
}

// New builds a Cache holding up to size entries. Panics only if size <= 0,
// matching hashicorp/golang-lru.New's own contract.
func New(size int) *Cache {
	c, err := lru.New(size)
	if err != nil {
		panic(err)
	}
	return &Cache{lru: c}
}

// Lookup returns the cached resolution for (receiver, name), if any. The
// caller is still responsible for validating it against the live object
// graph (see internal/jsobject.Store.SlotValid) before trusting it — a
// property add/delete on the owner can move or remove the slot between
// calls.
func (c *Cache) Lookup(receiver jsvalue.ObjectRef, name string) (Entry, bool) {
	v, ok := c.lru.Get(key{receiver, name})
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

// Store records that receiver's property name currently resolves to e,
// evicting the least recently used entry if the cache is full.
func (c *Cache) Store(receiver jsvalue.ObjectRef, name string, e Entry) {
	c.lru.Add(key{receiver, name}, e)
}

// Invalidate drops any cached resolution naming receiver, called when a
// property is added, deleted, or reassigned through a path the cache
// doesn't itself observe (e.g. Object.defineProperty equivalents). Plain
// value overwrites of an existing slot don't need this: the slot index is
// unchanged, so a stale cache entry still reads the new value.
func (c *Cache) Invalidate(receiver jsvalue.ObjectRef, name string) {
	c.lru.Remove(key{receiver, name})
}
