// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package symtab implements the process-wide Symbol allocator, grounded on
// the original engine's Runtime.variable_names interner pattern. No corpus
// dependency provides dedicated string interning (hashicorp/golang-lru is
// an eviction cache, not an interner, and would silently drop live
// symbols), so this is a plain mutex-guarded map/slice — see DESIGN.md's
// "stdlib-only components" section.
package symtab

import (
	"sync"

	"github.com/embedjs/jsrt/internal/jsvalue"
)

// Table allocates fresh, globally unique SymbolIDs and optionally registers
// a description for debugging/Symbol.prototype.toString.
type Table struct {
	mu    sync.Mutex
	next  jsvalue.SymbolID
	descs map[jsvalue.SymbolID]string
}

func New() *Table {
	return &Table{next: 1, descs: make(map[jsvalue.SymbolID]string)}
}

// New allocates a fresh Symbol with the given description. Each call
// returns a distinct SymbolID — symbols are not interned process-wide by
// default, matching JavaScript's Symbol() semantics.
func (t *Table) New(description string) jsvalue.SymbolID {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.next
	t.next++
	t.descs[id] = description
	return id
}

// Description returns the description a symbol was created with.
func (t *Table) Description(id jsvalue.SymbolID) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.descs[id]
}

// Registry is the opt-in process-wide interning table backing Symbol.for,
// kept separate from Table so default Symbol() allocation never pays its
// locking/lookup cost.
type Registry struct {
	mu      sync.Mutex
	table   *Table
	byKey   map[string]jsvalue.SymbolID
}

func NewRegistry(table *Table) *Registry {
	return &Registry{table: table, byKey: make(map[string]jsvalue.SymbolID)}
}

// For implements Symbol.for: the same key always returns the same symbol.
func (r *Registry) For(key string) jsvalue.SymbolID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byKey[key]; ok {
		return id
	}
	id := r.table.New(key)
	r.byKey[key] = id
	return id
}

// KeyFor implements Symbol.keyFor, the inverse of For.
func (r *Registry) KeyFor(id jsvalue.SymbolID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range r.byKey {
		if v == id {
			return k, true
		}
	}
	return "", false
}
