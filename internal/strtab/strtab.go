// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package strtab implements the String Store: raw byte buffers allocated
// from the slab heap, addressed by (ptr, len) handles, and compared by
// content byte-for-byte. There is no refcounting; buffers are reclaimed by
// the heap's ordinary mark-and-sweep sweep like any other allocation.
package strtab

import (
	"strconv"
	"sync"

	"github.com/embedjs/jsrt/internal/jsvalue"
	"github.com/embedjs/jsrt/internal/slabheap"
)

// Table owns the mapping from StringHandle back to its backing slab
// allocation, since jsvalue.StringHandle itself carries no data.
type Table struct {
	mu    sync.Mutex
	heap  *slabheap.Heap
	ptrs  map[uintptr]slabheap.Ptr
	next  uintptr
}

func New(heap *slabheap.Heap) *Table {
	return &Table{heap: heap, ptrs: make(map[uintptr]slabheap.Ptr)}
}

// Intern copies s into a fresh slab allocation and returns a handle to it.
// Unlike a true interner this does not dedupe identical content: every
// call makes a new allocation and a new handle.
func (t *Table) Intern(s string) jsvalue.StringHandle {
	t.mu.Lock()
	defer t.mu.Unlock()

	b := []byte(s)
	p, buf, err := t.heap.Alloc(uint32(len(b)))
	if err != nil {
		// Allocation failure for a string buffer is unrecoverable for this
		// call; surface as an empty string rather than panicking, callers
		// that need hard failure should pre-check heap capacity.
		return jsvalue.StringHandle{}
	}
	copy(buf, b)

	t.next++
	id := t.next
	t.ptrs[id] = p

	return jsvalue.StringHandle{Ptr: id, Len: uint32(len(b))}
}

// Bytes resolves h back to its raw content.
func (t *Table) Bytes(h jsvalue.StringHandle) []byte {
	t.mu.Lock()
	p, ok := t.ptrs[h.Ptr]
	t.mu.Unlock()
	if !ok {
		return nil
	}
	buf := t.heap.Payload(p)
	if uint32(len(buf)) < h.Len {
		return buf
	}
	return buf[:h.Len]
}

// String decodes h as UTF-8 text.
func (t *Table) String(h jsvalue.StringHandle) string {
	return string(t.Bytes(h))
}

// Equal compares two handles by content.
func (t *Table) Equal(a, b jsvalue.StringHandle) bool {
	if a.Len != b.Len {
		return false
	}
	if a.Ptr == b.Ptr {
		return true
	}
	ab, bb := t.Bytes(a), t.Bytes(b)
	if len(ab) != len(bb) {
		return false
	}
	for i := range ab {
		if ab[i] != bb[i] {
			return false
		}
	}
	return true
}

// Compare implements the lexicographic ordering relational operators need.
func (t *Table) Compare(a, b jsvalue.StringHandle) int {
	ab, bb := t.Bytes(a), t.Bytes(b)
	n := len(ab)
	if len(bb) < n {
		n = len(bb)
	}
	for i := 0; i < n; i++ {
		if ab[i] != bb[i] {
			if ab[i] < bb[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ab) < len(bb):
		return -1
	case len(ab) > len(bb):
		return 1
	default:
		return 0
	}
}

// Concat allocates a new handle holding a's content followed by b's.
func (t *Table) Concat(a, b jsvalue.StringHandle) jsvalue.StringHandle {
	return t.Intern(t.String(a) + t.String(b))
}

// ToNumber implements the Number() string grammar used by jsvalue's
// ToFloat coercion: parse as a float, NaN on failure, matching the
// ECMAScript StringToNumber abstract operation closely enough for this
// runtime's scope.
func (t *Table) ToNumber(h jsvalue.StringHandle) float64 {
	s := t.String(h)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nan()
	}
	return f
}

func nan() float64 {
	var zero float64
	return zero / zero
}

// FromFloat, FromBigInt, FromBool implement jsvalue.StringEnv's ToString
// conversions.
func (t *Table) FromFloat(f float64) jsvalue.StringHandle {
	return t.Intern(strconv.FormatFloat(f, 'g', -1, 64))
}

func (t *Table) FromBigInt(i int64) jsvalue.StringHandle {
	return t.Intern(strconv.FormatInt(i, 10))
}

func (t *Table) FromBool(b bool) jsvalue.StringHandle {
	return t.Intern(strconv.FormatBool(b))
}

// Env adapts this table to jsvalue.StringEnv.
func (t *Table) Env() jsvalue.StringEnv {
	return jsvalue.StringEnv{
		ToNumber:     t.ToNumber,
		Concat:       t.Concat,
		NumberToStr:  t.FromFloat,
		BigIntToStr:  t.FromBigInt,
		BooleanToStr: t.FromBool,
	}
}
