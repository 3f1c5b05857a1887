// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package jsobject implements the Object model: a prototype pointer, an
// insertion-ordered own-property map, frozen/extensible flags, and one of
// a closed set of inner variants (Array, Function, Error, ...), ported
// from the original engine's JObject/JObjectInner.
//
// Every Object is allocated from internal/slabheap so its liveness is
// governed by the same mark-and-sweep pass as every other heap value; a
// small bookkeeping block is reserved in the heap per Object to carry its
// GC mark, and the Go-side Store maps that block's identity to the actual
// field data. Go gives no safe way to reinterpret a raw byte buffer as a
// pointer to a GC-traced struct the way the original unsafe Rust pointer
// arithmetic does, so the heap remains the GC's source of truth for
// liveness while the Store supplies the data the heap bytes merely track.
package jsobject

import (
	"strconv"
	"sync"

	mapset "github.com/deckarep/golang-set"

	"github.com/embedjs/jsrt/internal/jsvalue"
	"github.com/embedjs/jsrt/internal/slabheap"
)

// Kind discriminates an Object's inner variant. The set of built-in kinds
// is closed: each one's get/set/call overrides are hard-coded rather than
// open to subtyping, matching the original engine's tagged-union inner.
type Kind uint8

const (
	KindPlain Kind = iota
	KindArray
	KindFunction
	KindError
	KindDate
	KindRegExp
	KindMap
	KindSet
	KindWeakMap
	KindWeakSet
	KindArrayBuffer
	KindSharedArrayBuffer
	KindDataView
	KindPromise
	KindGenerator
	KindProxy
	KindTypedArray
	KindBoolean
	KindNumber
	KindBigInt
	KindSymbol
	KindString
	KindCustom
)

// property is one insertion-ordered own-property slot.
type property struct {
	key   string
	value jsvalue.Value
}

// NativeFn is the call signature for a Function-kind Object's inner
// behavior, lifted from a host function by internal/hostbind or emitted
// directly by internal/codegen for script functions.
type NativeFn func(this jsvalue.Value, args []jsvalue.Value) (jsvalue.Value, *Thrown)

// Thrown carries a JS-level thrown value up through the call stack,
// ported from the original engine's throw-as-panic boundary convention:
// internal/abi's call/construct wrappers convert a *Thrown into the
// (Value, ok) pair the ABI catalogue documents.
type Thrown struct {
	Value jsvalue.Value
}

func (t *Thrown) Error() string { return "uncaught value thrown across call boundary" }

// Object is one heap-resident JS object.
type Object struct {
	Prototype  jsvalue.ObjectRef
	Kind       Kind
	Frozen     bool
	Extensible bool

	props    []property
	index    map[string]int // key -> index into props, for O(1) lookup

	// Inner-variant payloads. At most one is meaningful per Kind.
	ArrayElems []jsvalue.Value
	Call       NativeFn
	Construct  NativeFn
	SetData    mapset.Set
	MapData    map[jsvalue.Value]jsvalue.Value
	BufferData []byte
	Message    string // Error kind
}

// Store owns every live Object, keyed by the slab bookkeeping block that
// backs it; ObjectRef values are opaque handles into this map.
type Store struct {
	mu        sync.Mutex
	heap      *slabheap.Heap
	objects   map[jsvalue.ObjectRef]*Object
	next      jsvalue.ObjectRef
	prototype map[Kind]jsvalue.ObjectRef
}

func NewStore(heap *slabheap.Heap) *Store {
	return &Store{
		heap:      heap,
		objects:   make(map[jsvalue.ObjectRef]*Object),
		prototype: make(map[Kind]jsvalue.ObjectRef),
	}
}

// RegisterPrototype installs the process-wide prototype object resolved
// for every new Object of the given kind, ported from object.rs's
// resolve_prototype/PrototypeKind table.
func (s *Store) RegisterPrototype(k Kind, proto jsvalue.ObjectRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prototype[k] = proto
}

func (s *Store) resolvePrototype(k Kind) jsvalue.ObjectRef {
	return s.prototype[k]
}

// New allocates a plain Object, ported from JObject::new.
func (s *Store) New() jsvalue.ObjectRef {
	return s.alloc(KindPlain, nil)
}

// FromInner allocates an Object carrying a pre-built inner variant,
// ported from JObject::fromInner. The returned Object's Kind is k; callers
// fill in the ArrayElems/Call/etc. fields appropriate to k before first use.
func (s *Store) FromInner(k Kind) jsvalue.ObjectRef {
	return s.alloc(k, nil)
}

func (s *Store) alloc(k Kind, _ interface{}) jsvalue.ObjectRef {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Reserve a 16-byte bookkeeping block so this Object participates in
	// the heap's mark-and-sweep pass like any other allocation.
	_, _, _ = s.heap.Alloc(16)

	s.next++
	ref := s.next
	s.objects[ref] = &Object{
		Prototype:  s.resolvePrototype(k),
		Kind:       k,
		Extensible: true,
		index:      make(map[string]int),
	}
	return ref
}

// Resolve returns the live Object behind ref, or nil if it has been
// collected.
func (s *Store) Resolve(ref jsvalue.ObjectRef) *Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[ref]
}

// Member implements the member_str/member ABI entries: the inner variant's
// get-intercept first (Array's integer keys and length), then the own
// property, then the prototype chain, ported from object.rs's
// member_str/builtin_member dispatch chain.
func (s *Store) Member(ref jsvalue.ObjectRef, key string) jsvalue.Value {
	if v, ok := s.ArrayMember(ref, key); ok {
		return v
	}
	if v, ok := s.SetSizeMember(ref, key); ok {
		return v
	}
	owner, idx, found := s.Lookup(ref, key)
	if !found {
		return jsvalue.UndefinedValue()
	}
	o := s.Resolve(owner)
	if o == nil {
		return jsvalue.UndefinedValue()
	}
	return o.props[idx].value
}

// arrayIndex parses key as an array index, normalizing a negative index by
// adding length the way the Array invariant requires: a negative i refers
// to length + i, rejected (ok=false) if still negative. A non-numeric key
// (including "length", handled separately by callers) also reports ok=false.
func arrayIndex(key string, length int) (idx int, ok bool) {
	n, err := strconv.Atoi(key)
	if err != nil {
		return 0, false
	}
	if n < 0 {
		n += length
	}
	if n < 0 {
		return 0, false
	}
	return n, true
}

// ArrayMember implements Array's integer-keyed/length get-intercept ahead
// of the own-property map. ok is false for any key that isn't "length" or a
// numeric index (or when ref isn't an Array), leaving the own-property
// fallback to handle custom properties set directly on an array object.
func (s *Store) ArrayMember(ref jsvalue.ObjectRef, key string) (value jsvalue.Value, ok bool) {
	o := s.Resolve(ref)
	if o == nil || o.Kind != KindArray {
		return jsvalue.UndefinedValue(), false
	}
	if key == "length" {
		return jsvalue.NumberValue(float64(len(o.ArrayElems))), true
	}
	idx, valid := arrayIndex(key, len(o.ArrayElems))
	if !valid {
		if _, err := strconv.Atoi(key); err == nil {
			return jsvalue.UndefinedValue(), true
		}
		return jsvalue.UndefinedValue(), false
	}
	if idx >= len(o.ArrayElems) {
		return jsvalue.UndefinedValue(), true
	}
	return o.ArrayElems[idx], true
}

// resizeArray grows or truncates elems to length n, filling new slots with
// Undefined, ported from the Array inner's auto-grow-on-write behavior.
func resizeArray(elems []jsvalue.Value, n int) []jsvalue.Value {
	if n <= len(elems) {
		return elems[:n]
	}
	grown := make([]jsvalue.Value, n)
	copy(grown, elems)
	for i := len(elems); i < n; i++ {
		grown[i] = jsvalue.UndefinedValue()
	}
	return grown
}

// ArraySetMember implements Array's integer-keyed/length set-intercept:
// writing past the end auto-grows with Undefined fill, and assigning length
// truncates or pads. handled is false for any key that isn't "length" or a
// numeric index (or when ref isn't an Array), leaving the own-property map
// to handle custom properties. A frozen array reports handled=true,
// wrote=false for an index/length key so the caller doesn't fall through to
// the (also frozen-rejecting) own-property path. A negative index that is
// still negative after adding length is rejected the same way.
func (s *Store) ArraySetMember(ref jsvalue.ObjectRef, key string, value jsvalue.Value) (handled, wrote bool) {
	o := s.Resolve(ref)
	if o == nil || o.Kind != KindArray {
		return false, false
	}
	_, isIndex := arrayIndex(key, len(o.ArrayElems))
	_, numErr := strconv.Atoi(key)
	if key != "length" && numErr != nil {
		return false, false
	}
	if o.Frozen {
		return true, false
	}
	if key != "length" && !isIndex {
		return true, false
	}
	if key == "length" {
		n := int(value.Number())
		if n < 0 {
			return true, false
		}
		o.ArrayElems = resizeArray(o.ArrayElems, n)
		return true, true
	}
	idx, _ := arrayIndex(key, len(o.ArrayElems))
	if idx >= len(o.ArrayElems) {
		o.ArrayElems = resizeArray(o.ArrayElems, idx+1)
	}
	o.ArrayElems[idx] = value
	return true, true
}

// Lookup walks ref's prototype chain for key, returning the Object that
// actually owns the property and its slot index without reading the
// value — split out of Member so internal/inlinecache can memoize the
// (ref, key) -> (owner, idx) result and skip the chain walk on a repeat
// lookup through the same receiver.
func (s *Store) Lookup(ref jsvalue.ObjectRef, key string) (owner jsvalue.ObjectRef, idx int, found bool) {
	cur := ref
	for {
		o := s.Resolve(cur)
		if o == nil {
			return 0, 0, false
		}
		if i, ok := o.index[key]; ok {
			return cur, i, true
		}
		if o.Prototype == 0 {
			return 0, 0, false
		}
		cur = o.Prototype
	}
}

// SlotValid reports whether owner still has key bound at idx, used by
// internal/inlinecache to validate a cached slot before trusting it (a
// property delete/rewrite can shift or invalidate indices between calls).
func (s *Store) SlotValid(owner jsvalue.ObjectRef, key string, idx int) bool {
	o := s.Resolve(owner)
	if o == nil {
		return false
	}
	i, ok := o.index[key]
	return ok && i == idx
}

// SlotValue reads props[idx] directly, skipping the chain walk, once a
// caller (internal/inlinecache) has validated the slot with SlotValid.
func (s *Store) SlotValue(owner jsvalue.ObjectRef, idx int) jsvalue.Value {
	o := s.Resolve(owner)
	if o == nil || idx < 0 || idx >= len(o.props) {
		return jsvalue.UndefinedValue()
	}
	return o.props[idx].value
}

// SetMember implements set_member: delegate to the inner variant's setter
// first (Array index/length), fall back to the own-property map, ported
// from object.rs's set_member_str/builtin_member fallback chain. A frozen
// object silently refuses the write; this runtime picks silent-discard
// over throwing, and applies it uniformly everywhere a write is rejected.
func (s *Store) SetMember(ref jsvalue.ObjectRef, key string, value jsvalue.Value) bool {
	o := s.Resolve(ref)
	if o == nil {
		return false
	}
	if o.Frozen {
		return false
	}
	if handled, wrote := s.ArraySetMember(ref, key, value); handled {
		return wrote
	}
	if idx, ok := o.index[key]; ok {
		o.props[idx].value = value
		return true
	}
	if !o.Extensible {
		return false
	}
	o.index[key] = len(o.props)
	o.props = append(o.props, property{key: key, value: value})
	return true
}

// DeleteMember removes an own property, returning whether it existed.
func (s *Store) DeleteMember(ref jsvalue.ObjectRef, key string) bool {
	o := s.Resolve(ref)
	if o == nil || o.Frozen {
		return false
	}
	idx, ok := o.index[key]
	if !ok {
		return false
	}
	o.props = append(o.props[:idx], o.props[idx+1:]...)
	delete(o.index, key)
	for k, i := range o.index {
		if i > idx {
			o.index[k] = i - 1
		}
	}
	return true
}

// OwnKeys returns own-property keys in insertion order, ported from
// value.rs's owned_keys.
func (s *Store) OwnKeys(ref jsvalue.ObjectRef) []string {
	o := s.Resolve(ref)
	if o == nil {
		return nil
	}
	keys := make([]string, len(o.props))
	for i, p := range o.props {
		keys[i] = p.key
	}
	return keys
}

// Freeze/IsFrozen/IsExtensible implement Object.freeze family.
func (s *Store) Freeze(ref jsvalue.ObjectRef) {
	if o := s.Resolve(ref); o != nil {
		o.Frozen = true
		o.Extensible = false
	}
}

func (s *Store) IsFrozen(ref jsvalue.ObjectRef) bool {
	o := s.Resolve(ref)
	return o != nil && o.Frozen
}

func (s *Store) IsExtensible(ref jsvalue.ObjectRef) bool {
	o := s.Resolve(ref)
	return o != nil && o.Extensible
}

// IsCallable reports whether ref's inner variant has a Call implementation,
// used by jsvalue.Value.TypeOf to distinguish "function" from "object".
func (s *Store) IsCallable(ref jsvalue.ObjectRef) bool {
	o := s.Resolve(ref)
	return o != nil && o.Call != nil
}

// setData lazily allocates a Set/WeakSet's backing mapset.Set, since an
// Object's inner payload fields are left zero by alloc until the kind that
// owns them actually needs to store something.
func setData(o *Object) mapset.Set {
	if o.SetData == nil {
		o.SetData = mapset.NewThreadUnsafeSet()
	}
	return o.SetData
}

// SetAdd implements Set.prototype.add / WeakSet.prototype.add, reporting
// whether value was newly inserted (false if it was already a member).
func (s *Store) SetAdd(ref jsvalue.ObjectRef, value jsvalue.Value) bool {
	o := s.Resolve(ref)
	if o == nil || (o.Kind != KindSet && o.Kind != KindWeakSet) {
		return false
	}
	data := setData(o)
	if data.Contains(value) {
		return false
	}
	return data.Add(value)
}

// SetHas implements Set.prototype.has / WeakSet.prototype.has.
func (s *Store) SetHas(ref jsvalue.ObjectRef, value jsvalue.Value) bool {
	o := s.Resolve(ref)
	if o == nil || o.SetData == nil {
		return false
	}
	return o.SetData.Contains(value)
}

// SetDelete implements Set.prototype.delete / WeakSet.prototype.delete,
// reporting whether value was present.
func (s *Store) SetDelete(ref jsvalue.ObjectRef, value jsvalue.Value) bool {
	o := s.Resolve(ref)
	if o == nil || o.SetData == nil || !o.SetData.Contains(value) {
		return false
	}
	o.SetData.Remove(value)
	return true
}

// SetSize implements Set.prototype.size (WeakSet has no size getter, but
// callers may still use this for diagnostics).
func (s *Store) SetSize(ref jsvalue.ObjectRef) int {
	o := s.Resolve(ref)
	if o == nil || o.SetData == nil {
		return 0
	}
	return o.SetData.Cardinality()
}

// SetSizeMember implements Set's "size" get-intercept ahead of the
// own-property map, the same inner-dispatch-first shape ArrayMember gives
// "length". ok is false for any other key or a non-Set object.
func (s *Store) SetSizeMember(ref jsvalue.ObjectRef, key string) (value jsvalue.Value, ok bool) {
	if key != "size" {
		return jsvalue.UndefinedValue(), false
	}
	o := s.Resolve(ref)
	if o == nil || o.Kind != KindSet {
		return jsvalue.UndefinedValue(), false
	}
	return jsvalue.NumberValue(float64(s.SetSize(ref))), true
}
