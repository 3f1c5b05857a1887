// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package jsobject

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embedjs/jsrt/internal/jsvalue"
	"github.com/embedjs/jsrt/internal/slabheap"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(slabheap.New(slabheap.DefaultPageSize))
}

func TestMemberFallsThroughPrototypeChain(t *testing.T) {
	s := newStore(t)
	proto := s.New()
	s.SetMember(proto, "greet", jsvalue.NumberValue(1))

	inst := s.New()
	s.Resolve(inst).Prototype = proto

	require.Equal(t, float64(1), s.Member(inst, "greet").Number())
	require.True(t, s.Member(inst, "missing").IsUndefined())
}

func TestLookupReportsOwnerAndIndex(t *testing.T) {
	s := newStore(t)
	proto := s.New()
	s.SetMember(proto, "greet", jsvalue.NumberValue(1))
	inst := s.New()
	s.Resolve(inst).Prototype = proto

	owner, idx, found := s.Lookup(inst, "greet")
	require.True(t, found)
	require.Equal(t, proto, owner)
	require.Equal(t, 0, idx)

	_, _, found = s.Lookup(inst, "nope")
	require.False(t, found)
}

func TestSlotValidAndSlotValue(t *testing.T) {
	s := newStore(t)
	obj := s.New()
	s.SetMember(obj, "a", jsvalue.NumberValue(7))
	owner, idx, found := s.Lookup(obj, "a")
	require.True(t, found)

	require.True(t, s.SlotValid(owner, "a", idx))
	require.Equal(t, float64(7), s.SlotValue(owner, idx).Number())

	s.DeleteMember(obj, "a")
	require.False(t, s.SlotValid(owner, "a", idx))
}

func TestSetMemberOwnPropertyShadowsPrototype(t *testing.T) {
	s := newStore(t)
	proto := s.New()
	s.SetMember(proto, "greet", jsvalue.NumberValue(1))
	inst := s.New()
	s.Resolve(inst).Prototype = proto

	s.SetMember(inst, "greet", jsvalue.NumberValue(2))
	require.Equal(t, float64(2), s.Member(inst, "greet").Number())
	require.Equal(t, float64(1), s.Member(proto, "greet").Number())
}

func TestFrozenObjectRejectsWrites(t *testing.T) {
	s := newStore(t)
	obj := s.New()
	s.SetMember(obj, "a", jsvalue.NumberValue(1))
	s.Freeze(obj)

	require.True(t, s.IsFrozen(obj))
	require.False(t, s.SetMember(obj, "a", jsvalue.NumberValue(2)))
	require.Equal(t, float64(1), s.Member(obj, "a").Number())
	require.False(t, s.DeleteMember(obj, "a"))
}

func TestNonExtensibleObjectRejectsNewProperties(t *testing.T) {
	s := newStore(t)
	obj := s.New()
	s.Resolve(obj).Extensible = false

	require.False(t, s.SetMember(obj, "a", jsvalue.NumberValue(1)))
	require.True(t, s.Member(obj, "a").IsUndefined())
}

func TestOwnKeysExcludesPrototypeProperties(t *testing.T) {
	s := newStore(t)
	proto := s.New()
	s.SetMember(proto, "onProto", jsvalue.NumberValue(1))
	obj := s.New()
	s.Resolve(obj).Prototype = proto
	s.SetMember(obj, "own", jsvalue.NumberValue(2))

	require.Equal(t, []string{"own"}, s.OwnKeys(obj))
}

func TestIsCallableReflectsConstructedFunction(t *testing.T) {
	s := newStore(t)
	fn := s.FromInner(KindFunction)
	require.False(t, s.IsCallable(fn))

	s.Resolve(fn).Call = func(this jsvalue.Value, args []jsvalue.Value) (jsvalue.Value, *Thrown) {
		return jsvalue.UndefinedValue(), nil
	}
	require.True(t, s.IsCallable(fn))
}

func TestResolveUnknownRefReturnsNil(t *testing.T) {
	s := newStore(t)
	require.Nil(t, s.Resolve(jsvalue.ObjectRef(999)))
}

func TestArraySetMemberGrowsAndReportsLength(t *testing.T) {
	s := newStore(t)
	arr := s.FromInner(KindArray)

	require.True(t, s.SetMember(arr, "0", jsvalue.NumberValue(1)))
	require.Equal(t, float64(1), s.Member(arr, "0").Number())
	require.Equal(t, float64(1), s.Member(arr, "length").Number())

	require.True(t, s.SetMember(arr, "3", jsvalue.NumberValue(9)))
	require.Equal(t, float64(4), s.Member(arr, "length").Number())
	require.True(t, s.Member(arr, "1").IsUndefined())
	require.True(t, s.Member(arr, "2").IsUndefined())
	require.Equal(t, float64(9), s.Member(arr, "3").Number())
}

func TestArrayMemberOutOfRangeIsUndefined(t *testing.T) {
	s := newStore(t)
	arr := s.FromInner(KindArray)
	s.Resolve(arr).ArrayElems = []jsvalue.Value{jsvalue.NumberValue(1)}

	require.True(t, s.Member(arr, "5").IsUndefined())
	require.Equal(t, float64(1), s.Member(arr, "length").Number())
}

func TestArrayNegativeIndexNormalizesAgainstLength(t *testing.T) {
	s := newStore(t)
	arr := s.FromInner(KindArray)
	s.Resolve(arr).ArrayElems = []jsvalue.Value{jsvalue.NumberValue(1), jsvalue.NumberValue(2), jsvalue.NumberValue(3)}

	require.Equal(t, float64(3), s.Member(arr, "-1").Number())
	require.True(t, s.Member(arr, "-10").IsUndefined())
}

func TestArraySetLengthTruncates(t *testing.T) {
	s := newStore(t)
	arr := s.FromInner(KindArray)
	s.Resolve(arr).ArrayElems = []jsvalue.Value{jsvalue.NumberValue(1), jsvalue.NumberValue(2), jsvalue.NumberValue(3)}

	require.True(t, s.SetMember(arr, "length", jsvalue.NumberValue(1)))
	require.Equal(t, float64(1), s.Member(arr, "length").Number())
	require.True(t, s.Member(arr, "1").IsUndefined())
}

func TestFrozenArrayRejectsIndexedWrites(t *testing.T) {
	s := newStore(t)
	arr := s.FromInner(KindArray)
	s.Resolve(arr).ArrayElems = []jsvalue.Value{jsvalue.NumberValue(1)}
	s.Freeze(arr)

	require.False(t, s.SetMember(arr, "0", jsvalue.NumberValue(2)))
	require.Equal(t, float64(1), s.Member(arr, "0").Number())
}

func TestArrayCustomPropertyFallsBackToOwnPropertyMap(t *testing.T) {
	s := newStore(t)
	arr := s.FromInner(KindArray)

	require.True(t, s.SetMember(arr, "label", jsvalue.NumberValue(7)))
	require.Equal(t, float64(7), s.Member(arr, "label").Number())
}

func TestSetAddHasDeleteAndSize(t *testing.T) {
	s := newStore(t)
	set := s.FromInner(KindSet)

	require.True(t, s.SetAdd(set, jsvalue.NumberValue(1)))
	require.False(t, s.SetAdd(set, jsvalue.NumberValue(1)))
	require.True(t, s.SetHas(set, jsvalue.NumberValue(1)))
	require.Equal(t, 1, s.SetSize(set))
	require.Equal(t, float64(1), s.Member(set, "size").Number())

	require.True(t, s.SetDelete(set, jsvalue.NumberValue(1)))
	require.False(t, s.SetHas(set, jsvalue.NumberValue(1)))
	require.Equal(t, 0, s.SetSize(set))
}
