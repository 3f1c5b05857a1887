// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package jsvalue implements the tagged Value union shared by every other
// runtime component: undefined, null, number, bigint, boolean, symbol,
// string handle, and object pointer.
//
// Go has no literal union type, so Value is a small fixed-layout struct
// (a kind tag plus one field per variant's payload) instead of a 16-byte
// bit-packed union. Every non-string, non-object variant is still bitwise comparable
// by value with ==, matching the "trivially copyable" property the
// underlying data model requires.
package jsvalue

import (
	"fmt"
	"math"
)

// Kind discriminates the active Value variant.
type Kind uint8

const (
	Undefined Kind = iota
	Null
	Number
	BigInt
	Boolean
	Symbol
	String
	Object
)

func (k Kind) String() string {
	switch k {
	case Undefined:
		return "undefined"
	case Null:
		return "null"
	case Number:
		return "number"
	case BigInt:
		return "bigint"
	case Boolean:
		return "boolean"
	case Symbol:
		return "symbol"
	case String:
		return "string"
	case Object:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// StringHandle is a (ptr, len) pair into a strtab-owned buffer. It carries
// no data of its own; internal/strtab resolves it to bytes.
type StringHandle struct {
	Ptr uintptr
	Len uint32
}

// SymbolID identifies a process-wide interned (or anonymous, per-call)
// symbol allocated by internal/symtab.
type SymbolID uint64

// ObjectRef is an opaque pointer into a slabheap-backed Object. Only
// internal/jsobject dereferences it.
type ObjectRef uintptr

// Value is the tagged union. The zero Value is Undefined.
type Value struct {
	kind Kind
	num  float64      // Number payload
	i64  int64        // BigInt payload
	b    bool         // Boolean payload
	sym  SymbolID     // Symbol payload
	str  StringHandle // String payload
	obj  ObjectRef    // Object payload
}

func (v Value) Kind() Kind { return v.kind }

var undefinedValue = Value{kind: Undefined}
var nullValue = Value{kind: Null}

func UndefinedValue() Value { return undefinedValue }
func NullValue() Value      { return nullValue }

func NumberValue(f float64) Value  { return Value{kind: Number, num: f} }
func BigIntValue(i int64) Value    { return Value{kind: BigInt, i64: i} }
func BooleanValue(b bool) Value    { return Value{kind: Boolean, b: b} }
func SymbolValue(s SymbolID) Value { return Value{kind: Symbol, sym: s} }
func StringValue(h StringHandle) Value {
	return Value{kind: String, str: h}
}
func ObjectValue(o ObjectRef) Value { return Value{kind: Object, obj: o} }

func (v Value) IsUndefined() bool { return v.kind == Undefined }
func (v Value) IsNull() bool      { return v.kind == Null }
func (v Value) IsNullish() bool   { return v.kind == Undefined || v.kind == Null }
func (v Value) IsNumber() bool    { return v.kind == Number }
func (v Value) IsBigInt() bool    { return v.kind == BigInt }
func (v Value) IsBoolean() bool   { return v.kind == Boolean }
func (v Value) IsSymbol() bool    { return v.kind == Symbol }
func (v Value) IsString() bool    { return v.kind == String }
func (v Value) IsObject() bool    { return v.kind == Object }

// Number returns the float64 payload. Callers must check IsNumber first.
func (v Value) Number() float64    { return v.num }
func (v Value) BigInt() int64      { return v.i64 }
func (v Value) Boolean() bool      { return v.b }
func (v Value) Symbol() SymbolID   { return v.sym }
func (v Value) StringHandle() StringHandle { return v.str }
func (v Value) Object() ObjectRef  { return v.obj }

// ToBool implements the ABI catalogue's to_bool, ported from JValue::to_bool.
func (v Value) ToBool() bool {
	switch v.kind {
	case Undefined, Null:
		return false
	case Number:
		return v.num != 0 && !math.IsNaN(v.num)
	case BigInt:
		return v.i64 != 0
	case Boolean:
		return v.b
	case Symbol, Object:
		return true
	case String:
		return v.str.Len != 0
	default:
		return false
	}
}

// ToFloat implements numeric coercion, ported from JValue::to_float.
// stringToNumber is supplied by the caller (internal/strtab) to avoid a
// circular import; it parses the decoded string contents per the Number()
// grammar, returning NaN on failure.
func (v Value) ToFloat(stringToNumber func(StringHandle) float64) float64 {
	switch v.kind {
	case Number:
		return v.num
	case BigInt:
		return float64(v.i64)
	case Boolean:
		if v.b {
			return 1
		}
		return 0
	case Null:
		return 0
	case Undefined, Symbol, Object:
		return math.NaN()
	case String:
		if stringToNumber == nil {
			return math.NaN()
		}
		return stringToNumber(v.str)
	default:
		return math.NaN()
	}
}

// ToInt32 implements the ToInt32 abstract operation used by the bitwise
// operator family.
func (v Value) ToInt32(stringToNumber func(StringHandle) float64) int32 {
	f := v.ToFloat(stringToNumber)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	u := uint32(int64(f))
	return int32(u)
}

// ToUint32 mirrors ToInt32 for the unsigned-right-shift operator.
func (v Value) ToUint32(stringToNumber func(StringHandle) float64) uint32 {
	f := v.ToFloat(stringToNumber)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return uint32(int64(f))
}

// TypeOf implements the ABI's typeof semantics.
func (v Value) TypeOf(isCallable func(ObjectRef) bool) string {
	switch v.kind {
	case Undefined:
		return "undefined"
	case Null:
		return "object"
	case Number:
		return "number"
	case BigInt:
		return "bigint"
	case Boolean:
		return "boolean"
	case Symbol:
		return "symbol"
	case String:
		return "string"
	case Object:
		if isCallable != nil && isCallable(v.obj) {
			return "function"
		}
		return "object"
	default:
		return "undefined"
	}
}

// Eqeqeq implements strict equality (===), ported from value.rs's eqeqeq:
// strings compare by content, every other variant compares tag+payload.
func Eqeqeq(a, b Value, stringsEqual func(StringHandle, StringHandle) bool) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Undefined, Null:
		return true
	case Number:
		return a.num == b.num
	case BigInt:
		return a.i64 == b.i64
	case Boolean:
		return a.b == b.b
	case Symbol:
		return a.sym == b.sym
	case Object:
		return a.obj == b.obj
	case String:
		if stringsEqual != nil {
			return stringsEqual(a.str, b.str)
		}
		return a.str == b.str
	default:
		return false
	}
}

