// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package jsvalue

import (
	"math"

	"github.com/holiman/uint256"
)

// StringEnv bundles the string-table callbacks arithmetic needs without
// internal/jsvalue importing internal/strtab directly.
type StringEnv struct {
	ToNumber     func(StringHandle) float64
	Concat       func(a, b StringHandle) StringHandle
	NumberToStr  func(float64) StringHandle
	BigIntToStr  func(int64) StringHandle
	BooleanToStr func(bool) StringHandle
}

// Add implements the + operator's full coercion table, ported from
// value.rs's Add impl: string concatenation wins over numeric addition
// whenever either operand is a string.
func Add(a, b Value, env StringEnv) Value {
	if a.kind == String || b.kind == String {
		as := toStringHandle(a, env)
		bs := toStringHandle(b, env)
		if env.Concat != nil {
			return StringValue(env.Concat(as, bs))
		}
		return StringValue(as)
	}
	if a.kind == BigInt && b.kind == BigInt {
		return BigIntValue(a.i64 + b.i64)
	}
	return NumberValue(a.ToFloat(env.ToNumber) + b.ToFloat(env.ToNumber))
}

func toStringHandle(v Value, env StringEnv) StringHandle {
	switch v.kind {
	case String:
		return v.str
	case Number:
		if env.NumberToStr != nil {
			return env.NumberToStr(v.num)
		}
	case BigInt:
		if env.BigIntToStr != nil {
			return env.BigIntToStr(v.i64)
		}
	case Boolean:
		if env.BooleanToStr != nil {
			return env.BooleanToStr(v.b)
		}
	}
	return StringHandle{}
}

// Sub, Mul, Div, Mod, Exp all coerce both operands to numeric (BigInt stays
// BigInt only when both sides are BigInt, per the Rust source's per-pair
// table). When only one side is BigInt, both operands are coerced to
// float64 and the result is a Number; the result is not BigInt-biased on a
// BigInt left operand, and no TypeError is raised here or in internal/abi.

func Sub(a, b Value, env StringEnv) Value {
	if a.kind == BigInt && b.kind == BigInt {
		return BigIntValue(a.i64 - b.i64)
	}
	return NumberValue(a.ToFloat(env.ToNumber) - b.ToFloat(env.ToNumber))
}

func Mul(a, b Value, env StringEnv) Value {
	if a.kind == BigInt && b.kind == BigInt {
		return BigIntValue(bigMulWrap(a.i64, b.i64))
	}
	return NumberValue(a.ToFloat(env.ToNumber) * b.ToFloat(env.ToNumber))
}

func Div(a, b Value, env StringEnv) Value {
	if a.kind == BigInt && b.kind == BigInt {
		if b.i64 == 0 {
			return NumberValue(math.NaN())
		}
		return BigIntValue(a.i64 / b.i64)
	}
	return NumberValue(a.ToFloat(env.ToNumber) / b.ToFloat(env.ToNumber))
}

func Mod(a, b Value, env StringEnv) Value {
	if a.kind == BigInt && b.kind == BigInt {
		if b.i64 == 0 {
			return NumberValue(math.NaN())
		}
		return BigIntValue(a.i64 % b.i64)
	}
	return NumberValue(math.Mod(a.ToFloat(env.ToNumber), b.ToFloat(env.ToNumber)))
}

func Exp(a, b Value, env StringEnv) Value {
	if a.kind == BigInt && b.kind == BigInt {
		return BigIntValue(bigPowWrap(a.i64, b.i64))
	}
	return NumberValue(math.Pow(a.ToFloat(env.ToNumber), b.ToFloat(env.ToNumber)))
}

// bigMulWrap computes a*b with 256-bit intermediate precision via
// holiman/uint256 so overflow truncation to int64 is exact two's-complement
// wraparound rather than relying on undefined-looking native overflow.
func bigMulWrap(a, b int64) int64 {
	signed := (a < 0) != (b < 0)
	ua, ub := absU64(a), absU64(b)
	var x, y uint256.Int
	x.SetUint64(ua)
	y.SetUint64(ub)
	var prod uint256.Int
	prod.Mul(&x, &y)
	lo := prod.Uint64() // low 64 bits, matching two's-complement truncation
	if signed {
		return -int64(lo)
	}
	return int64(lo)
}

// bigPowWrap computes a**b with the same widen-then-truncate overflow
// strategy as bigMulWrap. A negative exponent yields 0; no RangeError is
// raised here or in internal/abi.
func bigPowWrap(a, b int64) int64 {
	if b <= 0 {
		if b == 0 {
			return 1
		}
		return 0
	}
	result := int64(1)
	base := a
	exp := b
	for exp > 0 {
		if exp&1 == 1 {
			result = bigMulWrap(result, base)
		}
		base = bigMulWrap(base, base)
		exp >>= 1
	}
	return result
}

func absU64(i int64) uint64 {
	if i < 0 {
		return uint64(-i)
	}
	return uint64(i)
}

// BitAnd, BitOr, BitXor, Lshift, Rshift, UnsignedRshift implement the
// bitwise family via ToInt32/ToUint32, ported from value.rs's BitAnd/
// BitOr/BitXor (implemented) and Shl/Shr (left as todo!() in the source —
// fully implemented here per spec).

func BitAnd(a, b Value, env StringEnv) Value {
	return NumberValue(float64(a.ToInt32(env.ToNumber) & b.ToInt32(env.ToNumber)))
}

func BitOr(a, b Value, env StringEnv) Value {
	return NumberValue(float64(a.ToInt32(env.ToNumber) | b.ToInt32(env.ToNumber)))
}

func BitXor(a, b Value, env StringEnv) Value {
	return NumberValue(float64(a.ToInt32(env.ToNumber) ^ b.ToInt32(env.ToNumber)))
}

func Lshift(a, b Value, env StringEnv) Value {
	shift := uint32(b.ToUint32(env.ToNumber)) & 31
	return NumberValue(float64(a.ToInt32(env.ToNumber) << shift))
}

func Rshift(a, b Value, env StringEnv) Value {
	shift := uint32(b.ToUint32(env.ToNumber)) & 31
	return NumberValue(float64(a.ToInt32(env.ToNumber) >> shift))
}

func UnsignedRshift(a, b Value, env StringEnv) Value {
	shift := uint32(b.ToUint32(env.ToNumber)) & 31
	return NumberValue(float64(a.ToUint32(env.ToNumber) >> shift))
}

// And/Or implement the logical &&/|| ABI entries, which in this runtime
// operate on already-evaluated operands (short-circuiting happens in
// codegen, not here) and simply return whichever operand decided the
// result, per JavaScript's value-preserving && and ||.
func And(a, b Value) Value {
	if !a.ToBool() {
		return a
	}
	return b
}

func Or(a, b Value) Value {
	if a.ToBool() {
		return a
	}
	return b
}

// NullishCoalescing implements ??.
func NullishCoalescing(a, b Value) Value {
	if a.IsNullish() {
		return b
	}
	return a
}

// Lt, Lteq, Gt, Gteq implement relational comparison. String operands
// compare lexicographically by decoded content; otherwise both sides
// coerce to float64.
func relCompare(a, b Value, env StringEnv, strCmp func(StringHandle, StringHandle) int) (cmp int, isNaN bool) {
	if a.kind == String && b.kind == String && strCmp != nil {
		return strCmp(a.str, b.str), false
	}
	af, bf := a.ToFloat(env.ToNumber), b.ToFloat(env.ToNumber)
	if math.IsNaN(af) || math.IsNaN(bf) {
		return 0, true
	}
	switch {
	case af < bf:
		return -1, false
	case af > bf:
		return 1, false
	default:
		return 0, false
	}
}

func Lt(a, b Value, env StringEnv, strCmp func(StringHandle, StringHandle) int) Value {
	c, nan := relCompare(a, b, env, strCmp)
	return BooleanValue(!nan && c < 0)
}

func Lteq(a, b Value, env StringEnv, strCmp func(StringHandle, StringHandle) int) Value {
	c, nan := relCompare(a, b, env, strCmp)
	return BooleanValue(!nan && c <= 0)
}

func Gt(a, b Value, env StringEnv, strCmp func(StringHandle, StringHandle) int) Value {
	c, nan := relCompare(a, b, env, strCmp)
	return BooleanValue(!nan && c > 0)
}

func Gteq(a, b Value, env StringEnv, strCmp func(StringHandle, StringHandle) int) Value {
	c, nan := relCompare(a, b, env, strCmp)
	return BooleanValue(!nan && c >= 0)
}

// Eqeq implements loose equality (==). Only the coercions actually
// reachable from the ABI's operator set are implemented: identical-kind
// delegates to Eqeqeq; null/undefined are mutually loosely equal; number/
// string/boolean operands coerce to number before comparing.
func Eqeq(a, b Value, env StringEnv, stringsEqual func(StringHandle, StringHandle) bool) Value {
	if a.kind == b.kind {
		return BooleanValue(Eqeqeq(a, b, stringsEqual))
	}
	if a.IsNullish() && b.IsNullish() {
		return BooleanValue(true)
	}
	if a.IsNullish() || b.IsNullish() {
		return BooleanValue(false)
	}
	return BooleanValue(a.ToFloat(env.ToNumber) == b.ToFloat(env.ToNumber))
}

func Noteq(a, b Value, env StringEnv, stringsEqual func(StringHandle, StringHandle) bool) Value {
	r := Eqeq(a, b, env, stringsEqual)
	return BooleanValue(!r.b)
}

func Noteqeq(a, b Value, stringsEqual func(StringHandle, StringHandle) bool) Value {
	return BooleanValue(!Eqeqeq(a, b, stringsEqual))
}
