// Copyright 2024 The jsrt Authors
// This file is part of jsrt.

package jsvalue

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToBool(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want bool
	}{
		{"undefined", UndefinedValue(), false},
		{"null", NullValue(), false},
		{"zero", NumberValue(0), false},
		{"nan", NumberValue(math.NaN()), false},
		{"nonzero", NumberValue(1), true},
		{"false", BooleanValue(false), false},
		{"true", BooleanValue(true), true},
		{"bigint-zero", BigIntValue(0), false},
		{"bigint-nonzero", BigIntValue(5), true},
		{"empty-string", StringValue(StringHandle{Len: 0}), false},
		{"nonempty-string", StringValue(StringHandle{Len: 3}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.v.ToBool())
		})
	}
}

func TestEqeqeqStrict(t *testing.T) {
	require.True(t, Eqeqeq(NumberValue(1), NumberValue(1), nil))
	require.False(t, Eqeqeq(NumberValue(1), NumberValue(2), nil))
	require.False(t, Eqeqeq(NumberValue(1), BigIntValue(1), nil))
	require.True(t, Eqeqeq(UndefinedValue(), UndefinedValue(), nil))
	require.False(t, Eqeqeq(UndefinedValue(), NullValue(), nil))
}

func TestAddStringConcatWins(t *testing.T) {
	env := StringEnv{
		Concat: func(a, b StringHandle) StringHandle {
			return StringHandle{Len: a.Len + b.Len}
		},
		NumberToStr: func(f float64) StringHandle { return StringHandle{Len: 1} },
	}
	r := Add(StringValue(StringHandle{Len: 2}), NumberValue(5), env)
	require.True(t, r.IsString())
	require.Equal(t, uint32(3), r.StringHandle().Len)
}

func TestAddNumeric(t *testing.T) {
	r := Add(NumberValue(2), NumberValue(3), StringEnv{})
	require.True(t, r.IsNumber())
	require.Equal(t, float64(5), r.Number())
}

func TestBitwiseShift(t *testing.T) {
	r := Lshift(NumberValue(1), NumberValue(4), StringEnv{})
	require.Equal(t, float64(16), r.Number())

	r = UnsignedRshift(NumberValue(-1), NumberValue(0), StringEnv{})
	require.Equal(t, float64(4294967295), r.Number())
}

func TestBigIntMulOverflowWraps(t *testing.T) {
	r := Mul(BigIntValue(math.MaxInt64), BigIntValue(2), StringEnv{})
	require.True(t, r.IsBigInt())
	require.Equal(t, int64(-2), r.BigInt())
}

func TestNullishCoalescing(t *testing.T) {
	require.Equal(t, NumberValue(5), NullishCoalescing(UndefinedValue(), NumberValue(5)))
	require.Equal(t, NumberValue(0), NullishCoalescing(NumberValue(0), NumberValue(5)))
}

func TestAndOr(t *testing.T) {
	require.Equal(t, UndefinedValue(), And(UndefinedValue(), NumberValue(1)))
	require.Equal(t, NumberValue(1), And(NumberValue(5), NumberValue(1)))
	require.Equal(t, NumberValue(5), Or(NumberValue(5), NumberValue(1)))
}

func TestLtStringCompare(t *testing.T) {
	cmp := func(a, b StringHandle) int {
		if a.Len == b.Len {
			return 0
		}
		if a.Len < b.Len {
			return -1
		}
		return 1
	}
	r := Lt(StringValue(StringHandle{Len: 1}), StringValue(StringHandle{Len: 2}), StringEnv{}, cmp)
	require.True(t, r.Boolean())
}
