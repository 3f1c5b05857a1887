// Copyright 2024 The jsrt Authors
// This file is part of jsrt.

package hostbind

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embedjs/jsrt/internal/jsvalue"
)

func TestBindSimpleNumericFunc(t *testing.T) {
	add := func(this jsvalue.Value, a, b float64) float64 {
		return a + b
	}
	fn, err := Bind(add, Env{NumberEnv: jsvalue.StringEnv{}})
	require.NoError(t, err)

	result, thrown := fn(jsvalue.UndefinedValue(), []jsvalue.Value{jsvalue.NumberValue(2), jsvalue.NumberValue(3)})
	require.Nil(t, thrown)
	require.Equal(t, float64(5), result.Number())
}

func TestBindStringRoundTrip(t *testing.T) {
	table := map[uint64]string{}
	var next uint64
	env := Env{
		StringToGo: func(h jsvalue.StringHandle) string { return table[uint64(h.Ptr)] },
		GoToString: func(s string) jsvalue.StringHandle {
			next++
			table[next] = s
			return jsvalue.StringHandle{Ptr: uintptr(next), Len: uint32(len(s))}
		},
	}
	shout := func(this jsvalue.Value, s string) string { return s + "!" }
	fn, err := Bind(shout, env)
	require.NoError(t, err)

	h := env.GoToString("hi")
	result, thrown := fn(jsvalue.UndefinedValue(), []jsvalue.Value{jsvalue.StringValue(h)})
	require.Nil(t, thrown)
	require.Equal(t, "hi!", env.StringToGo(result.StringHandle()))
}

func TestBindErrorBecomesThrow(t *testing.T) {
	boom := func(this jsvalue.Value) (float64, error) { return 0, errors.New("boom") }
	fn, err := Bind(boom, Env{GoToString: func(s string) jsvalue.StringHandle { return jsvalue.StringHandle{Len: uint32(len(s))} }})
	require.NoError(t, err)

	_, thrown := fn(jsvalue.UndefinedValue(), nil)
	require.NotNil(t, thrown)
}

func TestBindVariadicRest(t *testing.T) {
	sumAll := func(this jsvalue.Value, rest ...jsvalue.Value) float64 {
		total := 0.0
		for _, v := range rest {
			total += v.Number()
		}
		return total
	}
	fn, err := Bind(sumAll, Env{})
	require.NoError(t, err)

	result, thrown := fn(jsvalue.UndefinedValue(), []jsvalue.Value{jsvalue.NumberValue(1), jsvalue.NumberValue(2), jsvalue.NumberValue(3)})
	require.Nil(t, thrown)
	require.Equal(t, float64(6), result.Number())
}
