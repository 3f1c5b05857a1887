// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package jsrt_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	jsrt "github.com/embedjs/jsrt"
	"github.com/embedjs/jsrt/internal/jsvalue"
)

func TestExecReturnsUndefinedCompletionValue(t *testing.T) {
	rt := jsrt.New(jsrt.DefaultConfig())
	defer rt.Close()

	val, err := rt.Exec("t.js", "var x = 1 + 2;")
	require.NoError(t, err)
	require.True(t, val.Value().IsUndefined())
}

func TestBindAndCallRoundTrip(t *testing.T) {
	rt := jsrt.New(jsrt.DefaultConfig())
	defer rt.Close()

	require.NoError(t, rt.Bind("double", func(this jsvalue.Value, n float64) float64 {
		return n * 2
	}))

	var captured jsvalue.Value
	require.NoError(t, rt.Bind("capture", func(this jsvalue.Value, v jsvalue.Value) {
		captured = v
	}))

	_, err := rt.Exec("t.js", "capture(double(21));")
	require.NoError(t, err)
	require.Equal(t, float64(42), captured.Number())
}

func TestCallInvokesScriptFunctionDirectly(t *testing.T) {
	rt := jsrt.New(jsrt.DefaultConfig())
	defer rt.Close()

	var fnVal jsvalue.Value
	require.NoError(t, rt.Bind("capture", func(this jsvalue.Value, v jsvalue.Value) {
		fnVal = v
	}))
	_, err := rt.Exec("t.js", "capture(function(a, b) { return a + b; });")
	require.NoError(t, err)

	result, err := rt.Call(rt.Own(fnVal), rt.Own(jsvalue.UndefinedValue()),
		rt.Own(jsvalue.NumberValue(3)), rt.Own(jsvalue.NumberValue(4)))
	require.NoError(t, err)
	require.Equal(t, float64(7), result.Value().Number())
}

func TestExecUncaughtThrowIsWrappedError(t *testing.T) {
	rt := jsrt.New(jsrt.DefaultConfig())
	defer rt.Close()

	_, err := rt.Exec("t.js", `throw "boom";`)
	require.ErrorIs(t, err, jsrt.ErrThrown)
}

func TestExecParseErrorIsWrapped(t *testing.T) {
	rt := jsrt.New(jsrt.DefaultConfig())
	defer rt.Close()

	_, err := rt.Exec("t.js", "var = = ;")
	require.ErrorIs(t, err, jsrt.ErrParse)
}

func TestClosedRuntimeRejectsExecCallBind(t *testing.T) {
	rt := jsrt.New(jsrt.DefaultConfig())
	require.NoError(t, rt.Close())

	_, err := rt.Exec("t.js", "1;")
	require.ErrorIs(t, err, jsrt.ErrClosed)

	err = rt.Bind("f", func(this jsvalue.Value) {})
	require.ErrorIs(t, err, jsrt.ErrClosed)
}

func TestSymbolForWithoutRegistryIsNotInterned(t *testing.T) {
	cfg := jsrt.DefaultConfig()
	cfg.SymbolRegistry = false
	rt := jsrt.New(cfg)
	defer rt.Close()

	a := rt.SymbolFor("shared")
	b := rt.SymbolFor("shared")
	require.NotEqual(t, a.Value().Symbol(), b.Value().Symbol())
}

func TestSymbolForWithRegistryInterns(t *testing.T) {
	cfg := jsrt.DefaultConfig()
	cfg.SymbolRegistry = true
	rt := jsrt.New(cfg)
	defer rt.Close()

	a := rt.SymbolFor("shared")
	b := rt.SymbolFor("shared")
	require.Equal(t, a.Value().Symbol(), b.Value().Symbol())
}

func TestBytecodeCacheServesRepeatExec(t *testing.T) {
	cfg := jsrt.DefaultConfig()
	cfg.BytecodeCache = 1 << 16
	rt := jsrt.New(cfg)
	defer rt.Close()

	var total float64
	require.NoError(t, rt.Bind("add", func(this jsvalue.Value, n float64) { total += n }))

	const src = "add(1);"
	_, err := rt.Exec("t.js", src)
	require.NoError(t, err)
	_, err = rt.Exec("t.js", src)
	require.NoError(t, err)
	require.Equal(t, float64(2), total)
}

func TestDisableOptimizeStillExecutesCorrectly(t *testing.T) {
	cfg := jsrt.DefaultConfig()
	cfg.DisableOptimize = true
	rt := jsrt.New(cfg)
	defer rt.Close()

	var captured jsvalue.Value
	require.NoError(t, rt.Bind("capture", func(this jsvalue.Value, v jsvalue.Value) {
		captured = v
	}))
	_, err := rt.Exec("t.js", "capture(1 + 2 * 3);")
	require.NoError(t, err)
	require.Equal(t, float64(7), captured.Number())
}

func TestArrayIndexAssignmentAndLength(t *testing.T) {
	rt := jsrt.New(jsrt.DefaultConfig())
	defer rt.Close()

	var length float64
	require.NoError(t, rt.Bind("capture", func(this jsvalue.Value, n float64) { length = n }))

	_, err := rt.Exec("t.js", "var a = []; a[0] = 1; capture(a.length);")
	require.NoError(t, err)
	require.Equal(t, float64(1), length)
}

func TestArrayFromStringSplitsIntoCharacters(t *testing.T) {
	rt := jsrt.New(jsrt.DefaultConfig())
	defer rt.Close()

	var length float64
	var first, second string
	require.NoError(t, rt.Bind("capture", func(this jsvalue.Value, n float64, a, b string) {
		length, first, second = n, a, b
	}))

	_, err := rt.Exec("t.js", `
		var letters = Array.from("ab");
		capture(letters.length, letters[0], letters[1]);
	`)
	require.NoError(t, err)
	require.Equal(t, float64(2), length)
	require.Equal(t, "a", first)
	require.Equal(t, "b", second)
}

func TestPromiseResolvesSynchronously(t *testing.T) {
	rt := jsrt.New(jsrt.DefaultConfig())
	defer rt.Close()

	var result float64
	require.NoError(t, rt.Bind("capture", func(this jsvalue.Value, n float64) { result = n }))

	_, err := rt.Exec("t.js", `
		var p = new Promise(function(resolve) { resolve(21); });
		p.then(function(v) { capture(v * 2); });
	`)
	require.NoError(t, err)
	require.Equal(t, float64(42), result)
}

func TestSetAddHasDeleteFromScript(t *testing.T) {
	rt := jsrt.New(jsrt.DefaultConfig())
	defer rt.Close()

	var hasBefore, hasAfter bool
	var size float64
	require.NoError(t, rt.Bind("capture", func(this jsvalue.Value, before, after bool, n float64) {
		hasBefore, hasAfter, size = before, after, n
	}))

	_, err := rt.Exec("t.js", `
		var s = new Set();
		s.add(1);
		var before = s.has(1);
		var n = s.size;
		s.delete(1);
		capture(before, s.has(1), n);
	`)
	require.NoError(t, err)
	require.True(t, hasBefore)
	require.False(t, hasAfter)
	require.Equal(t, float64(1), size)
}
