// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package irvm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embedjs/jsrt/internal/abi"
	"github.com/embedjs/jsrt/internal/codegen"
	"github.com/embedjs/jsrt/internal/jsobject"
	"github.com/embedjs/jsrt/internal/jsvalue"
	"github.com/embedjs/jsrt/internal/parser"
	"github.com/embedjs/jsrt/internal/slabheap"
	"github.com/embedjs/jsrt/internal/strtab"
	"github.com/embedjs/jsrt/internal/symtab"
	"github.com/embedjs/jsrt/internal/vmctx"
)

func newVM(t *testing.T) (*VM, *abi.Machine) {
	t.Helper()
	heap := slabheap.New(slabheap.DefaultPageSize)
	strings := strtab.New(heap)
	objects := jsobject.NewStore(heap)
	symbols := symtab.New()
	m := abi.New(objects, strings, symbols)
	return New(m), m
}

func run(t *testing.T, source string) (jsvalue.Value, *jsobject.Thrown, *abi.Machine) {
	t.Helper()
	prog, errs := parser.Parse("test.js", source)
	require.Empty(t, errs)

	vm, m := newVM(t)
	vm.Load(codegen.Generate(prog))
	val, thrown := vm.RunMain(vmctx.New())
	return val, thrown, m
}

func TestArithmeticAndVariableDeclaration(t *testing.T) {
	prog, errs := parser.Parse("t.js", "var x = 1 + 2 * 3;")
	require.Empty(t, errs)

	vm, m := newVM(t)
	vm.Load(codegen.Generate(prog))
	ctx := vmctx.New()
	_, thrown := vm.RunMain(ctx)
	require.Nil(t, thrown)

	v, err := ctx.Get("x")
	require.NoError(t, err)
	require.Equal(t, float64(7), v.(jsvalue.Value).Number())
	_ = m
}

func TestIfElseBranching(t *testing.T) {
	prog, errs := parser.Parse("t.js", "var x = 0; if (1 < 2) { x = 10; } else { x = 20; }")
	require.Empty(t, errs)

	vm, _ := newVM(t)
	vm.Load(codegen.Generate(prog))
	ctx := vmctx.New()
	_, thrown := vm.RunMain(ctx)
	require.Nil(t, thrown)

	v, _ := ctx.Get("x")
	require.Equal(t, float64(10), v.(jsvalue.Value).Number())
}

func TestWhileLoopAccumulates(t *testing.T) {
	prog, errs := parser.Parse("t.js", "var i = 0; var sum = 0; while (i < 5) { sum = sum + i; i = i + 1; }")
	require.Empty(t, errs)

	vm, _ := newVM(t)
	vm.Load(codegen.Generate(prog))
	ctx := vmctx.New()
	_, thrown := vm.RunMain(ctx)
	require.Nil(t, thrown)

	v, _ := ctx.Get("sum")
	require.Equal(t, float64(10), v.(jsvalue.Value).Number())
}

func TestTryCatchCatchesThrow(t *testing.T) {
	prog, errs := parser.Parse("t.js", `
		var caught = false;
		try {
			throw "boom";
		} catch (e) {
			caught = true;
		}
	`)
	require.Empty(t, errs)

	vm, _ := newVM(t)
	vm.Load(codegen.Generate(prog))
	ctx := vmctx.New()
	_, thrown := vm.RunMain(ctx)
	require.Nil(t, thrown)

	v, _ := ctx.Get("caught")
	require.Equal(t, true, v.(jsvalue.Value).Boolean())
}

func TestTryFinallyRunsOnNormalPath(t *testing.T) {
	prog, errs := parser.Parse("t.js", `
		var order = "";
		try {
			order = order + "t";
		} finally {
			order = order + "f";
		}
	`)
	require.Empty(t, errs)

	vm, m := newVM(t)
	vm.Load(codegen.Generate(prog))
	ctx := vmctx.New()
	_, thrown := vm.RunMain(ctx)
	require.Nil(t, thrown)

	v, _ := ctx.Get("order")
	require.Equal(t, "tf", m.Strings.String(v.(jsvalue.Value).StringHandle()))
}

func TestUncaughtThrowPropagatesToCaller(t *testing.T) {
	_, thrown, m := run(t, `throw "nope";`)
	require.NotNil(t, thrown)
	require.Equal(t, "nope", m.Strings.String(thrown.Value.StringHandle()))
}

func TestFunctionClosureCapturesOuterVariable(t *testing.T) {
	prog, errs := parser.Parse("t.js", `
		var makeCounter = function() {
			var count = 0;
			return function() {
				count = count + 1;
				return count;
			};
		};
		var counter = makeCounter();
		var a = counter();
		var b = counter();
	`)
	require.Empty(t, errs)

	vm, _ := newVM(t)
	vm.Load(codegen.Generate(prog))
	ctx := vmctx.New()
	_, thrown := vm.RunMain(ctx)
	require.Nil(t, thrown)

	a, _ := ctx.Get("a")
	b, _ := ctx.Get("b")
	require.Equal(t, float64(1), a.(jsvalue.Value).Number())
	require.Equal(t, float64(2), b.(jsvalue.Value).Number())
}

func TestArrayLiteralAndForOf(t *testing.T) {
	prog, errs := parser.Parse("t.js", `
		var xs = [1, 2, 3];
		var total = 0;
		for (var v of xs) {
			total = total + v;
		}
	`)
	require.Empty(t, errs)

	vm, _ := newVM(t)
	vm.Load(codegen.Generate(prog))
	ctx := vmctx.New()
	_, thrown := vm.RunMain(ctx)
	require.Nil(t, thrown)

	v, _ := ctx.Get("total")
	require.Equal(t, float64(6), v.(jsvalue.Value).Number())
}

func TestObjectLiteralMemberAccess(t *testing.T) {
	prog, errs := parser.Parse("t.js", `
		var o = { a: 1, b: 2 };
		var sum = o.a + o["b"];
	`)
	require.Empty(t, errs)

	vm, _ := newVM(t)
	vm.Load(codegen.Generate(prog))
	ctx := vmctx.New()
	_, thrown := vm.RunMain(ctx)
	require.Nil(t, thrown)

	v, _ := ctx.Get("sum")
	require.Equal(t, float64(3), v.(jsvalue.Value).Number())
}
