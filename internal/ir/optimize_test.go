// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package ir_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embedjs/jsrt/internal/abi"
	"github.com/embedjs/jsrt/internal/codegen"
	"github.com/embedjs/jsrt/internal/ir"
	"github.com/embedjs/jsrt/internal/irvm"
	"github.com/embedjs/jsrt/internal/jsobject"
	"github.com/embedjs/jsrt/internal/jsvalue"
	"github.com/embedjs/jsrt/internal/parser"
	"github.com/embedjs/jsrt/internal/slabheap"
	"github.com/embedjs/jsrt/internal/strtab"
	"github.com/embedjs/jsrt/internal/symtab"
	"github.com/embedjs/jsrt/internal/vmctx"
)

func compile(t *testing.T, source string) *ir.Program {
	t.Helper()
	prog, errs := parser.Parse("t.js", source)
	require.Empty(t, errs)
	return codegen.Generate(prog)
}

func TestConstantFoldReducesToSingleConst(t *testing.T) {
	p := compile(t, "var x = 1 + 2 * 3;")
	ir.Optimize(p)

	require.Empty(t, ir.Verify(p))

	main := p.Functions[0]
	var adds, muls, consts int
	for _, b := range main.Blocks {
		for _, inst := range b.Instructions {
			switch inst.Op {
			case ir.OpAdd:
				adds++
			case ir.OpMul:
				muls++
			case ir.OpConst:
				consts++
			}
		}
	}
	require.Zero(t, adds, "constant addition should have folded away")
	require.Zero(t, muls, "constant multiplication should have folded away")
	require.NotZero(t, consts)
}

func TestOptimizedProgramStillRunsCorrectly(t *testing.T) {
	p := compile(t, "var x = (2 + 3) * 4; var y = x; var z = y;")
	ir.Optimize(p)
	require.Empty(t, ir.Verify(p))

	heap := slabheap.New(slabheap.DefaultPageSize)
	strings := strtab.New(heap)
	objects := jsobject.NewStore(heap)
	m := abi.New(objects, strings, symtab.New())
	vm := irvm.New(m)
	vm.Load(p)
	ctx := vmctx.New()
	_, thrown := vm.RunMain(ctx)
	require.Nil(t, thrown)

	v, err := ctx.Get("z")
	require.NoError(t, err)
	require.Equal(t, float64(20), v.(jsvalue.Value).Number())
}

func TestDeadCodeEliminateDropsUnusedPureExpression(t *testing.T) {
	// The bare expression statement "x + x;" computes a value nothing
	// reads: its OpAdd result feeds no later instruction or terminator.
	p := compile(t, "var x = 1; x + x;")
	before := countInstructions(p.Functions[0])
	ir.DeadCodeEliminate(p.Functions[0])
	after := countInstructions(p.Functions[0])
	require.Less(t, after, before)
	require.Empty(t, ir.Verify(p))
}

func countInstructions(fn *ir.Function) int {
	n := 0
	for _, b := range fn.Blocks {
		n += len(b.Instructions)
	}
	return n
}
