// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package codegen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embedjs/jsrt/internal/ir"
	"github.com/embedjs/jsrt/internal/parser"
)

func generate(t *testing.T, source string) *ir.Program {
	t.Helper()
	prog, errs := parser.Parse("t.js", source)
	require.Empty(t, errs)
	return Generate(prog)
}

func TestGenerateProducesMainFunction(t *testing.T) {
	p := generate(t, "var x = 1;")
	require.Len(t, p.Functions, 1)
	require.Equal(t, "@main", p.Functions[0].Name)
	require.NotEmpty(t, p.Functions[0].Blocks)
}

func TestNestedFunctionSharesProgram(t *testing.T) {
	p := generate(t, `
		var f = function(a) { return a + 1; };
		var r = f(41);
	`)
	require.Len(t, p.Functions, 2, "nested function must land in the same Program.Functions slice")
}

func TestFreeVarsCapturesOuterLocal(t *testing.T) {
	p := generate(t, `
		var make = function() {
			var n = 0;
			var inc = function() { n = n + 1; return n; };
			return inc;
		};
	`)
	require.Len(t, p.Functions, 3)
	// inc is the innermost nested function; it must record n as free.
	inc := p.Functions[2]
	require.Contains(t, inc.FreeVars, "n")
}

func TestTryCatchEmitsTryPushAndPop(t *testing.T) {
	p := generate(t, `
		try {
			throw 1;
		} catch (e) {
			e;
		}
	`)
	main := p.Functions[0]
	var sawPush, sawPop bool
	for _, b := range main.Blocks {
		for _, inst := range b.Instructions {
			if inst.Op == ir.OpTryPush {
				sawPush = true
				require.Len(t, inst.SubBlocks, 3)
				require.NotNil(t, inst.SubBlocks[0], "catch block must be set")
			}
			if inst.Op == ir.OpTryPop {
				sawPop = true
			}
		}
	}
	require.True(t, sawPush)
	require.True(t, sawPop)
}

func TestForOfLowersToIterIntrinsics(t *testing.T) {
	p := generate(t, `
		var xs = [1, 2];
		for (var v of xs) {
			v;
		}
	`)
	main := p.Functions[0]
	var sawInit, sawHasNext, sawNext bool
	for _, b := range main.Blocks {
		for _, inst := range b.Instructions {
			switch inst.FuncName {
			case "@@iter_init":
				sawInit = true
			case "@@iter_has_next":
				sawHasNext = true
			case "@@iter_next":
				sawNext = true
			}
		}
	}
	require.True(t, sawInit)
	require.True(t, sawHasNext)
	require.True(t, sawNext)
}

func TestComputedMemberCallUsesIntrinsic(t *testing.T) {
	p := generate(t, `
		var o = { f: function() { return 1; } };
		var key = "f";
		o[key]();
	`)
	main := p.Functions[0]
	var saw bool
	for _, b := range main.Blocks {
		for _, inst := range b.Instructions {
			if inst.FuncName == "@@computed_member_call" {
				saw = true
			}
		}
	}
	require.True(t, saw)
}

func TestBinaryOperatorLowering(t *testing.T) {
	p := generate(t, "var x = 1 + 2 * 3;")
	main := p.Functions[0]
	var sawMul, sawAdd bool
	for _, b := range main.Blocks {
		for _, inst := range b.Instructions {
			if inst.Op == ir.OpMul {
				sawMul = true
			}
			if inst.Op == ir.OpAdd {
				sawAdd = true
			}
		}
	}
	require.True(t, sawMul)
	require.True(t, sawAdd)
}
