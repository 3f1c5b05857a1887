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

	"github.com/embedjs/jsrt/internal/ir"
)

func TestVerifyAcceptsWellFormedProgram(t *testing.T) {
	p := compile(t, `
		var total = 0;
		try {
			total = total + 1;
		} catch (e) {
			total = total + 2;
		}
	`)
	require.Empty(t, ir.Verify(p))
}

func TestVerifyCatchesOutOfBoundsConst(t *testing.T) {
	p := compile(t, "var x = 1;")
	main := p.Functions[0]
	main.Blocks[0].Instructions[0].ConstIdx = len(p.Constants) + 5

	errs := ir.Verify(p)
	require.NotEmpty(t, errs)
}

func TestVerifyCatchesMissingTerminator(t *testing.T) {
	p := compile(t, "var x = 1;")
	main := p.Functions[0]
	main.Blocks[0].Terminator = nil

	errs := ir.Verify(p)
	require.NotEmpty(t, errs)
	require.Contains(t, errs[0].Message, "no terminator")
}
