// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package ir

import "fmt"

// VerifyError describes one structural defect found in a compiled Program.
// In the spirit of a bytecode verifier's intent — catch a miscompile
// before irvm runs it and panics or corrupts the heap — but checking this
// runtime's SSA-ish block graph instead of a flat byte array: every block
// must end in a Terminator, every constant/function reference must be in
// bounds, and OpTryPush's handler blocks must belong to the same function.
type VerifyError struct {
	Function string
	Block    string
	Message  string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verify error in %s/%s: %s", e.Function, e.Block, e.Message)
}

// Verify checks every function in prog for structural well-formedness.
// Called by cmd/jsrt's disasm command before rendering; Runtime.Exec does
// not call it. A correctly functioning internal/codegen should
// never produce a Program that fails this, so a non-empty result here
// means codegen has a bug, not that the input script was invalid.
func Verify(prog *Program) []VerifyError {
	var errs []VerifyError
	for _, fn := range prog.Functions {
		errs = append(errs, verifyFunction(fn, prog)...)
	}
	return errs
}

func verifyFunction(fn *Function, prog *Program) []VerifyError {
	var errs []VerifyError
	if len(fn.Blocks) == 0 {
		return []VerifyError{{Function: fn.Name, Message: "function has no blocks"}}
	}

	known := make(map[*BasicBlock]bool, len(fn.Blocks))
	for _, b := range fn.Blocks {
		known[b] = true
	}

	for _, block := range fn.Blocks {
		for _, inst := range block.Instructions {
			if inst.Op == OpConst && (inst.ConstIdx < 0 || inst.ConstIdx >= len(prog.Constants)) {
				errs = append(errs, VerifyError{Function: fn.Name, Block: block.Label,
					Message: fmt.Sprintf("OpConst references constant %d, pool size %d", inst.ConstIdx, len(prog.Constants))})
			}
			if inst.Op == OpFunctionNew && (inst.Aux < 0 || inst.Aux >= len(prog.Functions)) {
				errs = append(errs, VerifyError{Function: fn.Name, Block: block.Label,
					Message: fmt.Sprintf("OpFunctionNew references function %d, program has %d", inst.Aux, len(prog.Functions))})
			}
			if inst.Op == OpTryPush {
				if len(inst.SubBlocks) != 3 {
					errs = append(errs, VerifyError{Function: fn.Name, Block: block.Label,
						Message: fmt.Sprintf("OpTryPush has %d SubBlocks, want 3 ([catch, finally, after])", len(inst.SubBlocks))})
				}
				for _, sb := range inst.SubBlocks {
					if sb != nil && !known[sb] {
						errs = append(errs, VerifyError{Function: fn.Name, Block: block.Label,
							Message: "OpTryPush references a block outside this function"})
					}
				}
			}
		}

		switch term := block.Terminator.(type) {
		case nil:
			errs = append(errs, VerifyError{Function: fn.Name, Block: block.Label, Message: "block has no terminator"})
		case *TermBranch:
			if term.Target == nil || !known[term.Target] {
				errs = append(errs, VerifyError{Function: fn.Name, Block: block.Label, Message: "branch target outside this function"})
			}
		case *TermCondBranch:
			if term.TrueBlk == nil || !known[term.TrueBlk] || term.FalseBlk == nil || !known[term.FalseBlk] {
				errs = append(errs, VerifyError{Function: fn.Name, Block: block.Label, Message: "conditional branch target outside this function"})
			}
		}
	}
	return errs
}
