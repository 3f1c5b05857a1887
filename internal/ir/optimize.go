// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package ir

import "math"

// Optimize runs every pass on prog in a fixed order: folding exposes dead
// arithmetic, dead-code elimination exposes redundant expressions CSE can
// merge, and unreachable-block removal runs last since both prior passes
// can turn a conditional branch into effectively dead code on one side.
// Modeled on a classic register-machine optimizer, re-targeted at the
// Runtime ABI op set and made conservative about which ops are pure: any
// op that can call into the host (OpCall, OpMemberCall, OpConstruct, ...)
// or read through a property accessor (OpMember, OpSuperMember) is treated
// as side-effecting, since this runtime does not prove getters absent.
func Optimize(prog *Program) {
	for _, fn := range prog.Functions {
		ConstantFold(fn, prog)
		DeadCodeEliminate(fn)
		CommonSubexprEliminate(fn)
		RemoveUnreachableBlocks(fn)
	}
}

// arithmeticFoldOps are the binary ops whose result depends only on its two
// operand values, with no coercion that could invoke host-visible
// behavior (string ToPrimitive is not modeled here, so OpAdd folding is
// restricted to two number constants).
var arithmeticFoldOps = map[Op]func(a, b float64) float64{
	OpAdd: func(a, b float64) float64 { return a + b },
	OpSub: func(a, b float64) float64 { return a - b },
	OpMul: func(a, b float64) float64 { return a * b },
	OpExp: math.Pow,
}

// ConstantFold replaces binary arithmetic over two number constants with a
// single OpConst load, iterating to a fixed point so chains like
// `1 + 2 * 3` fold all the way down. Division and modulo are left alone:
// both can produce NaN/Infinity from a zero divisor, which is already
// correct IEEE-754 behavior, but folding them here would need to special
// case division-by-zero to avoid a compile-time Go panic on integer paths
// that don't apply to this runtime's float64 jsvalue numbers anyway, so
// it is simpler and just as correct to let irvm evaluate them directly.
func ConstantFold(fn *Function, prog *Program) {
	changed := true
	for changed {
		changed = false
		defs := constDefs(fn, prog)
		for _, block := range fn.Blocks {
			for i, inst := range block.Instructions {
				fold, ok := arithmeticFoldOps[inst.Op]
				if !ok || len(inst.Operands) != 2 {
					continue
				}
				left, lok := defs[inst.Operands[0].ID]
				right, rok := defs[inst.Operands[1].ID]
				if !lok || !rok || left.Kind != ConstNumber || right.Kind != ConstNumber {
					continue
				}
				idx := len(prog.Constants)
				prog.Constants = append(prog.Constants, Constant{
					Kind: ConstNumber,
					Num:  fold(left.Num, right.Num),
				})
				block.Instructions[i] = &Instruction{
					Op:       OpConst,
					Result:   inst.Result,
					ConstIdx: idx,
				}
				changed = true
			}
		}
	}
}

// constDefs maps each SSA value ID defined by an OpConst instruction to its
// resolved Constant. Re-walking the instruction stream on every outer
// iteration (rather than caching) keeps a constant folded earlier in this
// same pass visible to the next one, at the cost of being O(n) per
// iteration — acceptable for function bodies of the size this runtime
// compiles.
func constDefs(fn *Function, prog *Program) map[int]Constant {
	defs := make(map[int]Constant)
	for _, block := range fn.Blocks {
		for _, inst := range block.Instructions {
			if inst.Op == OpConst && inst.ConstIdx >= 0 && inst.ConstIdx < len(prog.Constants) {
				defs[inst.Result.ID] = prog.Constants[inst.ConstIdx]
			}
		}
	}
	return defs
}

// pureOps can be dropped when their result is unused and can be compared
// structurally for common-subexpression elimination: they neither raise
// (OpResolveVar can raise a ReferenceError, so it is excluded even though
// a plain variable read looks pure) nor call into host-visible behavior.
// OpTryPush/OpTryPop are bookkeeping rather than values and are handled
// separately by never appearing in this set.
var pureOps = map[Op]bool{
	OpArg: true,

	OpToBool: true,

	OpAdd: true, OpSub: true, OpMul: true, OpDiv: true, OpMod: true, OpExp: true,
	OpBitAnd: true, OpBitOr: true, OpBitXor: true,
	OpLshift: true, OpRshift: true, OpUnsignedRshift: true,
	OpEqeq: true, OpEqeqeq: true, OpNoteq: true, OpNoteqeq: true,
	OpLt: true, OpLteq: true, OpGt: true, OpGteq: true,
	OpInstanceof: true,
	OpAnd:        true, OpOr: true, OpNullishCoalescing: true,
}

// DeadCodeEliminate removes instructions in pureOps (plus OpConst) whose
// result is never read, iterating to a fixed point since removing one dead
// instruction can make an operand of an earlier instruction dead too.
func DeadCodeEliminate(fn *Function) {
	changed := true
	for changed {
		changed = false
		uses := countUses(fn)
		for _, block := range fn.Blocks {
			kept := block.Instructions[:0]
			for _, inst := range block.Instructions {
				droppable := inst.Op == OpConst || pureOps[inst.Op]
				if droppable && uses[inst.Result.ID] == 0 {
					changed = true
					continue
				}
				kept = append(kept, inst)
			}
			block.Instructions = kept
		}
	}
}

func countUses(fn *Function) map[int]int {
	uses := make(map[int]int)
	for _, block := range fn.Blocks {
		for _, inst := range block.Instructions {
			for _, op := range inst.Operands {
				uses[op.ID]++
			}
		}
		switch term := block.Terminator.(type) {
		case *TermCondBranch:
			uses[term.Cond.ID]++
		case *TermReturn:
			if term.Value != nil {
				uses[term.Value.ID]++
			}
		case *TermThrow:
			uses[term.Value.ID]++
		}
	}
	return uses
}

// exprKey identifies a pure instruction by its op and operand identities,
// for CommonSubexprEliminate.
type exprKey struct {
	op       Op
	operands [2]int
	nops     int
}

func keyOf(inst *Instruction) (exprKey, bool) {
	if !pureOps[inst.Op] || len(inst.Operands) == 0 || len(inst.Operands) > 2 {
		return exprKey{}, false
	}
	k := exprKey{op: inst.Op, nops: len(inst.Operands)}
	for i, o := range inst.Operands {
		k.operands[i] = o.ID
	}
	return k, true
}

// CommonSubexprEliminate finds, within each block, a later pure
// instruction that recomputes an already-available expression and drops
// it, rewriting every later reference to its result onto the earlier
// instruction's result instead. There is no OpMove in this Op set to
// splice in as a placeholder, so redundant instructions are deleted
// outright and the whole function's Operands/Terminators are rewritten
// through a replacement map, rather than left as a same-value alias.
func CommonSubexprEliminate(fn *Function) {
	replace := make(map[int]int) // redundant value ID -> canonical value ID

	for _, block := range fn.Blocks {
		available := make(map[exprKey]int) // expr -> canonical value ID
		kept := block.Instructions[:0]
		for _, inst := range block.Instructions {
			key, ok := keyOf(inst)
			if !ok {
				kept = append(kept, inst)
				continue
			}
			if canonical, ok := available[key]; ok {
				replace[inst.Result.ID] = canonical
				continue
			}
			available[key] = inst.Result.ID
			kept = append(kept, inst)
		}
		block.Instructions = kept
	}

	if len(replace) == 0 {
		return
	}
	resolve := func(v Value) Value {
		for {
			canon, ok := replace[v.ID]
			if !ok {
				return v
			}
			v.ID = canon
		}
	}
	for _, block := range fn.Blocks {
		for _, inst := range block.Instructions {
			for i, o := range inst.Operands {
				inst.Operands[i] = resolve(o)
			}
		}
		switch term := block.Terminator.(type) {
		case *TermCondBranch:
			term.Cond = resolve(term.Cond)
		case *TermReturn:
			if term.Value != nil {
				v := resolve(*term.Value)
				term.Value = &v
			}
		case *TermThrow:
			term.Value = resolve(term.Value)
		}
	}
}

// RemoveUnreachableBlocks drops blocks with no path from the function's
// entry block, such as the merge block codegen leaves after an if/else
// whose both arms return. A path runs through branch successors and
// through the catch/finally/after blocks an OpTryPush installs. No pass
// folds a conditional branch on a constant condition, so this pass only
// removes blocks that were already unreachable in codegen's output.
func RemoveUnreachableBlocks(fn *Function) {
	if len(fn.Blocks) <= 1 {
		return
	}
	reachable := make(map[*BasicBlock]bool, len(fn.Blocks))
	var walk func(*BasicBlock)
	walk = func(bb *BasicBlock) {
		if reachable[bb] {
			return
		}
		reachable[bb] = true
		for _, succ := range bb.Succs {
			walk(succ)
		}
		for _, inst := range bb.Instructions {
			if inst.Op != OpTryPush {
				continue
			}
			for _, sb := range inst.SubBlocks {
				if sb != nil {
					walk(sb)
				}
			}
		}
	}
	walk(fn.Blocks[0])

	kept := fn.Blocks[:0]
	for _, block := range fn.Blocks {
		if reachable[block] {
			kept = append(kept, block)
		}
	}
	fn.Blocks = kept
}
