// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package ir

// Builder constructs IR programs, ported near-verbatim from the original
// engine's ir.Builder — same method set, generalized Emit helpers for the
// ABI-catalogue Op set instead of register-machine ops.
type Builder struct {
	program  *Program
	function *Function
	block    *BasicBlock
	nextID   int
}

func NewBuilder() *Builder {
	return &Builder{program: &Program{}}
}

func (b *Builder) Program() *Program { return b.program }

func (b *Builder) AddConstant(c Constant) int {
	idx := len(b.program.Constants)
	b.program.Constants = append(b.program.Constants, c)
	return idx
}

func (b *Builder) StartFunction(name string, params []Value, rest string) *Function {
	f := &Function{Name: name, Params: params, Rest: rest}
	b.function = f
	b.program.Functions = append(b.program.Functions, f)
	return f
}

func (b *Builder) CurrentFunction() *Function { return b.function }

// SetFunction restores b's current function, used by codegen to resume
// emitting into an outer function after finishing a nested one.
func (b *Builder) SetFunction(f *Function) { b.function = f }

func (b *Builder) NewBlock(label string) *BasicBlock {
	bb := &BasicBlock{Label: label}
	b.function.Blocks = append(b.function.Blocks, bb)
	return bb
}

func (b *Builder) SetBlock(bb *BasicBlock) { b.block = bb }
func (b *Builder) CurrentBlock() *BasicBlock { return b.block }

func (b *Builder) NewValue(name string) Value {
	v := Value{ID: b.nextID, Name: name}
	b.nextID++
	b.function.Locals++
	return v
}

func (b *Builder) Emit(op Op, result Value, operands ...Value) Value {
	b.block.Instructions = append(b.block.Instructions, &Instruction{Op: op, Result: result, Operands: operands})
	return result
}

func (b *Builder) EmitNamed(op Op, result Value, name string, operands ...Value) Value {
	b.block.Instructions = append(b.block.Instructions, &Instruction{Op: op, Result: result, FuncName: name, Operands: operands})
	return result
}

func (b *Builder) EmitField(op Op, result Value, key string, operands ...Value) Value {
	b.block.Instructions = append(b.block.Instructions, &Instruction{Op: op, Result: result, FieldKey: key, Operands: operands})
	return result
}

func (b *Builder) EmitConst(result Value, constIdx int) Value {
	b.block.Instructions = append(b.block.Instructions, &Instruction{Op: OpConst, Result: result, ConstIdx: constIdx})
	return result
}

func (b *Builder) EmitBranch(target *BasicBlock) {
	b.block.Terminator = &TermBranch{Target: target}
	b.block.Succs = append(b.block.Succs, target)
	target.Preds = append(target.Preds, b.block)
}

func (b *Builder) EmitCondBranch(cond Value, trueBlk, falseBlk *BasicBlock) {
	b.block.Terminator = &TermCondBranch{Cond: cond, TrueBlk: trueBlk, FalseBlk: falseBlk}
	b.block.Succs = append(b.block.Succs, trueBlk, falseBlk)
	trueBlk.Preds = append(trueBlk.Preds, b.block)
	falseBlk.Preds = append(falseBlk.Preds, b.block)
}

func (b *Builder) EmitReturn(val *Value) {
	b.block.Terminator = &TermReturn{Value: val}
}

func (b *Builder) EmitThrow(val Value) {
	b.block.Terminator = &TermThrow{Value: val}
}

func (b *Builder) EmitHalt() {
	b.block.Terminator = &TermHalt{}
}

func (b *Builder) EmitPhi(result Value, values ...Value) Value {
	inst := &Instruction{Op: OpPhi, Result: result, Operands: values}
	b.block.Instructions = append([]*Instruction{inst}, b.block.Instructions...)
	return result
}

// BlockTerminated reports whether the current block already has a
// terminator, so codegen can avoid emitting unreachable fallthrough edges.
func (b *Builder) BlockTerminated() bool {
	return b.block != nil && b.block.Terminator != nil
}
