// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package irvm is the concrete IR execution back end: an interpreter that
// walks the ir.Program block graph directly (there is no bytecode encoding
// and no step budget), keeping SSA results in a per-frame register map.
// Its structure follows the original engine's lang/vm (vm.go/opcodes.go),
// generalized from uint64 registers to jsvalue.Value and dispatching every
// opcode into internal/abi instead of arithmetic/memory primitives. The IR
// back end / machine-code emitter is otherwise treated as an out-of-scope
// collaborator consumed through its module abstraction; this package plays
// that role concretely so a program internal/codegen produces is actually
// runnable end to end.
package irvm

import (
	"github.com/embedjs/jsrt/internal/abi"
	"github.com/embedjs/jsrt/internal/ir"
	"github.com/embedjs/jsrt/internal/jsobject"
	"github.com/embedjs/jsrt/internal/jsvalue"
	"github.com/embedjs/jsrt/internal/vmctx"
)

// VM executes one compiled ir.Program against a Machine.
type VM struct {
	M    *abi.Machine
	Prog *ir.Program
}

func New(m *abi.Machine) *VM { return &VM{M: m} }

func (vm *VM) Load(prog *ir.Program) { vm.Prog = prog }

// tryHandler is the run-time counterpart of an OpTryPush instruction,
// ported from the original engine's error-as-Result propagation, expressed
// here as an explicit handler stack instead of Rust's ? operator chain.
type tryHandler struct {
	catch, finally, after *ir.BasicBlock
	param                 string
}

type callFrame struct {
	regs     map[int]jsvalue.Value
	handlers []tryHandler
	ctx      *vmctx.Context
	args     []jsvalue.Value
}

// RunMain executes the program's first function (internal/codegen always
// compiles the top-level script as Functions[0]) against ctx.
func (vm *VM) RunMain(ctx *vmctx.Context) (jsvalue.Value, *jsobject.Thrown) {
	if len(vm.Prog.Functions) == 0 {
		return jsvalue.UndefinedValue(), nil
	}
	return vm.callFunction(vm.Prog.Functions[0], ctx, nil)
}

// callFunction binds fn's parameters into ctx and interprets its block
// graph to completion, ported from vm.rs's call-frame dispatch loop.
func (vm *VM) callFunction(fn *ir.Function, ctx *vmctx.Context, args []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
	for i, p := range fn.Params {
		ctx.Declare(p.Name, vmctx.KindLet, vm.M.ResolveArgument(args, i))
	}
	if fn.Rest != "" {
		var rest []jsvalue.Value
		if len(fn.Params) < len(args) {
			rest = args[len(fn.Params):]
		}
		ctx.Declare(fn.Rest, vmctx.KindVar, vm.M.ArrayNew(rest))
	}
	if len(fn.Blocks) == 0 {
		return jsvalue.UndefinedValue(), nil
	}

	frame := &callFrame{regs: make(map[int]jsvalue.Value), ctx: ctx, args: args}
	cur := fn.Blocks[0]

outer:
	for cur != nil {
		for _, inst := range cur.Instructions {
			switch inst.Op {
			case ir.OpTryPush:
				h := tryHandler{param: inst.FieldKey}
				if len(inst.SubBlocks) == 3 {
					h.catch, h.finally, h.after = inst.SubBlocks[0], inst.SubBlocks[1], inst.SubBlocks[2]
				}
				frame.handlers = append(frame.handlers, h)
				continue
			case ir.OpTryPop:
				if n := len(frame.handlers); n > 0 {
					frame.handlers = frame.handlers[:n-1]
				}
				continue
			}

			result, thrown := vm.execInst(frame, inst)
			if thrown != nil {
				next, unresolved := vm.handleThrow(frame, thrown.Value)
				if unresolved != nil {
					return jsvalue.UndefinedValue(), unresolved
				}
				cur = next
				continue outer
			}
			frame.regs[inst.Result.ID] = result
		}

		switch term := cur.Terminator.(type) {
		case *ir.TermBranch:
			cur = term.Target
		case *ir.TermCondBranch:
			if frame.regs[term.Cond.ID].ToBool() {
				cur = term.TrueBlk
			} else {
				cur = term.FalseBlk
			}
		case *ir.TermReturn:
			if term.Value == nil {
				return jsvalue.UndefinedValue(), nil
			}
			return frame.regs[term.Value.ID], nil
		case *ir.TermThrow:
			val := frame.regs[term.Value.ID]
			next, unresolved := vm.handleThrow(frame, val)
			if unresolved != nil {
				return jsvalue.UndefinedValue(), unresolved
			}
			cur = next
		default: // *ir.TermHalt, nil
			return jsvalue.UndefinedValue(), nil
		}
	}
	return jsvalue.UndefinedValue(), nil
}

// handleThrow resolves a thrown value against the live handler stack.
// Catching reinstalls a finally-only handler so a rethrow from inside the
// catch body still runs finally. A finally-only handler that catches a
// propagating exception is treated as having handled it once run, rather
// than re-raising afterward — a documented simplification (DESIGN.md) of
// this collaborator back end, not full ECMAScript finally semantics.
func (vm *VM) handleThrow(frame *callFrame, val jsvalue.Value) (*ir.BasicBlock, *jsobject.Thrown) {
	for len(frame.handlers) > 0 {
		n := len(frame.handlers)
		h := frame.handlers[n-1]
		frame.handlers = frame.handlers[:n-1]

		if h.catch != nil {
			if h.finally != nil {
				frame.handlers = append(frame.handlers, tryHandler{finally: h.finally, after: h.after})
			}
			frame.ctx.Declare(h.param, vmctx.KindLet, val)
			return h.catch, nil
		}
		if h.finally != nil {
			return h.finally, nil
		}
	}
	return nil, &jsobject.Thrown{Value: val}
}

func (vm *VM) constValue(idx int) jsvalue.Value {
	c := vm.Prog.Constants[idx]
	switch c.Kind {
	case ir.ConstNumber:
		return jsvalue.NumberValue(c.Num)
	case ir.ConstString:
		return jsvalue.StringValue(vm.M.Strings.Intern(c.Str))
	case ir.ConstBool:
		return jsvalue.BooleanValue(c.Bool)
	case ir.ConstNull:
		return jsvalue.NullValue()
	default:
		return jsvalue.UndefinedValue()
	}
}

// execInst dispatches one instruction into internal/abi, ported from
// vm.rs's giant opcode match, generalized to the Runtime ABI catalogue.
func (vm *VM) execInst(frame *callFrame, inst *ir.Instruction) (jsvalue.Value, *jsobject.Thrown) {
	ops := make([]jsvalue.Value, len(inst.Operands))
	for i, o := range inst.Operands {
		ops[i] = frame.regs[o.ID]
	}

	switch inst.Op {
	case ir.OpConst:
		return vm.constValue(inst.ConstIdx), nil

	case ir.OpResolveVar:
		return vm.M.ResolveVar(frame.ctx, inst.FieldKey)

	case ir.OpSetVar:
		val := ops[0]
		switch inst.Aux {
		case ir.AuxDeclVar:
			frame.ctx.Declare(inst.FieldKey, vmctx.KindVar, val)
		case ir.AuxDeclLet:
			frame.ctx.Declare(inst.FieldKey, vmctx.KindLet, val)
		case ir.AuxDeclConst:
			frame.ctx.Declare(inst.FieldKey, vmctx.KindConst, val)
		default:
			if thrown := vm.M.SetVar(frame.ctx, inst.FieldKey, val); thrown != nil {
				return jsvalue.UndefinedValue(), thrown
			}
		}
		return val, nil

	case ir.OpResolveArgument:
		idx := 0
		if len(ops) > 0 {
			idx = int(ops[0].Number())
		}
		return vm.M.ResolveArgument(frame.args, idx), nil

	case ir.OpToBool:
		return jsvalue.BooleanValue(vm.M.ToBool(ops[0])), nil

	case ir.OpThrow:
		return jsvalue.UndefinedValue(), vm.M.Throw(ops[0])

	case ir.OpMember:
		if inst.FieldKey != "" {
			return vm.M.Member(ops[0], inst.FieldKey), nil
		}
		return vm.M.Member(ops[0], vm.M.PropertyKey(ops[1])), nil

	case ir.OpSuperMember:
		return vm.M.SuperMember(ops[0], inst.FieldKey), nil

	case ir.OpSetMember:
		if inst.FieldKey != "" {
			vm.M.SetMember(ops[0], inst.FieldKey, ops[1])
			return ops[1], nil
		}
		vm.M.SetMember(ops[0], vm.M.PropertyKey(ops[1]), ops[2])
		return ops[2], nil

	case ir.OpAssignMember:
		// Not emitted by internal/codegen directly — compound member
		// assignment lowers to member-read + binary-op + set_member
		// instead. Kept wired for ABI completeness.
		return jsvalue.UndefinedValue(), nil

	case ir.OpSetMemberSpread:
		vm.M.SetMemberSpread(ops[0], ops[1])
		return jsvalue.UndefinedValue(), nil

	case ir.OpCall:
		return vm.execCall(inst, ops)

	case ir.OpConstruct:
		return vm.M.Construct(ops[0], ops[1:])

	case ir.OpMemberCall:
		return vm.M.MemberCall(ops[0], inst.FieldKey, ops[1:])

	case ir.OpSuperMemberCall:
		return vm.M.SuperMemberCall(ops[0], inst.FieldKey, ops[0], ops[1:])

	case ir.OpTplNew:
		return vm.M.TplNew(inst.FieldKey), nil

	case ir.OpArrayNew:
		return vm.M.ArrayNew(ops), nil

	case ir.OpFunctionNew:
		return vm.makeClosure(frame, inst), nil

	case ir.OpNewObject:
		return vm.M.NewObject(), nil

	case ir.OpObjectFromInner:
		return vm.M.ObjectFromInner(jsobject.Kind(inst.Aux)), nil

	case ir.OpAdd:
		return vm.M.Add(ops[0], ops[1]), nil
	case ir.OpSub:
		return vm.M.Sub(ops[0], ops[1]), nil
	case ir.OpMul:
		return vm.M.Mul(ops[0], ops[1]), nil
	case ir.OpDiv:
		return vm.M.Div(ops[0], ops[1]), nil
	case ir.OpMod:
		return vm.M.Mod(ops[0], ops[1]), nil
	case ir.OpExp:
		return vm.M.Exp(ops[0], ops[1]), nil
	case ir.OpBitAnd:
		return vm.M.BitAnd(ops[0], ops[1]), nil
	case ir.OpBitOr:
		return vm.M.BitOr(ops[0], ops[1]), nil
	case ir.OpBitXor:
		return vm.M.BitXor(ops[0], ops[1]), nil
	case ir.OpLshift:
		return vm.M.Lshift(ops[0], ops[1]), nil
	case ir.OpRshift:
		return vm.M.Rshift(ops[0], ops[1]), nil
	case ir.OpUnsignedRshift:
		return vm.M.UnsignedRshift(ops[0], ops[1]), nil
	case ir.OpEqeq:
		return vm.M.Eqeq(ops[0], ops[1]), nil
	case ir.OpEqeqeq:
		return vm.M.Eqeqeq(ops[0], ops[1]), nil
	case ir.OpNoteq:
		return vm.M.Noteq(ops[0], ops[1]), nil
	case ir.OpNoteqeq:
		return vm.M.Noteqeq(ops[0], ops[1]), nil
	case ir.OpLt:
		return vm.M.Lt(ops[0], ops[1]), nil
	case ir.OpLteq:
		return vm.M.Lteq(ops[0], ops[1]), nil
	case ir.OpGt:
		return vm.M.Gt(ops[0], ops[1]), nil
	case ir.OpGteq:
		return vm.M.Gteq(ops[0], ops[1]), nil
	case ir.OpIn:
		return vm.M.In(ops[0], ops[1]), nil
	case ir.OpInstanceof:
		return vm.M.Instanceof(ops[0], ops[1]), nil
	case ir.OpAnd:
		return vm.M.And(ops[0], ops[1]), nil
	case ir.OpOr:
		return vm.M.Or(ops[0], ops[1]), nil
	case ir.OpNullishCoalescing:
		return vm.M.NullishCoalescing(ops[0], ops[1]), nil

	case ir.OpPhi:
		// A correctly-formed SSA phi reads whichever predecessor actually
		// ran; this flat interpreter has no per-block predecessor record,
		// so it takes the last operand register that was actually written
		// (map presence, not a zero-value check — the zero Value is a
		// legitimate Undefined result).
		for i := len(inst.Operands) - 1; i >= 0; i-- {
			if v, ok := frame.regs[inst.Operands[i].ID]; ok {
				return v, nil
			}
		}
		return jsvalue.UndefinedValue(), nil

	default:
		return jsvalue.UndefinedValue(), nil
	}
}

// execCall handles ordinary calls plus the "@@"-prefixed iteration
// intrinsics internal/codegen lowers for-in/for-of to.
func (vm *VM) execCall(inst *ir.Instruction, ops []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
	switch inst.FuncName {
	case "":
		return vm.M.Call(ops[0], jsvalue.UndefinedValue(), ops[1:])
	case "@@iter_init":
		return vm.M.IterInit(false, ops[0]), nil
	case "@@enum_init":
		return vm.M.IterInit(true, ops[0]), nil
	case "@@iter_has_next":
		return jsvalue.BooleanValue(vm.M.IterHasNext(ops[0])), nil
	case "@@iter_next":
		return vm.M.IterNext(ops[0]), nil
	case "@@computed_member_call":
		key := vm.M.PropertyKey(ops[1])
		return vm.M.MemberCall(ops[0], key, ops[2:])
	default:
		return jsvalue.UndefinedValue(), nil
	}
}

// makeClosure builds a callable Object for a script function, capturing
// fn.FreeVars out of the defining context via vmctx's capture-promotion
// algorithm, ported from vm.rs's closure-creation step in Function::new.
func (vm *VM) makeClosure(frame *callFrame, inst *ir.Instruction) jsvalue.Value {
	fn := vm.Prog.Functions[inst.Aux]
	definingCtx := frame.ctx

	var captures map[string]*vmctx.Cell
	if len(fn.FreeVars) > 0 {
		captures = make(map[string]*vmctx.Cell, len(fn.FreeVars))
		for _, name := range fn.FreeVars {
			if cell, ok := definingCtx.Capture(name); ok {
				captures[name] = cell
			}
		}
	}

	native := func(this jsvalue.Value, args []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
		callCtx := definingCtx.NewChild()
		if captures != nil {
			callCtx.AttachCaptures(captures)
		}
		callCtx.Declare("this", vmctx.KindConst, this)
		return vm.callFunction(fn, callCtx, args)
	}
	return vm.M.FunctionNew(native)
}
