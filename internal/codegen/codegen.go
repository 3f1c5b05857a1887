// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package codegen lowers internal/ast into internal/ir, the bridge that
// turns a parsed script into the fixed Runtime ABI's instruction stream.
// Ported from the original engine's lang/codegen Generator: the same
// forward-jump patch-table discipline (here expressed
// as basic-block wiring instead of linear bytecode offsets), generalized to
// target the Runtime ABI catalogue instead of register-machine arithmetic
// ops. BuilderContext tracks declared locals, the loop-exit stack, and the
// free-name capture list per function. It keeps no try/catch stack: genTry
// emits OpTryPush/OpTryPop and internal/irvm maintains the handler stack at
// run time.
package codegen

import (
	"fmt"
	"sort"

	"github.com/embedjs/jsrt/internal/ast"
	"github.com/embedjs/jsrt/internal/ir"
	"github.com/embedjs/jsrt/internal/token"
)

type loopExit struct {
	label        string
	continueBlk  *ir.BasicBlock
	breakBlk     *ir.BasicBlock
}

// frame tracks one function's declared-local and free-variable bookkeeping
// during lowering, ported from vm.rs's lexical capture analysis applied at
// compile time instead of at run time.
type frame struct {
	fn       *ast.FunctionExpression // nil for the top-level program
	declared map[string]bool
	free     map[string]bool
}

// BuilderContext drives one AST-to-IR lowering pass.
type BuilderContext struct {
	b         *ir.Builder
	frames    []*frame
	loops     []loopExit
	nextTemp  int
}

func New() *BuilderContext {
	return &BuilderContext{b: ir.NewBuilder()}
}

// Generate lowers a whole parsed program into an ir.Program, with an
// implicit top-level function named "@main".
func Generate(prog *ast.Program) *ir.Program {
	c := New()
	c.pushFrame(nil)
	fn := c.b.StartFunction("@main", nil, "")
	entry := c.b.NewBlock("entry")
	c.b.SetBlock(entry)

	c.genStmts(prog.Body)
	if !c.b.BlockTerminated() {
		c.b.EmitReturn(nil)
	}
	fn.FreeVars = sortedKeys(c.popFrame())
	return c.b.Program()
}

func sortedKeys(f *frame) []string {
	out := make([]string, 0, len(f.free))
	for k := range f.free {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (c *BuilderContext) pushFrame(fn *ast.FunctionExpression) *frame {
	f := &frame{fn: fn, declared: map[string]bool{}, free: map[string]bool{}}
	c.frames = append(c.frames, f)
	return f
}

func (c *BuilderContext) popFrame() *frame {
	f := c.frames[len(c.frames)-1]
	c.frames = c.frames[:len(c.frames)-1]
	return f
}

func (c *BuilderContext) curFrame() *frame { return c.frames[len(c.frames)-1] }

func (c *BuilderContext) declare(name string) {
	c.curFrame().declared[name] = true
}

// recordUse walks outward from the current frame looking for name's
// declaring frame. Every frame strictly between the declaring frame and the
// current one is, by definition, closing over it.
func (c *BuilderContext) recordUse(name string) {
	for i := len(c.frames) - 1; i >= 0; i-- {
		if c.frames[i].declared[name] {
			for j := i + 1; j < len(c.frames); j++ {
				c.frames[j].free[name] = true
			}
			return
		}
	}
}

func (c *BuilderContext) newValue() ir.Value {
	v := c.b.NewValue(fmt.Sprintf("t%d", c.nextTemp))
	c.nextTemp++
	return v
}

func (c *BuilderContext) constUndefined() ir.Value {
	idx := c.b.AddConstant(ir.Constant{Kind: ir.ConstUndefined})
	r := c.newValue()
	return c.b.EmitConst(r, idx)
}

func (c *BuilderContext) constBool(v bool) ir.Value {
	idx := c.b.AddConstant(ir.Constant{Kind: ir.ConstBool, Bool: v})
	r := c.newValue()
	return c.b.EmitConst(r, idx)
}

// --- Statements --------------------------------------------------------

func (c *BuilderContext) genStmts(body []ast.Statement) {
	for _, s := range body {
		if c.b.BlockTerminated() {
			return
		}
		c.genStmt(s)
	}
}

func (c *BuilderContext) genStmt(s ast.Statement) {
	switch n := s.(type) {
	case *ast.ExpressionStatement:
		c.genExpr(n.Expression)

	case *ast.VariableDeclaration:
		aux := ir.AuxDeclVar
		switch n.Kind {
		case ast.DeclLet:
			aux = ir.AuxDeclLet
		case ast.DeclConst:
			aux = ir.AuxDeclConst
		}
		for _, d := range n.Declarations {
			var val ir.Value
			if d.Init != nil {
				val = c.genExpr(d.Init)
			} else {
				val = c.constUndefined()
			}
			c.declare(d.Name)
			inst := &ir.Instruction{Op: ir.OpSetVar, FieldKey: d.Name, Aux: aux, Operands: []ir.Value{val}}
			c.emitRaw(inst)
		}

	case *ast.BlockStatement:
		c.genStmts(n.Body)

	case *ast.IfStatement:
		c.genIf(n)

	case *ast.WhileStatement:
		c.genWhile(n, "")

	case *ast.DoWhileStatement:
		c.genDoWhile(n, "")

	case *ast.ForStatement:
		c.genFor(n, "")

	case *ast.ForInOfStatement:
		c.genForInOf(n, "")

	case *ast.ReturnStatement:
		if n.Argument == nil {
			c.b.EmitReturn(nil)
			return
		}
		v := c.genExpr(n.Argument)
		c.b.EmitReturn(&v)

	case *ast.BreakStatement:
		target := c.findLoop(n.Label)
		if target != nil {
			c.b.EmitBranch(target.breakBlk)
		}

	case *ast.ContinueStatement:
		target := c.findLoop(n.Label)
		if target != nil {
			c.b.EmitBranch(target.continueBlk)
		}

	case *ast.ThrowStatement:
		v := c.genExpr(n.Argument)
		c.b.EmitThrow(v)

	case *ast.TryStatement:
		c.genTry(n)

	case *ast.FunctionDeclaration:
		fnVal := c.genFunctionExpression(n.Function)
		c.declare(n.Function.Name)
		c.emitRaw(&ir.Instruction{Op: ir.OpSetVar, FieldKey: n.Function.Name, Aux: ir.AuxDeclVar, Operands: []ir.Value{fnVal}})

	case *ast.LabeledStatement:
		c.genLabeled(n)

	default:
		panic(fmt.Sprintf("codegen: unhandled statement %T", s))
	}
}

func (c *BuilderContext) emitRaw(inst *ir.Instruction) {
	blk := c.b.CurrentBlock()
	blk.Instructions = append(blk.Instructions, inst)
}

func (c *BuilderContext) findLoop(label string) *loopExit {
	for i := len(c.loops) - 1; i >= 0; i-- {
		if label == "" || c.loops[i].label == label {
			return &c.loops[i]
		}
	}
	return nil
}

func (c *BuilderContext) genLabeled(n *ast.LabeledStatement) {
	switch body := n.Body.(type) {
	case *ast.WhileStatement:
		c.genWhile(body, n.Label)
	case *ast.DoWhileStatement:
		c.genDoWhile(body, n.Label)
	case *ast.ForStatement:
		c.genFor(body, n.Label)
	case *ast.ForInOfStatement:
		c.genForInOf(body, n.Label)
	default:
		c.genStmt(n.Body)
	}
}

func (c *BuilderContext) genIf(n *ast.IfStatement) {
	cond := c.toBool(c.genExpr(n.Test))
	thenBlk := c.b.NewBlock("if.then")
	mergeBlk := c.b.NewBlock("if.end")
	elseBlk := mergeBlk
	if n.Alternate != nil {
		elseBlk = c.b.NewBlock("if.else")
	}
	c.b.EmitCondBranch(cond, thenBlk, elseBlk)

	c.b.SetBlock(thenBlk)
	c.genStmt(n.Consequent)
	if !c.b.BlockTerminated() {
		c.b.EmitBranch(mergeBlk)
	}

	if n.Alternate != nil {
		c.b.SetBlock(elseBlk)
		c.genStmt(n.Alternate)
		if !c.b.BlockTerminated() {
			c.b.EmitBranch(mergeBlk)
		}
	}

	c.b.SetBlock(mergeBlk)
}

func (c *BuilderContext) toBool(v ir.Value) ir.Value {
	r := c.newValue()
	return c.b.Emit(ir.OpToBool, r, v)
}

func (c *BuilderContext) genWhile(n *ast.WhileStatement, label string) {
	condBlk := c.b.NewBlock("while.cond")
	bodyBlk := c.b.NewBlock("while.body")
	exitBlk := c.b.NewBlock("while.end")

	c.b.EmitBranch(condBlk)
	c.b.SetBlock(condBlk)
	cond := c.toBool(c.genExpr(n.Test))
	c.b.EmitCondBranch(cond, bodyBlk, exitBlk)

	c.loops = append(c.loops, loopExit{label: label, continueBlk: condBlk, breakBlk: exitBlk})
	c.b.SetBlock(bodyBlk)
	c.genStmt(n.Body)
	if !c.b.BlockTerminated() {
		c.b.EmitBranch(condBlk)
	}
	c.loops = c.loops[:len(c.loops)-1]

	c.b.SetBlock(exitBlk)
}

func (c *BuilderContext) genDoWhile(n *ast.DoWhileStatement, label string) {
	bodyBlk := c.b.NewBlock("dowhile.body")
	condBlk := c.b.NewBlock("dowhile.cond")
	exitBlk := c.b.NewBlock("dowhile.end")

	c.b.EmitBranch(bodyBlk)
	c.loops = append(c.loops, loopExit{label: label, continueBlk: condBlk, breakBlk: exitBlk})
	c.b.SetBlock(bodyBlk)
	c.genStmt(n.Body)
	if !c.b.BlockTerminated() {
		c.b.EmitBranch(condBlk)
	}
	c.loops = c.loops[:len(c.loops)-1]

	c.b.SetBlock(condBlk)
	cond := c.toBool(c.genExpr(n.Test))
	c.b.EmitCondBranch(cond, bodyBlk, exitBlk)

	c.b.SetBlock(exitBlk)
}

func (c *BuilderContext) genFor(n *ast.ForStatement, label string) {
	switch init := n.Init.(type) {
	case *ast.VariableDeclaration:
		c.genStmt(init)
	case ast.Expression:
		c.genExpr(init)
	}

	condBlk := c.b.NewBlock("for.cond")
	bodyBlk := c.b.NewBlock("for.body")
	updateBlk := c.b.NewBlock("for.update")
	exitBlk := c.b.NewBlock("for.end")

	c.b.EmitBranch(condBlk)
	c.b.SetBlock(condBlk)
	if n.Test != nil {
		cond := c.toBool(c.genExpr(n.Test))
		c.b.EmitCondBranch(cond, bodyBlk, exitBlk)
	} else {
		c.b.EmitCondBranch(c.constBool(true), bodyBlk, exitBlk)
	}

	c.loops = append(c.loops, loopExit{label: label, continueBlk: updateBlk, breakBlk: exitBlk})
	c.b.SetBlock(bodyBlk)
	c.genStmt(n.Body)
	if !c.b.BlockTerminated() {
		c.b.EmitBranch(updateBlk)
	}
	c.loops = c.loops[:len(c.loops)-1]

	c.b.SetBlock(updateBlk)
	if n.Update != nil {
		c.genExpr(n.Update)
	}
	c.b.EmitBranch(condBlk)

	c.b.SetBlock(exitBlk)
}

// genForInOf lowers for-of to the @@iter_init/@@iter_has_next/@@iter_next
// runtime intrinsics (for-in starts with @@enum_init instead of
// @@iter_init) internal/irvm recognizes by OpCall
// FuncName, since neither iteration protocol is part of the fixed ABI
// catalogue.
func (c *BuilderContext) genForInOf(n *ast.ForInOfStatement, label string) {
	right := c.genExpr(n.Right)
	intrinsic := "@@iter_init"
	if !n.Of {
		intrinsic = "@@enum_init"
	}
	state := c.newValue()
	c.emitRaw(&ir.Instruction{Op: ir.OpCall, Result: state, FuncName: intrinsic, Operands: []ir.Value{right}})

	condBlk := c.b.NewBlock("forof.cond")
	bodyBlk := c.b.NewBlock("forof.body")
	exitBlk := c.b.NewBlock("forof.end")

	c.b.EmitBranch(condBlk)
	c.b.SetBlock(condBlk)
	hasNext := c.newValue()
	c.emitRaw(&ir.Instruction{Op: ir.OpCall, Result: hasNext, FuncName: "@@iter_has_next", Operands: []ir.Value{state}})
	c.b.EmitCondBranch(c.toBool(hasNext), bodyBlk, exitBlk)

	c.loops = append(c.loops, loopExit{label: label, continueBlk: condBlk, breakBlk: exitBlk})
	c.b.SetBlock(bodyBlk)
	val := c.newValue()
	c.emitRaw(&ir.Instruction{Op: ir.OpCall, Result: val, FuncName: "@@iter_next", Operands: []ir.Value{state}})
	c.declare(n.VarName)
	declAux := ir.AuxDeclLet
	if n.DeclKind == ast.DeclVar {
		declAux = ir.AuxDeclVar
	} else if n.DeclKind == ast.DeclConst {
		declAux = ir.AuxDeclConst
	}
	c.emitRaw(&ir.Instruction{Op: ir.OpSetVar, FieldKey: n.VarName, Aux: declAux, Operands: []ir.Value{val}})
	c.genStmt(n.Body)
	if !c.b.BlockTerminated() {
		c.b.EmitBranch(condBlk)
	}
	c.loops = c.loops[:len(c.loops)-1]

	c.b.SetBlock(exitBlk)
}

// genTry lowers try/catch/finally using a run-time handler stack: OpTryPush
// installs a (catch, finally) pair before the protected region, OpTryPop
// removes it once the protected region completes normally. A throw inside
// the region is resolved by internal/irvm consulting the live handler
// stack, not by any static block-range table, mirroring how the original
// engine's VM threads error propagation through an explicit Result channel
// rather than stack unwinding tables.
//
// Known simplification: a return executed inside the try or catch body does
// not drain a pending finally before unwinding; finally only reliably runs
// on normal completion or on a caught/uncaught throw. See DESIGN.md.
func (c *BuilderContext) genTry(n *ast.TryStatement) {
	tryBlk := c.b.NewBlock("try.body")
	mergeBlk := c.b.NewBlock("try.end")

	var catchBlk, finallyBlk *ir.BasicBlock
	if n.Handler != nil {
		catchBlk = c.b.NewBlock("try.catch")
	}
	if n.Finally != nil {
		finallyBlk = c.b.NewBlock("try.finally")
	}
	afterCatch := mergeBlk
	if finallyBlk != nil {
		afterCatch = finallyBlk
	}

	push := &ir.Instruction{Op: ir.OpTryPush, SubBlocks: []*ir.BasicBlock{catchBlk, finallyBlk, afterCatch}}
	if n.Handler != nil {
		push.FieldKey = n.Handler.Param
	}
	c.emitRaw(push)

	c.b.EmitBranch(tryBlk)
	c.b.SetBlock(tryBlk)
	c.genStmt(n.Block)
	if !c.b.BlockTerminated() {
		c.emitRaw(&ir.Instruction{Op: ir.OpTryPop})
		c.b.EmitBranch(afterCatch)
	}

	if catchBlk != nil {
		c.b.SetBlock(catchBlk)
		c.genStmt(n.Handler.Body)
		if !c.b.BlockTerminated() {
			c.b.EmitBranch(afterCatch)
		}
	}

	if finallyBlk != nil {
		c.b.SetBlock(finallyBlk)
		c.genStmt(n.Finally)
		if !c.b.BlockTerminated() {
			c.b.EmitBranch(mergeBlk)
		}
	}

	c.b.SetBlock(mergeBlk)
}

// --- Expressions ---------------------------------------------------------

func (c *BuilderContext) genExpr(e ast.Expression) ir.Value {
	switch n := e.(type) {
	case *ast.Identifier:
		c.recordUse(n.Name)
		r := c.newValue()
		return c.emitFieldResult(ir.OpResolveVar, r, n.Name)

	case *ast.NumberLiteral:
		idx := c.b.AddConstant(ir.Constant{Kind: ir.ConstNumber, Num: n.Value})
		return c.b.EmitConst(c.newValue(), idx)

	case *ast.StringLiteral:
		idx := c.b.AddConstant(ir.Constant{Kind: ir.ConstString, Str: n.Value})
		return c.b.EmitConst(c.newValue(), idx)

	case *ast.TemplateLiteral:
		r := c.newValue()
		return c.emitFieldResult(ir.OpTplNew, r, n.Raw)

	case *ast.BooleanLiteral:
		return c.constBool(n.Value)

	case *ast.NullLiteral:
		idx := c.b.AddConstant(ir.Constant{Kind: ir.ConstNull})
		return c.b.EmitConst(c.newValue(), idx)

	case *ast.UndefinedLiteral:
		return c.constUndefined()

	case *ast.ThisExpression:
		c.recordUse("this")
		r := c.newValue()
		return c.emitFieldResult(ir.OpResolveVar, r, "this")

	case *ast.ObjectLiteral:
		return c.genObjectLiteral(n)

	case *ast.ArrayLiteral:
		return c.genArrayLiteral(n)

	case *ast.FunctionExpression:
		return c.genFunctionExpression(n)

	case *ast.UnaryExpression:
		return c.genUnary(n)

	case *ast.BinaryExpression:
		return c.genBinary(n)

	case *ast.LogicalExpression:
		return c.genLogical(n)

	case *ast.AssignmentExpression:
		return c.genAssignment(n)

	case *ast.ConditionalExpression:
		return c.genConditional(n)

	case *ast.CallExpression:
		return c.genCall(n)

	case *ast.NewExpression:
		return c.genNew(n)

	case *ast.MemberExpression:
		return c.genMemberRead(n)

	case *ast.AwaitExpression:
		// A no-native-event-loop runtime resolves await synchronously: the
		// await expression evaluates to its operand unchanged. A Promise
		// operand is not unwrapped (its "value" member is not read), so
		// awaiting a Promise object yields the Promise itself.
		return c.genExpr(n.Operand)

	case *ast.SpreadExpression:
		return c.genExpr(n.Operand)

	default:
		panic(fmt.Sprintf("codegen: unhandled expression %T", e))
	}
}

func (c *BuilderContext) emitFieldResult(op ir.Op, result ir.Value, key string) ir.Value {
	c.emitRaw(&ir.Instruction{Op: op, Result: result, FieldKey: key})
	return result
}

func (c *BuilderContext) genObjectLiteral(n *ast.ObjectLiteral) ir.Value {
	obj := c.newValue()
	c.emitRaw(&ir.Instruction{Op: ir.OpNewObject, Result: obj})
	for _, p := range n.Properties {
		switch p.Kind {
		case ast.PropSpread:
			src := c.genExpr(p.Value)
			c.emitRaw(&ir.Instruction{Op: ir.OpSetMemberSpread, Operands: []ir.Value{obj, src}})
		case ast.PropShorthand:
			c.recordUse(p.Key)
			v := c.newValue()
			c.emitFieldResult(ir.OpResolveVar, v, p.Key)
			c.emitRaw(&ir.Instruction{Op: ir.OpSetMember, FieldKey: p.Key, Operands: []ir.Value{obj, v}})
		default:
			v := c.genExpr(p.Value)
			c.emitRaw(&ir.Instruction{Op: ir.OpSetMember, FieldKey: p.Key, Operands: []ir.Value{obj, v}})
		}
	}
	return obj
}

func (c *BuilderContext) genArrayLiteral(n *ast.ArrayLiteral) ir.Value {
	elems := make([]ir.Value, 0, len(n.Elements))
	for _, el := range n.Elements {
		elems = append(elems, c.genExpr(el.Value))
	}
	r := c.newValue()
	c.emitRaw(&ir.Instruction{Op: ir.OpArrayNew, Result: r, Operands: elems})
	return r
}

// genFunctionExpression compiles a nested function body into its own Function
// entry within the SAME shared ir.Program (every compiled function lands in
// one Program's function table rather than as a standalone unit), then
// restores the enclosing function/block so sibling statements keep emitting
// in the right place. internal/irvm resolves Program.Functions[Aux] at
// OpFunctionNew time to build the closure, binding fn.FreeVars against the
// defining vmctx.Context via Capture.
func (c *BuilderContext) genFunctionExpression(n *ast.FunctionExpression) ir.Value {
	outerFn := c.b.CurrentFunction()
	outerBlk := c.b.CurrentBlock()

	c.pushFrame(n)
	fn := c.b.StartFunction(n.Name, nil, n.Rest)
	funcIdx := len(c.b.Program().Functions) - 1
	fn.IsArrow = n.Arrow
	fn.IsAsync = n.Async

	entry := c.b.NewBlock("entry")
	c.b.SetBlock(entry)

	params := make([]ir.Value, 0, len(n.Params))
	for _, p := range n.Params {
		c.declare(p)
		params = append(params, ir.Value{Name: p})
	}
	if n.Rest != "" {
		c.declare(n.Rest)
	}
	fn.Params = params

	if n.ExprBody != nil {
		v := c.genExpr(n.ExprBody)
		c.b.EmitReturn(&v)
	} else {
		c.genStmts(n.Body)
		if !c.b.BlockTerminated() {
			c.b.EmitReturn(nil)
		}
	}
	fn.FreeVars = sortedKeys(c.popFrame())
	for _, free := range fn.FreeVars {
		c.recordUse(free)
	}

	c.b.SetFunction(outerFn)
	c.b.SetBlock(outerBlk)

	r := c.newValue()
	c.emitRaw(&ir.Instruction{Op: ir.OpFunctionNew, Result: r, FuncName: n.Name, Aux: funcIdx})
	return r
}

func opForBinary(t token.Type) (ir.Op, bool) {
	switch t {
	case token.PLUS:
		return ir.OpAdd, true
	case token.MINUS:
		return ir.OpSub, true
	case token.STAR:
		return ir.OpMul, true
	case token.SLASH:
		return ir.OpDiv, true
	case token.PERCENT:
		return ir.OpMod, true
	case token.STARSTAR:
		return ir.OpExp, true
	case token.AMP:
		return ir.OpBitAnd, true
	case token.PIPE:
		return ir.OpBitOr, true
	case token.CARET:
		return ir.OpBitXor, true
	case token.LSHIFT:
		return ir.OpLshift, true
	case token.RSHIFT:
		return ir.OpRshift, true
	case token.URSHIFT:
		return ir.OpUnsignedRshift, true
	case token.EQEQ:
		return ir.OpEqeq, true
	case token.EQEQEQ:
		return ir.OpEqeqeq, true
	case token.NEQ:
		return ir.OpNoteq, true
	case token.NEQEQ:
		return ir.OpNoteqeq, true
	case token.LT:
		return ir.OpLt, true
	case token.LTE:
		return ir.OpLteq, true
	case token.GT:
		return ir.OpGt, true
	case token.GTE:
		return ir.OpGteq, true
	case token.IN:
		return ir.OpIn, true
	case token.INSTANCEOF:
		return ir.OpInstanceof, true
	}
	return 0, false
}

func (c *BuilderContext) genBinary(n *ast.BinaryExpression) ir.Value {
	left := c.genExpr(n.Left)
	right := c.genExpr(n.Right)
	op, ok := opForBinary(n.Op)
	if !ok {
		panic(fmt.Sprintf("codegen: unhandled binary operator %s", n.Op))
	}
	r := c.newValue()
	return c.b.Emit(op, r, left, right)
}

// genLogical lowers &&, ||, ?? with short-circuit control flow instead of
// eagerly evaluating both sides, matching JavaScript's value-preserving
// semantics for operands with side effects.
func (c *BuilderContext) genLogical(n *ast.LogicalExpression) ir.Value {
	left := c.genExpr(n.Left)
	rhsBlk := c.b.NewBlock("logic.rhs")
	mergeBlk := c.b.NewBlock("logic.end")

	switch n.Op {
	case token.ANDAND:
		c.b.EmitCondBranch(c.toBool(left), rhsBlk, mergeBlk)
	case token.OROR:
		c.b.EmitCondBranch(c.toBool(left), mergeBlk, rhsBlk)
	default: // QUESTIONQUESTION
		// Nullish check has no dedicated ABI comparison op; approximate via
		// two strict-equality checks against null/undefined constants, kept
		// inline rather than added as a phantom NullishCoalescing-only op.
		nullIdx := c.b.AddConstant(ir.Constant{Kind: ir.ConstNull})
		undefIdx := c.b.AddConstant(ir.Constant{Kind: ir.ConstUndefined})
		nullV := c.b.EmitConst(c.newValue(), nullIdx)
		undefV := c.b.EmitConst(c.newValue(), undefIdx)
		eqNull := c.b.Emit(ir.OpEqeqeq, c.newValue(), left, nullV)
		eqUndef := c.b.Emit(ir.OpEqeqeq, c.newValue(), left, undefV)
		eitherNullish := c.b.Emit(ir.OpOr, c.newValue(), eqNull, eqUndef)
		c.b.EmitCondBranch(c.toBool(eitherNullish), rhsBlk, mergeBlk)
	}

	c.b.SetBlock(rhsBlk)
	right := c.genExpr(n.Right)
	c.b.EmitBranch(mergeBlk)

	c.b.SetBlock(mergeBlk)
	r := c.newValue()
	return c.b.EmitPhi(r, left, right)
}

func (c *BuilderContext) genConditional(n *ast.ConditionalExpression) ir.Value {
	cond := c.toBool(c.genExpr(n.Test))
	thenBlk := c.b.NewBlock("cond.then")
	elseBlk := c.b.NewBlock("cond.else")
	mergeBlk := c.b.NewBlock("cond.end")
	c.b.EmitCondBranch(cond, thenBlk, elseBlk)

	c.b.SetBlock(thenBlk)
	thenV := c.genExpr(n.Consequent)
	c.b.EmitBranch(mergeBlk)

	c.b.SetBlock(elseBlk)
	elseV := c.genExpr(n.Alt)
	c.b.EmitBranch(mergeBlk)

	c.b.SetBlock(mergeBlk)
	r := c.newValue()
	return c.b.EmitPhi(r, thenV, elseV)
}

func (c *BuilderContext) genUnary(n *ast.UnaryExpression) ir.Value {
	switch n.Op {
	case token.BANG:
		v := c.toBool(c.genExpr(n.Operand))
		r := c.newValue()
		zero := c.b.EmitConst(c.newValue(), c.b.AddConstant(ir.Constant{Kind: ir.ConstBool, Bool: false}))
		return c.b.Emit(ir.OpEqeqeq, r, v, zero)
	case token.MINUS:
		v := c.genExpr(n.Operand)
		zero := c.b.EmitConst(c.newValue(), c.b.AddConstant(ir.Constant{Kind: ir.ConstNumber, Num: 0}))
		r := c.newValue()
		return c.b.Emit(ir.OpSub, r, zero, v)
	case token.PLUS:
		return c.genExpr(n.Operand)
	case token.TYPEOF, token.VOID, token.DELETE:
		// typeof/void/delete fall outside the ABI catalogue's binary/unary
		// operator set; evaluate the operand for its side effects and
		// return undefined, a documented simplification for this
		// collaborator front end.
		if n.Operand != nil {
			c.genExpr(n.Operand)
		}
		return c.constUndefined()
	case token.INC, token.DEC:
		return c.genIncDec(n)
	}
	panic(fmt.Sprintf("codegen: unhandled unary operator %s", n.Op))
}

func (c *BuilderContext) genIncDec(n *ast.UnaryExpression) ir.Value {
	one := c.b.EmitConst(c.newValue(), c.b.AddConstant(ir.Constant{Kind: ir.ConstNumber, Num: 1}))
	op := ir.OpAdd
	if n.Op == token.DEC {
		op = ir.OpSub
	}
	switch target := n.Operand.(type) {
	case *ast.Identifier:
		c.recordUse(target.Name)
		cur := c.newValue()
		c.emitFieldResult(ir.OpResolveVar, cur, target.Name)
		next := c.b.Emit(op, c.newValue(), cur, one)
		c.emitRaw(&ir.Instruction{Op: ir.OpSetVar, FieldKey: target.Name, Aux: ir.AuxAssignOnly, Operands: []ir.Value{next}})
		if n.Prefix {
			return next
		}
		return cur
	case *ast.MemberExpression:
		obj, key, computed := c.genMemberTarget(target)
		cur := c.newValue()
		if computed != (ir.Value{}) {
			c.emitRaw(&ir.Instruction{Op: ir.OpMember, Result: cur, Operands: []ir.Value{obj, computed}})
		} else {
			c.emitRaw(&ir.Instruction{Op: ir.OpMember, Result: cur, FieldKey: key, Operands: []ir.Value{obj}})
		}
		next := c.b.Emit(op, c.newValue(), cur, one)
		if computed != (ir.Value{}) {
			c.emitRaw(&ir.Instruction{Op: ir.OpSetMember, Operands: []ir.Value{obj, computed, next}})
		} else {
			c.emitRaw(&ir.Instruction{Op: ir.OpSetMember, FieldKey: key, Operands: []ir.Value{obj, next}})
		}
		if n.Prefix {
			return next
		}
		return cur
	}
	panic("codegen: invalid increment/decrement target")
}

// genMemberTarget evaluates a member expression's object (and, for computed
// access, its key expression), returning the key as a static FieldKey when
// possible and the zero ir.Value otherwise.
func (c *BuilderContext) genMemberTarget(n *ast.MemberExpression) (obj ir.Value, key string, computedKey ir.Value) {
	obj = c.genExpr(n.Object)
	if !n.Computed {
		ident := n.Property.(*ast.Identifier)
		return obj, ident.Name, ir.Value{}
	}
	return obj, "", c.genExpr(n.Property)
}

func (c *BuilderContext) genMemberRead(n *ast.MemberExpression) ir.Value {
	obj, key, computed := c.genMemberTarget(n)
	r := c.newValue()
	if computed != (ir.Value{}) {
		c.emitRaw(&ir.Instruction{Op: ir.OpMember, Result: r, Operands: []ir.Value{obj, computed}})
	} else {
		c.emitRaw(&ir.Instruction{Op: ir.OpMember, Result: r, FieldKey: key, Operands: []ir.Value{obj}})
	}
	return r
}

var compoundOps = map[token.Type]ir.Op{
	token.PLUSEQ:    ir.OpAdd,
	token.MINUSEQ:   ir.OpSub,
	token.STAREQ:    ir.OpMul,
	token.SLASHEQ:   ir.OpDiv,
	token.PERCENTEQ: ir.OpMod,
}

func (c *BuilderContext) genAssignment(n *ast.AssignmentExpression) ir.Value {
	switch target := n.Target.(type) {
	case *ast.Identifier:
		c.recordUse(target.Name)
		var val ir.Value
		if n.Op == token.ASSIGN {
			val = c.genExpr(n.Value)
		} else if combOp, ok := compoundOps[n.Op]; ok {
			cur := c.newValue()
			c.emitFieldResult(ir.OpResolveVar, cur, target.Name)
			rhs := c.genExpr(n.Value)
			val = c.b.Emit(combOp, c.newValue(), cur, rhs)
		} else {
			// &&=, ||=, ??= read-modify-write through the logical family.
			cur := c.newValue()
			c.emitFieldResult(ir.OpResolveVar, cur, target.Name)
			rhs := c.genExpr(n.Value)
			val = c.logicalCombine(n.Op, cur, rhs)
		}
		c.emitRaw(&ir.Instruction{Op: ir.OpSetVar, FieldKey: target.Name, Aux: ir.AuxAssignOnly, Operands: []ir.Value{val}})
		return val

	case *ast.MemberExpression:
		obj, key, computed := c.genMemberTarget(target)
		var val ir.Value
		if n.Op == token.ASSIGN {
			val = c.genExpr(n.Value)
		} else if combOp, ok := compoundOps[n.Op]; ok {
			cur := c.newValue()
			if computed != (ir.Value{}) {
				c.emitRaw(&ir.Instruction{Op: ir.OpMember, Result: cur, Operands: []ir.Value{obj, computed}})
			} else {
				c.emitRaw(&ir.Instruction{Op: ir.OpMember, Result: cur, FieldKey: key, Operands: []ir.Value{obj}})
			}
			rhs := c.genExpr(n.Value)
			val = c.b.Emit(combOp, c.newValue(), cur, rhs)
		} else {
			cur := c.newValue()
			if computed != (ir.Value{}) {
				c.emitRaw(&ir.Instruction{Op: ir.OpMember, Result: cur, Operands: []ir.Value{obj, computed}})
			} else {
				c.emitRaw(&ir.Instruction{Op: ir.OpMember, Result: cur, FieldKey: key, Operands: []ir.Value{obj}})
			}
			rhs := c.genExpr(n.Value)
			val = c.logicalCombine(n.Op, cur, rhs)
		}
		if computed != (ir.Value{}) {
			c.emitRaw(&ir.Instruction{Op: ir.OpSetMember, Operands: []ir.Value{obj, computed, val}})
		} else {
			c.emitRaw(&ir.Instruction{Op: ir.OpSetMember, FieldKey: key, Operands: []ir.Value{obj, val}})
		}
		return val
	}
	panic("codegen: invalid assignment target")
}

func (c *BuilderContext) logicalCombine(op token.Type, cur, rhs ir.Value) ir.Value {
	switch op {
	case token.ANDANDEQ:
		return c.b.Emit(ir.OpAnd, c.newValue(), cur, rhs)
	case token.OROREQ:
		return c.b.Emit(ir.OpOr, c.newValue(), cur, rhs)
	default: // QUESTIONQUESTIONEQ
		return c.b.Emit(ir.OpNullishCoalescing, c.newValue(), cur, rhs)
	}
}

func (c *BuilderContext) genArgs(args []ast.ArrayElement) []ir.Value {
	out := make([]ir.Value, 0, len(args))
	for _, a := range args {
		out = append(out, c.genExpr(a.Value))
	}
	return out
}

func (c *BuilderContext) genCall(n *ast.CallExpression) ir.Value {
	args := c.genArgs(n.Args)
	r := c.newValue()
	if member, ok := n.Callee.(*ast.MemberExpression); ok {
		obj, key, computed := c.genMemberTarget(member)
		operands := append([]ir.Value{obj}, args...)
		if computed != (ir.Value{}) {
			operands = append([]ir.Value{obj, computed}, args...)
			c.emitRaw(&ir.Instruction{Op: ir.OpCall, Result: r, FuncName: "@@computed_member_call", Operands: operands})
			return r
		}
		c.emitRaw(&ir.Instruction{Op: ir.OpMemberCall, Result: r, FieldKey: key, Operands: operands})
		return r
	}
	callee := c.genExpr(n.Callee)
	operands := append([]ir.Value{callee}, args...)
	c.emitRaw(&ir.Instruction{Op: ir.OpCall, Result: r, Operands: operands})
	return r
}

func (c *BuilderContext) genNew(n *ast.NewExpression) ir.Value {
	callee := c.genExpr(n.Callee)
	args := c.genArgs(n.Args)
	r := c.newValue()
	operands := append([]ir.Value{callee}, args...)
	c.emitRaw(&ir.Instruction{Op: ir.OpConstruct, Result: r, Operands: operands})
	return r
}
