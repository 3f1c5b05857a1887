// Copyright 2024 The jsrt Authors
// This file is part of jsrt.

package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embedjs/jsrt/internal/ast"
)

func TestParseVariableDeclaration(t *testing.T) {
	prog, errs := Parse("t.js", "let x = 1 + 2;")
	require.Empty(t, errs)
	require.Len(t, prog.Body, 1)
	decl, ok := prog.Body[0].(*ast.VariableDeclaration)
	require.True(t, ok)
	require.Equal(t, ast.DeclLet, decl.Kind)
	require.Len(t, decl.Declarations, 1)
	require.Equal(t, "x", decl.Declarations[0].Name)
	bin, ok := decl.Declarations[0].Init.(*ast.BinaryExpression)
	require.True(t, ok)
	require.NotNil(t, bin)
}

func TestParseFunctionAndClosure(t *testing.T) {
	src := `
	function makeCounter() {
		let n = 0;
		return function() {
			n = n + 1;
			return n;
		};
	}
	`
	prog, errs := Parse("t.js", src)
	require.Empty(t, errs)
	require.Len(t, prog.Body, 1)
	fd, ok := prog.Body[0].(*ast.FunctionDeclaration)
	require.True(t, ok)
	require.Equal(t, "makeCounter", fd.Function.Name)
	require.Len(t, fd.Function.Body, 2)
}

func TestParseArrowFunction(t *testing.T) {
	prog, errs := Parse("t.js", "let f = (a, b) => a + b;")
	require.Empty(t, errs)
	decl := prog.Body[0].(*ast.VariableDeclaration)
	fn, ok := decl.Declarations[0].Init.(*ast.FunctionExpression)
	require.True(t, ok)
	require.True(t, fn.Arrow)
	require.NotNil(t, fn.ExprBody)
}

func TestParseObjectAndArrayLiterals(t *testing.T) {
	prog, errs := Parse("t.js", `let o = { a: 1, b, ...c }; let arr = [1, 2, ...rest];`)
	require.Empty(t, errs)
	require.Len(t, prog.Body, 2)

	objDecl := prog.Body[0].(*ast.VariableDeclaration)
	obj := objDecl.Declarations[0].Init.(*ast.ObjectLiteral)
	require.Len(t, obj.Properties, 3)
	require.Equal(t, ast.PropSpread, obj.Properties[2].Kind)

	arrDecl := prog.Body[1].(*ast.VariableDeclaration)
	arr := arrDecl.Declarations[0].Init.(*ast.ArrayLiteral)
	require.Len(t, arr.Elements, 3)
	require.True(t, arr.Elements[2].Spread)
}

func TestParseTryCatchFinally(t *testing.T) {
	src := `
	try {
		throw 1;
	} catch (e) {
		x = e;
	} finally {
		cleanup();
	}
	`
	prog, errs := Parse("t.js", src)
	require.Empty(t, errs)
	tryStmt, ok := prog.Body[0].(*ast.TryStatement)
	require.True(t, ok)
	require.NotNil(t, tryStmt.Handler)
	require.Equal(t, "e", tryStmt.Handler.Param)
	require.NotNil(t, tryStmt.Finally)
}

func TestParseForLoopVariants(t *testing.T) {
	_, errs := Parse("t.js", `for (let i = 0; i < 10; i = i + 1) { x = i; }`)
	require.Empty(t, errs)

	prog, errs := Parse("t.js", `for (let k of arr) { use(k); }`)
	require.Empty(t, errs)
	forOf, ok := prog.Body[0].(*ast.ForInOfStatement)
	require.True(t, ok)
	require.True(t, forOf.Of)
	require.Equal(t, "k", forOf.VarName)
}

func TestParseMemberAndCallChain(t *testing.T) {
	prog, errs := Parse("t.js", `a.b.c(1, 2)[0];`)
	require.Empty(t, errs)
	stmt := prog.Body[0].(*ast.ExpressionStatement)
	_, ok := stmt.Expression.(*ast.MemberExpression)
	require.True(t, ok)
}
