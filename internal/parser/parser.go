// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package parser implements a recursive-descent / Pratt parser for the
// JavaScript subset this runtime accepts, ported from the original
// engine's PROBE-language parser (same declaration/Pratt-expression split,
// same error-collection-with-recovery strategy) retargeted to JS grammar.
//
// The full ECMAScript grammar is out of this runtime's scope, but
// Runtime.Exec needs a concrete front end to be end-to-end runnable, so
// this package covers
// the subset exercised by this repo's test corpus and conformance harness:
// var/let/const, function and arrow expressions, object/array literals
// with spread, member/call/new, the binary and logical operators, the
// assignment operators = += -= *= /= %= (the lexer produces no other
// compound assignment token), if/while/do-while/for/for-in/for-of, try/catch/finally,
// break/continue/labels, and template literals without interpolation.
package parser

import (
	"fmt"
	"strconv"

	"github.com/embedjs/jsrt/internal/ast"
	"github.com/embedjs/jsrt/internal/lexer"
	"github.com/embedjs/jsrt/internal/token"
)

type precedence int

const (
	precLowest precedence = iota
	precAssign
	precConditional
	precNullish
	precOr
	precAnd
	precBitOr
	precBitXor
	precBitAnd
	precEquality
	precRelational
	precShift
	precAdd
	precMul
	precExp
	precUnary
	precPostfix
	precCall
)

var infixPrec = map[token.Type]precedence{
	token.OROR: precOr, token.ANDAND: precAnd,
	token.QUESTIONQUESTION: precNullish,
	token.PIPE: precBitOr, token.CARET: precBitXor, token.AMP: precBitAnd,
	token.EQEQ: precEquality, token.NEQ: precEquality,
	token.EQEQEQ: precEquality, token.NEQEQ: precEquality,
	token.LT: precRelational, token.GT: precRelational,
	token.LTE: precRelational, token.GTE: precRelational,
	token.INSTANCEOF: precRelational, token.IN: precRelational,
	token.LSHIFT: precShift, token.RSHIFT: precShift, token.URSHIFT: precShift,
	token.PLUS: precAdd, token.MINUS: precAdd,
	token.STAR: precMul, token.SLASH: precMul, token.PERCENT: precMul,
	token.STARSTAR: precExp,
	token.LPAREN:    precCall,
	token.DOT:       precCall, token.QUESTIONDOT: precCall, token.LBRACKET: precCall,
}

var assignOps = map[token.Type]bool{
	token.ASSIGN: true, token.PLUSEQ: true, token.MINUSEQ: true,
	token.STAREQ: true, token.SLASHEQ: true, token.PERCENTEQ: true,
	token.ANDANDEQ: true, token.OROREQ: true, token.QUESTIONQUESTIONEQ: true,
}

// Error records one parse failure; the parser recovers and keeps going so
// the caller sees as many errors as possible in one pass.
type Error struct {
	Pos     token.Position
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Pos, e.Message) }

type Parser struct {
	l      *lexer.Lexer
	tokens []token.Token
	pos    int
	errs   []error
}

func New(filename, source string) *Parser {
	l := lexer.New(filename, source)
	toks := l.Tokenize()
	var filtered []token.Token
	for _, t := range toks {
		if t.Type != token.COMMENT {
			filtered = append(filtered, t)
		}
	}
	return &Parser{l: l, tokens: filtered}
}

func (p *Parser) cur() token.Token  { return p.tokens[p.pos] }
func (p *Parser) peekN(n int) token.Token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+n]
}
func (p *Parser) advance() token.Token {
	t := p.cur()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) expect(t token.Type) token.Token {
	if p.cur().Type != t {
		p.errorf("expected %s, got %s (%q)", t, p.cur().Type, p.cur().Literal)
		return p.cur()
	}
	return p.advance()
}

func (p *Parser) errorf(format string, args ...interface{}) {
	p.errs = append(p.errs, &Error{Pos: p.cur().Pos, Message: fmt.Sprintf(format, args...)})
}

// skipSemi consumes an optional trailing ';' — this subset does not
// implement full automatic semicolon insertion, only the common case of
// an optional terminator.
func (p *Parser) skipSemi() {
	if p.cur().Type == token.SEMI {
		p.advance()
	}
}

// Parse runs the parser to completion, returning the Program and any
// collected errors.
func Parse(filename, source string) (*ast.Program, []error) {
	p := New(filename, source)
	prog := &ast.Program{}
	for p.cur().Type != token.EOF {
		stmt := p.parseStatement()
		if stmt != nil {
			prog.Body = append(prog.Body, stmt)
		}
	}
	return prog, p.errs
}

func (p *Parser) parseStatement() ast.Statement {
	switch p.cur().Type {
	case token.VAR, token.LET, token.CONST:
		s := p.parseVariableDeclaration()
		p.skipSemi()
		return s
	case token.FUNCTION:
		return p.parseFunctionDeclaration(false)
	case token.ASYNC:
		if p.peekN(1).Type == token.FUNCTION {
			p.advance()
			return p.parseFunctionDeclaration(true)
		}
	case token.LBRACE:
		return p.parseBlock()
	case token.IF:
		return p.parseIf()
	case token.WHILE:
		return p.parseWhile()
	case token.DO:
		return p.parseDoWhile()
	case token.FOR:
		return p.parseFor()
	case token.RETURN:
		return p.parseReturn()
	case token.BREAK:
		pos := p.advance().Pos
		label := ""
		if p.cur().Type == token.IDENT {
			label = p.advance().Literal
		}
		p.skipSemi()
		return &ast.BreakStatement{Position: pos, Label: label}
	case token.CONTINUE:
		pos := p.advance().Pos
		label := ""
		if p.cur().Type == token.IDENT {
			label = p.advance().Literal
		}
		p.skipSemi()
		return &ast.ContinueStatement{Position: pos, Label: label}
	case token.THROW:
		pos := p.advance().Pos
		arg := p.parseExpression(precLowest)
		p.skipSemi()
		return &ast.ThrowStatement{Position: pos, Argument: arg}
	case token.TRY:
		return p.parseTry()
	case token.SEMI:
		p.advance()
		return nil
	}

	if p.cur().Type == token.IDENT && p.peekN(1).Type == token.COLON {
		pos := p.cur().Pos
		label := p.advance().Literal
		p.advance() // ':'
		body := p.parseStatement()
		return &ast.LabeledStatement{Position: pos, Label: label, Body: body}
	}

	pos := p.cur().Pos
	expr := p.parseExpression(precLowest)
	p.skipSemi()
	return &ast.ExpressionStatement{Position: pos, Expression: expr}
}

func (p *Parser) parseBlock() *ast.BlockStatement {
	pos := p.expect(token.LBRACE).Pos
	blk := &ast.BlockStatement{Position: pos}
	for p.cur().Type != token.RBRACE && p.cur().Type != token.EOF {
		if s := p.parseStatement(); s != nil {
			blk.Body = append(blk.Body, s)
		}
	}
	p.expect(token.RBRACE)
	return blk
}

func declKindFor(t token.Type) ast.DeclKind {
	switch t {
	case token.LET:
		return ast.DeclLet
	case token.CONST:
		return ast.DeclConst
	default:
		return ast.DeclVar
	}
}

func (p *Parser) parseVariableDeclaration() *ast.VariableDeclaration {
	pos := p.cur().Pos
	kind := declKindFor(p.advance().Type)
	decl := &ast.VariableDeclaration{Position: pos, Kind: kind}
	for {
		name := p.expect(token.IDENT).Literal
		var init ast.Expression
		if p.cur().Type == token.ASSIGN {
			p.advance()
			init = p.parseAssignExpr()
		}
		decl.Declarations = append(decl.Declarations, ast.VariableDeclarator{Name: name, Init: init})
		if p.cur().Type != token.COMMA {
			break
		}
		p.advance()
	}
	return decl
}

func (p *Parser) parseFunctionDeclaration(async bool) *ast.FunctionDeclaration {
	pos := p.cur().Pos
	fn := p.parseFunctionExpr(async, pos)
	return &ast.FunctionDeclaration{Position: pos, Function: fn}
}

func (p *Parser) parseFunctionExpr(async bool, pos token.Position) *ast.FunctionExpression {
	p.expect(token.FUNCTION)
	name := ""
	if p.cur().Type == token.IDENT {
		name = p.advance().Literal
	}
	params, rest := p.parseParamList()
	body := p.parseBlock()
	return &ast.FunctionExpression{Position: pos, Name: name, Params: params, Rest: rest, Body: body.Body, Async: async}
}

func (p *Parser) parseParamList() (params []string, rest string) {
	p.expect(token.LPAREN)
	for p.cur().Type != token.RPAREN && p.cur().Type != token.EOF {
		if p.cur().Type == token.DOTDOTDOT {
			p.advance()
			rest = p.expect(token.IDENT).Literal
		} else {
			params = append(params, p.expect(token.IDENT).Literal)
		}
		if p.cur().Type == token.COMMA {
			p.advance()
		}
	}
	p.expect(token.RPAREN)
	return
}

func (p *Parser) parseIf() ast.Statement {
	pos := p.advance().Pos
	p.expect(token.LPAREN)
	test := p.parseExpression(precLowest)
	p.expect(token.RPAREN)
	cons := p.parseStatement()
	var alt ast.Statement
	if p.cur().Type == token.ELSE {
		p.advance()
		alt = p.parseStatement()
	}
	return &ast.IfStatement{Position: pos, Test: test, Consequent: cons, Alternate: alt}
}

func (p *Parser) parseWhile() ast.Statement {
	pos := p.advance().Pos
	p.expect(token.LPAREN)
	test := p.parseExpression(precLowest)
	p.expect(token.RPAREN)
	body := p.parseStatement()
	return &ast.WhileStatement{Position: pos, Test: test, Body: body}
}

func (p *Parser) parseDoWhile() ast.Statement {
	pos := p.advance().Pos
	body := p.parseStatement()
	p.expect(token.WHILE)
	p.expect(token.LPAREN)
	test := p.parseExpression(precLowest)
	p.expect(token.RPAREN)
	p.skipSemi()
	return &ast.DoWhileStatement{Position: pos, Body: body, Test: test}
}

func (p *Parser) parseFor() ast.Statement {
	pos := p.advance().Pos
	p.expect(token.LPAREN)

	if p.cur().Type == token.VAR || p.cur().Type == token.LET || p.cur().Type == token.CONST {
		kind := declKindFor(p.cur().Type)
		declPos := p.cur().Pos
		p.advance()
		name := p.expect(token.IDENT).Literal

		if p.cur().Type == token.IN || p.cur().Type == token.OF {
			of := p.cur().Type == token.OF
			p.advance()
			right := p.parseExpression(precLowest)
			p.expect(token.RPAREN)
			body := p.parseStatement()
			return &ast.ForInOfStatement{Position: pos, DeclKind: kind, VarName: name, Right: right, Body: body, Of: of}
		}

		decl := &ast.VariableDeclaration{Position: declPos, Kind: kind}
		var init ast.Expression
		if p.cur().Type == token.ASSIGN {
			p.advance()
			init = p.parseAssignExpr()
		}
		decl.Declarations = append(decl.Declarations, ast.VariableDeclarator{Name: name, Init: init})
		for p.cur().Type == token.COMMA {
			p.advance()
			n2 := p.expect(token.IDENT).Literal
			var i2 ast.Expression
			if p.cur().Type == token.ASSIGN {
				p.advance()
				i2 = p.parseAssignExpr()
			}
			decl.Declarations = append(decl.Declarations, ast.VariableDeclarator{Name: n2, Init: i2})
		}
		p.expect(token.SEMI)
		var test, update ast.Expression
		if p.cur().Type != token.SEMI {
			test = p.parseExpression(precLowest)
		}
		p.expect(token.SEMI)
		if p.cur().Type != token.RPAREN {
			update = p.parseExpression(precLowest)
		}
		p.expect(token.RPAREN)
		body := p.parseStatement()
		return &ast.ForStatement{Position: pos, Init: decl, Test: test, Update: update, Body: body}
	}

	var init ast.Expression
	if p.cur().Type != token.SEMI {
		init = p.parseExpression(precLowest)
	}
	p.expect(token.SEMI)
	var test, update ast.Expression
	if p.cur().Type != token.SEMI {
		test = p.parseExpression(precLowest)
	}
	p.expect(token.SEMI)
	if p.cur().Type != token.RPAREN {
		update = p.parseExpression(precLowest)
	}
	p.expect(token.RPAREN)
	body := p.parseStatement()
	var initNode ast.Node
	if init != nil {
		initNode = init
	}
	return &ast.ForStatement{Position: pos, Init: initNode, Test: test, Update: update, Body: body}
}

func (p *Parser) parseReturn() ast.Statement {
	pos := p.advance().Pos
	var arg ast.Expression
	if p.cur().Type != token.SEMI && p.cur().Type != token.RBRACE && p.cur().Type != token.EOF {
		arg = p.parseExpression(precLowest)
	}
	p.skipSemi()
	return &ast.ReturnStatement{Position: pos, Argument: arg}
}

func (p *Parser) parseTry() ast.Statement {
	pos := p.advance().Pos
	block := p.parseBlock()
	stmt := &ast.TryStatement{Position: pos, Block: block}
	if p.cur().Type == token.CATCH {
		p.advance()
		param := ""
		if p.cur().Type == token.LPAREN {
			p.advance()
			param = p.expect(token.IDENT).Literal
			p.expect(token.RPAREN)
		}
		stmt.Handler = &ast.CatchClause{Param: param, Body: p.parseBlock()}
	}
	if p.cur().Type == token.FINALLY {
		p.advance()
		stmt.Finally = p.parseBlock()
	}
	return stmt
}

// --- Expressions (Pratt) -------------------------------------------------

func (p *Parser) parseExpression(prec precedence) ast.Expression {
	left := p.parseAssignExpr()
	for p.cur().Type == token.COMMA && prec == precLowest {
		p.advance()
		left = p.parseAssignExpr()
	}
	return left
}

func (p *Parser) parseAssignExpr() ast.Expression {
	left := p.parseConditional()
	if assignOps[p.cur().Type] {
		op := p.advance().Type
		value := p.parseAssignExpr()
		return &ast.AssignmentExpression{Position: left.Pos(), Op: op, Target: left, Value: value}
	}
	return left
}

func (p *Parser) parseConditional() ast.Expression {
	cond := p.parseBinary(precLowest + 1)
	if p.cur().Type == token.QUESTION {
		p.advance()
		cons := p.parseAssignExpr()
		p.expect(token.COLON)
		alt := p.parseAssignExpr()
		return &ast.ConditionalExpression{Position: cond.Pos(), Test: cond, Consequent: cons, Alt: alt}
	}
	return cond
}

func (p *Parser) parseBinary(minPrec precedence) ast.Expression {
	left := p.parseUnary()
	for {
		op := p.cur().Type
		prec, ok := infixPrec[op]
		if !ok || prec < minPrec || op == token.LPAREN || op == token.DOT || op == token.LBRACKET || op == token.QUESTIONDOT {
			return left
		}
		p.advance()
		nextMin := prec + 1
		if op == token.STARSTAR {
			nextMin = prec // right-associative
		}
		right := p.parseBinary(nextMin)
		if op == token.ANDAND || op == token.OROR || op == token.QUESTIONQUESTION {
			left = &ast.LogicalExpression{Position: left.Pos(), Op: op, Left: left, Right: right}
		} else {
			left = &ast.BinaryExpression{Position: left.Pos(), Op: op, Left: left, Right: right}
		}
	}
}

func (p *Parser) parseUnary() ast.Expression {
	switch p.cur().Type {
	case token.BANG, token.MINUS, token.PLUS, token.TILDE, token.TYPEOF, token.VOID, token.DELETE, token.INC, token.DEC:
		pos := p.cur().Pos
		op := p.advance().Type
		operand := p.parseUnary()
		return &ast.UnaryExpression{Position: pos, Op: op, Operand: operand, Prefix: true}
	case token.AWAIT:
		pos := p.advance().Pos
		return &ast.AwaitExpression{Position: pos, Operand: p.parseUnary()}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() ast.Expression {
	expr := p.parseCallOrMember(p.parsePrimary())
	if p.cur().Type == token.INC || p.cur().Type == token.DEC {
		op := p.advance().Type
		expr = &ast.UnaryExpression{Position: expr.Pos(), Op: op, Operand: expr, Prefix: false}
	}
	return expr
}

func (p *Parser) parseCallOrMember(expr ast.Expression) ast.Expression {
	for {
		switch p.cur().Type {
		case token.DOT:
			p.advance()
			name := p.advance().Literal
			expr = &ast.MemberExpression{Position: expr.Pos(), Object: expr, Property: &ast.Identifier{Name: name}, Computed: false}
		case token.QUESTIONDOT:
			p.advance()
			name := p.advance().Literal
			expr = &ast.MemberExpression{Position: expr.Pos(), Object: expr, Property: &ast.Identifier{Name: name}, Computed: false, Optional: true}
		case token.LBRACKET:
			p.advance()
			idx := p.parseExpression(precLowest)
			p.expect(token.RBRACKET)
			expr = &ast.MemberExpression{Position: expr.Pos(), Object: expr, Property: idx, Computed: true}
		case token.LPAREN:
			args := p.parseArgs()
			expr = &ast.CallExpression{Position: expr.Pos(), Callee: expr, Args: args}
		default:
			return expr
		}
	}
}

func (p *Parser) parseArgs() []ast.ArrayElement {
	p.expect(token.LPAREN)
	var args []ast.ArrayElement
	for p.cur().Type != token.RPAREN && p.cur().Type != token.EOF {
		spread := false
		if p.cur().Type == token.DOTDOTDOT {
			p.advance()
			spread = true
		}
		args = append(args, ast.ArrayElement{Value: p.parseAssignExpr(), Spread: spread})
		if p.cur().Type == token.COMMA {
			p.advance()
		}
	}
	p.expect(token.RPAREN)
	return args
}

func (p *Parser) looksLikeArrowParams() bool {
	// (...) => heuristic: scan forward from the matching ')' for '=>'.
	depth := 0
	i := p.pos
	for ; i < len(p.tokens); i++ {
		switch p.tokens[i].Type {
		case token.LPAREN:
			depth++
		case token.RPAREN:
			depth--
			if depth == 0 {
				return i+1 < len(p.tokens) && p.tokens[i+1].Type == token.ARROW
			}
		case token.EOF:
			return false
		}
	}
	return false
}

func (p *Parser) parsePrimary() ast.Expression {
	tok := p.cur()
	switch tok.Type {
	case token.NUMBER:
		p.advance()
		f, _ := strconv.ParseFloat(tok.Literal, 64)
		return &ast.NumberLiteral{Position: tok.Pos, Value: f}
	case token.STRING:
		p.advance()
		return &ast.StringLiteral{Position: tok.Pos, Value: tok.Literal}
	case token.TEMPLATE:
		p.advance()
		return &ast.TemplateLiteral{Position: tok.Pos, Raw: tok.Literal}
	case token.TRUE:
		p.advance()
		return &ast.BooleanLiteral{Position: tok.Pos, Value: true}
	case token.FALSE:
		p.advance()
		return &ast.BooleanLiteral{Position: tok.Pos, Value: false}
	case token.NULL:
		p.advance()
		return &ast.NullLiteral{Position: tok.Pos}
	case token.UNDEFINED:
		p.advance()
		return &ast.UndefinedLiteral{Position: tok.Pos}
	case token.THIS:
		p.advance()
		return &ast.ThisExpression{Position: tok.Pos}
	case token.IDENT:
		if p.peekN(1).Type == token.ARROW {
			p.advance()
			p.advance() // '=>'
			return p.parseArrowBody(tok.Pos, []string{tok.Literal}, "")
		}
		p.advance()
		return &ast.Identifier{Position: tok.Pos, Name: tok.Literal}
	case token.FUNCTION:
		return p.parseFunctionExpr(false, tok.Pos)
	case token.ASYNC:
		if p.peekN(1).Type == token.FUNCTION {
			p.advance()
			return p.parseFunctionExpr(true, tok.Pos)
		}
		p.advance()
		if p.cur().Type == token.LPAREN && p.looksLikeArrowParams() {
			params, rest := p.parseParamList()
			p.expect(token.ARROW)
			return p.parseArrowBody(tok.Pos, params, rest)
		}
		return &ast.Identifier{Position: tok.Pos, Name: "async"}
	case token.LPAREN:
		if p.looksLikeArrowParams() {
			params, rest := p.parseParamList()
			p.expect(token.ARROW)
			return p.parseArrowBody(tok.Pos, params, rest)
		}
		p.advance()
		expr := p.parseExpression(precLowest)
		p.expect(token.RPAREN)
		return expr
	case token.LBRACKET:
		return p.parseArrayLiteral()
	case token.LBRACE:
		return p.parseObjectLiteral()
	case token.NEW:
		p.advance()
		callee := p.parseCallOrMemberNoCall(p.parsePrimary())
		var args []ast.ArrayElement
		if p.cur().Type == token.LPAREN {
			args = p.parseArgs()
		}
		return &ast.NewExpression{Position: tok.Pos, Callee: callee, Args: args}
	case token.DOTDOTDOT:
		p.advance()
		return &ast.SpreadExpression{Position: tok.Pos, Operand: p.parseAssignExpr()}
	default:
		p.errorf("unexpected token %s (%q)", tok.Type, tok.Literal)
		p.advance()
		return &ast.UndefinedLiteral{Position: tok.Pos}
	}
}

// parseCallOrMemberNoCall resolves member access for `new` callees without
// consuming the constructor's own argument list.
func (p *Parser) parseCallOrMemberNoCall(expr ast.Expression) ast.Expression {
	for p.cur().Type == token.DOT {
		p.advance()
		name := p.advance().Literal
		expr = &ast.MemberExpression{Position: expr.Pos(), Object: expr, Property: &ast.Identifier{Name: name}}
	}
	return expr
}

func (p *Parser) parseArrowBody(pos token.Position, params []string, rest string) ast.Expression {
	fn := &ast.FunctionExpression{Position: pos, Params: params, Rest: rest, Arrow: true}
	if p.cur().Type == token.LBRACE {
		fn.Body = p.parseBlock().Body
	} else {
		fn.ExprBody = p.parseAssignExpr()
	}
	return fn
}

func (p *Parser) parseArrayLiteral() ast.Expression {
	pos := p.expect(token.LBRACKET).Pos
	lit := &ast.ArrayLiteral{Position: pos}
	for p.cur().Type != token.RBRACKET && p.cur().Type != token.EOF {
		spread := false
		if p.cur().Type == token.DOTDOTDOT {
			p.advance()
			spread = true
		}
		lit.Elements = append(lit.Elements, ast.ArrayElement{Value: p.parseAssignExpr(), Spread: spread})
		if p.cur().Type == token.COMMA {
			p.advance()
		}
	}
	p.expect(token.RBRACKET)
	return lit
}

func (p *Parser) parseObjectLiteral() ast.Expression {
	pos := p.expect(token.LBRACE).Pos
	lit := &ast.ObjectLiteral{Position: pos}
	for p.cur().Type != token.RBRACE && p.cur().Type != token.EOF {
		if p.cur().Type == token.DOTDOTDOT {
			p.advance()
			lit.Properties = append(lit.Properties, ast.Property{Kind: ast.PropSpread, Value: p.parseAssignExpr()})
		} else {
			key := p.advance().Literal
			if p.cur().Type == token.COLON {
				p.advance()
				lit.Properties = append(lit.Properties, ast.Property{Kind: ast.PropNormal, Key: key, Value: p.parseAssignExpr()})
			} else if p.cur().Type == token.LPAREN {
				params, rest := p.parseParamList()
				body := p.parseBlock()
				fn := &ast.FunctionExpression{Position: p.cur().Pos, Params: params, Rest: rest, Body: body.Body}
				lit.Properties = append(lit.Properties, ast.Property{Kind: ast.PropNormal, Key: key, Value: fn})
			} else {
				lit.Properties = append(lit.Properties, ast.Property{Kind: ast.PropShorthand, Key: key, Value: &ast.Identifier{Name: key}})
			}
		}
		if p.cur().Type == token.COMMA {
			p.advance()
		}
	}
	p.expect(token.RBRACE)
	return lit
}
