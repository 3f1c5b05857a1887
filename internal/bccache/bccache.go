// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package bccache is an off-heap cache of parsed scripts keyed by a
// content hash of their source text, backed by
// github.com/VictoriaMetrics/fastcache so a long-running host that
// re-Execs the same script body (a hot-reloaded handler, a REPL re-running
// a previous line) skips lexing and parsing on every call. internal/ast's
// Program is a plain tree with no back-pointers, so it round-trips through
// encoding/gob without the cycle problems a *ir.Program (whose
// BasicBlocks hold Pred/Succ back-edges) would hit.
package bccache

import (
	"bytes"
	"encoding/gob"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/cespare/xxhash/v2"

	"github.com/embedjs/jsrt/internal/ast"
)

func init() {
	gob.Register(&ast.Identifier{})
	gob.Register(&ast.NumberLiteral{})
	gob.Register(&ast.StringLiteral{})
	gob.Register(&ast.TemplateLiteral{})
	gob.Register(&ast.BooleanLiteral{})
	gob.Register(&ast.NullLiteral{})
	gob.Register(&ast.UndefinedLiteral{})
	gob.Register(&ast.ThisExpression{})
	gob.Register(&ast.ObjectLiteral{})
	gob.Register(&ast.ArrayLiteral{})
	gob.Register(&ast.FunctionExpression{})
	gob.Register(&ast.UnaryExpression{})
	gob.Register(&ast.BinaryExpression{})
	gob.Register(&ast.LogicalExpression{})
	gob.Register(&ast.AssignmentExpression{})
	gob.Register(&ast.ConditionalExpression{})
	gob.Register(&ast.CallExpression{})
	gob.Register(&ast.NewExpression{})
	gob.Register(&ast.MemberExpression{})
	gob.Register(&ast.AwaitExpression{})
	gob.Register(&ast.SpreadExpression{})
	gob.Register(&ast.ExpressionStatement{})
	gob.Register(&ast.VariableDeclaration{})
	gob.Register(&ast.BlockStatement{})
	gob.Register(&ast.IfStatement{})
	gob.Register(&ast.WhileStatement{})
	gob.Register(&ast.DoWhileStatement{})
	gob.Register(&ast.ForStatement{})
	gob.Register(&ast.ForInOfStatement{})
	gob.Register(&ast.ReturnStatement{})
	gob.Register(&ast.BreakStatement{})
	gob.Register(&ast.ContinueStatement{})
	gob.Register(&ast.ThrowStatement{})
	gob.Register(&ast.TryStatement{})
	gob.Register(&ast.FunctionDeclaration{})
	gob.Register(&ast.LabeledStatement{})
}

// Cache wraps one fastcache instance. maxBytes bounds its resident size;
// fastcache evicts the oldest entries once full rather than growing
// unbounded, the same trade-off most process-level byte-cache layers make.
type Cache struct {
	fc *fastcache.Cache
}

// New creates a Cache with roughly maxBytes of backing storage.
func New(maxBytes int) *Cache {
	return &Cache{fc: fastcache.New(maxBytes)}
}

// Hash returns the lookup key for source, content-addressed so two Execs
// of byte-identical source (even under different filenames) share a
// cache entry.
func Hash(source string) uint64 {
	return xxhash.Sum64String(source)
}

// Get returns the cached *ast.Program for source's hash, or nil if absent
// or corrupt (a corrupt entry is treated as a miss rather than an error:
// the caller just re-parses).
func (c *Cache) Get(hash uint64) *ast.Program {
	key := keyBytes(hash)
	raw, ok := c.fc.HasGet(nil, key)
	if !ok {
		return nil
	}
	var prog ast.Program
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&prog); err != nil {
		return nil
	}
	return &prog
}

// Put stores prog under source's hash for later Get calls.
func (c *Cache) Put(hash uint64, prog *ast.Program) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(prog); err != nil {
		return // unencodable program: skip caching rather than fail the Exec
	}
	c.fc.Set(keyBytes(hash), buf.Bytes())
}

func keyBytes(hash uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(hash >> (8 * i))
	}
	return b
}
