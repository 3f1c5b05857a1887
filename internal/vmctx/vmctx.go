// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package vmctx implements the lexical environment VmContext: a
// parent-chained chain of scopes holding Let/Var/Const bindings, with
// capture promotion turning a local into a shared cell the first time an
// inner closure captures it. Ported from the original engine's vm.rs.
package vmctx

import (
	"fmt"
	"sort"
)

// VarKind discriminates a binding's declaration form.
type VarKind uint8

const (
	KindLet VarKind = iota
	KindVar
	KindConst
	KindCaptured
)

// Cell is the shared box a captured variable's reads/writes alias once
// promoted.
type Cell struct {
	Value interface{}
}

// Variable is one binding slot, ported from vm.rs's Variable enum.
type Variable struct {
	Kind  VarKind
	Value interface{} // meaningful when Kind != KindCaptured
	Cell  *Cell        // meaningful when Kind == KindCaptured
}

func (v Variable) read() interface{} {
	if v.Kind == KindCaptured {
		return v.Cell.Value
	}
	return v.Value
}

// ReferenceError is raised when a variable lookup reaches the end of the
// scope chain without finding a binding. Unlike the original engine's
// get_variable_raw (left with a "todo: throw reference error" comment and
// a silent Undefined fallback), this runtime always raises it.
type ReferenceError struct {
	Name string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s is not defined", e.Name)
}

// ConstAssignmentError is raised when assigning to a const binding.
type ConstAssignmentError struct {
	Name string
}

func (e *ConstAssignmentError) Error() string {
	return fmt.Sprintf("assignment to constant variable %q", e.Name)
}

// Context is one lexical scope. The root Context of a Runtime has a nil
// Parent.
type Context struct {
	Parent   *Context
	vars     map[string]*Variable
	captures map[string]*Cell
}

// New creates a fresh root context.
func New() *Context {
	return &Context{vars: make(map[string]*Variable)}
}

// NewChild creates a child scope, ported from VmContext::new_child.
func (c *Context) NewChild() *Context {
	return &Context{Parent: c, vars: make(map[string]*Variable)}
}

// Declare introduces a new binding in this scope.
func (c *Context) Declare(name string, kind VarKind, initial interface{}) {
	c.vars[name] = &Variable{Kind: kind, Value: initial}
}

// AttachCaptures installs the capture set an inner function closed over,
// ported from VmContext::attach_captures. Looked up after local vars and
// before recursing to Parent.
func (c *Context) AttachCaptures(captures map[string]*Cell) {
	c.captures = captures
}

// Capture promotes name to a shared cell if it is not already one, and
// returns that cell, ported from VmContext::capture's exact algorithm:
// check local vars first; if found and not yet Captured, wrap its current
// value in a new Cell and rewrite the slot; if found and already Captured,
// return the existing Cell; otherwise check this scope's attached captures
// map; otherwise recurse to Parent. Returns (nil, false) if name is bound
// nowhere in the chain.
func (c *Context) Capture(name string) (*Cell, bool) {
	if v, ok := c.vars[name]; ok {
		if v.Kind == KindCaptured {
			return v.Cell, true
		}
		cell := &Cell{Value: v.Value}
		c.vars[name] = &Variable{Kind: KindCaptured, Cell: cell}
		return cell, true
	}
	if c.captures != nil {
		if cell, ok := c.captures[name]; ok {
			return cell, true
		}
	}
	if c.Parent != nil {
		return c.Parent.Capture(name)
	}
	return nil, false
}

// Get implements resolve_var: local -> captures -> parent, raising
// ReferenceError at the end of the chain.
func (c *Context) Get(name string) (interface{}, error) {
	if v, ok := c.vars[name]; ok {
		return v.read(), nil
	}
	if c.captures != nil {
		if cell, ok := c.captures[name]; ok {
			return cell.Value, nil
		}
	}
	if c.Parent != nil {
		return c.Parent.Get(name)
	}
	return nil, &ReferenceError{Name: name}
}

// Names returns this scope's own locally declared binding names, sorted,
// for debug dumps (internal/inspector's GET /vmctx).
func (c *Context) Names() []string {
	names := make([]string, 0, len(c.vars))
	for name := range c.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is bound anywhere in the chain, without raising.
func (c *Context) Has(name string) bool {
	_, err := c.Get(name)
	return err == nil
}

// Set implements set_var: the same local -> captures -> parent chain as
// Get, writing through a Cell's payload for promoted captures. Assigning
// to a const binding is a ConstAssignmentError.
func (c *Context) Set(name string, value interface{}) error {
	if v, ok := c.vars[name]; ok {
		if v.Kind == KindConst {
			return &ConstAssignmentError{Name: name}
		}
		if v.Kind == KindCaptured {
			v.Cell.Value = value
			return nil
		}
		v.Value = value
		return nil
	}
	if c.captures != nil {
		if cell, ok := c.captures[name]; ok {
			cell.Value = value
			return nil
		}
	}
	if c.Parent != nil {
		return c.Parent.Set(name, value)
	}
	return &ReferenceError{Name: name}
}
