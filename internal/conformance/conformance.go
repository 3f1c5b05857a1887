// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package conformance runs the same corpus of JS expressions through this
// engine, github.com/dop251/goja, and gopkg.in/olebedev/go-duktape.v3, and
// diffs their typeof and ToString results, the way the original engine's
// test suite cross-checked arithmetic coercion and loose-equality edge
// cases against a second interpreter rather than trusting its own model of
// the spec.
//
// Coverage is intentionally limited to primitive-valued expressions
// (numbers, strings, booleans, null/undefined, and arrays of those):
// jsrt has no String()/Object.prototype.toString surface of its own yet,
// so its side of the diff is rendered by internal/abi's DisplayString
// approximation rather than a real in-language toString call, unlike the
// goja/duktape side which evaluates a real "String(v)" expression.
package conformance

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
	duktape "gopkg.in/olebedev/go-duktape.v3"

	jsrt "github.com/embedjs/jsrt"
	"github.com/embedjs/jsrt/internal/jsvalue"
)

// sep separates the typeof and ToString halves of the wrapped probe
// expression goja/duktape evaluate in one shot; NUL never appears in a JS
// string produced by these engines' default formatting.
const sep = "\x00"

// Case names one expression to evaluate identically across all three
// engines.
type Case struct {
	Name string
	Expr string
}

// Result carries one Case's rendering from every engine plus any
// evaluation error, so a caller can report partial results instead of
// aborting the whole run on the first mismatch.
type Result struct {
	Case Case

	JsrtType, JsrtDisplay       string
	GojaType, GojaDisplay       string
	DuktapeType, DuktapeDisplay string

	JsrtErr, GojaErr, DuktapeErr error
}

// Agrees reports whether every engine that evaluated without error agrees
// on both typeof and display rendering.
func (r Result) Agrees() bool {
	types := make(map[string]bool)
	displays := make(map[string]bool)
	if r.JsrtErr == nil {
		types[r.JsrtType] = true
		displays[r.JsrtDisplay] = true
	}
	if r.GojaErr == nil {
		types[r.GojaType] = true
		displays[r.GojaDisplay] = true
	}
	if r.DuktapeErr == nil {
		types[r.DuktapeType] = true
		displays[r.DuktapeDisplay] = true
	}
	return len(types) <= 1 && len(displays) <= 1
}

// Harness owns one long-lived jsrt.Runtime across a whole corpus run, the
// same way the embedding contract expects a host to reuse a Runtime
// instead of constructing one per script.
type Harness struct {
	rt *jsrt.Runtime

	reportedValue jsvalue.Value
}

// NewHarness constructs a Harness with one host function, __reportValue,
// bound into the runtime's global scope to pull a probe expression's raw
// completion value out to Go, working around Exec always returning an
// undefined completion value for the top-level script itself. typeof
// itself is computed on the Go side via Runtime.TypeOfValue rather than by
// evaluating a `typeof` expression in-language: internal/codegen's own
// genUnary documents TYPEOF as a simplification that evaluates its operand
// for side effects and discards the result, so the JS `typeof` operator
// cannot be used as a probe here the way it can against goja/duktape.
func NewHarness() (*Harness, error) {
	rt := jsrt.New(jsrt.DefaultConfig())
	h := &Harness{rt: rt}
	if err := rt.Bind("__reportValue", func(this jsvalue.Value, v jsvalue.Value) {
		h.reportedValue = v
	}); err != nil {
		return nil, fmt.Errorf("conformance: bind __reportValue: %w", err)
	}
	return h, nil
}

// Close releases the Harness's Runtime.
func (h *Harness) Close() error { return h.rt.Close() }

// eval runs expr as a probe statement and returns its typeof and display
// rendering.
func (h *Harness) eval(expr string) (typeof, display string, err error) {
	src := fmt.Sprintf("__reportValue(%s);", expr)
	if _, err := h.rt.Exec("<conformance>", src); err != nil {
		return "", "", err
	}
	return h.rt.TypeOfValue(h.reportedValue), h.rt.DisplayValue(h.reportedValue), nil
}

// Run evaluates every case against jsrt, goja, and duktape, returning one
// Result per case in order. A per-engine evaluation failure is recorded on
// the Result rather than aborting the run, so one bad case doesn't hide
// the rest of the corpus's findings.
func Run(cases []Case) ([]Result, error) {
	h, err := NewHarness()
	if err != nil {
		return nil, err
	}
	defer h.Close()

	results := make([]Result, 0, len(cases))
	for _, c := range cases {
		r := Result{Case: c}
		r.JsrtType, r.JsrtDisplay, r.JsrtErr = h.eval(c.Expr)
		r.GojaType, r.GojaDisplay, r.GojaErr = evalGoja(c.Expr)
		r.DuktapeType, r.DuktapeDisplay, r.DuktapeErr = evalDuktape(c.Expr)
		results = append(results, r)
	}
	return results, nil
}

func probeSource(expr string) string {
	return fmt.Sprintf(`(function(){ var v = (%s); return typeof v + %q + String(v); })()`, expr, sep)
}

func evalGoja(expr string) (typeof, display string, err error) {
	vm := goja.New()
	val, err := vm.RunString(probeSource(expr))
	if err != nil {
		return "", "", err
	}
	return splitProbe(val.String())
}

func evalDuktape(expr string) (typeof, display string, err error) {
	ctx := duktape.New()
	defer ctx.DestroyHeap()
	if err := ctx.PevalString(probeSource(expr)); err != nil {
		return "", "", err
	}
	result := ctx.SafeToString(-1)
	ctx.Pop()
	return splitProbe(result)
}

func splitProbe(rendered string) (typeof, display string, err error) {
	parts := strings.SplitN(rendered, sep, 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("conformance: malformed probe result %q", rendered)
	}
	return parts[0], parts[1], nil
}
