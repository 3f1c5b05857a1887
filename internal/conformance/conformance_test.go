// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package conformance_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embedjs/jsrt/internal/conformance"
)

// arithmeticCoercionCorpus exercises the + operator's sharpest corners:
// string-wins-over-numeric coercion, NaN/Infinity propagation, and
// division-by-zero edge cases.
var arithmeticCoercionCorpus = []conformance.Case{
	{Name: "int_add", Expr: "1 + 2"},
	{Name: "float_add", Expr: "1.5 + 2.25"},
	{Name: "string_concat", Expr: `"foo" + "bar"`},
	{Name: "string_plus_number", Expr: `"foo" + 1`},
	{Name: "number_plus_string", Expr: `1 + "foo"`},
	{Name: "bool_plus_number", Expr: "true + 1"},
	{Name: "null_plus_number", Expr: "null + 1"},
	{Name: "undefined_plus_number", Expr: "undefined + 1"},
	{Name: "div_by_zero", Expr: "1 / 0"},
	{Name: "negative_div_by_zero", Expr: "-1 / 0"},
	{Name: "zero_div_zero", Expr: "0 / 0"},
	{Name: "modulo", Expr: "7 % 3"},
	{Name: "exponent", Expr: "2 ** 10"},
}

var typeofCorpus = []conformance.Case{
	{Name: "typeof_number", Expr: "1"},
	{Name: "typeof_string", Expr: `"x"`},
	{Name: "typeof_bool", Expr: "true"},
	{Name: "typeof_undefined", Expr: "undefined"},
	{Name: "typeof_null", Expr: "null"},
}

func TestArithmeticCoercionAgreesAcrossEngines(t *testing.T) {
	results, err := conformance.Run(arithmeticCoercionCorpus)
	require.NoError(t, err)
	require.Len(t, results, len(arithmeticCoercionCorpus))

	for _, r := range results {
		require.NoError(t, r.JsrtErr, r.Case.Name)
		require.NoError(t, r.GojaErr, r.Case.Name)
		require.NoError(t, r.DuktapeErr, r.Case.Name)
		require.True(t, r.Agrees(), "case %s: jsrt=%s/%s goja=%s/%s duktape=%s/%s",
			r.Case.Name, r.JsrtType, r.JsrtDisplay, r.GojaType, r.GojaDisplay, r.DuktapeType, r.DuktapeDisplay)
	}
}

func TestTypeofAgreesAcrossEngines(t *testing.T) {
	results, err := conformance.Run(typeofCorpus)
	require.NoError(t, err)
	for _, r := range results {
		require.NoError(t, r.JsrtErr, r.Case.Name)
		require.Equal(t, r.GojaType, r.JsrtType, r.Case.Name)
		require.Equal(t, r.DuktapeType, r.JsrtType, r.Case.Name)
	}
}

func TestResultAgreesFlagsMismatch(t *testing.T) {
	r := conformance.Result{
		JsrtType: "number", GojaType: "number", DuktapeType: "string",
		JsrtDisplay: "1", GojaDisplay: "1", DuktapeDisplay: "1",
	}
	require.False(t, r.Agrees())
}
