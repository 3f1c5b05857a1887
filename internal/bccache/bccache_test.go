// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package bccache_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embedjs/jsrt/internal/bccache"
	"github.com/embedjs/jsrt/internal/parser"
)

func TestGetMissesOnEmptyCache(t *testing.T) {
	c := bccache.New(1 << 20)
	require.Nil(t, c.Get(bccache.Hash("var x = 1;")))
}

func TestPutThenGetRoundTripsProgram(t *testing.T) {
	c := bccache.New(1 << 20)
	source := "var total = 0; for (var i = 0; i < 3; i = i + 1) { total = total + i; }"
	prog, errs := parser.Parse("t.js", source)
	require.Empty(t, errs)

	hash := bccache.Hash(source)
	c.Put(hash, prog)

	got := c.Get(hash)
	require.NotNil(t, got)
	require.Equal(t, len(prog.Body), len(got.Body))
}

func TestDistinctSourceDistinctHash(t *testing.T) {
	require.NotEqual(t, bccache.Hash("var a = 1;"), bccache.Hash("var b = 2;"))
}

func TestIdenticalSourceSameHash(t *testing.T) {
	require.Equal(t, bccache.Hash("var a = 1;"), bccache.Hash("var a = 1;"))
}
