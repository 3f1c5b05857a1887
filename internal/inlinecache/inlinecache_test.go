// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package inlinecache_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embedjs/jsrt/internal/inlinecache"
	"github.com/embedjs/jsrt/internal/jsvalue"
)

func TestStoreThenLookupHits(t *testing.T) {
	c := inlinecache.New(8)
	recv := jsvalue.ObjectRef(1)
	c.Store(recv, "x", inlinecache.Entry{Owner: jsvalue.ObjectRef(2), Index: 3})

	e, ok := c.Lookup(recv, "x")
	require.True(t, ok)
	require.Equal(t, jsvalue.ObjectRef(2), e.Owner)
	require.Equal(t, 3, e.Index)
}

func TestLookupMissReturnsFalse(t *testing.T) {
	c := inlinecache.New(8)
	_, ok := c.Lookup(jsvalue.ObjectRef(1), "missing")
	require.False(t, ok)
}

func TestInvalidateDropsEntry(t *testing.T) {
	c := inlinecache.New(8)
	recv := jsvalue.ObjectRef(1)
	c.Store(recv, "x", inlinecache.Entry{Owner: recv, Index: 0})
	c.Invalidate(recv, "x")

	_, ok := c.Lookup(recv, "x")
	require.False(t, ok)
}

func TestDistinctReceiversDoNotCollide(t *testing.T) {
	c := inlinecache.New(8)
	c.Store(jsvalue.ObjectRef(1), "x", inlinecache.Entry{Owner: jsvalue.ObjectRef(1), Index: 0})
	c.Store(jsvalue.ObjectRef(2), "x", inlinecache.Entry{Owner: jsvalue.ObjectRef(2), Index: 5})

	e1, _ := c.Lookup(jsvalue.ObjectRef(1), "x")
	e2, _ := c.Lookup(jsvalue.ObjectRef(2), "x")
	require.Equal(t, 0, e1.Index)
	require.Equal(t, 5, e2.Index)
}
