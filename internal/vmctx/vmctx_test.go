// Copyright 2024 The jsrt Authors
// This file is part of jsrt.

package vmctx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupChain(t *testing.T) {
	root := New()
	root.Declare("x", KindLet, 1)
	child := root.NewChild()
	child.Declare("y", KindLet, 2)

	v, err := child.Get("x")
	require.NoError(t, err)
	require.Equal(t, 1, v)

	v, err = child.Get("y")
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestMissingVariableRaisesReferenceError(t *testing.T) {
	root := New()
	_, err := root.Get("missing")
	require.Error(t, err)
	var refErr *ReferenceError
	require.ErrorAs(t, err, &refErr)
}

func TestCapturePromotionAliases(t *testing.T) {
	root := New()
	root.Declare("counter", KindLet, 0)

	cell, ok := root.Capture("counter")
	require.True(t, ok)
	require.Equal(t, 0, cell.Value)

	require.NoError(t, root.Set("counter", 5))
	require.Equal(t, 5, cell.Value, "write through local slot must alias the captured cell")

	cell2, ok := root.Capture("counter")
	require.True(t, ok)
	require.Same(t, cell, cell2, "re-capturing an already-promoted variable returns the same cell")
}

func TestChildCapturesFromParent(t *testing.T) {
	root := New()
	root.Declare("shared", KindLet, "v0")
	child := root.NewChild()

	cell, ok := child.Capture("shared")
	require.True(t, ok)
	require.Equal(t, "v0", cell.Value)
}

func TestConstAssignmentError(t *testing.T) {
	root := New()
	root.Declare("PI", KindConst, 3.14)
	err := root.Set("PI", 4.0)
	require.Error(t, err)
	var constErr *ConstAssignmentError
	require.ErrorAs(t, err, &constErr)
}

func TestAttachedCaptures(t *testing.T) {
	cell := &Cell{Value: 42}
	fn := New()
	fn.AttachCaptures(map[string]*Cell{"outer": cell})

	v, err := fn.Get("outer")
	require.NoError(t, err)
	require.Equal(t, 42, v)

	require.NoError(t, fn.Set("outer", 43))
	require.Equal(t, 43, cell.Value)
}
