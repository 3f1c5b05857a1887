// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package rtlog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTerminalHandlerFormatsKeyValues(t *testing.T) {
	var buf bytes.Buffer
	l := New(NewTerminalHandler(&buf, false))
	l.Info("engine started", "instance", "abc-123", "heapBytes", 4096)

	out := buf.String()
	require.Contains(t, out, "engine started")
	require.Contains(t, out, "instance=abc-123")
	require.Contains(t, out, "heapBytes=4096")
	require.True(t, strings.HasPrefix(out, "INFO "))
}

func TestWithPrependsContext(t *testing.T) {
	var buf bytes.Buffer
	l := New(NewTerminalHandler(&buf, false)).With("component", "irvm")
	l.Warn("slow gc pause", "ms", 12)

	out := buf.String()
	require.Contains(t, out, "component=irvm")
	require.Contains(t, out, "ms=12")
}

func TestLvlFromString(t *testing.T) {
	lvl, err := LvlFromString("debug")
	require.NoError(t, err)
	require.Equal(t, LvlDebug, lvl)

	_, err = LvlFromString("bogus")
	require.Error(t, err)
}

func TestJSONHandlerProducesValidJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(JSONHandler(&buf, LvlInfo))
	l.Error("compile failed", "file", "main.js")
	require.Contains(t, buf.String(), `"msg":"compile failed"`)
	require.Contains(t, buf.String(), `"file":"main.js"`)
}
