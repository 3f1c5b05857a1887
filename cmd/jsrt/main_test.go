// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/urfave/cli.v1"

	jsrt "github.com/embedjs/jsrt"
	"github.com/embedjs/jsrt/internal/ir"
)

func contextWithConfigFlag(t *testing.T, args []string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("jsrt", flag.ContinueOnError)
	set.String(configFlag.Name, "", configFlag.Usage)
	require.NoError(t, set.Parse(args))
	return cli.NewContext(cli.NewApp(), set, nil)
}

func TestLoadConfigDefaultsWithoutFlag(t *testing.T) {
	cfg, err := loadConfig(contextWithConfigFlag(t, nil))
	require.NoError(t, err)
	require.Equal(t, jsrt.DefaultConfig(), cfg)
}

func TestLoadConfigReadsNamedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jsrt.toml")
	require.NoError(t, os.WriteFile(path, []byte("HeapPageSize = 8192\nDisableOptimize = true\n"), 0o644))

	cfg, err := loadConfig(contextWithConfigFlag(t, []string{"--config", path}))
	require.NoError(t, err)
	require.EqualValues(t, 8192, cfg.HeapPageSize)
	require.True(t, cfg.DisableOptimize)
}

func TestLoadConfigRejectsUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jsrt.toml")
	require.NoError(t, os.WriteFile(path, []byte("NotARealField = 1\n"), 0o644))

	_, err := loadConfig(contextWithConfigFlag(t, []string{"--config", path}))
	require.Error(t, err)
}

func TestLoadConfigMissingFileErrors(t *testing.T) {
	_, err := loadConfig(contextWithConfigFlag(t, []string{"--config", filepath.Join(t.TempDir(), "missing.toml")}))
	require.Error(t, err)
}

func TestOpNameKnownAndUnknownOps(t *testing.T) {
	require.Equal(t, "add", opName(ir.OpAdd))
	require.Equal(t, "op(255)", opName(ir.Op(255)))
}

func TestTerminatorStringVariants(t *testing.T) {
	require.Equal(t, "return", terminatorString(&ir.TermReturn{}))
	require.Equal(t, "halt", terminatorString(&ir.TermHalt{}))
	require.Equal(t, "<missing>", terminatorString(nil))
}
