// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package jsrt is the embeddable JavaScript engine runtime core: it wires
// the tagged value system, slab heap, string/symbol tables, lexical
// environment, parser front end, and IR execution back end into a single
// Runtime a host program can Exec scripts against and Bind native
// functions into, the way integration/engine.go wired the PROBE VM into a
// blockchain host.
package jsrt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/embedjs/jsrt/internal/abi"
	"github.com/embedjs/jsrt/internal/ast"
	"github.com/embedjs/jsrt/internal/bccache"
	"github.com/embedjs/jsrt/internal/codegen"
	"github.com/embedjs/jsrt/internal/hostbind"
	"github.com/embedjs/jsrt/internal/inspector"
	"github.com/embedjs/jsrt/internal/ir"
	"github.com/embedjs/jsrt/internal/irvm"
	"github.com/embedjs/jsrt/internal/jsobject"
	"github.com/embedjs/jsrt/internal/jsvalue"
	"github.com/embedjs/jsrt/internal/parser"
	"github.com/embedjs/jsrt/internal/rtlog"
	"github.com/embedjs/jsrt/internal/slabheap"
	"github.com/embedjs/jsrt/internal/strtab"
	"github.com/embedjs/jsrt/internal/symtab"
	"github.com/embedjs/jsrt/internal/vmctx"
)

// Sentinel errors, in the style of go-ethereum's vm.go ErrOutOfGas/
// ErrStackOverflow: package-level sentinels wrapped with context at the
// call boundary rather than ad hoc string errors.
var (
	ErrParse    = errors.New("jsrt: parse error")
	ErrClosed   = errors.New("jsrt: runtime is closed")
	ErrNotFunc  = errors.New("jsrt: value is not callable")
	ErrThrown   = errors.New("jsrt: uncaught script exception")
)

// Config holds Runtime tunables, loaded from a TOML file by the CLI via
// github.com/naoina/toml, or constructed directly by an embedder.
// cmd/jsrt's tomlSettings maps TOML keys onto these field names verbatim
// (no tags, no case folding), so a config file spells these fields exactly
// as written here: HeapPageSize, GCSweepInterval, ...
type Config struct {
	HeapPageSize    uint32
	GCSweepInterval time.Duration
	InspectorAddr   string // empty disables the inspector
	SymbolRegistry  bool
	DisableOptimize bool // skip internal/ir.Optimize, for A/B-ing a miscompile
	BytecodeCache   int  // 0 disables internal/bccache
}

// DefaultConfig picks a modest page size, a GC sweep cadence frequent
// enough to reclaim short-lived garbage without dominating CPU, and the
// inspector off by default, in the spirit of go-ethereum node config
// defaults.
func DefaultConfig() Config {
	return Config{
		HeapPageSize:    slabheap.DefaultPageSize,
		GCSweepInterval: 2 * time.Second,
		InspectorAddr:   "",
	}
}

// OwnedValue is a handle to a jsvalue.Value returned across the host
// boundary, safe for a host to hold onto past the Exec/Call that produced
// it, mirroring the original engine's external KeepAlive-marked
// references. Objects/strings it wraps live in its Runtime's heap and
// string table, so an OwnedValue must not outlive its Runtime.
type OwnedValue struct {
	rt  *Runtime
	val jsvalue.Value
}

// Value unwraps the underlying jsvalue.Value, for an embedder that needs
// to inspect a completion value directly — cmd/jsrt's REPL dumps it with
// go-spew after every line.
func (o OwnedValue) Value() jsvalue.Value { return o.val }

// Runtime owns one heap, one root lexical environment, and one string/
// symbol interner — not safe for concurrent Exec/Call, mirroring the
// original engine's single thread-local RUNTIME. Independent Runtimes may
// run concurrently in separate goroutines.
type Runtime struct {
	id   uuid.UUID
	cfg  Config
	log  *rtlog.Logger
	heap *slabheap.Heap
	ctx  *vmctx.Context
	m    *abi.Machine
	vm   *irvm.VM
	insp *inspector.Server
	reg  *symtab.Registry  // non-nil only when Config.SymbolRegistry is set
	bc   *bccache.Cache    // non-nil only when Config.BytecodeCache > 0

	group  *errgroup.Group
	cancel context.CancelFunc
	closed bool
}

// New constructs a Runtime from cfg, starting its background GC sweep
// goroutine and, if cfg.InspectorAddr is set, the debug HTTP/WebSocket
// server — both coordinated under one errgroup.Group and torn down
// together by Close, ported from integration/engine.go's single-call
// Execute entrypoint generalized into a long-lived session.
func New(cfg Config) *Runtime {
	if cfg.HeapPageSize == 0 {
		cfg.HeapPageSize = slabheap.DefaultPageSize
	}
	id := uuid.New()
	log := rtlog.Root().With("runtime", id.String())

	heap := slabheap.New(cfg.HeapPageSize)
	strings := strtab.New(heap)
	symbols := symtab.New()
	objects := jsobject.NewStore(heap)
	machine := abi.New(objects, strings, symbols)

	rootCtx := vmctx.New()
	rt := &Runtime{
		id:   id,
		cfg:  cfg,
		log:  log,
		heap: heap,
		ctx:  rootCtx,
		m:    machine,
		vm:   irvm.New(machine),
	}
	if cfg.SymbolRegistry {
		rt.reg = symtab.NewRegistry(symbols)
	}
	if cfg.BytecodeCache > 0 {
		rt.bc = bccache.New(cfg.BytecodeCache)
	}
	rt.installPrelude()

	ctx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	rt.group = g

	g.Go(func() error { return rt.gcLoop(gctx) })
	if cfg.InspectorAddr != "" {
		rt.insp = inspector.New(inspector.Deps{
			Heap: heap,
			Ctx:  rootCtx,
			Addr: cfg.InspectorAddr,
			Log:  log.With("component", "inspector"),
		})
		g.Go(func() error { return rt.insp.Serve(gctx) })
	}

	log.Info("runtime started", "heapPageSize", cfg.HeapPageSize)
	return rt
}

// gcLoop runs the mark-and-sweep cycle at cfg.GCSweepInterval until ctx is
// canceled, a recurring background loop around internal/slabheap's single
// sweep step.
func (rt *Runtime) gcLoop(ctx context.Context) error {
	if rt.cfg.GCSweepInterval <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(rt.cfg.GCSweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			freed := rt.heap.Sweep()
			if freed > 0 {
				rt.log.Debug("gc sweep", "freedBlocks", freed)
				if rt.insp != nil {
					rt.insp.Notify(inspector.Event{Kind: "gc_sweep", Data: fmt.Sprintf("freed %d blocks", freed)})
				}
			}
		}
	}
}

// Exec parses and runs source as a top-level script named filename,
// returning its completion value. filename is used only for diagnostics.
func (rt *Runtime) Exec(filename, source string) (OwnedValue, error) {
	if rt.closed {
		return OwnedValue{}, ErrClosed
	}
	prog, err := rt.parse(filename, source)
	if err != nil {
		return OwnedValue{}, err
	}

	irProg := codegen.Generate(prog)
	if !rt.cfg.DisableOptimize {
		ir.Optimize(irProg)
	}
	rt.vm.Load(irProg)

	val, thrown := rt.vm.RunMain(rt.ctx)
	if thrown != nil {
		return OwnedValue{}, rt.wrapThrown(filename, thrown)
	}
	return rt.own(val), nil
}

// parse consults rt.bc (when enabled) before lexing/parsing, so a repeat
// Exec of byte-identical source skips straight to codegen.
func (rt *Runtime) parse(filename, source string) (*ast.Program, error) {
	if rt.bc != nil {
		hash := bccache.Hash(source)
		if cached := rt.bc.Get(hash); cached != nil {
			return cached, nil
		}
		prog, errs := parser.Parse(filename, source)
		if len(errs) > 0 {
			return nil, fmt.Errorf("%w: %s: %v", ErrParse, filename, errs[0])
		}
		rt.bc.Put(hash, prog)
		return prog, nil
	}
	prog, errs := parser.Parse(filename, source)
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, filename, errs[0])
	}
	return prog, nil
}

func (rt *Runtime) wrapThrown(filename string, thrown *jsobject.Thrown) error {
	rendered := rt.m.PropertyKey(thrown.Value)
	if rendered == "" {
		rendered = thrown.Value.TypeOf(rt.m.Objects.IsCallable)
	}
	if rt.insp != nil {
		rt.insp.Notify(inspector.Event{Kind: "throw", Data: rendered})
	}
	return fmt.Errorf("%w: %s: %s", ErrThrown, filename, rendered)
}

// Call invokes fn with the given this and args, surfacing a script-level
// throw as a wrapped Go error at this outermost frame, the same
// host/script error-channel boundary Exec uses.
func (rt *Runtime) Call(fn, this OwnedValue, args ...OwnedValue) (OwnedValue, error) {
	if rt.closed {
		return OwnedValue{}, ErrClosed
	}
	raw := make([]jsvalue.Value, len(args))
	for i, a := range args {
		raw[i] = a.val
	}
	val, thrown := rt.m.Call(fn.val, this.val, raw)
	if thrown != nil {
		return OwnedValue{}, rt.wrapThrown("<call>", thrown)
	}
	return rt.own(val), nil
}

// Bind installs fn as a global property named name, adapting its Go
// signature to the uniform (this, args) ABI via internal/hostbind's
// reflection-based lifter.
func (rt *Runtime) Bind(name string, fn interface{}) error {
	if rt.closed {
		return ErrClosed
	}
	native, err := hostbind.Bind(fn, hostbind.Env{
		StringToGo: rt.m.Strings.String,
		GoToString: rt.m.Strings.Intern,
		NumberEnv:  rt.m.Strings.Env(),
		Objects:    rt.m.Objects,
	})
	if err != nil {
		return fmt.Errorf("jsrt: bind %q: %w", name, err)
	}
	bound := rt.m.FunctionNew(native)
	rt.ctx.Declare(name, vmctx.KindVar, bound)
	return nil
}

// Own wraps a jsvalue.Value captured by a host function bound via Bind
// (whose native signature takes jsvalue.Value directly) back into an
// OwnedValue, so it can be passed to Call as a this or argument.
func (rt *Runtime) Own(v jsvalue.Value) OwnedValue {
	return rt.own(v)
}

// TypeOfValue reports the typeof string for a jsvalue.Value obtained from
// this Runtime, e.g. captured by a host function bound via Bind. Exported
// for internal/conformance, which diffs this against goja/duktape's typeof
// on the same source.
func (rt *Runtime) TypeOfValue(v jsvalue.Value) string {
	return v.TypeOf(rt.m.Objects.IsCallable)
}

// DisplayValue renders v the way a console.log or String() call would,
// for internal/conformance's cross-engine diffing.
func (rt *Runtime) DisplayValue(v jsvalue.Value) string {
	return rt.m.DisplayString(v)
}

// own wraps val as an OwnedValue bound to this Runtime.
func (rt *Runtime) own(val jsvalue.Value) OwnedValue {
	return OwnedValue{rt: rt, val: val}
}

// Close cancels the background GC/inspector goroutines and waits for them
// to exit. A closed Runtime rejects further Exec/Call/Bind calls.
func (rt *Runtime) Close() error {
	if rt.closed {
		return nil
	}
	rt.closed = true
	rt.cancel()
	err := rt.group.Wait()
	rt.log.Info("runtime closed")
	return err
}

// ID returns the Runtime's correlation UUID, stamped into every log line
// this instance emits.
func (rt *Runtime) ID() string { return rt.id.String() }

// SymbolFor implements the host side of Symbol.for: process-wide interning
// when Config.SymbolRegistry is enabled, or a fresh non-interned Symbol
// otherwise — interning is opt-in since two Symbol.for(k) calls returning
// identical symbols is not guaranteed unless the embedder asks for it.
func (rt *Runtime) SymbolFor(key string) OwnedValue {
	if rt.reg != nil {
		return rt.own(jsvalue.SymbolValue(rt.reg.For(key)))
	}
	return rt.own(jsvalue.SymbolValue(rt.m.Symbols.New(key)))
}
