// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package inspector is a minimal debugger/inspector surface exposed
// alongside a Runtime: GET /heap for slab allocator stats, GET /vmctx for
// a scope-chain dump, and a WS /events feed of GC sweep and uncaught-throw
// notifications, grounded on the original engine's op-style Go service
// shape — one small httprouter.Router, CORS-wrapped, run under the
// Runtime's errgroup alongside the GC sweep goroutine.
package inspector

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/embedjs/jsrt/internal/rtlog"
	"github.com/embedjs/jsrt/internal/slabheap"
	"github.com/embedjs/jsrt/internal/vmctx"
)

// Event is one notification pushed to WS /events subscribers.
type Event struct {
	Kind string `json:"kind"` // "gc_sweep" or "throw"
	Data string `json:"data"`
}

// Deps are the pieces of a running Runtime the inspector reads. It never
// mutates Heap or Ctx.
type Deps struct {
	Heap *slabheap.Heap
	Ctx  *vmctx.Context
	Addr string
	Log  *rtlog.Logger
}

// Server serves the debug HTTP/WebSocket surface for one Runtime.
type Server struct {
	deps     Deps
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func New(deps Deps) *Server {
	if deps.Log == nil {
		deps.Log = rtlog.Root()
	}
	return &Server{
		deps: deps,
		subs: make(map[chan Event]struct{}),
	}
}

// Notify broadcasts an event to every connected WS /events subscriber.
// Runtime calls this after each GC sweep and whenever a script throw
// escapes to the outermost frame.
func (s *Server) Notify(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- ev:
		default: // slow subscriber, drop rather than block the caller
		}
	}
}

func (s *Server) router() http.Handler {
	r := httprouter.New()
	r.GET("/heap", s.handleHeap)
	r.GET("/vmctx", s.handleVmctx)
	r.GET("/events", s.handleEvents)
	return cors.Default().Handler(r)
}

func (s *Server) handleHeap(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, s.deps.Heap.Stats())
}

type scopeDump struct {
	Names []string    `json:"names"`
	Outer *scopeDump  `json:"outer,omitempty"`
}

func (s *Server) handleVmctx(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, dumpScope(s.deps.Ctx))
}

func dumpScope(c *vmctx.Context) *scopeDump {
	if c == nil {
		return nil
	}
	return &scopeDump{Names: c.Names(), Outer: dumpScope(c.Parent)}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.deps.Log.Warn("inspector: websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ch := make(chan Event, 16)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
		close(ch)
	}()

	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Serve runs the HTTP server until ctx is canceled, shutting down
// gracefully with a short drain timeout — ported from the original
// engine's RPC server start/stop lifecycle.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{Addr: s.deps.Addr, Handler: s.router()}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.deps.Log.Info("inspector listening", "addr", s.deps.Addr)

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
