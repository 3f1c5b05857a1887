// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package rtlog is the runtime's structured logger: the familiar
// Trace/Debug/Info/Warn/Error/Crit call convention (msg string, keyvals
// ...interface{}) ported from the original engine's root log package, now
// backed by log/slog instead of a hand-rolled record type, with a
// colorized terminal handler for interactive use.
package rtlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	colorable "github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Lvl mirrors the original engine's severity ladder, mapped onto slog's
// narrower Debug/Info/Warn/Error levels by spreading Crit/Trace above and
// below the slog range.
type Lvl int

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Lvl) slogLevel() slog.Level {
	switch l {
	case LvlCrit:
		return slog.Level(12)
	case LvlError:
		return slog.LevelError
	case LvlWarn:
		return slog.LevelWarn
	case LvlInfo:
		return slog.LevelInfo
	case LvlDebug:
		return slog.LevelDebug
	default: // LvlTrace
		return slog.Level(-8)
	}
}

func (l Lvl) String() string {
	switch l {
	case LvlCrit:
		return "CRIT"
	case LvlError:
		return "ERROR"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DEBUG"
	default:
		return "TRACE"
	}
}

// Logger is the call surface every package in this runtime uses instead of
// reaching for fmt.Printf or the bare log package.
type Logger struct {
	base *slog.Logger
	ctx  []any
}

var root = New(NewTerminalHandler(colorable.NewColorable(os.Stderr), isatty.IsTerminal(os.Stderr.Fd())))

// Root returns the runtime-wide default logger.
func Root() *Logger { return root }

// SetRoot replaces the runtime-wide default logger. Runtimes created
// afterwards log through the new one.
func SetRoot(l *Logger) { root = l }

func New(h slog.Handler) *Logger { return &Logger{base: slog.New(h)} }

// With returns a child logger that prepends ctx to every subsequent
// record's key/value pairs, mirroring the original engine's log.New(ctx...).
func (l *Logger) With(ctx ...any) *Logger {
	merged := make([]any, 0, len(l.ctx)+len(ctx))
	merged = append(merged, l.ctx...)
	merged = append(merged, ctx...)
	return &Logger{base: l.base, ctx: merged}
}

func (l *Logger) log(lvl Lvl, msg string, ctx []any) {
	kv := make([]any, 0, len(l.ctx)+len(ctx))
	kv = append(kv, l.ctx...)
	kv = append(kv, ctx...)
	l.base.Log(context.Background(), lvl.slogLevel(), msg, kv...)
}

func (l *Logger) Crit(msg string, ctx ...any)  { l.log(LvlCrit, msg, ctx); os.Exit(1) }
func (l *Logger) Error(msg string, ctx ...any) { l.log(LvlError, msg, ctx) }
func (l *Logger) Warn(msg string, ctx ...any)  { l.log(LvlWarn, msg, ctx) }
func (l *Logger) Info(msg string, ctx ...any)  { l.log(LvlInfo, msg, ctx) }
func (l *Logger) Debug(msg string, ctx ...any) { l.log(LvlDebug, msg, ctx) }
func (l *Logger) Trace(msg string, ctx ...any) { l.log(LvlTrace, msg, ctx) }

func Crit(msg string, ctx ...any)  { root.Crit(msg, ctx...) }
func Error(msg string, ctx ...any) { root.Error(msg, ctx...) }
func Warn(msg string, ctx ...any)  { root.Warn(msg, ctx...) }
func Info(msg string, ctx ...any)  { root.Info(msg, ctx...) }
func Debug(msg string, ctx ...any) { root.Debug(msg, ctx...) }
func Trace(msg string, ctx ...any) { root.Trace(msg, ctx...) }

// --- terminal handler --------------------------------------------------------

var lvlColor = map[Lvl]*color.Color{
	LvlCrit:  color.New(color.FgMagenta, color.Bold),
	LvlError: color.New(color.FgRed, color.Bold),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgWhite),
}

// TerminalHandler is a slog.Handler that renders records the way the
// original engine's TerminalFormat did: "LVL[timestamp] msg  k=v k=v",
// colorized by level when writing to an interactive terminal.
type TerminalHandler struct {
	w      io.Writer
	color  bool
	attrs  []slog.Attr
}

// NewTerminalHandler wraps w, colorizing output only when useColor is true
// (the caller decides via isatty, wrapping w in colorable.NewColorable
// first so ANSI codes render on Windows consoles too).
func NewTerminalHandler(w io.Writer, useColor bool) *TerminalHandler {
	return &TerminalHandler{w: w, color: useColor}
}

func (h *TerminalHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *TerminalHandler) Handle(_ context.Context, r slog.Record) error {
	lvl := lvlFromSlog(r.Level)
	ts := r.Time.Format("01-02|15:04:05.000")

	var b strings.Builder
	tag := fmt.Sprintf("%-5s", lvl.String())
	if h.color {
		tag = lvlColor[lvl].Sprint(tag)
	}
	fmt.Fprintf(&b, "%s[%s] %s", tag, ts, r.Message)

	attrs := append([]slog.Attr{}, h.attrs...)
	r.Attrs(func(a slog.Attr) bool { attrs = append(attrs, a); return true })
	for _, a := range attrs {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Any())
	}
	b.WriteByte('\n')

	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *TerminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TerminalHandler{w: h.w, color: h.color, attrs: append(append([]slog.Attr{}, h.attrs...), attrs...)}
}

func (h *TerminalHandler) WithGroup(string) slog.Handler { return h }

func lvlFromSlog(l slog.Level) Lvl {
	switch {
	case l >= slog.Level(12):
		return LvlCrit
	case l >= slog.LevelError:
		return LvlError
	case l >= slog.LevelWarn:
		return LvlWarn
	case l >= slog.LevelInfo:
		return LvlInfo
	case l >= slog.LevelDebug:
		return LvlDebug
	default:
		return LvlTrace
	}
}

// LvlFromString parses a level name ("crit" ... "trace"), ported from the original
// engine's LvlFromString.
func LvlFromString(s string) (Lvl, error) {
	switch strings.ToLower(s) {
	case "crit":
		return LvlCrit, nil
	case "error":
		return LvlError, nil
	case "warn":
		return LvlWarn, nil
	case "info":
		return LvlInfo, nil
	case "debug":
		return LvlDebug, nil
	case "trace":
		return LvlTrace, nil
	default:
		return LvlInfo, fmt.Errorf("unknown level: %q", s)
	}
}

// JSONHandler builds a slog.JSONHandler filtered at minLvl, for log aggregation
// pipelines that don't want the colorized terminal form.
func JSONHandler(w io.Writer, minLvl Lvl) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: minLvl.slogLevel()})
}
