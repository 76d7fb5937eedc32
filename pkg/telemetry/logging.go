// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/semkernel/pkg/core"
)

// Log attribute keys added from the record context.
const (
	LogKeyTraceID = "trace_id"
	LogKeySpanID  = "span_id"
	LogKeyRunID   = "run_id"
)

var level = new(slog.LevelVar)

// ConfigureSlog installs the default logger. format is json or text. Records
// logged with a run context carry its run id and span ids.
func ConfigureSlog(w io.Writer, lvl, format string) *slog.Logger {
	SetLogLevel(lvl)
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		h = slog.NewJSONHandler(w, opts)
	}
	logger := slog.New(runHandler{Handler: h})
	slog.SetDefault(logger)
	return logger
}

// SetLogLevel changes the level of every logger built by ConfigureSlog.
func SetLogLevel(lvl string) { level.Set(parseLogLevel(lvl)) }

// LogLevel returns the current level.
func LogLevel() slog.Level { return level.Level() }

func parseLogLevel(lvl string) slog.Level {
	var l slog.Level
	s := strings.ToUpper(strings.TrimSpace(lvl))
	if s == "WARNING" {
		s = "WARN"
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

type runHandler struct {
	slog.Handler
}

func (h runHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		present := keysOf(r)
		if id, ok := core.RunID(ctx); ok && !present[LogKeyRunID] {
			r.AddAttrs(slog.String(LogKeyRunID, id))
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			if !present[LogKeyTraceID] {
				r.AddAttrs(slog.String(LogKeyTraceID, sc.TraceID().String()))
			}
			if !present[LogKeySpanID] {
				r.AddAttrs(slog.String(LogKeySpanID, sc.SpanID().String()))
			}
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h runHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return runHandler{h.Handler.WithAttrs(attrs)}
}

func (h runHandler) WithGroup(name string) slog.Handler {
	return runHandler{h.Handler.WithGroup(name)}
}

func keysOf(r slog.Record) map[string]bool {
	keys := make(map[string]bool, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		keys[a.Key] = true
		return true
	})
	return keys
}
