package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/jllopis/semkernel/pkg/core"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("invalid json log %q: %v", buf.String(), err)
	}
	buf.Reset()
	return record
}

func TestConfigureSlogAddsRunAndSpanIDs(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "debug", "JSON").With(slog.String("component", "kernel"))

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(core.WithRunID(context.Background(), "run-1"), "Kernel.Run")
	logger.InfoContext(ctx, "kernel.run.start")
	span.End()

	record := decodeLine(t, &buf)
	if record[LogKeyRunID] != "run-1" || record["component"] != "kernel" {
		t.Errorf("unexpected record %v", record)
	}
	if record[LogKeyTraceID] != span.SpanContext().TraceID().String() {
		t.Errorf("trace_id = %v", record[LogKeyTraceID])
	}
	if record[LogKeySpanID] != span.SpanContext().SpanID().String() {
		t.Errorf("span_id = %v", record[LogKeySpanID])
	}

	// An explicit run_id wins over the context.
	logger.InfoContext(ctx, "kernel.function.invoked", slog.String(LogKeyRunID, "override"))
	if got := decodeLine(t, &buf)[LogKeyRunID]; got != "override" {
		t.Errorf("run_id = %v", got)
	}

	logger.Info("no context")
	if _, ok := decodeLine(t, &buf)[LogKeyRunID]; ok {
		t.Errorf("run_id added without a run context")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		" warn ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetLogLevel(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "warn", "text")
	logger.Info("kernel.run.start")
	if buf.Len() != 0 {
		t.Fatalf("info must be filtered at warn level, got %q", buf.String())
	}

	SetLogLevel("debug")
	defer SetLogLevel("info")
	if LogLevel() != slog.LevelDebug {
		t.Fatalf("LogLevel() = %v", LogLevel())
	}
	logger.Debug("kernel.function.invoking")
	if buf.Len() == 0 {
		t.Fatalf("expected debug record after level change")
	}
}
