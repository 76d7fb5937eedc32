package core

import (
	"context"
	"strings"
	"testing"
)

func TestEnsureRunID(t *testing.T) {
	ctx, id := EnsureRunID(context.Background())
	if !strings.HasPrefix(id, "run-") {
		t.Fatalf("unexpected run id %q", id)
	}
	got, ok := RunID(ctx)
	if !ok || got != id {
		t.Fatalf("run id not stored: %q %v", got, ok)
	}

	ctx2, id2 := EnsureRunID(ctx)
	if id2 != id || ctx2 != ctx {
		t.Fatalf("existing run id must be reused")
	}
}

func TestRunIDEmpty(t *testing.T) {
	if _, ok := RunID(WithRunID(context.Background(), "")); ok {
		t.Fatalf("empty run id must not count as present")
	}
}

func TestNewEvent(t *testing.T) {
	ev := NewEvent(EventFunctionInvoked, "run-1", "text", "upper", 2, map[string]any{"k": "v"})
	if ev.Type != EventFunctionInvoked || ev.Step != 2 || ev.Timestamp.IsZero() {
		t.Fatalf("unexpected event %+v", ev)
	}
	NoopEventEmitter{}.Emit(context.Background(), ev)
}
