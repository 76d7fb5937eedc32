package audit

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jllopis/semkernel/pkg/core"
	"github.com/jllopis/semkernel/pkg/kernel"
	"github.com/jllopis/semkernel/pkg/orchestration"
)

func sampleEvents() []core.Event {
	return []core.Event{
		core.NewEvent(core.EventRunStarted, "run-1", "", "", 0, map[string]any{"functions": 1}),
		core.NewEvent(core.EventFunctionInvoked, "run-1", "text", "upper", 0, map[string]any{"duration_ms": 1.5}),
		core.NewEvent(core.EventFunctionFailed, "run-2", "text", "Upper", 0, map[string]any{"error": "boom"}),
	}
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	for _, ev := range sampleEvents() {
		if err := store.Record(ctx, ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 3},
		{"run", Filter{RunID: "run-1"}, 2},
		{"function ignores case", Filter{Skill: "TEXT", Function: "upper"}, 2},
		{"type", Filter{Type: core.EventFunctionFailed}, 1},
		{"limit", Filter{Limit: 1}, 1},
		{"no match", Filter{RunID: "run-3"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := store.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(events) != tt.want {
				t.Fatalf("expected %d events, got %d", tt.want, len(events))
			}
		})
	}

	events, err := store.List(ctx, Filter{Type: core.EventFunctionFailed})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if events[0].Payload["error"] != "boom" {
		t.Fatalf("unexpected payload: %v", events[0].Payload)
	}
	if events[0].Timestamp.IsZero() {
		t.Fatalf("expected timestamp")
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	db, err := sql.Open("sqlite", "file:kernel_audit_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	exerciseStore(t, store)
}

func TestOpenSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	store, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Record(context.Background(), core.NewEvent(core.EventRunStarted, "r", "", "", 0, nil)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	events, err := reopened.List(context.Background(), Filter{RunID: "r"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 || events[0].Payload != nil {
		t.Fatalf("unexpected events: %+v", events)
	}
}

type failingStore struct{ MemoryStore }

func (f *failingStore) Record(context.Context, core.Event) error { return errors.New("disk full") }

func TestEmitterRecordsKernelRuns(t *testing.T) {
	store := NewMemoryStore()
	k := kernel.New(kernel.WithEventEmitter(NewEmitter(store, nil)))
	fn, err := k.RegisterNativeFunction("text", orchestration.NativeDefinition{Name: "upper", Fn: func(s string) string { return s }})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx := core.WithRunID(context.Background(), "audited")
	if _, err := k.Run(ctx, []*orchestration.Function{fn}, kernel.WithInput("x")); err != nil {
		t.Fatalf("run: %v", err)
	}

	events, err := store.List(context.Background(), Filter{RunID: "audited"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if events[2].Type != core.EventFunctionInvoked || events[2].Function != "upper" {
		t.Fatalf("unexpected event: %+v", events[2])
	}
}

func TestEmitterSwallowsStoreErrors(t *testing.T) {
	e := NewEmitter(&failingStore{}, nil)
	e.Emit(context.Background(), core.NewEvent(core.EventRunStarted, "r", "", "", 0, nil))
}
