// Package audit records kernel pipeline events for later inspection.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jllopis/semkernel/pkg/core"
)

// Store persists pipeline events.
type Store interface {
	Record(ctx context.Context, event core.Event) error
	List(ctx context.Context, filter Filter) ([]core.Event, error)
}

// Filter limits event queries. Skill and function match case-insensitively.
type Filter struct {
	RunID    string
	Skill    string
	Function string
	Type     core.EventType
	Limit    int
}

func (f Filter) match(ev core.Event) bool {
	if f.RunID != "" && ev.RunID != f.RunID {
		return false
	}
	if f.Skill != "" && !strings.EqualFold(ev.Skill, f.Skill) {
		return false
	}
	if f.Function != "" && !strings.EqualFold(ev.Function, f.Function) {
		return false
	}
	if f.Type != "" && ev.Type != f.Type {
		return false
	}
	return true
}

// MemoryStore keeps events in memory.
type MemoryStore struct {
	mu     sync.Mutex
	events []core.Event
}

// NewMemoryStore returns an in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record appends an event.
func (s *MemoryStore) Record(_ context.Context, event core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// List returns filtered events in recording order.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]core.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Event, 0, len(s.events))
	for _, ev := range s.events {
		if !filter.match(ev) {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Emitter feeds kernel events into a Store. Record failures are logged and
// never reach the pipeline.
type Emitter struct {
	store  Store
	logger *slog.Logger
}

// NewEmitter returns an emitter writing to store.
func NewEmitter(store Store, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{store: store, logger: logger}
}

// Emit implements core.EventEmitter.
func (e *Emitter) Emit(ctx context.Context, event core.Event) {
	if err := e.store.Record(context.WithoutCancel(ctx), event); err != nil {
		e.logger.Warn("audit.record.failed",
			slog.String("run_id", event.RunID),
			slog.String("type", string(event.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// Store returns the underlying store.
func (e *Emitter) Store() Store { return e.store }

var _ core.EventEmitter = (*Emitter)(nil)

func encodePayload(payload map[string]any) ([]byte, error) {
	if payload == nil {
		return []byte("null"), nil
	}
	return json.Marshal(payload)
}

func decodePayload(raw []byte) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeTime(value time.Time) time.Time {
	if value.IsZero() {
		return value
	}
	return value.UTC()
}
