package kerneltest

import (
	"context"
	"sync"
	"time"

	"github.com/jllopis/semkernel/pkg/core"
	"github.com/jllopis/semkernel/pkg/kernel"
)

// Status is how a recorded invocation ended.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
	StatusRepeated  Status = "repeated"
)

// Invocation is one pipeline step as seen by the event handlers. A repeated
// step yields one Invocation per attempt.
type Invocation struct {
	Function string
	RunID    string
	Step     int
	Status   Status
	Result   string
	Duration time.Duration

	start time.Time
}

// Recorder records the steps of every run of a kernel.
type Recorder struct {
	k        *kernel.Kernel
	invoking *kernel.HandlerRef
	invoked  *kernel.HandlerRef

	mu          sync.Mutex
	invocations []Invocation
}

// Record attaches a Recorder to k. Its handlers run after the ones already
// registered, so it sees their Skip, Cancel and Repeat requests.
func Record(k *kernel.Kernel) *Recorder {
	r := &Recorder{k: k}
	r.invoking = k.AddFunctionInvokingHandler(func(_ context.Context, _ *kernel.Kernel, args *kernel.FunctionInvokingEventArgs) {
		inv := Invocation{
			Function: args.Function.FullyQualifiedName(),
			RunID:    args.RunID,
			Step:     args.Step,
			Status:   StatusRunning,
			start:    time.Now(),
		}
		switch {
		case args.IsCancelRequested():
			inv.Status = StatusCancelled
		case args.IsSkipRequested():
			inv.Status = StatusSkipped
		}
		r.mu.Lock()
		r.invocations = append(r.invocations, inv)
		r.mu.Unlock()
	})
	r.invoked = k.AddFunctionInvokedHandler(func(_ context.Context, _ *kernel.Kernel, args *kernel.FunctionInvokedEventArgs) {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i := len(r.invocations) - 1; i >= 0; i-- {
			inv := &r.invocations[i]
			if inv.RunID != args.RunID || inv.Step != args.Step || inv.Status != StatusRunning {
				continue
			}
			inv.Duration = time.Since(inv.start)
			inv.Result = args.Context.Result()
			switch {
			case args.IsCancelRequested():
				inv.Status = StatusCancelled
			case args.IsRepeatRequested():
				inv.Status = StatusRepeated
			default:
				inv.Status = StatusCompleted
			}
			return
		}
	})
	return r
}

// Detach removes the recorder's handlers.
func (r *Recorder) Detach() {
	r.k.RemoveFunctionInvokingHandler(r.invoking)
	r.k.RemoveFunctionInvokedHandler(r.invoked)
}

// Invocations returns what was recorded so far. Steps that started but never
// reached the invoked handlers are reported as failed.
func (r *Recorder) Invocations() []Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Invocation, len(r.invocations))
	copy(out, r.invocations)
	for i := range out {
		if out[i].Status == StatusRunning {
			out[i].Status = StatusFailed
			out[i].Duration = time.Since(out[i].start)
		}
	}
	return out
}

// EventCollector is a core.EventEmitter that keeps every event.
type EventCollector struct {
	mu     sync.RWMutex
	events []core.Event
}

// NewEventCollector returns an empty collector.
func NewEventCollector() *EventCollector {
	return &EventCollector{}
}

// Emit implements core.EventEmitter.
func (c *EventCollector) Emit(_ context.Context, event core.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

// Events returns a copy of the collected events.
func (c *EventCollector) Events() []core.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.Event, len(c.events))
	copy(out, c.events)
	return out
}

// Types returns the type of every collected event, in order.
func (c *EventCollector) Types() []core.EventType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	types := make([]core.EventType, len(c.events))
	for i, ev := range c.events {
		types[i] = ev.Type
	}
	return types
}

// Reset drops the collected events.
func (c *EventCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}
