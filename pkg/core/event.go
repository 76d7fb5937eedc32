package core

import (
	"context"
	"time"
)

// EventType identifies a pipeline event.
type EventType string

const (
	EventRunStarted       EventType = "kernel.run.started"
	EventRunCompleted     EventType = "kernel.run.completed"
	EventRunCancelled     EventType = "kernel.run.cancelled"
	EventFunctionInvoking EventType = "kernel.function.invoking"
	EventFunctionInvoked  EventType = "kernel.function.invoked"
	EventFunctionSkipped  EventType = "kernel.function.skipped"
	EventFunctionRepeated EventType = "kernel.function.repeated"
	EventFunctionFailed   EventType = "kernel.function.failed"
	EventStreamStarted    EventType = "kernel.stream.started"
	EventStreamCompleted  EventType = "kernel.stream.completed"
)

// Event captures one step of a pipeline for logging and auditing.
type Event struct {
	Type      EventType
	RunID     string
	Skill     string
	Function  string
	Step      int
	Timestamp time.Time
	Payload   map[string]any
}

// EventEmitter receives pipeline events.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// NoopEventEmitter is a default no-op implementation.
type NoopEventEmitter struct{}

// Emit implements EventEmitter.
func (NoopEventEmitter) Emit(_ context.Context, _ Event) {}

// NewEvent builds an event stamped with the current time.
func NewEvent(eventType EventType, runID, skill, function string, step int, payload map[string]any) Event {
	return Event{
		Type:      eventType,
		RunID:     runID,
		Skill:     skill,
		Function:  function,
		Step:      step,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
