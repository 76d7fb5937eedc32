package kernel

import (
	"context"
	"sync"

	"github.com/jllopis/semkernel/pkg/orchestration"
)

// FunctionInvokingEventArgs is passed to handlers before a pipeline step
// runs.
type FunctionInvokingEventArgs struct {
	Function orchestration.FunctionView
	Context  *orchestration.Context
	RunID    string
	Step     int

	cancel bool
	skip   bool
}

// Cancel stops the pipeline before the function runs.
func (a *FunctionInvokingEventArgs) Cancel() { a.cancel = true }

// Skip moves on to the next function without running this one.
func (a *FunctionInvokingEventArgs) Skip() { a.skip = true }

// IsCancelRequested reports whether a handler called Cancel.
func (a *FunctionInvokingEventArgs) IsCancelRequested() bool { return a.cancel }

// IsSkipRequested reports whether a handler called Skip.
func (a *FunctionInvokingEventArgs) IsSkipRequested() bool { return a.skip }

// FunctionInvokedEventArgs is passed to handlers after a pipeline step
// succeeded.
type FunctionInvokedEventArgs struct {
	Function orchestration.FunctionView
	Context  *orchestration.Context
	RunID    string
	Step     int

	cancel bool
	repeat bool
}

// Cancel stops the pipeline after this function.
func (a *FunctionInvokedEventArgs) Cancel() { a.cancel = true }

// Repeat runs the same function again with the current Context.
//
// The kernel puts no limit on repeats: a handler that always calls Repeat
// loops forever. Handlers must carry their own bound.
func (a *FunctionInvokedEventArgs) Repeat() { a.repeat = true }

// IsCancelRequested reports whether a handler called Cancel.
func (a *FunctionInvokedEventArgs) IsCancelRequested() bool { return a.cancel }

// IsRepeatRequested reports whether a handler called Repeat.
func (a *FunctionInvokedEventArgs) IsRepeatRequested() bool { return a.repeat }

// FunctionInvokingHandler observes or steers a step before it runs.
type FunctionInvokingHandler func(ctx context.Context, k *Kernel, args *FunctionInvokingEventArgs)

// FunctionInvokedHandler observes or steers a step after it ran.
type FunctionInvokedHandler func(ctx context.Context, k *Kernel, args *FunctionInvokedEventArgs)

// HandlerRef identifies a registered handler for removal.
type HandlerRef struct {
	id uint64
}

type invokingEntry struct {
	ref *HandlerRef
	fn  FunctionInvokingHandler
}

type invokedEntry struct {
	ref *HandlerRef
	fn  FunctionInvokedHandler
}

type handlers struct {
	mu       sync.RWMutex
	next     uint64
	invoking []invokingEntry
	invoked  []invokedEntry
}

func (h *handlers) ref() *HandlerRef {
	h.next++
	return &HandlerRef{id: h.next}
}

// AddFunctionInvokingHandler registers h. Handlers run synchronously in
// registration order.
func (k *Kernel) AddFunctionInvokingHandler(h FunctionInvokingHandler) *HandlerRef {
	k.handlers.mu.Lock()
	defer k.handlers.mu.Unlock()
	ref := k.handlers.ref()
	k.handlers.invoking = append(k.handlers.invoking, invokingEntry{ref: ref, fn: h})
	return ref
}

// AddFunctionInvokedHandler registers h. Handlers run synchronously in
// registration order.
func (k *Kernel) AddFunctionInvokedHandler(h FunctionInvokedHandler) *HandlerRef {
	k.handlers.mu.Lock()
	defer k.handlers.mu.Unlock()
	ref := k.handlers.ref()
	k.handlers.invoked = append(k.handlers.invoked, invokedEntry{ref: ref, fn: h})
	return ref
}

// RemoveFunctionInvokingHandler unregisters the handler behind ref and
// reports whether it was registered.
func (k *Kernel) RemoveFunctionInvokingHandler(ref *HandlerRef) bool {
	k.handlers.mu.Lock()
	defer k.handlers.mu.Unlock()
	for i, e := range k.handlers.invoking {
		if e.ref == ref {
			k.handlers.invoking = append(k.handlers.invoking[:i:i], k.handlers.invoking[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveFunctionInvokedHandler unregisters the handler behind ref and
// reports whether it was registered.
func (k *Kernel) RemoveFunctionInvokedHandler(ref *HandlerRef) bool {
	k.handlers.mu.Lock()
	defer k.handlers.mu.Unlock()
	for i, e := range k.handlers.invoked {
		if e.ref == ref {
			k.handlers.invoked = append(k.handlers.invoked[:i:i], k.handlers.invoked[i+1:]...)
			return true
		}
	}
	return false
}

// onFunctionInvoking returns nil when no handler is registered.
func (k *Kernel) onFunctionInvoking(ctx context.Context, args *FunctionInvokingEventArgs) *FunctionInvokingEventArgs {
	k.handlers.mu.RLock()
	list := append([]invokingEntry(nil), k.handlers.invoking...)
	k.handlers.mu.RUnlock()
	if len(list) == 0 {
		return nil
	}
	for _, e := range list {
		e.fn(ctx, k, args)
	}
	return args
}

// onFunctionInvoked returns nil when no handler is registered.
func (k *Kernel) onFunctionInvoked(ctx context.Context, args *FunctionInvokedEventArgs) *FunctionInvokedEventArgs {
	k.handlers.mu.RLock()
	list := append([]invokedEntry(nil), k.handlers.invoked...)
	k.handlers.mu.RUnlock()
	if len(list) == 0 {
		return nil
	}
	for _, e := range list {
		e.fn(ctx, k, args)
	}
	return args
}
