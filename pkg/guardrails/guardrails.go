// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package guardrails inspects the text that flows into and out of semantic
// functions.
//
// Input checkers run before a semantic function renders its prompt and can
// block the pipeline. Output filters run after it answered and may rewrite
// the completion written to the input variable. Governance decides which
// functions may run; guardrails look at what they read and write.
//
//	guard := guardrails.New(
//	    guardrails.WithPromptInjectionDetector(),
//	    guardrails.WithPIIFilter(guardrails.PIIMask),
//	)
//	guard.Attach(k, logger)
package guardrails

import (
	"context"
	"sync"
)

// CheckResult is the outcome of an input check.
type CheckResult struct {
	Blocked     bool
	Reason      string
	GuardrailID string
	// Variable is the context variable that triggered the block.
	Variable string
	Metadata map[string]any
}

// FilterResult is the outcome of output filtering.
type FilterResult struct {
	Content    string
	Modified   bool
	Redactions []Redaction
}

// Redaction records one rewrite made by a filter.
type Redaction struct {
	Type        string
	Replacement string
	Position    int
}

// InputChecker inspects text before it reaches a model.
type InputChecker interface {
	ID() string
	CheckInput(ctx context.Context, input string) CheckResult
}

// OutputFilter rewrites text a model produced.
type OutputFilter interface {
	ID() string
	FilterOutput(ctx context.Context, output string) FilterResult
}

// Guard runs input checkers in order until one blocks, and output filters
// in sequence, each on the output of the previous one.
type Guard struct {
	mu       sync.RWMutex
	checkers []InputChecker
	filters  []OutputFilter
	failOpen bool
}

// Option configures a Guard.
type Option func(*Guard)

// New creates a Guard.
func New(opts ...Option) *Guard {
	g := &Guard{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WithInputChecker adds an input checker.
func WithInputChecker(c InputChecker) Option {
	return func(g *Guard) { g.checkers = append(g.checkers, c) }
}

// WithOutputFilter adds an output filter.
func WithOutputFilter(f OutputFilter) Option {
	return func(g *Guard) { g.filters = append(g.filters, f) }
}

// WithFailOpen lets input through when the check is cancelled. Guards
// fail closed by default.
func WithFailOpen(failOpen bool) Option {
	return func(g *Guard) { g.failOpen = failOpen }
}

// Empty reports whether the guard has nothing to run.
func (g *Guard) Empty() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.checkers) == 0 && len(g.filters) == 0
}

// CheckInput returns the first blocking result.
func (g *Guard) CheckInput(ctx context.Context, input string) CheckResult {
	g.mu.RLock()
	checkers := g.checkers
	g.mu.RUnlock()

	for _, c := range checkers {
		if ctx.Err() != nil {
			if g.failOpen {
				return CheckResult{}
			}
			return CheckResult{Blocked: true, Reason: "guardrail check cancelled", GuardrailID: "system"}
		}
		if res := c.CheckInput(ctx, input); res.Blocked {
			res.GuardrailID = c.ID()
			return res
		}
	}
	return CheckResult{}
}

// FilterOutput runs every filter over output.
func (g *Guard) FilterOutput(ctx context.Context, output string) FilterResult {
	g.mu.RLock()
	filters := g.filters
	g.mu.RUnlock()

	result := FilterResult{Content: output}
	for _, f := range filters {
		if ctx.Err() != nil {
			break
		}
		res := f.FilterOutput(ctx, result.Content)
		if !res.Modified {
			continue
		}
		result.Content = res.Content
		result.Modified = true
		result.Redactions = append(result.Redactions, res.Redactions...)
	}
	return result
}

// AddInputChecker adds a checker at runtime.
func (g *Guard) AddInputChecker(c InputChecker) {
	g.mu.Lock()
	g.checkers = append(g.checkers, c)
	g.mu.Unlock()
}

// AddOutputFilter adds a filter at runtime.
func (g *Guard) AddOutputFilter(f OutputFilter) {
	g.mu.Lock()
	g.filters = append(g.filters, f)
	g.mu.Unlock()
}

// RemoveInputChecker removes the checker with id.
func (g *Guard) RemoveInputChecker(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, c := range g.checkers {
		if c.ID() == id {
			g.checkers = append(g.checkers[:i:i], g.checkers[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveOutputFilter removes the filter with id.
func (g *Guard) RemoveOutputFilter(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, f := range g.filters {
		if f.ID() == id {
			g.filters = append(g.filters[:i:i], g.filters[i+1:]...)
			return true
		}
	}
	return false
}
