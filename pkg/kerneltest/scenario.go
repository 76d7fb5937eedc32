// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package kerneltest runs kernel pipelines as declarative test scenarios.
//
//	provider := kerneltest.NewScenarioProvider().AddResponse("Paris")
//	k := kernel.New()
//	_ = k.AddChatService("mock", llm.NewClient(provider, "test"))
//
//	kerneltest.NewScenario("capital").
//	    WithInput("France").
//	    WithStep("geo", "capital").
//	    ExpectResult(kerneltest.Equals("Paris")).
//	    ExpectInvocations("geo.capital").
//	    Check(t, k)
package kerneltest

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jllopis/semkernel/pkg/core"
	kerrors "github.com/jllopis/semkernel/pkg/errors"
	"github.com/jllopis/semkernel/pkg/kernel"
	"github.com/jllopis/semkernel/pkg/orchestration"
)

// Scenario is one pipeline run and the conditions its outcome must meet.
type Scenario struct {
	name         string
	input        string
	variables    [][2]string
	functions    []*orchestration.Function
	steps        [][2]string
	timeout      time.Duration
	events       *EventCollector
	expectations []Expectation
}

// Expectation is a condition checked after a scenario ran.
type Expectation interface {
	Check(result *Result) error
	Description() string
}

// Result is the outcome of a scenario.
type Result struct {
	Context     *orchestration.Context
	Err         error
	Invocations []Invocation
	Events      []core.Event
	Duration    time.Duration
}

// NewScenario starts a scenario with a 30 second timeout.
func NewScenario(name string) *Scenario {
	return &Scenario{name: name, timeout: 30 * time.Second}
}

// WithInput sets the input slot.
func (s *Scenario) WithInput(input string) *Scenario {
	s.input = input
	return s
}

// WithVariable sets a context variable before the run.
func (s *Scenario) WithVariable(name, value string) *Scenario {
	s.variables = append(s.variables, [2]string{name, value})
	return s
}

// WithFunctions appends functions to the pipeline.
func (s *Scenario) WithFunctions(fns ...*orchestration.Function) *Scenario {
	s.functions = append(s.functions, fns...)
	return s
}

// WithStep appends skill.name, looked up in the kernel when the scenario
// runs. Steps run after the functions given to WithFunctions.
func (s *Scenario) WithStep(skill, name string) *Scenario {
	s.steps = append(s.steps, [2]string{skill, name})
	return s
}

// WithTimeout bounds the run.
func (s *Scenario) WithTimeout(d time.Duration) *Scenario {
	s.timeout = d
	return s
}

// WithEvents reads events from c, which must be the kernel's emitter.
func (s *Scenario) WithEvents(c *EventCollector) *Scenario {
	s.events = c
	return s
}

// Expect adds an expectation.
func (s *Scenario) Expect(exp Expectation) *Scenario {
	s.expectations = append(s.expectations, exp)
	return s
}

// ExpectResult matches the final input slot.
func (s *Scenario) ExpectResult(m StringMatcher) *Scenario {
	return s.Expect(&variableExpectation{name: orchestration.MainKey, matcher: m})
}

// ExpectVariable matches a context variable.
func (s *Scenario) ExpectVariable(name string, m StringMatcher) *Scenario {
	return s.Expect(&variableExpectation{name: name, matcher: m})
}

// ExpectNoFailure expects the Context error flag to stay clear.
func (s *Scenario) ExpectNoFailure() *Scenario {
	return s.Expect(noFailureExpectation{})
}

// ExpectFailure expects the Context to carry an error with code.
func (s *Scenario) ExpectFailure(code kerrors.ErrorCode) *Scenario {
	return s.Expect(failureExpectation{code: code})
}

// ExpectInvocations expects exactly these functions, by qualified name,
// to start in this order. Skipped steps are not counted.
func (s *Scenario) ExpectInvocations(names ...string) *Scenario {
	return s.Expect(invocationsExpectation{names: names})
}

// ExpectSkipped expects the named function to have been skipped.
func (s *Scenario) ExpectSkipped(name string) *Scenario {
	return s.Expect(statusExpectation{name: name, status: StatusSkipped})
}

// ExpectEvent expects an event of type t. It needs WithEvents.
func (s *Scenario) ExpectEvent(t core.EventType) *Scenario {
	return s.Expect(eventExpectation{eventType: t})
}

// ExpectMaxDuration expects the run to finish within d.
func (s *Scenario) ExpectMaxDuration(d time.Duration) *Scenario {
	return s.Expect(maxDurationExpectation{max: d})
}

// Run executes the scenario on k. Missing steps fail the test at once.
func (s *Scenario) Run(t testing.TB, k *kernel.Kernel) *Result {
	t.Helper()

	fns := append([]*orchestration.Function(nil), s.functions...)
	for _, st := range s.steps {
		fn, err := k.Func(st[0], st[1])
		if err != nil {
			t.Fatalf("scenario %q: %v", s.name, err)
		}
		fns = append(fns, fn)
	}

	vars := orchestration.NewVariables(s.input)
	for _, v := range s.variables {
		if err := vars.Set(v[0], v[1]); err != nil {
			t.Fatalf("scenario %q: %v", s.name, err)
		}
	}

	if s.events != nil {
		s.events.Reset()
	}
	rec := Record(k)
	defer rec.Detach()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	kctx, err := k.Run(ctx, fns, kernel.WithInputVariables(vars))
	res := &Result{
		Context:     kctx,
		Err:         err,
		Invocations: rec.Invocations(),
		Duration:    time.Since(start),
	}
	if s.events != nil {
		res.Events = s.events.Events()
	}
	return res
}

// Assert reports every unmet expectation of s.
func (r *Result) Assert(t testing.TB, s *Scenario) {
	t.Helper()
	for _, exp := range s.expectations {
		if err := exp.Check(r); err != nil {
			t.Errorf("scenario %q: expectation %q failed: %v", s.name, exp.Description(), err)
		}
	}
}

// Check runs the scenario and asserts its expectations.
func (s *Scenario) Check(t testing.TB, k *kernel.Kernel) *Result {
	t.Helper()
	res := s.Run(t, k)
	res.Assert(t, s)
	return res
}

// StringMatcher matches strings in expectations.
type StringMatcher interface {
	Match(s string) bool
	Description() string
}

type matcher struct {
	desc  string
	match func(string) bool
}

func (m matcher) Match(s string) bool  { return m.match(s) }
func (m matcher) Description() string { return m.desc }

// Equals matches expected exactly.
func Equals(expected string) StringMatcher {
	return matcher{fmt.Sprintf("equals %q", expected), func(s string) bool { return s == expected }}
}

// Contains matches strings holding substr.
func Contains(substr string) StringMatcher {
	return matcher{fmt.Sprintf("contains %q", substr), func(s string) bool { return strings.Contains(s, substr) }}
}

// HasPrefix matches strings starting with prefix.
func HasPrefix(prefix string) StringMatcher {
	return matcher{fmt.Sprintf("has prefix %q", prefix), func(s string) bool { return strings.HasPrefix(s, prefix) }}
}

// Regex matches pattern. It panics when pattern does not compile.
func Regex(pattern string) StringMatcher {
	re := regexp.MustCompile(pattern)
	return matcher{fmt.Sprintf("matches %q", pattern), re.MatchString}
}

type variableExpectation struct {
	name    string
	matcher StringMatcher
}

func (e *variableExpectation) Check(r *Result) error {
	if r.Context == nil {
		return fmt.Errorf("no context: %v", r.Err)
	}
	v, ok := r.Context.Variables.Get(e.name)
	if !ok {
		return fmt.Errorf("variable %q not set", e.name)
	}
	if !e.matcher.Match(v) {
		return fmt.Errorf("%q does not match: %s", v, e.matcher.Description())
	}
	return nil
}

func (e *variableExpectation) Description() string {
	return fmt.Sprintf("%s %s", e.name, e.matcher.Description())
}

type noFailureExpectation struct{}

func (noFailureExpectation) Check(r *Result) error {
	if r.Err != nil {
		return r.Err
	}
	if r.Context.ErrorOccurred() {
		return fmt.Errorf("context failed: %s", r.Context.LastErrorDescription())
	}
	return nil
}

func (noFailureExpectation) Description() string { return "no failure" }

type failureExpectation struct {
	code kerrors.ErrorCode
}

func (e failureExpectation) Check(r *Result) error {
	if r.Err != nil {
		if kerrors.Is(r.Err, e.code) {
			return nil
		}
		return fmt.Errorf("run error %v", r.Err)
	}
	if !r.Context.ErrorOccurred() {
		return fmt.Errorf("context did not fail")
	}
	if got := kerrors.CodeOf(r.Context.LastError()); got != e.code {
		return fmt.Errorf("error code %q: %s", got, r.Context.LastErrorDescription())
	}
	return nil
}

func (e failureExpectation) Description() string {
	return fmt.Sprintf("failure with %s", e.code)
}

type invocationsExpectation struct {
	names []string
}

func (e invocationsExpectation) Check(r *Result) error {
	var got []string
	for _, inv := range r.Invocations {
		if inv.Status != StatusSkipped {
			got = append(got, inv.Function)
		}
	}
	if strings.Join(got, ",") != strings.Join(e.names, ",") {
		return fmt.Errorf("invoked %v", got)
	}
	return nil
}

func (e invocationsExpectation) Description() string {
	return fmt.Sprintf("invocations %v", e.names)
}

type statusExpectation struct {
	name   string
	status Status
}

func (e statusExpectation) Check(r *Result) error {
	for _, inv := range r.Invocations {
		if inv.Function == e.name && inv.Status == e.status {
			return nil
		}
	}
	return fmt.Errorf("%s was never %s", e.name, e.status)
}

func (e statusExpectation) Description() string {
	return fmt.Sprintf("%s %s", e.name, e.status)
}

type eventExpectation struct {
	eventType core.EventType
}

func (e eventExpectation) Check(r *Result) error {
	for _, ev := range r.Events {
		if ev.Type == e.eventType {
			return nil
		}
	}
	return fmt.Errorf("event %q was not emitted", e.eventType)
}

func (e eventExpectation) Description() string {
	return fmt.Sprintf("event %q emitted", e.eventType)
}

type maxDurationExpectation struct {
	max time.Duration
}

func (e maxDurationExpectation) Check(r *Result) error {
	if r.Duration > e.max {
		return fmt.Errorf("took %v", r.Duration)
	}
	return nil
}

func (e maxDurationExpectation) Description() string {
	return fmt.Sprintf("duration <= %v", e.max)
}
