// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"context"
	"regexp"
)

// injectionPatterns match common attempts to override a prompt, extract a
// system prompt or smuggle chat delimiters into a template variable.
var injectionPatterns = []string{
	`(?i)(ignore|disregard|forget|override)\s+(all\s+)?(the\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`,
	`(?i)you\s+are\s+now\s+(a|an)\s+`,
	`(?i)pretend\s+(you\s+are|to\s+be)\s+`,
	`(?i)(show|reveal|print|display)\s+(me\s+)?your\s+(system\s+)?(prompt|instructions?)`,
	`(?i)what\s+(is|are)\s+your\s+(system\s+)?(prompt|instructions?)`,
	`(?i)\bjailbreak\b`,
	`(?i)do\s+anything\s+now`,
	`(?i)(developer|sudo|admin)\s+mode`,
	`(?i)bypass\s+(the\s+)?(safety|content|filters?)`,
	`(?i)<\|[a-z_]+\|>`,
	`(?i)\[/?INST\]`,
	`(?i)<</?SYS>>`,
}

// PromptInjectionDetector blocks input matching known injection patterns.
type PromptInjectionDetector struct {
	patterns []*regexp.Regexp
}

// NewPromptInjectionDetector compiles the built-in patterns plus extra.
// Invalid extra patterns are ignored.
func NewPromptInjectionDetector(extra ...string) *PromptInjectionDetector {
	d := &PromptInjectionDetector{}
	for _, p := range append(append([]string(nil), injectionPatterns...), extra...) {
		if re, err := regexp.Compile(p); err == nil {
			d.patterns = append(d.patterns, re)
		}
	}
	return d
}

// ID implements InputChecker.
func (d *PromptInjectionDetector) ID() string { return "prompt-injection" }

// CheckInput implements InputChecker.
func (d *PromptInjectionDetector) CheckInput(_ context.Context, input string) CheckResult {
	if input == "" {
		return CheckResult{}
	}
	var matched []string
	for _, re := range d.patterns {
		if re.MatchString(input) {
			matched = append(matched, re.String())
		}
	}
	if len(matched) == 0 {
		return CheckResult{}
	}
	return CheckResult{
		Blocked:  true,
		Reason:   "potential prompt injection detected",
		Metadata: map[string]any{"matched_patterns": matched},
	}
}

// WithPromptInjectionDetector adds a PromptInjectionDetector.
func WithPromptInjectionDetector(extra ...string) Option {
	return WithInputChecker(NewPromptInjectionDetector(extra...))
}
