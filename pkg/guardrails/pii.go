// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

// PIIMode selects how detected PII is rewritten.
type PIIMode int

const (
	// PIIMask replaces PII with a placeholder such as [EMAIL].
	PIIMask PIIMode = iota
	// PIIRedact removes PII.
	PIIRedact
)

// ParsePIIMode maps "mask" and "redact". Anything else reports false.
func ParsePIIMode(s string) (PIIMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mask":
		return PIIMask, true
	case "redact":
		return PIIRedact, true
	}
	return 0, false
}

// PIIType names a kind of personal data.
type PIIType string

const (
	PIIEmail      PIIType = "email"
	PIIPhone      PIIType = "phone"
	PIICreditCard PIIType = "credit_card"
	PIIIPAddress  PIIType = "ip_address"
)

type piiRule struct {
	kind PIIType
	re   *regexp.Regexp
	mask string
}

// Order matters: card numbers would otherwise be taken for phone numbers.
var piiRules = []piiRule{
	{PIICreditCard, regexp.MustCompile(`\b[0-9]{4}[- ]?[0-9]{4}[- ]?[0-9]{4}[- ]?[0-9]{4}\b`), "[CREDIT_CARD]"},
	{PIIEmail, regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), "[EMAIL]"},
	{PIIIPAddress, regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`), "[IP_ADDRESS]"},
	{PIIPhone, regexp.MustCompile(`(?:\+?[0-9]{1,3}[-. ]?)?\(?[0-9]{3}\)?[-. ][0-9]{3}[-. ][0-9]{4}\b`), "[PHONE]"},
}

// PIIFilter masks or removes personal data from model output.
type PIIFilter struct {
	mode    PIIMode
	enabled map[PIIType]bool
}

// NewPIIFilter filters the given types, or every known type when none is
// given.
func NewPIIFilter(mode PIIMode, types ...PIIType) *PIIFilter {
	f := &PIIFilter{mode: mode, enabled: make(map[PIIType]bool)}
	for _, r := range piiRules {
		f.enabled[r.kind] = len(types) == 0
	}
	for _, t := range types {
		f.enabled[t] = true
	}
	return f
}

// ID implements OutputFilter.
func (f *PIIFilter) ID() string { return "pii" }

// FilterOutput implements OutputFilter.
func (f *PIIFilter) FilterOutput(_ context.Context, output string) FilterResult {
	result := FilterResult{Content: output}
	for _, r := range piiRules {
		if !f.enabled[r.kind] {
			continue
		}
		locs := r.re.FindAllStringIndex(result.Content, -1)
		if len(locs) == 0 {
			continue
		}
		replacement := r.mask
		if f.mode == PIIRedact {
			replacement = ""
		}
		for _, loc := range locs {
			result.Redactions = append(result.Redactions, Redaction{
				Type:        "pii:" + string(r.kind),
				Replacement: replacement,
				Position:    loc[0],
			})
		}
		result.Content = r.re.ReplaceAllLiteralString(result.Content, replacement)
		result.Modified = true
	}
	sort.SliceStable(result.Redactions, func(i, j int) bool {
		return result.Redactions[i].Position < result.Redactions[j].Position
	})
	return result
}

// WithPIIFilter adds a PIIFilter.
func WithPIIFilter(mode PIIMode, types ...PIIType) Option {
	return WithOutputFilter(NewPIIFilter(mode, types...))
}
