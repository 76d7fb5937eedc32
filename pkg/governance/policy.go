// Package governance decides which kernel functions may run. Rules match
// "skill.function" names with glob patterns and are applied before each
// pipeline step and to the tool definitions offered to models.
package governance

import (
	"fmt"
	"path"
	"strings"

	"github.com/jllopis/semkernel/pkg/config"
)

// Effect is what a matching rule does to a function.
type Effect string

const (
	// EffectAllow runs the function.
	EffectAllow Effect = "allow"
	// EffectDeny fails the pipeline before the function runs.
	EffectDeny Effect = "deny"
	// EffectSkip moves on to the next function.
	EffectSkip Effect = "skip"
)

// Rule matches functions by a glob over "skill.function", compared
// case-insensitively. An empty pattern matches every function.
type Rule struct {
	ID       string
	Effect   Effect
	Function string
	Reason   string
}

// Decision is the outcome of evaluating a function.
type Decision struct {
	Effect Effect
	RuleID string
	Reason string
}

// Allowed reports whether the function may run.
func (d Decision) Allowed() bool { return d.Effect == EffectAllow }

// RuleSet evaluates rules in order; the first match wins.
type RuleSet struct {
	Rules   []Rule
	Default Decision
}

// NewRuleSet returns a rule set that allows what no rule matches.
func NewRuleSet(rules []Rule) *RuleSet {
	return &RuleSet{
		Rules:   append([]Rule(nil), rules...),
		Default: Decision{Effect: EffectAllow},
	}
}

// Evaluate returns the decision for skill.function.
func (r *RuleSet) Evaluate(skill, function string) Decision {
	name := strings.ToLower(skill + "." + function)
	for _, rule := range r.Rules {
		if !matchPattern(strings.ToLower(rule.Function), name) {
			continue
		}
		effect := Effect(strings.ToLower(string(rule.Effect)))
		switch effect {
		case EffectDeny, EffectSkip:
		default:
			effect = EffectAllow
		}
		return Decision{Effect: effect, RuleID: rule.ID, Reason: rule.Reason}
	}
	return r.Default
}

func matchPattern(pattern, value string) bool {
	if pattern == "" {
		return true
	}
	ok, err := path.Match(pattern, value)
	if err == nil && ok {
		return true
	}
	return pattern == value
}

// RuleSetFromConfig builds a rule set from config policies.
func RuleSetFromConfig(cfg config.GovernanceConfig) *RuleSet {
	rules := make([]Rule, 0, len(cfg.Policies))
	for i, p := range cfg.Policies {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			id = fmt.Sprintf("rule-%d", i+1)
		}
		rules = append(rules, Rule{
			ID:       id,
			Effect:   Effect(p.Effect),
			Function: p.Function,
			Reason:   p.Reason,
		})
	}
	rs := NewRuleSet(rules)
	if strings.EqualFold(cfg.Default, string(EffectDeny)) {
		rs.Default = Decision{Effect: EffectDeny, RuleID: "default", Reason: "denied by default"}
	}
	return rs
}
