// Package policy evaluates candidate passwords against an ordered set of rules.
package policy

import (
	"sort"
	"unicode/utf8"

	"github.com/BradenHooton/bastion/internal/models"
)

// Rule is one password check. Validate returns a human-readable violation,
// or "" when the candidate passes. Lower Order values run first.
type Rule interface {
	Name() string
	Order() int
	Validate(candidate, subjectHint string) string
}

// Strength grades a policy-compliant password by length.
type Strength string

const (
	StrengthWeak   Strength = "WEAK"
	StrengthFair   Strength = "FAIR"
	StrengthGood   Strength = "GOOD"
	StrengthStrong Strength = "STRONG"
)

// StrengthOf grades by rune count: <10 weak, <12 fair, <16 good, otherwise strong.
func StrengthOf(candidate string) Strength {
	n := utf8.RuneCountInString(candidate)
	switch {
	case n < 10:
		return StrengthWeak
	case n < 12:
		return StrengthFair
	case n < 16:
		return StrengthGood
	default:
		return StrengthStrong
	}
}

// Result is the outcome of evaluating every rule.
type Result struct {
	Valid      bool
	Strength   Strength
	Violations []string
}

// Err returns a *models.PolicyViolationError for a failed result, nil otherwise.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &models.PolicyViolationError{Violations: r.Violations}
}

// Chain runs rules in ascending Order. The order is fixed at construction.
type Chain struct {
	rules []Rule
}

// NewChain sorts rules once; rules with equal Order keep their given order.
func NewChain(rules ...Rule) *Chain {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order() < sorted[j].Order()
	})
	return &Chain{rules: sorted}
}

// With returns a new chain that also contains rule.
func (c *Chain) With(rule Rule) *Chain {
	return NewChain(append(append([]Rule{}, c.rules...), rule)...)
}

// Names lists the rules in evaluation order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.rules))
	for i, r := range c.rules {
		names[i] = r.Name()
	}
	return names
}

// Validate runs every rule and accumulates all violations.
func (c *Chain) Validate(candidate, subjectHint string) Result {
	var violations []string
	for _, rule := range c.rules {
		if v := rule.Validate(candidate, subjectHint); v != "" {
			violations = append(violations, v)
		}
	}

	if len(violations) > 0 {
		return Result{Violations: violations}
	}
	return Result{Valid: true, Strength: StrengthOf(candidate)}
}
