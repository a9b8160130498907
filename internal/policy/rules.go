package policy

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Config holds the tunable limits of the built-in rules.
type Config struct {
	MinLength      int
	MaxLength      int
	MaxConsecutive int
}

// DefaultConfig returns the NIST SP 800-63B aligned defaults.
func DefaultConfig() Config {
	return Config{MinLength: 8, MaxLength: 64, MaxConsecutive: 3}
}

// WeakSet reports whether a candidate is a known weak password.
type WeakSet interface {
	Contains(candidate string) bool
}

// DefaultRules returns the built-in rule set.
func DefaultRules(cfg Config, weak WeakSet) []Rule {
	return []Rule{
		LengthRule{Min: cfg.MinLength, Max: cfg.MaxLength},
		UsernameRule{},
		ConsecutiveCharsRule{Max: cfg.MaxConsecutive},
		WeakPasswordRule{Set: weak},
	}
}

// LengthRule bounds the rune length of the password.
type LengthRule struct {
	Min int
	Max int
}

func (LengthRule) Name() string { return "length" }
func (LengthRule) Order() int   { return 10 }

func (r LengthRule) Validate(candidate, _ string) string {
	if candidate == "" {
		return "Password is required"
	}

	n := utf8.RuneCountInString(candidate)
	if n < r.Min {
		return fmt.Sprintf("Password must be at least %d characters long", r.Min)
	}
	if n > r.Max {
		return fmt.Sprintf("Password must be at most %d characters long", r.Max)
	}
	return ""
}

// UsernameRule rejects passwords containing the username, ignoring case.
type UsernameRule struct{}

func (UsernameRule) Name() string { return "username" }
func (UsernameRule) Order() int   { return 20 }

func (UsernameRule) Validate(candidate, subjectHint string) string {
	if subjectHint == "" {
		return ""
	}
	if strings.Contains(strings.ToLower(candidate), strings.ToLower(subjectHint)) {
		return "Password must not contain the username"
	}
	return ""
}

// ConsecutiveCharsRule rejects runs of more than Max identical characters.
type ConsecutiveCharsRule struct {
	Max int
}

func (ConsecutiveCharsRule) Name() string { return "consecutive-chars" }
func (ConsecutiveCharsRule) Order() int   { return 30 }

func (r ConsecutiveCharsRule) Validate(candidate, _ string) string {
	run := 0
	var prev rune
	for i, c := range candidate {
		if i > 0 && c == prev {
			run++
		} else {
			run = 1
			prev = c
		}
		if run > r.Max {
			return fmt.Sprintf("Password must not repeat the same character more than %d times in a row", r.Max)
		}
	}
	return ""
}

// WeakPasswordRule rejects members of the weak password set.
type WeakPasswordRule struct {
	Set WeakSet
}

func (WeakPasswordRule) Name() string { return "weak-password" }
func (WeakPasswordRule) Order() int   { return 40 }

func (r WeakPasswordRule) Validate(candidate, _ string) string {
	if candidate == "" || r.Set == nil {
		return ""
	}
	if r.Set.Contains(candidate) {
		return "Password is too common"
	}
	return ""
}
