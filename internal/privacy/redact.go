// Package privacy scrubs sensitive fragments from text relayed to chats.
package privacy

import (
	"fmt"
	"regexp"
)

const redactedPlaceholder = "[REDACTED]"

// DefaultPatterns are applied when redaction is enabled without explicit
// patterns: email addresses, phone numbers and private invite links.
var DefaultPatterns = []string{
	`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`,
	`\+?\d[\d\s\-()]{8,}\d`,
	`(?i)(?:https?://)?t\.me/(?:\+|joinchat/)[A-Za-z0-9_\-]+`,
}

// Redactor replaces matches of its patterns with a placeholder. A nil
// Redactor leaves text unchanged.
type Redactor struct {
	patterns []*regexp.Regexp
}

// New compiles patterns into a Redactor. An empty list selects
// DefaultPatterns.
func New(patterns []string) (*Redactor, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile redact pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return &Redactor{patterns: compiled}, nil
}

// Apply returns text with every match replaced by [REDACTED] and the number
// of replacements made.
func (r *Redactor) Apply(text string) (string, int) {
	if r == nil {
		return text, 0
	}
	n := 0
	for _, re := range r.patterns {
		text = re.ReplaceAllStringFunc(text, func(string) string {
			n++
			return redactedPlaceholder
		})
	}
	return text, n
}

// Len returns the number of compiled patterns.
func (r *Redactor) Len() int {
	if r == nil {
		return 0
	}
	return len(r.patterns)
}
