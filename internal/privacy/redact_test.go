package privacy

import (
	"testing"
)

func TestNew_Invalid(t *testing.T) {
	if _, err := New([]string{`[invalid`}); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestNew_DefaultsWhenEmpty(t *testing.T) {
	r, err := New(nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if r.Len() != len(DefaultPatterns) {
		t.Errorf("got %d patterns, want %d", r.Len(), len(DefaultPatterns))
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		in       string
		want     string
		count    int
	}{
		{"single", []string{`(?i)token`}, "My API Token is abc123", "My API [REDACTED] is abc123", 1},
		{"multiple", []string{`(?i)token`, `(?i)secret`}, "Token and Secret values", "[REDACTED] and [REDACTED] values", 2},
		{"no match", []string{`(?i)token`}, "nothing here", "nothing here", 0},
		{"repeated", []string{`x`}, "x-x-x", "[REDACTED]-[REDACTED]-[REDACTED]", 3},
		{"default email", nil, "mail ops@example.com now", "mail [REDACTED] now", 1},
		{"default phone", nil, "call +1 (555) 123-4567", "call [REDACTED]", 1},
		{"default invite", nil, "join https://t.me/+AbCdEf123", "join [REDACTED]", 1},
		{"default public link kept", nil, "see t.me/somechannel", "see t.me/somechannel", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.patterns)
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			got, n := r.Apply(tt.in)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if n != tt.count {
				t.Errorf("count = %d, want %d", n, tt.count)
			}
		})
	}
}

func TestApply_NilRedactor(t *testing.T) {
	var r *Redactor
	got, n := r.Apply("keep me")
	if got != "keep me" || n != 0 {
		t.Errorf("got %q/%d, want unchanged", got, n)
	}
	if r.Len() != 0 {
		t.Error("nil redactor should have no patterns")
	}
}
