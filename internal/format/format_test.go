package format

import (
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/signalrelay/internal/upstream"
)

func TestFormatter_Post(t *testing.T) {
	f := New("", "", time.UTC)
	got := f.Post(upstream.Post{
		ID:          "p1",
		Description: "<p>Hello <b>world</b></p>",
		CreatedAt:   "2024-03-05T14:07:00.000Z",
	})
	want := "📝 *New Post*\n\nHello world\n\n🕒 Tue Mar 5, 2:07 PM"
	if got != want {
		t.Errorf("Post() = %q, want %q", got, want)
	}
}

func TestFormatter_PostEmptyDescription(t *testing.T) {
	f := New("", "", time.UTC)
	got := f.Post(upstream.Post{ID: "p1", CreatedAt: "2024-03-05T09:00:00Z"})
	want := "📝 *New Post*\n\n\n\n🕒 Tue Mar 5, 9:00 AM"
	if got != want {
		t.Errorf("Post() = %q, want %q", got, want)
	}
}

func TestFormatter_PostCustomHeader(t *testing.T) {
	f := New("*Alert*", "", time.UTC)
	got := f.Post(upstream.Post{Description: "x", CreatedAt: "2024-03-05T09:00:00Z"})
	if !strings.HasPrefix(got, "*Alert*\n\nx") {
		t.Errorf("Post() = %q, want custom header", got)
	}
}

func TestFormatter_PostTimezone(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	f := New("", "", loc)
	got := f.Post(upstream.Post{Description: "x", CreatedAt: "2024-12-31T22:30:00Z"})
	if !strings.HasSuffix(got, "🕒 Wed Jan 1, 1:30 AM") {
		t.Errorf("Post() = %q, want date rendered in UTC+3", got)
	}
}

func TestFormatter_Mirror(t *testing.T) {
	f := New("", "", nil)
	if got, want := f.Mirror("hi"), "📝 *Channel Update*\n\nhi"; got != want {
		t.Errorf("Mirror() = %q, want %q", got, want)
	}

	f = New("", ">>", nil)
	if got, want := f.Mirror("hi"), ">>\n\nhi"; got != want {
		t.Errorf("Mirror() = %q, want %q", got, want)
	}
}

func TestTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-03-05T14:07:00.000Z", "Tue Mar 5, 2:07 PM"},
		{"2024-03-05T14:07:00Z", "Tue Mar 5, 2:07 PM"},
		{"2024-03-05T16:07:00+02:00", "Tue Mar 5, 2:07 PM"},
		{"2024-03-05T00:05:00", "Tue Mar 5, 12:05 AM"},
		{"2024-03-05 12:00:00", "Tue Mar 5, 12:00 PM"},
		{"Tue, 05 Mar 2024 14:07:00 +0000", "Tue Mar 5, 2:07 PM"},
		{"yesterday-ish", "yesterday-ish"},
		{"  ", ""},
	}
	for _, tt := range tests {
		if got := Timestamp(tt.in, time.UTC); got != tt.want {
			t.Errorf("Timestamp(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTimestamp_ZonelessIsLocalToLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	tests := []struct {
		in   string
		want string
	}{
		{"2026-03-01 09:30:00", "Sun Mar 1, 9:30 AM"},
		{"2026-03-01T09:30:00.000", "Sun Mar 1, 9:30 AM"},
		// Zoned values are still converted.
		{"2026-03-01T14:30:00Z", "Sun Mar 1, 9:30 AM"},
	}
	for _, tt := range tests {
		if got := Timestamp(tt.in, loc); got != tt.want {
			t.Errorf("Timestamp(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
