// Package format renders upstream posts and mirrored messages as chat text.
package format

import (
	"strings"
	"time"

	"github.com/ppiankov/signalrelay/internal/upstream"
)

const (
	DefaultHeader       = "📝 *New Post*"
	DefaultMirrorPrefix = "📝 *Channel Update*"

	// dateLayout matches en-US "weekday short, month short, day, h:mm AM".
	dateLayout = "Mon Jan 2, 3:04 PM"
	clockIcon  = "🕒"
)

// Formatter turns posts into message bodies. It is safe for concurrent use.
type Formatter struct {
	header       string
	mirrorPrefix string
	loc          *time.Location
}

// New creates a formatter. Empty header/prefix fall back to the defaults and
// a nil location means time.Local.
func New(header, mirrorPrefix string, loc *time.Location) *Formatter {
	if header == "" {
		header = DefaultHeader
	}
	if mirrorPrefix == "" {
		mirrorPrefix = DefaultMirrorPrefix
	}
	if loc == nil {
		loc = time.Local
	}
	return &Formatter{header: header, mirrorPrefix: mirrorPrefix, loc: loc}
}

// Post renders the lead message for a post: header, plain-text body and the
// creation timestamp.
func (f *Formatter) Post(p upstream.Post) string {
	text := HTMLToText(p.Description)
	date := Timestamp(p.CreatedAt, f.loc)
	return f.header + "\n\n" + text + "\n\n" + clockIcon + " " + date
}

// Mirror prefixes a message relayed from the mirror source.
func (f *Formatter) Mirror(text string) string {
	return f.mirrorPrefix + "\n\n" + text
}

var timeLayouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339Nano, true},
	{"2006-01-02T15:04:05.999999999", false},
	{"2006-01-02 15:04:05", false},
	{time.RFC1123Z, true},
	{time.RFC1123, true},
}

// Timestamp renders an upstream timestamp in loc. Values without a zone are
// read as local to loc. Values that do not parse are returned trimmed but
// otherwise unchanged.
func Timestamp(raw string, loc *time.Location) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if loc == nil {
		loc = time.Local
	}
	for _, l := range timeLayouts {
		var t time.Time
		var err error
		if l.zoned {
			t, err = time.Parse(l.layout, raw)
		} else {
			t, err = time.ParseInLocation(l.layout, raw, loc)
		}
		if err == nil {
			return t.In(loc).Format(dateLayout)
		}
	}
	return raw
}
