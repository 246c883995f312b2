package format

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
	spaceRunRe   = regexp.MustCompile(`[ \t\r\n\f]+`)
)

// paragraph elements are separated by a blank line, line elements by a single
// line break. Inline elements (b, strong, i, em, span, ...) add nothing.
var (
	paragraphTags = map[atom.Atom]bool{
		atom.P: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
		atom.H5: true, atom.H6: true, atom.Blockquote: true, atom.Pre: true,
		atom.Ul: true, atom.Ol: true, atom.Table: true, atom.Hr: true,
	}
	lineTags = map[atom.Atom]bool{
		atom.Div: true, atom.Li: true, atom.Tr: true, atom.Section: true,
		atom.Article: true, atom.Header: true, atom.Footer: true, atom.Dd: true, atom.Dt: true,
	}
	skipTags = map[atom.Atom]bool{
		atom.Script: true, atom.Style: true, atom.Head: true, atom.Title: true,
	}
)

type textWriter struct {
	b       strings.Builder
	pending int
	pre     int
	skip    int
	href    []string
}

func (w *textWriter) lastByte() byte {
	s := w.b.String()
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

func (w *textWriter) requestBreak(n int) {
	if n > w.pending {
		w.pending = n
	}
}

func (w *textWriter) lineBreak() {
	w.flushBreaks()
	w.b.WriteByte('\n')
}

func (w *textWriter) flushBreaks() {
	if w.pending == 0 {
		return
	}
	if w.b.Len() > 0 {
		have := 0
		s := w.b.String()
		for i := len(s) - 1; i >= 0 && s[i] == '\n'; i-- {
			have++
		}
		for ; have < w.pending; have++ {
			w.b.WriteByte('\n')
		}
	}
	w.pending = 0
}

func (w *textWriter) text(s string) {
	if w.pre == 0 {
		s = spaceRunRe.ReplaceAllString(s, " ")
		if s == " " && (w.b.Len() == 0 || w.pending > 0 || w.lastByte() == '\n' || w.lastByte() == ' ') {
			return
		}
	}
	if s == "" {
		return
	}
	w.flushBreaks()
	if w.pre == 0 {
		last := w.lastByte()
		if last == 0 || last == '\n' || last == ' ' {
			s = strings.TrimLeft(s, " ")
		}
	}
	w.b.WriteString(s)
}

// HTMLToText converts an HTML fragment to plain text without word wrapping.
// Block elements become line breaks, inline emphasis is kept as plain text,
// and links are rendered as "text [href]". Malformed markup degrades to
// whatever text the tokenizer recovers.
func HTMLToText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}

	z := html.NewTokenizer(strings.NewReader(s))
	w := &textWriter{}

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF or a tokenizer error; either way keep what we have.
			break
		}

		tok := z.Token()
		switch tt {
		case html.TextToken:
			if w.skip > 0 {
				continue
			}
			w.text(tok.Data)

		case html.StartTagToken, html.SelfClosingTagToken:
			a := tok.DataAtom
			if skipTags[a] {
				if tt == html.StartTagToken {
					w.skip++
				}
				continue
			}
			if w.skip > 0 {
				continue
			}
			switch {
			case a == atom.Br:
				w.lineBreak()
			case paragraphTags[a]:
				w.requestBreak(2)
				if a == atom.Pre && tt == html.StartTagToken {
					w.pre++
				}
			case lineTags[a]:
				w.requestBreak(1)
				if a == atom.Li {
					w.text("* ")
				}
			case a == atom.A && tt == html.StartTagToken:
				w.href = append(w.href, attr(tok, "href"))
			case a == atom.Img:
				if alt := attr(tok, "alt"); alt != "" {
					w.text(alt)
				}
			}

		case html.EndTagToken:
			a := tok.DataAtom
			if skipTags[a] {
				if w.skip > 0 {
					w.skip--
				}
				continue
			}
			if w.skip > 0 {
				continue
			}
			switch {
			case paragraphTags[a]:
				if a == atom.Pre && w.pre > 0 {
					w.pre--
				}
				w.requestBreak(2)
			case lineTags[a]:
				w.requestBreak(1)
			case a == atom.A && len(w.href) > 0:
				href := w.href[len(w.href)-1]
				w.href = w.href[:len(w.href)-1]
				if href != "" && !strings.HasPrefix(href, "#") && !strings.HasSuffix(w.b.String(), href) {
					w.text(" [" + href + "]")
				}
			}
		}
	}

	return tidy(w.b.String())
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func tidy(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	s = strings.Join(lines, "\n")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
