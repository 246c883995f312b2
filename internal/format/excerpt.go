package format

import (
	"strings"
	"unicode/utf8"
)

// Excerpt returns the first sentence or line of text, cut at a word boundary
// with "..." when it is longer than maxLen bytes.
func Excerpt(text string, maxLen int) string {
	text = strings.TrimSpace(text)
	if text == "" || maxLen <= 0 {
		return ""
	}

	end := len(text)
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		end = idx
	}

	// First ". " or ".\n" ends the sentence.
	for i := 0; i < end-1; i++ {
		if text[i] == '.' && (text[i+1] == ' ' || text[i+1] == '\n') {
			end = i + 1
			break
		}
	}

	if end > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if idx := strings.LastIndexByte(text[:cut], ' '); idx > 0 {
			return text[:idx] + "..."
		}
		return text[:cut] + "..."
	}

	return strings.TrimSpace(text[:end])
}
