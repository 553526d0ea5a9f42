package processing

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SplitSentences cuts text after '.', '!' or '?' when followed by whitespace.
// Fragments shorter than minChars runes are dropped and at most limit
// sentences are returned (limit <= 0 means no cap).
func SplitSentences(text string, minChars, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var out []string
	keep := func(s string) bool {
		s = strings.TrimSpace(s)
		if utf8.RuneCountInString(s) < minChars {
			return true
		}
		out = append(out, s)
		return limit <= 0 || len(out) < limit
	}

	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next, _ := utf8.DecodeRuneInString(text[i:])
		if i >= len(text) || !unicode.IsSpace(next) {
			continue
		}
		if !keep(text[start:i]) {
			return out
		}
		for i < len(text) {
			r, size := utf8.DecodeRuneInString(text[i:])
			if !unicode.IsSpace(r) {
				break
			}
			i += size
		}
		start = i
	}
	if start < len(text) {
		keep(text[start:])
	}
	return out
}
