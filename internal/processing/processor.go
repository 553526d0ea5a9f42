package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	tagRegex   = regexp.MustCompile(`<[^>]+>`)
	whitespace = regexp.MustCompile(`\s+`)
)

// CleanText decodes HTML entities, drops tags and squeezes whitespace.
func CleanText(input string) string {
	if input == "" {
		return ""
	}
	decoded := html.UnescapeString(input)
	decoded = tagRegex.ReplaceAllString(decoded, " ")
	decoded = whitespace.ReplaceAllString(decoded, " ")
	return strings.TrimSpace(decoded)
}

// ShortSummary returns a cleaned prefix of text no longer than maxChars runes.
// The cut lands on the last sentence end past the 120th rune when there is one,
// otherwise the prefix is suffixed with "...".
func ShortSummary(text string, maxChars int) string {
	t := CleanText(text)
	if t == "" {
		return ""
	}
	if maxChars <= 0 || utf8.RuneCountInString(t) <= maxChars {
		return t
	}

	cut := string([]rune(t)[:maxChars])
	last := max(strings.LastIndex(cut, ". "), strings.LastIndex(cut, "? "), strings.LastIndex(cut, "! "))
	if last >= 0 && utf8.RuneCountInString(cut[:last]) > 120 {
		return strings.TrimSpace(cut[:last+1])
	}
	return strings.TrimSpace(cut) + "..."
}

// BuildDocumentID hashes the canonical URL into a stable archive id.
func BuildDocumentID(url string) string {
	s := sha1.Sum([]byte(strings.TrimSpace(url)))
	return hex.EncodeToString(s[:])
}

// GenerateTitleFromText creates a title from the first sentence or first N words of text.
// Returns empty string if text is empty.
func GenerateTitleFromText(text string, maxWords int) string {
	if text == "" {
		return ""
	}

	sentenceEnd := strings.IndexAny(text, ".!?")
	firstSentence := text
	if sentenceEnd > 0 {
		firstSentence = strings.TrimSpace(text[:sentenceEnd])
	}

	words := strings.Fields(firstSentence)
	if len(words) == 0 {
		return ""
	}

	if maxWords > 0 && len(words) > maxWords {
		return strings.Join(words[:maxWords], " ") + "..."
	}

	return strings.Join(words, " ")
}
