package processing

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Analyzer turns text into index terms: lower-cased word tokens of at least
// two characters, stop words removed, followed by contiguous bigrams.
type Analyzer struct {
	stopwords map[string]struct{}
}

// NewAnalyzer returns the analyzer used by the term index.
func NewAnalyzer() *Analyzer {
	return &Analyzer{stopwords: englishStopWords}
}

// Tokens returns the unigram tokens of text in order.
func (a *Analyzer) Tokens(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if _, stop := a.stopwords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Terms returns all unigrams of text followed by all bigrams.
func (a *Analyzer) Terms(text string) []string {
	tokens := a.Tokens(text)
	if len(tokens) < 2 {
		return tokens
	}
	terms := make([]string, 0, 2*len(tokens)-1)
	terms = append(terms, tokens...)
	for i := 0; i+1 < len(tokens); i++ {
		terms = append(terms, tokens[i]+" "+tokens[i+1])
	}
	return terms
}

// IsStopWord reports whether token is dropped by this analyzer.
func (a *Analyzer) IsStopWord(token string) bool {
	_, ok := a.stopwords[token]
	return ok
}
