package index

import (
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/NihalShah4/ai-news-research-recommender/internal/models"
	"github.com/NihalShah4/ai-news-research-recommender/internal/processing"
)

const (
	// FallbackSummary is returned when a document has neither usable body text nor a summary.
	FallbackSummary = "No summary available."

	DefaultSnippetSentences = 2
	DefaultSnippetChars     = 320

	minSentenceChars = 40
	maxCandidates    = 60
)

// Summarize builds an extractive snippet of doc for query: the body sentences
// most similar to the query, in rank order, joined by a space. It never fails;
// without usable sentences it falls back to the stored summary.
func Summarize(terms *TermIndex, query string, doc models.Document, maxSentences, maxChars int) string {
	if maxSentences <= 0 {
		maxSentences = DefaultSnippetSentences
	}
	if maxChars <= 0 {
		maxChars = DefaultSnippetChars
	}

	fallback := strings.TrimSpace(doc.Summary)
	if fallback == "" {
		fallback = FallbackSummary
	}

	body := strings.TrimSpace(doc.Body)
	if body == "" || terms == nil {
		return fallback
	}
	sents := processing.SplitSentences(body, minSentenceChars, maxCandidates)
	if len(sents) == 0 {
		return fallback
	}

	q := terms.Transform(query)
	sims := make([]float64, len(sents))
	for i, s := range sents {
		sims[i] = Cosine(q, terms.Transform(s))
	}
	order := make([]int, len(sents))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return sims[order[a]] > sims[order[b]] })

	picked := make([]string, 0, maxSentences)
	total := 0
	for _, idx := range order {
		s := sents[idx]
		if slices.Contains(picked, s) {
			continue
		}
		n := utf8.RuneCountInString(s)
		if len(picked) > 0 {
			n++ // joining space
			if total+n > maxChars {
				break
			}
		}
		picked = append(picked, s)
		total += n
		if len(picked) >= maxSentences {
			break
		}
	}

	out := strings.TrimSpace(strings.Join(picked, " "))
	if out == "" {
		return fallback
	}
	return out
}
