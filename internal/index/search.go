package index

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/NihalShah4/ai-news-research-recommender/internal/models"
)

const (
	undatedRecencyFactor = 0.5
	maxWhyTerms          = 6
	minWhyTermChars      = 3
)

type scored struct {
	id    int
	score float64
}

// Search ranks documents against query by similarity boosted by recency and
// title match. It returns at most k results; a blank query or an empty corpus
// yields an empty list.
func (ix *Index) Search(query string, k int, f Filter) ([]models.SearchResult, error) {
	if k < 0 {
		return nil, fmt.Errorf("%w: k must not be negative", ErrInvalidArgument)
	}
	if err := validateFilter(f); err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)
	s := ix.snap.Load()
	if query == "" || k == 0 || len(s.docs) == 0 || s.scorer == nil {
		return []models.SearchResult{}, nil
	}

	body, title, ok := s.scorer.Scores(query)
	if !ok || len(body) != len(s.docs) || len(title) != len(s.docs) {
		ix.log.Warn("query could not be scored")
		return []models.SearchResult{}, nil
	}

	now := ix.cfg.Now()
	r := ix.cfg.Ranking
	recencyBase := 1 - r.RecencyStrength
	titleBase := 1 - r.TitleStrength
	halfLife := math.Max(r.HalfLifeDays, 1e-6)

	ids := s.filter(f, now)
	hits := make([]scored, 0, len(ids))
	for _, i := range ids {
		factor := undatedRecencyFactor
		if age, dated := s.ageDays(i, now); dated {
			factor = math.Exp(-math.Ln2 * age / halfLife)
		}
		recency := recencyBase + r.RecencyStrength*factor
		titleBoost := titleBase + r.TitleStrength*title[i]
		hits = append(hits, scored{id: i, score: body[i] * recency * titleBoost})
	}

	// ids are in corpus order, so a stable sort breaks ties by insertion order.
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if len(hits) > k {
		hits = hits[:k]
	}

	analyzer := s.terms.Analyzer()
	results := make([]models.SearchResult, 0, len(hits))
	for _, h := range hits {
		d := s.docs[h.id]
		results = append(results, models.SearchResult{
			Title:   d.Title,
			URL:     d.URL,
			Source:  d.Source,
			Summary: Summarize(s.terms, query, d, ix.cfg.SnippetSentences, ix.cfg.SnippetChars),
			Score:   h.score,
			Why:     whyTerms(analyzer.Terms(query), analyzer.Terms(d.Title+" "+d.Body)),
		})
	}
	return results, nil
}

// whyTerms intersects query terms with document terms in query order.
func whyTerms(queryTerms, docTerms []string) []string {
	doc := make(map[string]struct{}, len(docTerms))
	for _, t := range docTerms {
		doc[t] = struct{}{}
	}

	out := make([]string, 0, maxWhyTerms)
	seen := make(map[string]struct{})
	for _, t := range queryTerms {
		if utf8.RuneCountInString(t) < minWhyTermChars {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		if _, ok := doc[t]; !ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) >= maxWhyTerms {
			break
		}
	}
	return out
}
