package index

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/NihalShah4/ai-news-research-recommender/internal/models"
)

const (
	unknownDay          = "unknown"
	titleKeywordWeight  = 2
	bodyKeywordWeight   = 1
	keywordBodyRunes    = 2500
	minKeywordRuneCount = 3
)

// counter keeps counts together with first-seen order for stable ranking.
type counter struct {
	order  []string
	counts map[string]int
}

func newCounter() *counter { return &counter{counts: make(map[string]int)} }

func (c *counter) add(key string, n int) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key] += n
}

// top returns keys by descending count, ties in first-seen order.
func (c *counter) top(n int) []string {
	keys := append([]string(nil), c.order...)
	sort.SliceStable(keys, func(a, b int) bool { return c.counts[keys[a]] > c.counts[keys[b]] })
	if n >= 0 && len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// Trends aggregates publish days, sources and weighted keywords over the
// documents passing f. Undated documents fall into the "unknown" day, which
// only occurs when no age filter is set.
func (ix *Index) Trends(topN int, f Filter) (models.Trends, error) {
	if topN < 0 {
		return models.Trends{}, fmt.Errorf("%w: top_n must not be negative", ErrInvalidArgument)
	}
	if err := validateFilter(f); err != nil {
		return models.Trends{}, err
	}

	s := ix.snap.Load()
	ids := s.filter(f, ix.cfg.Now())
	analyzer := s.terms.Analyzer()

	byDay := make(map[string]int)
	bySource := newCounter()
	keywords := newCounter()
	keep := func(t string) bool {
		return utf8.RuneCountInString(t) >= minKeywordRuneCount && !analyzer.IsStopWord(t)
	}

	for _, i := range ids {
		d := s.docs[i]
		bySource.add(d.Source, 1)

		day := unknownDay
		if s.dated[i] {
			day = s.published[i].UTC().Format("2006-01-02")
		}
		byDay[day]++

		for _, t := range analyzer.Terms(d.Title) {
			if keep(t) {
				keywords.add(t, titleKeywordWeight)
			}
		}
		for _, t := range analyzer.Terms(truncateRunes(d.Body, keywordBodyRunes)) {
			if keep(t) {
				keywords.add(t, bodyKeywordWeight)
			}
		}
	}

	out := models.Trends{
		Days:        f.MaxAgeDays,
		TotalItems:  len(ids),
		ByDay:       make([]models.DayCount, 0, len(byDay)),
		TopSources:  []models.SourceCount{},
		TopKeywords: []models.TermCount{},
	}

	dayKeys := make([]string, 0, len(byDay))
	for d := range byDay {
		dayKeys = append(dayKeys, d)
	}
	sort.Strings(dayKeys)
	for _, d := range dayKeys {
		out.ByDay = append(out.ByDay, models.DayCount{Day: d, Count: byDay[d]})
	}
	for _, src := range bySource.top(topN) {
		out.TopSources = append(out.TopSources, models.SourceCount{Source: src, Count: bySource.counts[src]})
	}
	for _, t := range keywords.top(topN) {
		out.TopKeywords = append(out.TopKeywords, models.TermCount{Term: t, Count: keywords.counts[t]})
	}
	return out, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
