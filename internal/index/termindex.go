package index

import (
	"math"
	"sort"

	"github.com/NihalShah4/ai-news-research-recommender/internal/processing"
)

// DefaultMaxFeatures caps the vocabulary size.
const DefaultMaxFeatures = 50000

// TermIndex is an immutable TF-IDF matrix over a fixed vocabulary.
type TermIndex struct {
	analyzer *processing.Analyzer
	vocab    map[string]int
	terms    []string
	idf      []float64
	rows     []SparseVector
}

// BuildTermIndex fits the vocabulary and IDF weights on texts and returns one
// L2-normalized row per text. It returns nil when texts yield no terms.
func BuildTermIndex(texts []string, analyzer *processing.Analyzer, maxFeatures int) *TermIndex {
	if len(texts) == 0 {
		return nil
	}
	if analyzer == nil {
		analyzer = processing.NewAnalyzer()
	}
	if maxFeatures <= 0 {
		maxFeatures = DefaultMaxFeatures
	}

	docTerms := make([][]string, len(texts))
	total := make(map[string]int)
	df := make(map[string]int)
	for i, text := range texts {
		terms := analyzer.Terms(text)
		docTerms[i] = terms
		seen := make(map[string]struct{}, len(terms))
		for _, t := range terms {
			total[t]++
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			df[t]++
		}
	}
	if len(total) == 0 {
		return nil
	}

	terms := make([]string, 0, len(total))
	for t := range total {
		terms = append(terms, t)
	}
	if len(terms) > maxFeatures {
		sort.Slice(terms, func(i, j int) bool {
			if total[terms[i]] == total[terms[j]] {
				return terms[i] < terms[j]
			}
			return total[terms[i]] > total[terms[j]]
		})
		terms = terms[:maxFeatures]
	}
	sort.Strings(terms)

	n := float64(len(texts))
	vocab := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	for i, t := range terms {
		vocab[t] = i
		idf[i] = math.Log((1+n)/(1+float64(df[t]))) + 1
	}

	ti := &TermIndex{analyzer: analyzer, vocab: vocab, terms: terms, idf: idf}
	ti.rows = make([]SparseVector, len(texts))
	for i, dt := range docTerms {
		ti.rows[i] = ti.weigh(dt)
	}
	return ti
}

// Transform maps text into the fitted vector space. Unknown terms are dropped.
func (t *TermIndex) Transform(text string) SparseVector {
	if t == nil {
		return SparseVector{}
	}
	return t.weigh(t.analyzer.Terms(text))
}

// Row returns the stored vector of document i.
func (t *TermIndex) Row(i int) SparseVector {
	if t == nil || i < 0 || i >= len(t.rows) {
		return SparseVector{}
	}
	return t.rows[i]
}

// Rows returns the number of document rows.
func (t *TermIndex) Rows() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// VocabularySize returns the number of columns.
func (t *TermIndex) VocabularySize() int {
	if t == nil {
		return 0
	}
	return len(t.terms)
}

// Analyzer returns the analyzer the index was built with.
func (t *TermIndex) Analyzer() *processing.Analyzer {
	if t == nil {
		return processing.NewAnalyzer()
	}
	return t.analyzer
}

func (t *TermIndex) weigh(terms []string) SparseVector {
	counts := make(map[int]int)
	for _, term := range terms {
		if col, ok := t.vocab[term]; ok {
			counts[col]++
		}
	}
	if len(counts) == 0 {
		return SparseVector{}
	}

	v := SparseVector{
		Indices: make([]int, 0, len(counts)),
		Values:  make([]float64, 0, len(counts)),
	}
	for col := range counts {
		v.Indices = append(v.Indices, col)
	}
	sort.Ints(v.Indices)
	for _, col := range v.Indices {
		v.Values = append(v.Values, float64(counts[col])*t.idf[col])
	}
	return normalize(v)
}
