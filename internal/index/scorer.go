package index

import "github.com/NihalShah4/ai-news-research-recommender/internal/models"

// Scorer measures how similar a query is to every document body and title
// of one snapshot. Implementations are immutable once built.
type Scorer interface {
	Name() string
	// Scores returns body and title similarities index-aligned with the
	// corpus. ok is false when the query cannot be scored.
	Scores(query string) (body, title []float64, ok bool)
}

// ScorerBuilder creates the scorer for a freshly built snapshot.
type ScorerBuilder func(docs []models.Document, terms *TermIndex) (Scorer, error)

// LexicalScorer scores by cosine similarity over the TF-IDF vectors.
type LexicalScorer struct {
	terms  *TermIndex
	titles []SparseVector
}

// NewLexicalScorer transforms every title once so queries only pay for dot products.
func NewLexicalScorer(docs []models.Document, terms *TermIndex) (Scorer, error) {
	titles := make([]SparseVector, len(docs))
	for i, d := range docs {
		titles[i] = terms.Transform(d.Title)
	}
	return &LexicalScorer{terms: terms, titles: titles}, nil
}

func (s *LexicalScorer) Name() string { return "lexical" }

func (s *LexicalScorer) Scores(query string) ([]float64, []float64, bool) {
	if s.terms == nil {
		return nil, nil, false
	}
	q := s.terms.Transform(query)
	body := make([]float64, s.terms.Rows())
	title := make([]float64, len(s.titles))
	if q.Len() == 0 {
		return body, title, true
	}
	for i := range body {
		body[i] = Cosine(q, s.terms.Row(i))
	}
	for i, tv := range s.titles {
		title[i] = Cosine(q, tv)
	}
	return body, title, true
}
