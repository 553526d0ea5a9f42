package index

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/NihalShah4/ai-news-research-recommender/internal/models"
)

// Embedder converts texts into dense vectors. Implementations call an
// external model; the index never runs inference itself.
type Embedder interface {
	Name() string
	Embed(texts []string) ([][]float64, error)
}

type embeddingPair struct {
	body  []float64
	title []float64
}

// DenseScorer scores by cosine similarity over externally computed embeddings.
// Queries the embedder cannot serve are scored by the lexical fallback.
type DenseScorer struct {
	embedder Embedder
	body     [][]float64
	title    [][]float64
	fallback Scorer
}

// NewDenseBuilder returns a ScorerBuilder that embeds each document once and
// reuses the embedding on later rebuilds while its content is unchanged.
func NewDenseBuilder(embedder Embedder) ScorerBuilder {
	var mu sync.Mutex
	cache := make(map[string]embeddingPair)

	return func(docs []models.Document, terms *TermIndex) (Scorer, error) {
		mu.Lock()
		defer mu.Unlock()

		keys := make([]string, len(docs))
		var texts []string
		var missing []string
		for i, d := range docs {
			body := strings.TrimSpace(d.Title + "\n" + d.Body)
			keys[i] = embeddingKey(d.URL, body)
			if _, ok := cache[keys[i]]; ok {
				continue
			}
			missing = append(missing, keys[i])
			texts = append(texts, body, d.Title)
		}

		if len(texts) > 0 {
			vecs, err := embedder.Embed(texts)
			if err != nil {
				return nil, fmt.Errorf("embed documents: %w", err)
			}
			if len(vecs) != len(texts) {
				return nil, errors.New("embedder returned wrong number of vectors")
			}
			for i, key := range missing {
				cache[key] = embeddingPair{body: vecs[2*i], title: vecs[2*i+1]}
			}
		}

		fallback, err := NewLexicalScorer(docs, terms)
		if err != nil {
			return nil, err
		}
		s := &DenseScorer{
			embedder: embedder,
			body:     make([][]float64, len(docs)),
			title:    make([][]float64, len(docs)),
			fallback: fallback,
		}
		live := make(map[string]embeddingPair, len(docs))
		for i, key := range keys {
			p := cache[key]
			s.body[i] = p.body
			s.title[i] = p.title
			live[key] = p
		}
		cache = live
		return s, nil
	}
}

// embeddingKey ties a cached embedding to both the URL and the embedded text.
func embeddingKey(url, text string) string {
	sum := sha1.Sum([]byte(text))
	return url + "#" + hex.EncodeToString(sum[:])
}

func (s *DenseScorer) Name() string { return "dense:" + s.embedder.Name() }

func (s *DenseScorer) Scores(query string) ([]float64, []float64, bool) {
	vecs, err := s.embedder.Embed([]string{query})
	if err != nil || len(vecs) != 1 {
		return s.fallback.Scores(query)
	}
	q := vecs[0]
	body := make([]float64, len(s.body))
	title := make([]float64, len(s.title))
	for i := range s.body {
		body[i] = denseCosine(q, s.body[i])
		title[i] = denseCosine(q, s.title[i])
	}
	return body, title, true
}

func denseCosine(a, b []float64) float64 {
	n := min(len(a), len(b))
	dot, na, nb := 0.0, 0.0, 0.0
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
