package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/NihalShah4/ai-news-research-recommender/internal/models"
	"github.com/NihalShah4/ai-news-research-recommender/internal/processing"
)

const persistVersion = 1

type persistedState struct {
	Version    int               `json:"version"`
	Generation string            `json:"generation"`
	BuiltAt    time.Time         `json:"built_at"`
	Documents  []models.Document `json:"documents"`
	Terms      []string          `json:"terms,omitempty"`
	IDF        []float64         `json:"idf,omitempty"`
	Rows       []SparseVector    `json:"rows,omitempty"`
	Components [][]float64       `json:"components,omitempty"`
	Coords     []models.Point    `json:"coords,omitempty"`
}

// Save writes the corpus and the current snapshot as a compressed blob.
func (ix *Index) Save(w io.Writer) error {
	s := ix.snap.Load()
	st := persistedState{
		Version:    persistVersion,
		Generation: s.generation,
		BuiltAt:    s.builtAt,
		Documents:  s.docs,
	}
	if s.terms != nil {
		st.Terms = s.terms.terms
		st.IDF = s.terms.idf
		st.Rows = s.terms.rows
	}
	if s.projection != nil {
		st.Components = [][]float64{s.projection.components[0], s.projection.components[1]}
		st.Coords = s.projection.coords
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if err := json.NewEncoder(enc).Encode(st); err != nil {
		enc.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	return nil
}

// Load replaces the corpus and snapshots with a blob written by Save. The
// matrix and map are restored as saved, without refitting.
func (ix *Index) Load(r io.Reader) error {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()

	var st persistedState
	if err := json.NewDecoder(dec).Decode(&st); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	s, err := ix.restore(st)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(s.docs))
	for _, d := range s.docs {
		seen[d.URL] = struct{}{}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.seen = seen
	ix.snap.Store(s)
	ix.log.Info("index restored", slog.Int("total", len(s.docs)), slog.String("generation", s.generation))
	return nil
}

func (ix *Index) restore(st persistedState) (*snapshot, error) {
	if st.Version != persistVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", st.Version)
	}
	n := len(st.Documents)
	s := &snapshot{generation: st.Generation, builtAt: st.BuiltAt, docs: st.Documents}
	if n == 0 {
		return &snapshot{}, nil
	}
	s.published, s.dated = parseDates(st.Documents)

	if len(st.Terms) > 0 {
		if len(st.IDF) != len(st.Terms) || len(st.Rows) != n {
			return nil, errors.New("snapshot term matrix does not match corpus")
		}
		vocab := make(map[string]int, len(st.Terms))
		for i, t := range st.Terms {
			vocab[t] = i
		}
		for _, row := range st.Rows {
			if len(row.Indices) != len(row.Values) {
				return nil, errors.New("snapshot row is malformed")
			}
			for _, idx := range row.Indices {
				if idx < 0 || idx >= len(st.Terms) {
					return nil, errors.New("snapshot row references unknown term")
				}
			}
		}
		s.terms = &TermIndex{
			analyzer: processing.NewAnalyzer(),
			vocab:    vocab,
			terms:    st.Terms,
			idf:      st.IDF,
			rows:     st.Rows,
		}
	}

	if len(st.Components) == mapComponents && s.terms != nil {
		if len(st.Coords) != n {
			return nil, errors.New("snapshot map does not match corpus")
		}
		s.projection = &Projection{
			components: [mapComponents][]float64{st.Components[0], st.Components[1]},
			coords:     st.Coords,
		}
	}

	s.scorer = ix.buildScorer(s.docs, s.terms)
	return s, nil
}
