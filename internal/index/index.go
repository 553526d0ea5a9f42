// Package index holds the in-memory document index: TF-IDF term matrix,
// boosted search, extractive snippets, trend aggregates and the 2D map.
package index

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/NihalShah4/ai-news-research-recommender/internal/logger"
	"github.com/NihalShah4/ai-news-research-recommender/internal/models"
	"github.com/NihalShah4/ai-news-research-recommender/internal/processing"
)

// ErrInvalidArgument reports a violated caller precondition such as a negative k.
var ErrInvalidArgument = errors.New("invalid argument")

// Ranking tunes the multiplicative boosts applied on top of similarity.
type Ranking struct {
	HalfLifeDays    float64
	RecencyStrength float64
	TitleStrength   float64
}

// DefaultRanking returns the default boost parameters.
func DefaultRanking() Ranking {
	return Ranking{HalfLifeDays: 14, RecencyStrength: 0.25, TitleStrength: 0.35}
}

// Config configures an Index.
type Config struct {
	MaxFeatures      int
	Ranking          Ranking
	SnippetSentences int
	SnippetChars     int
	// Scorer builds the scoring backend per snapshot; lexical when nil.
	Scorer ScorerBuilder
	// Observer is notified after every rebuild; optional.
	Observer Observer
	Now      func() time.Time
	Logger   *slog.Logger
}

// Observer receives rebuild notifications.
type Observer interface {
	Rebuilt(docs int, took time.Duration, mapReady bool)
}

// Filter narrows the documents considered by Search, Trends and Map.
type Filter struct {
	// MaxAgeDays excludes documents older than this many days and undated
	// documents. Nil disables the age filter.
	MaxAgeDays *int
	// Sources is an allow-list matched exactly against Document.Source.
	Sources []string
}

// Days is a helper for building a Filter.MaxAgeDays value.
func Days(n int) *int { return &n }

// snapshot is everything readers see. It is never mutated after publication.
type snapshot struct {
	generation string
	builtAt    time.Time
	docs       []models.Document
	published  []time.Time
	dated      []bool
	terms      *TermIndex
	scorer     Scorer
	projection *Projection
}

// Index owns the corpus and its derived snapshots. Writes are serialized; reads
// load the current snapshot without locking.
type Index struct {
	cfg Config
	log *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
	snap atomic.Pointer[snapshot]
}

// New creates an empty index.
func New(cfg Config) *Index {
	if cfg.MaxFeatures <= 0 {
		cfg.MaxFeatures = DefaultMaxFeatures
	}
	if cfg.Ranking == (Ranking{}) {
		cfg.Ranking = DefaultRanking()
	}
	if cfg.SnippetSentences <= 0 {
		cfg.SnippetSentences = DefaultSnippetSentences
	}
	if cfg.SnippetChars <= 0 {
		cfg.SnippetChars = DefaultSnippetChars
	}
	if cfg.Scorer == nil {
		cfg.Scorer = NewLexicalScorer
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}

	ix := &Index{cfg: cfg, log: log, seen: make(map[string]struct{})}
	ix.snap.Store(&snapshot{})
	return ix
}

// Ingest appends documents whose URL has not been seen before and rebuilds
// the snapshot if any were added. It returns the number of added documents.
func (ix *Index) Ingest(docs []models.Document) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	cur := ix.snap.Load()
	next := make([]models.Document, len(cur.docs), len(cur.docs)+len(docs))
	copy(next, cur.docs)

	added := 0
	for _, d := range docs {
		d.URL = strings.TrimSpace(d.URL)
		if d.URL == "" {
			continue
		}
		if _, ok := ix.seen[d.URL]; ok {
			continue
		}
		ix.seen[d.URL] = struct{}{}
		next = append(next, d)
		added++
	}

	if added > 0 {
		ix.snap.Store(ix.build(next))
		ix.log.Info("index rebuilt", slog.Int("added", added), slog.Int("total", len(next)))
	}
	return added
}

// Reset drops the corpus and all snapshots.
func (ix *Index) Reset() {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.seen = make(map[string]struct{})
	ix.snap.Store(&snapshot{})
	ix.log.Info("index reset")
}

// Total returns the number of indexed documents.
func (ix *Index) Total() int {
	return len(ix.snap.Load().docs)
}

// Stats describes the current snapshot.
func (ix *Index) Stats() models.Stats {
	s := ix.snap.Load()
	st := models.Stats{
		TotalIndexed: len(s.docs),
		Vocabulary:   s.terms.VocabularySize(),
		Generation:   s.generation,
		MapReady:     s.projection != nil,
		BuiltAt:      s.builtAt,
	}
	if s.scorer != nil {
		st.Scorer = s.scorer.Name()
	}
	return st
}

func (ix *Index) build(docs []models.Document) *snapshot {
	start := time.Now()
	s := &snapshot{
		generation: uuid.NewString(),
		builtAt:    ix.cfg.Now().UTC(),
		docs:       docs,
	}
	s.published, s.dated = parseDates(docs)

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = docText(d)
	}
	s.terms = BuildTermIndex(texts, processing.NewAnalyzer(), ix.cfg.MaxFeatures)
	s.scorer = ix.buildScorer(docs, s.terms)
	s.projection = FitProjection(s.terms)
	if s.projection == nil && len(docs) >= MinMapDocuments {
		ix.log.Warn("2d map unavailable for snapshot", slog.Int("docs", len(docs)))
	}

	if ix.cfg.Observer != nil {
		ix.cfg.Observer.Rebuilt(len(docs), time.Since(start), s.projection != nil)
	}
	return s
}

func (ix *Index) buildScorer(docs []models.Document, terms *TermIndex) Scorer {
	if terms == nil && len(docs) == 0 {
		return nil
	}
	scorer, err := ix.cfg.Scorer(docs, terms)
	if err == nil {
		return scorer
	}
	ix.log.Warn("scorer build failed, using lexical", slog.Any("err", err))
	scorer, _ = NewLexicalScorer(docs, terms)
	return scorer
}

func parseDates(docs []models.Document) ([]time.Time, []bool) {
	published := make([]time.Time, len(docs))
	dated := make([]bool, len(docs))
	for i, d := range docs {
		published[i], dated[i] = processing.ParseTimestamp(d.Published)
	}
	return published, dated
}

func docText(d models.Document) string {
	return d.Title + "\n" + strings.TrimSpace(d.Body)
}

// ageDays returns the non-negative age of document i in days.
func (s *snapshot) ageDays(i int, now time.Time) (float64, bool) {
	if !s.dated[i] {
		return 0, false
	}
	return max(0, now.Sub(s.published[i]).Hours()/24), true
}

// filter returns the ids of documents passing f, in corpus order.
func (s *snapshot) filter(f Filter, now time.Time) []int {
	allowed := make(map[string]struct{}, len(f.Sources))
	for _, src := range f.Sources {
		allowed[src] = struct{}{}
	}

	ids := make([]int, 0, len(s.docs))
	for i := range s.docs {
		if !s.passes(i, f, allowed, now) {
			continue
		}
		ids = append(ids, i)
	}
	return ids
}

func (s *snapshot) passes(i int, f Filter, allowed map[string]struct{}, now time.Time) bool {
	if len(allowed) > 0 {
		if _, ok := allowed[s.docs[i].Source]; !ok {
			return false
		}
	}
	if f.MaxAgeDays != nil {
		age, ok := s.ageDays(i, now)
		if !ok || age > float64(*f.MaxAgeDays) {
			return false
		}
	}
	return true
}

func validateFilter(f Filter) error {
	if f.MaxAgeDays != nil && *f.MaxAgeDays < 0 {
		return fmt.Errorf("%w: max age days must not be negative", ErrInvalidArgument)
	}
	return nil
}
