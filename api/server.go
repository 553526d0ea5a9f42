package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/NihalShah4/ai-news-research-recommender/internal/config"
	"github.com/NihalShah4/ai-news-research-recommender/internal/index"
	"github.com/NihalShah4/ai-news-research-recommender/internal/metrics"
	"github.com/NihalShah4/ai-news-research-recommender/internal/models"
)

const (
	defaultTrendDays = 30
	defaultTopN      = 15
	maxBodyBytes     = 8 << 20
)

type healthChecker interface {
	Health(ctx context.Context) error
}

type server struct {
	log      *slog.Logger
	cfg      *config.API
	ix       *index.Index
	es       healthChecker
	metrics  *metrics.Collector
	validate *validator.Validate
}

func newServer(log *slog.Logger, cfg *config.API, ix *index.Index, es healthChecker, m *metrics.Collector) *server {
	return &server{log: log, cfg: cfg, ix: ix, es: es, metrics: m, validate: validator.New()}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/search", s.handleSearchQuery)
	r.Post("/search", s.handleSearchBody)
	r.Get("/trends", s.handleTrends)
	r.Get("/map", s.handleMap)
	r.Post("/ingest", s.handleIngest)
	r.Post("/reset", s.handleReset)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

type searchRequest struct {
	Query   string   `json:"query" validate:"max=2000"`
	K       *int     `json:"k" validate:"omitempty,gte=0"`
	TopK    *int     `json:"top_k" validate:"omitempty,gte=0"`
	Days    *int     `json:"days" validate:"omitempty,gte=0"`
	Sources []string `json:"sources" validate:"omitempty,dive,required,max=200"`
}

type searchResponse struct {
	Query   string                `json:"query"`
	Results []models.SearchResult `json:"results"`
}

type trendsRequest struct {
	Days    *int     `validate:"omitempty,gte=0"`
	TopN    *int     `validate:"omitempty,gte=0,lte=500"`
	Sources []string `validate:"omitempty,dive,required,max=200"`
}

type mapRequest struct {
	Query   string   `validate:"max=2000"`
	K       *int     `validate:"omitempty,gte=0"`
	Days    *int     `validate:"omitempty,gte=0"`
	Sources []string `validate:"omitempty,dive,required,max=200"`
}

type ingestDocument struct {
	Title     string `json:"title" validate:"required,max=1000"`
	URL       string `json:"url" validate:"required,url"`
	Source    string `json:"source" validate:"max=200"`
	Published string `json:"published"`
	Text      string `json:"text"`
	Summary   string `json:"summary"`
}

type ingestRequest struct {
	Documents []ingestDocument `json:"documents" validate:"required,min=1,max=5000,dive"`
}

type ingestResponse struct {
	Received     int `json:"received"`
	Added        int `json:"added"`
	TotalIndexed int `json:"total_indexed"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := map[string]any{"status": "ok", "total_indexed": s.ix.Total()}
	if s.es != nil {
		if err := s.es.Health(ctx); err != nil {
			resp["status"] = "degraded"
			resp["elasticsearch"] = err.Error()
		} else {
			resp["elasticsearch"] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ix.Stats())
}

func (s *server) handleSearchQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := searchRequest{Query: q.Get("q"), Sources: parseSources(q)}
	var err error
	if req.K, err = optionalInt(q, "k"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Days, err = optionalInt(q, "days"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.search(w, req)
}

func (s *server) handleSearchBody(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.search(w, req)
}

func (s *server) search(w http.ResponseWriter, req searchRequest) {
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	k := s.cfg.DefaultK
	switch {
	case req.K != nil:
		k = *req.K
	case req.TopK != nil:
		k = *req.TopK
	}
	k = min(k, s.cfg.MaxK)

	results, err := s.ix.Search(req.Query, k, index.Filter{MaxAgeDays: req.Days, Sources: req.Sources})
	if err != nil {
		s.writeIndexError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: strings.TrimSpace(req.Query), Results: results})
}

func (s *server) handleTrends(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := trendsRequest{Sources: parseSources(q)}
	var err error
	if req.Days, err = optionalInt(q, "days"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.TopN, err = optionalInt(q, "top_n"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// days=all lifts the age filter so undated documents are counted.
	days := req.Days
	if days == nil && q.Get("days") == "" {
		days = index.Days(defaultTrendDays)
	}
	topN := defaultTopN
	if req.TopN != nil {
		topN = *req.TopN
	}

	trends, err := s.ix.Trends(topN, index.Filter{MaxAgeDays: days, Sources: req.Sources})
	if err != nil {
		s.writeIndexError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trends)
}

func (s *server) handleMap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := mapRequest{Query: q.Get("q"), Sources: parseSources(q)}
	var err error
	if req.K, err = optionalInt(q, "k"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Days, err = optionalInt(q, "days"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	k := s.cfg.MaxK
	if req.K != nil {
		k = min(*req.K, s.cfg.MaxK)
	}

	result, err := s.ix.Map(k, req.Query, index.Filter{MaxAgeDays: req.Days, Sources: req.Sources})
	if err != nil {
		s.writeIndexError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	docs := make([]models.Document, 0, len(req.Documents))
	for _, d := range req.Documents {
		docs = append(docs, models.Document{
			Title:     strings.TrimSpace(d.Title),
			URL:       d.URL,
			Source:    strings.TrimSpace(d.Source),
			Published: strings.TrimSpace(d.Published),
			Body:      d.Text,
			Summary:   d.Summary,
		})
	}

	added := s.ix.Ingest(docs)
	s.metrics.Ingested(len(docs), added)
	writeJSON(w, http.StatusOK, ingestResponse{Received: len(docs), Added: added, TotalIndexed: s.ix.Total()})
}

func (s *server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.ix.Reset()
	s.metrics.Reset()
	writeJSON(w, http.StatusOK, map[string]int{"total_indexed": s.ix.Total()})
}

func (s *server) writeIndexError(w http.ResponseWriter, err error) {
	if errors.Is(err, index.ErrInvalidArgument) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.log.Error("index request failed", slog.Any("err", err))
	writeError(w, http.StatusInternalServerError, err)
}

// optionalInt parses an integer query parameter. Absent values and the
// literal "all" yield nil.
func optionalInt(q map[string][]string, key string) (*int, error) {
	vals := q[key]
	if len(vals) == 0 {
		return nil, nil
	}
	raw := strings.TrimSpace(vals[0])
	if raw == "" || strings.EqualFold(raw, "all") {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer", key)
	}
	return &v, nil
}

// parseSources accepts both repeated source params and comma separated sources.
func parseSources(q map[string][]string) []string {
	var out []string
	for _, key := range []string{"source", "sources"} {
		for _, raw := range q[key] {
			for _, part := range strings.Split(raw, ",") {
				if trimmed := strings.TrimSpace(part); trimmed != "" {
					out = append(out, trimmed)
				}
			}
		}
	}
	return out
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
