package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NihalShah4/ai-news-research-recommender/internal/config"
	"github.com/NihalShah4/ai-news-research-recommender/internal/index"
	"github.com/NihalShah4/ai-news-research-recommender/internal/logger"
	"github.com/NihalShah4/ai-news-research-recommender/internal/metrics"
	"github.com/NihalShah4/ai-news-research-recommender/internal/models"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

type stubHealth struct{ err error }

func (s stubHealth) Health(context.Context) error { return s.err }

type stubArchive struct {
	docs []models.Document
	err  error
}

func (s stubArchive) RecentDocuments(_ context.Context, limit int) ([]models.Document, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.docs[:min(limit, len(s.docs))], nil
}

func discardLog() *slog.Logger { return logger.Discard() }

func testConfig() *config.API {
	return &config.API{
		DefaultK:       8,
		MaxK:           50,
		BootstrapLimit: 100,
		CORSOrigins:    []string{"http://localhost:5173"},
	}
}

func newTestIndex(m *metrics.Collector) *index.Index {
	return index.New(index.Config{Now: func() time.Time { return testNow }, Observer: m})
}

func newTestServer(t *testing.T, es healthChecker) (*httptest.Server, *index.Index) {
	t.Helper()
	m := metrics.NewCollector("test")
	ix := newTestIndex(m)
	srv := httptest.NewServer(newServer(discardLog(), testConfig(), ix, es, m).routes())
	t.Cleanup(srv.Close)
	return srv, ix
}

func corpus() []ingestDocument {
	return []ingestDocument{
		{Title: "LLM agents plan with tools", URL: "https://example.com/agents", Source: "arxiv", Published: testNow.Format(time.RFC3339), Text: "Agents use tools and plan multi-step tasks across long horizons."},
		{Title: "Agents reason about tools", URL: "https://example.com/reason", Source: "arxiv", Published: testNow.AddDate(0, 0, -1).Format(time.RFC3339), Text: "Reasoning agents decide which tools to call while planning."},
		{Title: "Relational database engines", URL: "https://example.com/db", Source: "blog", Text: "Database engines store tuples and run transactions durably."},
	}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	res, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func ingestCorpus(t *testing.T, base string) {
	t.Helper()
	res := postJSON(t, base+"/ingest", ingestRequest{Documents: corpus()})
	require.Equal(t, http.StatusOK, res.StatusCode)

	var out ingestResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	require.Equal(t, ingestResponse{Received: 3, Added: 3, TotalIndexed: 3}, out)
}

func TestIngestAndSearch(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ingestCorpus(t, srv.URL)

	var out searchResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/search?q=LLM+agents&k=2", &out))
	require.Equal(t, "LLM agents", out.Query)
	require.Len(t, out.Results, 2)
	require.Equal(t, "https://example.com/agents", out.Results[0].URL)
	require.Contains(t, out.Results[0].Why, "agents")

	res := postJSON(t, srv.URL+"/search", map[string]any{"query": "database", "top_k": 1})
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	require.Len(t, out.Results, 1)
	require.Equal(t, "https://example.com/db", out.Results[0].URL)
}

func TestSearchFiltersBySource(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ingestCorpus(t, srv.URL)

	var out searchResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/search?q=agents&sources=blog", &out))
	for _, r := range out.Results {
		require.Equal(t, "blog", r.Source)
	}
}

func TestSearchRejectsBadArguments(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	tests := []struct {
		name string
		path string
	}{
		{name: "negative k", path: "/search?q=x&k=-1"},
		{name: "non numeric k", path: "/search?q=x&k=ten"},
		{name: "negative days", path: "/search?q=x&days=-3"},
		{name: "negative top_n", path: "/trends?top_n=-1"},
		{name: "negative map k", path: "/map?k=-2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out errorResponse
			require.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+tt.path, &out))
			require.NotEmpty(t, out.Error)
		})
	}
}

func TestIngestValidation(t *testing.T) {
	srv, ix := newTestServer(t, nil)

	res := postJSON(t, srv.URL+"/ingest", ingestRequest{Documents: []ingestDocument{{Title: "no url"}}})
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = postJSON(t, srv.URL+"/ingest", ingestRequest{})
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.Zero(t, ix.Total())
}

func TestTrendsDefaultAndAll(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ingestCorpus(t, srv.URL)

	var windowed models.Trends
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/trends", &windowed))
	require.Equal(t, 2, windowed.TotalItems)
	require.NotNil(t, windowed.Days)
	require.Equal(t, defaultTrendDays, *windowed.Days)

	var all models.Trends
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/trends?days=all&top_n=1", &all))
	require.Equal(t, 3, all.TotalItems)
	require.Nil(t, all.Days)
	require.Equal(t, "unknown", all.ByDay[len(all.ByDay)-1].Day)
	require.Len(t, all.TopSources, 1)
	require.Equal(t, "arxiv", all.TopSources[0].Source)
}

func TestMapEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	var empty models.MapResult
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/map", &empty))
	require.Empty(t, empty.Points)

	ingestCorpus(t, srv.URL)
	var out models.MapResult
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/map?k=2&q=agents", &out))
	require.Len(t, out.Points, 2)
	require.NotNil(t, out.QueryPoint)
}

func TestStatsAndReset(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ingestCorpus(t, srv.URL)

	var st models.Stats
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/stats", &st))
	require.Equal(t, 3, st.TotalIndexed)
	require.Equal(t, "lexical", st.Scorer)
	require.NotEmpty(t, st.Generation)

	res := postJSON(t, srv.URL+"/reset", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/stats", &st))
	require.Zero(t, st.TotalIndexed)
}

func TestHealthReportsArchiveState(t *testing.T) {
	srv, _ := newTestServer(t, stubHealth{err: errors.New("cluster red")})

	var out map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", &out))
	require.Equal(t, "degraded", out["status"])
	require.Equal(t, "cluster red", out["elasticsearch"])

	srv, _ = newTestServer(t, stubHealth{})
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", &out))
	require.Equal(t, "ok", out["status"])
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/search", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, "http://localhost:5173", res.Header.Get("Access-Control-Allow-Origin"))
}

func TestWarmStartFromSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "index.zst")
	m := metrics.NewCollector("test")

	src := newTestIndex(m)
	docs := make([]models.Document, 0, len(corpus()))
	for _, d := range corpus() {
		docs = append(docs, models.Document{Title: d.Title, URL: d.URL, Source: d.Source, Published: d.Published, Body: d.Text})
	}
	require.Equal(t, 3, src.Ingest(docs))
	require.NoError(t, saveSnapshot(src, path))

	cfg := testConfig()
	cfg.SnapshotPath = path
	dst := newTestIndex(m)
	warmStart(context.Background(), discardLog(), cfg, dst, stubArchive{err: errors.New("must not be called")}, m)
	require.Equal(t, 3, dst.Total())
	require.Equal(t, src.Stats().Generation, dst.Stats().Generation)
}

func TestWarmStartFallsBackToArchive(t *testing.T) {
	m := metrics.NewCollector("test")
	cfg := testConfig()
	cfg.SnapshotPath = filepath.Join(t.TempDir(), "missing.zst")
	cfg.BootstrapLimit = 2

	archive := stubArchive{docs: []models.Document{
		{Title: "a", URL: "https://example.com/a"},
		{Title: "b", URL: "https://example.com/b"},
		{Title: "c", URL: "https://example.com/c"},
	}}
	ix := newTestIndex(m)
	warmStart(context.Background(), discardLog(), cfg, ix, archive, m)
	require.Equal(t, 2, ix.Total())

	failing := newTestIndex(m)
	warmStart(context.Background(), discardLog(), cfg, failing, stubArchive{err: errors.New("es down")}, m)
	require.Zero(t, failing.Total())
}
