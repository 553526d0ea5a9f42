package elasticsearch_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NihalShah4/ai-news-research-recommender/internal/elasticsearch"
	"github.com/NihalShah4/ai-news-research-recommender/internal/models"
	"github.com/NihalShah4/ai-news-research-recommender/internal/processing"
)

// fakeES stores indexed sources in arrival order and serves them newest first.
type fakeES struct {
	mu       sync.Mutex
	ids      []string
	sources  []map[string]any
	deletes  []int64
	searches []map[string]any
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	f.mu.Lock()
	defer f.mu.Unlock()

	body, _ := io.ReadAll(r.Body)
	switch {
	case strings.Contains(r.URL.Path, "/_doc/"):
		var src map[string]any
		_ = json.Unmarshal(body, &src)
		f.ids = append(f.ids, r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:])
		f.sources = append(f.sources, src)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	case strings.HasSuffix(r.URL.Path, "/_search"):
		var req map[string]any
		_ = json.Unmarshal(body, &req)
		f.searches = append(f.searches, req)
		size := int(req["size"].(float64))
		hits := make([]map[string]any, 0, size)
		for i := len(f.sources) - 1; i >= 0 && len(hits) < size; i-- {
			hits = append(hits, map[string]any{"_source": f.sources[i]})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"hits": map[string]any{"hits": hits}})
	case strings.HasSuffix(r.URL.Path, "/_delete_by_query"):
		deleted := int64(0)
		if len(f.deletes) > 0 {
			deleted = f.deletes[0]
			f.deletes = f.deletes[1:]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"deleted": deleted})
	default:
		_, _ = w.Write([]byte(`{"status":"green"}`))
	}
}

func newClient(t *testing.T, fake *fakeES) *elasticsearch.Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := elasticsearch.New(srv.URL, "documents", nil)
	require.NoError(t, err)
	return client
}

func TestIndexAndRecentDocuments(t *testing.T) {
	fake := &fakeES{}
	client := newClient(t, fake)
	ctx := context.Background()

	docs := []models.Document{
		{Title: "First", URL: "https://example.com/1", Source: "arxiv", Published: "2025-01-10", Body: "one"},
		{Title: "Second", URL: "https://example.com/2", Source: "hn", Body: "two"},
		{Title: "Third", URL: " https://example.com/3 ", Source: "hn", Body: "three", Summary: "s"},
	}
	for _, d := range docs {
		require.NoError(t, client.IndexDocument(ctx, d))
	}

	require.Equal(t, processing.BuildDocumentID("https://example.com/1"), fake.ids[0])
	require.Equal(t, "2025-01-10T00:00:00Z", fake.sources[0]["published_at"])
	require.NotContains(t, fake.sources[1], "published_at")
	require.Equal(t, "https://example.com/3", fake.sources[2]["url"])

	got, err := client.RecentDocuments(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Second", got[0].Title)
	require.Equal(t, "Third", got[1].Title)
	require.Equal(t, "three", got[1].Body)
	require.Equal(t, "s", got[1].Summary)
}

func TestRecentDocumentsClampsLimit(t *testing.T) {
	fake := &fakeES{}
	client := newClient(t, fake)

	_, err := client.RecentDocuments(context.Background(), 50_000)
	require.NoError(t, err)
	require.Len(t, fake.searches, 1)
	require.EqualValues(t, 10_000, fake.searches[0]["size"])

	got, err := client.RecentDocuments(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, got)
	require.Len(t, fake.searches, 1)
}

func TestDeleteOlderThanLoopsUntilShortBatch(t *testing.T) {
	fake := &fakeES{deletes: []int64{10, 10, 3}}
	client := newClient(t, fake)

	deleted, err := client.DeleteOlderThan(context.Background(), 24*time.Hour, 10)
	require.NoError(t, err)
	require.EqualValues(t, 23, deleted)
	require.Empty(t, fake.deletes)
}

func TestHealth(t *testing.T) {
	client := newClient(t, &fakeES{})
	require.NoError(t, client.Health(context.Background()))
}

func TestConnectPingsCluster(t *testing.T) {
	srv := httptest.NewServer(&fakeES{})
	t.Cleanup(srv.Close)

	client, err := elasticsearch.Connect(context.Background(), srv.URL, "documents", nil, 3)
	require.NoError(t, err)
	require.NotNil(t, client)
}

func TestConnectStopsOnCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := elasticsearch.Connect(ctx, srv.URL, "documents", nil, 5)
	require.Error(t, err)
}
