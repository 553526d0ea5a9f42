package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/NihalShah4/ai-news-research-recommender/internal/metrics"
)

func TestRebuiltUpdatesGauges(t *testing.T) {
	c := metrics.NewCollector("test")

	c.Rebuilt(5, 20*time.Millisecond, true)
	require.Equal(t, 5.0, testutil.ToFloat64(c.Documents))
	require.Equal(t, 1.0, testutil.ToFloat64(c.MapReady))
	require.Equal(t, 1.0, testutil.ToFloat64(c.Rebuilds))

	c.Rebuilt(2, time.Millisecond, false)
	require.Equal(t, 2.0, testutil.ToFloat64(c.Documents))
	require.Equal(t, 0.0, testutil.ToFloat64(c.MapReady))
	require.Equal(t, 2.0, testutil.ToFloat64(c.Rebuilds))

	c.Reset()
	require.Equal(t, 0.0, testutil.ToFloat64(c.Documents))
}

func TestIngested(t *testing.T) {
	c := metrics.NewCollector("test")
	c.Ingested(4, 3)
	c.Ingested(2, 0)
	require.Equal(t, 6.0, testutil.ToFloat64(c.IngestOffered))
	require.Equal(t, 3.0, testutil.ToFloat64(c.IngestAdded))
}

func TestMiddlewareAndHandler(t *testing.T) {
	c := metrics.NewCollector("test")
	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Get("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Method(http.MethodGet, "/metrics", c.Handler())

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	res, err := http.Get(srv.URL + "/items/42")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, 1.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "/items/{id}", "418")))

	res, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "test_http_requests_total")
	require.Contains(t, string(body), "test_index_documents")
}
