// Package metrics exposes Prometheus metrics for the index service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics of one process on a private registry.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	Documents       prometheus.Gauge
	MapReady        prometheus.Gauge
	Rebuilds        prometheus.Counter
	RebuildDuration prometheus.Histogram
	IngestOffered   prometheus.Counter
	IngestAdded     prometheus.Counter
}

// NewCollector creates a collector with metrics under namespace.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Documents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_documents",
			Help:      "Documents in the current index snapshot",
		}),
		MapReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_map_ready",
			Help:      "1 when the current snapshot has a 2D projection",
		}),
		Rebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_rebuilds_total",
			Help:      "Total number of snapshot rebuilds",
		}),
		RebuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_rebuild_duration_seconds",
			Help:      "Snapshot rebuild duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		IngestOffered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_offered_total",
			Help:      "Documents offered for ingestion",
		}),
		IngestAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_added_total",
			Help:      "Documents added to the index after deduplication",
		}),
	}

	c.registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.Documents,
		c.MapReady,
		c.Rebuilds,
		c.RebuildDuration,
		c.IngestOffered,
		c.IngestAdded,
	)
	return c
}

// Rebuilt records a snapshot rebuild.
func (c *Collector) Rebuilt(docs int, took time.Duration, mapReady bool) {
	c.Rebuilds.Inc()
	c.RebuildDuration.Observe(took.Seconds())
	c.Documents.Set(float64(docs))
	if mapReady {
		c.MapReady.Set(1)
	} else {
		c.MapReady.Set(0)
	}
}

// Reset records that the corpus was dropped.
func (c *Collector) Reset() {
	c.Documents.Set(0)
	c.MapReady.Set(0)
}

// Ingested records one ingestion call.
func (c *Collector) Ingested(offered, added int) {
	c.IngestOffered.Add(float64(offered))
	c.IngestAdded.Add(float64(added))
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Middleware counts requests by chi route pattern.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
