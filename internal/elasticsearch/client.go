// Package elasticsearch archives processed documents so the index service can
// bootstrap its corpus on start and the retention job can prune old entries.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/NihalShah4/ai-news-research-recommender/internal/logger"
	"github.com/NihalShah4/ai-news-research-recommender/internal/models"
	"github.com/NihalShah4/ai-news-research-recommender/internal/processing"
)

// maxResultWindow is the default index.max_result_window of Elasticsearch.
const maxResultWindow = 10_000

// Client wraps go-elasticsearch with helpers tailored to the document archive.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
	now   func() time.Time
}

// record is the archived shape of a document.
type record struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Source      string     `json:"source"`
	Published   string     `json:"published,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Text        string     `json:"text,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	IngestedAt  time.Time  `json:"ingested_at"`
}

// New instantiates the Elasticsearch client.
func New(addr, index string, log *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if log == nil {
		log = logger.Discard()
	}

	return &Client{es: es, index: index, log: log, now: time.Now}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// IndexDocument archives doc keyed by the hash of its URL, so re-indexing the
// same URL overwrites the earlier copy.
func (c *Client) IndexDocument(ctx context.Context, doc models.Document) error {
	rec := record{
		ID:         processing.BuildDocumentID(doc.URL),
		Title:      doc.Title,
		URL:        strings.TrimSpace(doc.URL),
		Source:     doc.Source,
		Published:  doc.Published,
		Text:       doc.Body,
		Summary:    doc.Summary,
		IngestedAt: c.now().UTC(),
	}
	if ts, ok := processing.ParseTimestamp(doc.Published); ok {
		rec.PublishedAt = &ts
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal doc: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: rec.ID,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index doc: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index doc failed: %s", strings.TrimSpace(string(body)))
	}

	return nil
}

// RecentDocuments returns up to limit archived documents, most recently
// ingested last, so replaying them preserves arrival order.
func (c *Client) RecentDocuments(ctx context.Context, limit int) ([]models.Document, error) {
	if limit <= 0 {
		return nil, nil
	}
	limit = min(limit, maxResultWindow)

	body := map[string]any{
		"size":  limit,
		"query": map[string]any{"match_all": map[string]any{}},
		"sort": []map[string]any{
			{"ingested_at": map[string]any{"order": "desc", "unmapped_type": "date"}},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
		c.es.Search.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source record `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	docs := make([]models.Document, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		r := hit.Source
		docs = append(docs, models.Document{
			Title:     r.Title,
			URL:       r.URL,
			Source:    r.Source,
			Published: r.Published,
			Body:      r.Text,
			Summary:   r.Summary,
		})
	}
	slices.Reverse(docs)

	c.log.Debug("loaded archived documents", slog.Int("count", len(docs)))
	return docs, nil
}

// DeleteOlderThan removes documents ingested more than maxAge ago using batched delete-by-query.
// It loops until a batch returns fewer deleted documents than the requested batchSize.
func (c *Client) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	cutoff := c.now().Add(-maxAge).UTC().Format(time.RFC3339)
	totalDeleted := int64(0)

	for {
		body := map[string]any{
			"max_docs": batchSize,
			"query": map[string]any{
				"range": map[string]any{
					"ingested_at": map[string]any{
						"lte": cutoff,
					},
				},
			},
		}

		payload, err := json.Marshal(body)
		if err != nil {
			return totalDeleted, fmt.Errorf("marshal delete body: %w", err)
		}

		res, err := c.es.DeleteByQuery(
			[]string{c.index},
			bytes.NewReader(payload),
			c.es.DeleteByQuery.WithContext(ctx),
			c.es.DeleteByQuery.WithWaitForCompletion(true),
			c.es.DeleteByQuery.WithConflicts("proceed"),
			c.es.DeleteByQuery.WithScrollSize(batchSize),
		)
		if err != nil {
			return totalDeleted, fmt.Errorf("delete by query: %w", err)
		}

		if res.IsError() {
			data, _ := io.ReadAll(res.Body)
			res.Body.Close()
			return totalDeleted, fmt.Errorf("delete by query failed: %s", strings.TrimSpace(string(data)))
		}

		var parsed struct {
			Deleted int64 `json:"deleted"`
		}
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			res.Body.Close()
			return totalDeleted, fmt.Errorf("decode delete response: %w", err)
		}
		res.Body.Close()

		totalDeleted += parsed.Deleted

		if parsed.Deleted < int64(batchSize) {
			break
		}
	}

	return totalDeleted, nil
}

// Health pings Elasticsearch to ensure connectivity.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}

// Connect creates a client and pings it with exponential backoff until the
// cluster answers, attempts run out, or ctx is done.
func Connect(ctx context.Context, addr, index string, log *slog.Logger, attempts int) (*Client, error) {
	if log == nil {
		log = logger.Discard()
	}
	client, err := New(addr, index, log)
	if err != nil {
		return nil, err
	}

	retryDelay := 2 * time.Second
	for i := range max(attempts, 1) {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pingErr := client.Ping(pingCtx)
		cancel()
		if pingErr == nil {
			return client, nil
		}
		log.Warn("elasticsearch ping failed, retrying",
			slog.Any("err", pingErr),
			slog.Int("attempt", i+1),
			slog.Int("max_retries", attempts),
			slog.Duration("retry_in", retryDelay),
		)

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		retryDelay = min(retryDelay*2, 30*time.Second)
	}
	return nil, fmt.Errorf("connect elasticsearch at %s: no answer after %d attempts", addr, attempts)
}
