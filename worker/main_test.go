package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/NihalShah4/ai-news-research-recommender/internal/config"
	"github.com/NihalShah4/ai-news-research-recommender/internal/dedupe"
	"github.com/NihalShah4/ai-news-research-recommender/internal/logger"
	"github.com/NihalShah4/ai-news-research-recommender/internal/models"
)

type stubArchive struct {
	docs []models.Document
	err  error
}

func (s *stubArchive) IndexDocument(_ context.Context, doc models.Document) error {
	if s.err != nil {
		return s.err
	}
	s.docs = append(s.docs, doc)
	return nil
}

type stubWriter struct {
	msgs  []kafka.Message
	fails int
}

func (s *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if s.fails > 0 {
		s.fails--
		return errors.New("broker unavailable")
	}
	s.msgs = append(s.msgs, msgs...)
	return nil
}

func newTestWorker() (*worker, *stubArchive, *stubWriter, *stubWriter) {
	archive := &stubArchive{}
	docs := &stubWriter{}
	dlq := &stubWriter{}
	w := &worker{
		log:     logger.Discard(),
		cfg:     &config.Worker{SummaryChars: 320, TitleMaxWords: 10},
		cache:   dedupe.NewCache(100, time.Hour),
		archive: archive,
		docs:    docs,
		dlq:     dlq,
		backoff: func(int) time.Duration { return 0 },
	}
	return w, archive, docs, dlq
}

func rawMessage(t *testing.T, item rawItem) kafka.Message {
	t.Helper()
	data, err := json.Marshal(item)
	require.NoError(t, err)
	return kafka.Message{Value: data}
}

func TestProcessMessageArchivesAndPublishes(t *testing.T) {
	w, archive, docs, _ := newTestWorker()

	msg := rawMessage(t, rawItem{
		Title:     "Agents &amp; tools",
		Link:      "https://example.com/agents",
		Source:    "arxiv",
		Published: "2025-01-10 08:00:00",
		Text:      "<p>Agent frameworks orchestrate tool calls.</p>",
	})

	require.NoError(t, w.processMessage(context.Background(), msg))
	require.Len(t, archive.docs, 1)
	require.Len(t, docs.msgs, 1)

	doc := archive.docs[0]
	require.Equal(t, "Agents & tools", doc.Title)
	require.Equal(t, "https://example.com/agents", doc.URL)
	require.Equal(t, "arxiv", doc.Source)
	require.Equal(t, "2025-01-10T08:00:00Z", doc.Published)
	require.Equal(t, "Agent frameworks orchestrate tool calls.", doc.Body)
	require.Equal(t, doc.Body, doc.Summary)

	require.Equal(t, []byte(doc.URL), docs.msgs[0].Key)
	var published models.Document
	require.NoError(t, json.Unmarshal(docs.msgs[0].Value, &published))
	require.Equal(t, doc, published)

	require.NoError(t, w.processMessage(context.Background(), msg))
	require.Len(t, archive.docs, 1)
	require.Len(t, docs.msgs, 1)
}

func TestProcessMessageGeneratesTitleWhenMissing(t *testing.T) {
	w, archive, _, _ := newTestWorker()

	msg := rawMessage(t, rawItem{
		URL:  "https://example.com/db",
		Text: "Vector databases index embeddings for retrieval. They are fast.",
	})

	require.NoError(t, w.processMessage(context.Background(), msg))
	require.Len(t, archive.docs, 1)
	require.Equal(t, "Vector databases index embeddings for retrieval", archive.docs[0].Title)
	require.Equal(t, "unknown", archive.docs[0].Source)
	require.Empty(t, archive.docs[0].Published)
}

func TestProcessMessageRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name string
		msg  kafka.Message
	}{
		{name: "not json", msg: kafka.Message{Value: []byte("{")}},
		{name: "empty", msg: rawMessage(t, rawItem{})},
		{name: "missing url", msg: rawMessage(t, rawItem{Title: "t", Text: "body"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, archive, _, _ := newTestWorker()
			require.Error(t, w.processMessage(context.Background(), tt.msg))
			require.Empty(t, archive.docs)
		})
	}
}

func TestProcessMessageArchiveFailureIsRetriable(t *testing.T) {
	w, archive, docs, _ := newTestWorker()
	archive.err = errors.New("es down")

	msg := rawMessage(t, rawItem{Title: "t", URL: "https://example.com/t", Text: "body"})
	require.Error(t, w.processMessage(context.Background(), msg))
	require.Empty(t, docs.msgs)

	archive.err = nil
	require.NoError(t, w.processMessage(context.Background(), msg))
	require.Len(t, docs.msgs, 1)
}

func TestSendToDLQRetries(t *testing.T) {
	w, _, _, dlq := newTestWorker()
	dlq.fails = 2

	msg := kafka.Message{Partition: 3, Offset: 42, Value: []byte("{")}
	require.True(t, w.sendToDLQ(context.Background(), msg, errors.New("boom")))
	require.Len(t, dlq.msgs, 1)

	headers := map[string]string{}
	for _, h := range dlq.msgs[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, "3", headers["original_partition"])
	require.Equal(t, "42", headers["original_offset"])
	require.Equal(t, "boom", headers["error"])
}

func TestSendToDLQGivesUp(t *testing.T) {
	w, _, _, dlq := newTestWorker()
	dlq.fails = 10

	require.False(t, w.sendToDLQ(context.Background(), kafka.Message{}, errors.New("boom")))
	require.Empty(t, dlq.msgs)
}
