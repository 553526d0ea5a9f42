package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"

	"github.com/NihalShah4/ai-news-research-recommender/internal/config"
	"github.com/NihalShah4/ai-news-research-recommender/internal/dedupe"
	"github.com/NihalShah4/ai-news-research-recommender/internal/elasticsearch"
	"github.com/NihalShah4/ai-news-research-recommender/internal/logger"
	"github.com/NihalShah4/ai-news-research-recommender/internal/models"
	"github.com/NihalShah4/ai-news-research-recommender/internal/processing"
)

// rawItem is a feed entry as published by the collectors.
type rawItem struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Link      string `json:"link"`
	Source    string `json:"source"`
	Published string `json:"published"`
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
	Summary   string `json:"summary"`
}

type archiver interface {
	IndexDocument(ctx context.Context, doc models.Document) error
}

type publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

var errEmptyPayload = errors.New("empty payload")

func main() {
	_ = godotenv.Load()

	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	esClient, err := elasticsearch.Connect(ctx, cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log, 10)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	cache := dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.RawTopic,
		GroupID:        cfg.KafkaConsumer,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit only
	})
	defer reader.Close()

	docsWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.DocumentsTopic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	defer docsWriter.Close()

	dlqTopic := cfg.RawTopic + "_dlq"
	dlqWriter := &kafka.Writer{
		Addr:        kafka.TCP(cfg.KafkaBrokers...),
		Topic:       dlqTopic,
		MaxAttempts: 3,
	}
	defer dlqWriter.Close()

	w := &worker{log: log, cfg: cfg, cache: cache, archive: esClient, docs: docsWriter, dlq: dlqWriter}

	log.Info("worker started",
		slog.String("topic", cfg.RawTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("documents_topic", cfg.DocumentsTopic),
		slog.String("dlq_topic", dlqTopic),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := w.processMessage(ctx, msg); err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)
			// Commit only once the DLQ holds the message; otherwise reprocess on restart.
			if !w.sendToDLQ(ctx, msg, err) {
				log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
					slog.Int("partition", msg.Partition),
					slog.Int64("offset", msg.Offset),
				)
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

type worker struct {
	log     *slog.Logger
	cfg     *config.Worker
	cache   *dedupe.Cache
	archive archiver
	docs    publisher
	dlq     publisher
	backoff func(attempt int) time.Duration
}

// processMessage normalizes one raw item, archives it and publishes it for
// the index service. Items whose URL was handled recently are dropped.
func (w *worker) processMessage(ctx context.Context, msg kafka.Message) error {
	var payload rawItem
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return fmt.Errorf("decode raw item: %w", err)
	}

	doc, err := w.normalize(payload)
	if err != nil {
		return err
	}

	if w.cache.Seen(doc.URL) {
		w.log.Debug("duplicate document", slog.String("url", doc.URL))
		return nil
	}

	if err := w.archive.IndexDocument(ctx, doc); err != nil {
		return fmt.Errorf("archive document: %w", err)
	}

	value, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	out := kafka.Message{
		Key:   []byte(doc.URL),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(uuid.NewString())},
			{Key: "source", Value: []byte(doc.Source)},
		},
	}
	if err := w.docs.WriteMessages(ctx, out); err != nil {
		return fmt.Errorf("publish document: %w", err)
	}

	w.cache.Mark(doc.URL)
	w.log.Info("processed document", slog.String("url", doc.URL), slog.String("title", doc.Title))
	return nil
}

func (w *worker) normalize(p rawItem) (models.Document, error) {
	url := strings.TrimSpace(p.URL)
	if url == "" {
		url = strings.TrimSpace(p.Link)
	}
	text := processing.CleanText(p.Text)
	title := processing.CleanText(p.Title)

	if url == "" {
		if title == "" && text == "" {
			return models.Document{}, errEmptyPayload
		}
		return models.Document{}, errors.New("missing url")
	}
	if title == "" {
		title = processing.GenerateTitleFromText(text, w.cfg.TitleMaxWords)
	}
	if title == "" {
		return models.Document{}, errEmptyPayload
	}

	source := strings.TrimSpace(p.Source)
	if source == "" {
		source = "unknown"
	}

	published := strings.TrimSpace(p.Published)
	if published == "" {
		published = strings.TrimSpace(p.Timestamp)
	}
	if ts, ok := processing.ParseTimestamp(published); ok {
		published = ts.Format(time.RFC3339)
	}

	summary := processing.ShortSummary(p.Summary, w.cfg.SummaryChars)
	if summary == "" {
		summary = processing.ShortSummary(text, w.cfg.SummaryChars)
	}

	return models.Document{
		Title:     title,
		URL:       url,
		Source:    source,
		Published: published,
		Body:      text,
		Summary:   summary,
	}, nil
}

// sendToDLQ writes msg with error context to the dead letter topic, retrying
// with exponential backoff. It reports whether the write succeeded.
func (w *worker) sendToDLQ(ctx context.Context, msg kafka.Message, cause error) bool {
	backoff := w.backoff
	if backoff == nil {
		backoff = func(attempt int) time.Duration { return time.Duration(1<<uint(attempt)) * time.Second }
	}

	headers := make([]kafka.Header, 0, len(msg.Headers)+4)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
		kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
		kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
	)
	dlqMsg := kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers}

	for attempt := range 5 {
		err := w.dlq.WriteMessages(ctx, dlqMsg)
		if err == nil {
			w.log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}

		wait := backoff(attempt)
		w.log.Warn("DLQ write failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", wait),
		)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			w.log.Info("context canceled during DLQ retry")
			return false
		}
	}
	return false
}
