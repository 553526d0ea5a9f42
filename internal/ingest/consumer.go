// Package ingest feeds processed documents from Kafka into the index in batches.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/NihalShah4/ai-news-research-recommender/internal/logger"
	"github.com/NihalShah4/ai-news-research-recommender/internal/models"
)

// Reader is the subset of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Sink receives decoded batches and reports how many documents were new.
type Sink interface {
	Ingest(docs []models.Document) int
}

// Config tunes batching.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	// OnFlush is called after every flushed batch; optional.
	OnFlush func(offered, added int)
}

// Consumer batches messages from a Reader into a Sink and commits offsets
// only after the batch was handed to the sink.
type Consumer struct {
	reader Reader
	sink   Sink
	cfg    Config
	log    *slog.Logger
}

// NewConsumer wires a consumer.
func NewConsumer(reader Reader, sink Sink, cfg Config, log *slog.Logger) *Consumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Consumer{reader: reader, sink: sink, cfg: cfg, log: log}
}

// Run consumes until ctx is done. Pending messages are flushed before return.
func (c *Consumer) Run(ctx context.Context) error {
	msgs := make(chan kafka.Message, c.cfg.BatchSize)
	go c.fetch(ctx, msgs)

	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	pending := make([]kafka.Message, 0, c.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			c.flush(drainCtx, pending)
			cancel()
			return nil
		case msg := <-msgs:
			pending = append(pending, msg)
			if len(pending) >= c.cfg.BatchSize {
				c.flush(ctx, pending)
				pending = pending[:0]
			}
		case <-ticker.C:
			if len(pending) > 0 {
				c.flush(ctx, pending)
				pending = pending[:0]
			}
		}
	}
}

func (c *Consumer) fetch(ctx context.Context, out chan<- kafka.Message) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			c.log.Error("fetch message", slog.Any("err", err))
			select {
			case <-time.After(time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}

		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) flush(ctx context.Context, batch []kafka.Message) {
	if len(batch) == 0 {
		return
	}

	docs := make([]models.Document, 0, len(batch))
	for _, msg := range batch {
		var doc models.Document
		if err := json.Unmarshal(msg.Value, &doc); err != nil {
			c.log.Warn("skip undecodable document",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)
			continue
		}
		docs = append(docs, doc)
	}

	added := 0
	if len(docs) > 0 {
		added = c.sink.Ingest(docs)
	}
	if c.cfg.OnFlush != nil {
		c.cfg.OnFlush(len(docs), added)
	}

	if err := c.reader.CommitMessages(ctx, batch...); err != nil {
		c.log.Error("commit batch", slog.Any("err", err), slog.Int("size", len(batch)))
		return
	}
	c.log.Info("ingested batch", slog.Int("messages", len(batch)), slog.Int("added", added))
}
