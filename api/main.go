package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"

	"github.com/NihalShah4/ai-news-research-recommender/internal/config"
	"github.com/NihalShah4/ai-news-research-recommender/internal/elasticsearch"
	"github.com/NihalShah4/ai-news-research-recommender/internal/embedding/openai"
	"github.com/NihalShah4/ai-news-research-recommender/internal/index"
	"github.com/NihalShah4/ai-news-research-recommender/internal/ingest"
	"github.com/NihalShah4/ai-news-research-recommender/internal/logger"
	"github.com/NihalShah4/ai-news-research-recommender/internal/metrics"
	"github.com/NihalShah4/ai-news-research-recommender/internal/models"
)

type archiveReader interface {
	RecentDocuments(ctx context.Context, limit int) ([]models.Document, error)
}

func main() {
	_ = godotenv.Load()

	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	collector := metrics.NewCollector("docindex")
	ix := index.New(indexConfig(cfg, collector, log))

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	warmStart(ctx, log, cfg, ix, esClient, collector)

	if cfg.ConsumeDocuments {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.KafkaBrokers,
			Topic:          cfg.DocumentsTopic,
			GroupID:        cfg.KafkaConsumer,
			MinBytes:       1e3,
			MaxBytes:       10e6,
			CommitInterval: 0,
		})
		defer reader.Close()

		consumer := ingest.NewConsumer(reader, ix, ingest.Config{
			BatchSize:     cfg.IngestBatchSize,
			FlushInterval: cfg.IngestFlushInterval,
			OnFlush:       collector.Ingested,
		}, log)
		go func() {
			log.Info("document consumer starting",
				slog.String("topic", cfg.DocumentsTopic),
				slog.String("group", cfg.KafkaConsumer),
			)
			_ = consumer.Run(ctx)
		}()
	}

	srv := newServer(log, cfg, ix, esClient, collector)
	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}

	if cfg.SnapshotPath != "" {
		if err := saveSnapshot(ix, cfg.SnapshotPath); err != nil {
			log.Error("save snapshot", slog.Any("err", err))
		} else {
			log.Info("snapshot saved", slog.String("path", cfg.SnapshotPath), slog.Int("total", ix.Total()))
		}
	}
}

func indexConfig(cfg *config.API, collector *metrics.Collector, log *slog.Logger) index.Config {
	ic := index.Config{
		MaxFeatures: cfg.Index.MaxFeatures,
		Ranking: index.Ranking{
			HalfLifeDays:    cfg.Ranking.HalfLifeDays,
			RecencyStrength: cfg.Ranking.RecencyStrength,
			TitleStrength:   cfg.Ranking.TitleStrength,
		},
		SnippetSentences: cfg.Index.SnippetSentences,
		SnippetChars:     cfg.Index.SnippetChars,
		Observer:         collector,
		Logger:           log,
	}

	if cfg.Index.ScorerBackend == "dense" {
		embedder, err := openai.NewClient(openai.Config{
			BaseURL:   cfg.Embedding.BaseURL,
			APIKeyEnv: cfg.Embedding.APIKeyEnv,
			Model:     cfg.Embedding.Model,
			Timeout:   cfg.Embedding.Timeout,
			BatchSize: cfg.Embedding.BatchSize,
		})
		if err != nil {
			log.Warn("dense scorer unavailable, using lexical", slog.Any("err", err))
		} else {
			ic.Scorer = index.NewDenseBuilder(embedder)
		}
	}
	return ic
}

// warmStart restores the snapshot file when present, otherwise replays the
// most recent archived documents.
func warmStart(ctx context.Context, log *slog.Logger, cfg *config.API, ix *index.Index, archive archiveReader, collector *metrics.Collector) {
	if cfg.SnapshotPath != "" {
		err := loadSnapshot(ix, cfg.SnapshotPath)
		switch {
		case err == nil:
			st := ix.Stats()
			collector.Rebuilt(st.TotalIndexed, 0, st.MapReady)
			log.Info("snapshot loaded", slog.String("path", cfg.SnapshotPath), slog.Int("total", st.TotalIndexed))
			return
		case errors.Is(err, os.ErrNotExist):
			log.Info("no snapshot found", slog.String("path", cfg.SnapshotPath))
		default:
			log.Warn("snapshot unreadable, bootstrapping from archive", slog.Any("err", err))
		}
	}

	if cfg.BootstrapLimit <= 0 {
		return
	}
	bootCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	docs, err := archive.RecentDocuments(bootCtx, cfg.BootstrapLimit)
	if err != nil {
		log.Warn("archive bootstrap failed, starting empty", slog.Any("err", err))
		return
	}
	added := ix.Ingest(docs)
	collector.Ingested(len(docs), added)
	log.Info("bootstrapped from archive", slog.Int("added", added))
}

func loadSnapshot(ix *index.Index, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ix.Load(f)
}

// saveSnapshot writes to a temp file and renames it over path.
func saveSnapshot(ix *index.Index, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := ix.Save(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}
