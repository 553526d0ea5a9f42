package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Common contains the Kafka and Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
	KafkaBrokers       []string
	DocumentsTopic     string
}

// Worker holds configuration for the raw feed -> archive worker.
type Worker struct {
	Common
	RawTopic       string
	KafkaConsumer  string
	DedupeCapacity int
	DedupeTTL      time.Duration
	SummaryChars   int
	TitleMaxWords  int
}

// Ranking holds the search boost tunables.
type Ranking struct {
	HalfLifeDays    float64 `yaml:"half_life_days"`
	RecencyStrength float64 `yaml:"recency_boost_strength"`
	TitleStrength   float64 `yaml:"title_boost_strength"`
}

// IndexSettings configures the in-memory index.
type IndexSettings struct {
	MaxFeatures      int    `yaml:"max_features"`
	SnippetSentences int    `yaml:"snippet_sentences"`
	SnippetChars     int    `yaml:"snippet_chars"`
	ScorerBackend    string `yaml:"scorer_backend"`
}

// Embedding configures the OpenAI-compatible embeddings endpoint used by the dense scorer.
type Embedding struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	BatchSize int
}

// API describes the index service configuration.
type API struct {
	Common
	BindAddr            string
	KafkaConsumer       string
	ConsumeDocuments    bool
	IngestBatchSize     int
	IngestFlushInterval time.Duration
	SnapshotPath        string
	BootstrapLimit      int
	CORSOrigins         []string
	DefaultK            int
	MaxK                int
	Ranking             Ranking
	Index               IndexSettings
	Embedding           Embedding
}

// Retention configures the archive cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

// fileOverlay is the optional YAML file referenced by CONFIG_FILE.
type fileOverlay struct {
	Ranking *Ranking       `yaml:"ranking"`
	Index   *IndexSettings `yaml:"index"`
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "documents"),
		KafkaBrokers:       splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		DocumentsTopic:     getEnv("KAFKA_DOCUMENTS_TOPIC", "documents"),
	}
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	c := &Worker{
		Common:         loadCommon(),
		RawTopic:       getEnv("KAFKA_RAW_TOPIC", "feed_raw"),
		KafkaConsumer:  getEnv("KAFKA_CONSUMER_GROUP", "feed-worker"),
		DedupeCapacity: getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:      getDuration("WORKER_DEDUPE_TTL", "24h"),
		SummaryChars:   getInt("WORKER_SUMMARY_CHARS", 320),
		TitleMaxWords:  getInt("WORKER_TITLE_MAX_WORDS", 12),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if c.SummaryChars <= 0 {
		return nil, fmt.Errorf("WORKER_SUMMARY_CHARS must be positive")
	}

	return c, nil
}

// LoadAPI builds an API config from defaults, the optional CONFIG_FILE YAML
// overlay and environment variables, in increasing precedence.
func LoadAPI() (*API, error) {
	c := &API{
		Common:              loadCommon(),
		BindAddr:            getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		KafkaConsumer:       getEnv("KAFKA_CONSUMER_GROUP", "index-api"),
		ConsumeDocuments:    getBool("API_CONSUME_DOCUMENTS", true),
		IngestBatchSize:     getInt("INGEST_BATCH_SIZE", 50),
		IngestFlushInterval: getDuration("INGEST_FLUSH_INTERVAL", "5s"),
		SnapshotPath:        getEnv("SNAPSHOT_PATH", ""),
		BootstrapLimit:      getInt("BOOTSTRAP_LIMIT", 5000),
		CORSOrigins:         splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")),
		DefaultK:            getInt("API_DEFAULT_K", 8),
		MaxK:                getInt("API_MAX_K", 200),
		Ranking:             Ranking{HalfLifeDays: 14, RecencyStrength: 0.25, TitleStrength: 0.35},
		Index: IndexSettings{
			MaxFeatures:      50000,
			SnippetSentences: 2,
			SnippetChars:     320,
			ScorerBackend:    "lexical",
		},
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := applyFile(c, path); err != nil {
			return nil, err
		}
	}

	c.Ranking.HalfLifeDays = getFloat("RECENCY_HALF_LIFE_DAYS", c.Ranking.HalfLifeDays)
	c.Ranking.RecencyStrength = getFloat("RECENCY_BOOST_STRENGTH", c.Ranking.RecencyStrength)
	c.Ranking.TitleStrength = getFloat("TITLE_BOOST_STRENGTH", c.Ranking.TitleStrength)
	c.Index.MaxFeatures = getInt("INDEX_MAX_FEATURES", c.Index.MaxFeatures)
	c.Index.SnippetSentences = getInt("SNIPPET_MAX_SENTENCES", c.Index.SnippetSentences)
	c.Index.SnippetChars = getInt("SNIPPET_MAX_CHARS", c.Index.SnippetChars)
	c.Index.ScorerBackend = strings.ToLower(getEnv("SCORER_BACKEND", c.Index.ScorerBackend))
	c.Embedding = Embedding{
		BaseURL:   getEnv("EMBEDDING_BASE_URL", "https://api.openai.com/v1"),
		APIKeyEnv: getEnv("EMBEDDING_API_KEY_ENV", "OPENAI_API_KEY"),
		Model:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		Timeout:   getDuration("EMBEDDING_TIMEOUT", "30s"),
		BatchSize: getInt("EMBEDDING_BATCH_SIZE", 64),
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *API) validate() error {
	if c.DefaultK <= 0 {
		return fmt.Errorf("API_DEFAULT_K must be positive")
	}
	if c.MaxK <= 0 {
		return fmt.Errorf("API_MAX_K must be positive")
	}
	if c.DefaultK > c.MaxK {
		return fmt.Errorf("API_DEFAULT_K cannot exceed API_MAX_K")
	}
	if c.IngestBatchSize <= 0 {
		return fmt.Errorf("INGEST_BATCH_SIZE must be positive")
	}
	if c.IngestFlushInterval <= 0 {
		return fmt.Errorf("INGEST_FLUSH_INTERVAL must be positive")
	}
	if c.Ranking.HalfLifeDays <= 0 {
		return fmt.Errorf("RECENCY_HALF_LIFE_DAYS must be positive")
	}
	if !unit(c.Ranking.RecencyStrength) {
		return fmt.Errorf("RECENCY_BOOST_STRENGTH must be within [0,1]")
	}
	if !unit(c.Ranking.TitleStrength) {
		return fmt.Errorf("TITLE_BOOST_STRENGTH must be within [0,1]")
	}
	if c.Index.MaxFeatures <= 0 {
		return fmt.Errorf("INDEX_MAX_FEATURES must be positive")
	}
	switch c.Index.ScorerBackend {
	case "lexical", "dense":
	default:
		return fmt.Errorf("SCORER_BACKEND must be lexical or dense, got %q", c.Index.ScorerBackend)
	}
	return nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	c := &Retention{
		Common:    loadCommon(),
		Interval:  getDuration("RETENTION_CRON", "24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "2160h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_CRON must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

func applyFile(c *API, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("CONFIG_FILE %s does not exist", path)
		}
		return fmt.Errorf("read config file: %w", err)
	}

	var overlay fileOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if r := overlay.Ranking; r != nil {
		if r.HalfLifeDays != 0 {
			c.Ranking.HalfLifeDays = r.HalfLifeDays
		}
		if r.RecencyStrength != 0 {
			c.Ranking.RecencyStrength = r.RecencyStrength
		}
		if r.TitleStrength != 0 {
			c.Ranking.TitleStrength = r.TitleStrength
		}
	}
	if ix := overlay.Index; ix != nil {
		if ix.MaxFeatures != 0 {
			c.Index.MaxFeatures = ix.MaxFeatures
		}
		if ix.SnippetSentences != 0 {
			c.Index.SnippetSentences = ix.SnippetSentences
		}
		if ix.SnippetChars != 0 {
			c.Index.SnippetChars = ix.SnippetChars
		}
		if ix.ScorerBackend != "" {
			c.Index.ScorerBackend = strings.ToLower(ix.ScorerBackend)
		}
	}
	return nil
}

func unit(v float64) bool { return v >= 0 && v <= 1 }

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
