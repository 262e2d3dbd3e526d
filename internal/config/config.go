// Package config provides YAML-based configuration for the retrieval core.
// Configuration is loaded with a layered precedence: defaults → YAML file →
// env vars. Environment variables always win, so container deployments can
// override a baked-in config file without editing it.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. CORPUS_CONFIG environment variable
//  3. ~/.corpus/config.yaml
//  4. ./corpus.yaml
//
// If no file is found the system runs entirely from defaults + env vars.
//
// All retrieval scoring constants live in [Tuning] as named, versioned
// parameters. They were tuned empirically against the production corpus and
// must only change together with a bump of [Tuning.Revision]; the pin tests
// in the search and ingestion packages fix the expected outputs for the
// shipped defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Collection names required by the product. A chunk belongs to exactly one
// of these for its lifetime.
const (
	// CollectionDocuments holds chunks from curated, uploaded documents.
	CollectionDocuments = "documents"
	// CollectionLearned holds facts auto-learned from conversations.
	CollectionLearned = "learned"
	// CollectionWebCache holds transient chunks cached from web lookups.
	CollectionWebCache = "webcache"
)

// Config is the top-level configuration structure.
type Config struct {
	// Qdrant configures the vector index backend connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Rerank configures the pairwise relevance model.
	Rerank RerankConfig `yaml:"rerank"`

	// Server configures the HTTP API server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Journal configures the SQLite ingestion journal.
	Journal JournalConfig `yaml:"journal"`

	// Ingest configures chunking and ingestion behaviour.
	Ingest IngestConfig `yaml:"ingest"`

	// Decay configures the background decay sweep for learned knowledge.
	Decay DecayConfig `yaml:"decay"`

	// Normalizer configures locale-aware text normalization.
	Normalizer NormalizerConfig `yaml:"normalizer"`

	// Tuning holds the named retrieval scoring parameters.
	Tuning Tuning `yaml:"tuning"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend: ollama, openai.
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions is the embedding vector size. Must match across a
	// collection's lifetime; changing it requires a re-index.
	Dimensions int `yaml:"dimensions"`
	// Endpoint is the provider API base URL.
	Endpoint string `yaml:"endpoint"`
	// APIKey is the provider API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// RequestsPerSecond throttles embed calls during ingestion so a large
	// document cannot starve interactive queries of provider capacity.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// Burst is the embed-call token-bucket burst size.
	Burst int `yaml:"burst"`
}

// RerankConfig holds pairwise relevance model settings.
type RerankConfig struct {
	// Enabled turns the rerank pass on. When false, or when the model is
	// unreachable at query time, results keep their hybrid order.
	Enabled bool `yaml:"enabled"`
	// Endpoint is the rerank API base URL.
	Endpoint string `yaml:"endpoint"`
	// Model is the rerank model name.
	Model string `yaml:"model"`
	// APIKey is the rerank API key. Prefer env var RERANK_API_KEY.
	APIKey string `yaml:"api_key"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var CORPUS_API_KEY.
	APIKey string `yaml:"api_key"`
	// RateLimit is the sustained request rate allowed per client IP.
	RateLimit float64 `yaml:"rate_limit"`
	// RateBurst is the per-IP burst size.
	RateBurst int `yaml:"rate_burst"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// JournalConfig holds ingestion journal settings.
type JournalConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable the
	// journal entirely (not recommended outside tests).
	DBPath string `yaml:"db_path"`
}

// IngestConfig holds chunking and ingestion settings.
type IngestConfig struct {
	// ChunkSize is the target chunk length in characters.
	ChunkSize int `yaml:"chunk_size"`
	// ChunkOverlap is the overlap between consecutive chunks in characters.
	ChunkOverlap int `yaml:"chunk_overlap"`
	// ContextBudgetTokens caps the total estimated token count of the
	// candidate list handed to the downstream generator.
	ContextBudgetTokens int `yaml:"context_budget_tokens"`
}

// DecayConfig holds decay sweep settings.
type DecayConfig struct {
	// Enabled turns the periodic sweep on.
	Enabled bool `yaml:"enabled"`
	// Interval is the time between sweeps.
	Interval time.Duration `yaml:"interval"`
}

// NormalizerConfig holds locale and dictionary settings for text
// normalization. Stopwords are data, not code: deployments extend or replace
// the list without recompiling.
type NormalizerConfig struct {
	// Locale is the BCP 47 tag used for casefolding (default "tr").
	// Turkish needs locale-aware folding: İ↔i and I↔ı do not round-trip
	// under naive ASCII case mapping.
	Locale string `yaml:"locale"`
	// Stopwords are filtered out before term extraction. When empty the
	// built-in Turkish + English query-word list is used.
	Stopwords []string `yaml:"stopwords"`
}

// Tuning holds every scoring constant of the retrieval pipeline as a named
// parameter. The values shipped as defaults are the production-tuned set.
type Tuning struct {
	// Revision identifies this parameter set in telemetry and logs.
	Revision string `yaml:"revision"`

	// SemanticDivisor maps raw vector distance to a 0–1 semantic score via
	// max(0, 1 - distance/divisor). 8.0 keeps distances in the 1.0–4.0
	// range meaningfully above zero instead of collapsing them.
	SemanticDivisor float64 `yaml:"semantic_divisor"`
	// LearnedSemanticDivisor is the divisor for the learned collection,
	// whose embedding space is typically tighter.
	LearnedSemanticDivisor float64 `yaml:"learned_semantic_divisor"`

	// SemanticWeight and KeywordWeight blend the hybrid score when no
	// literal keyword match was found.
	SemanticWeight float64 `yaml:"semantic_weight"`
	KeywordWeight  float64 `yaml:"keyword_weight"`

	// MatchedKeywordWeight and MatchedSemanticWeight replace the blend when
	// keyword_match is set, so a literal match is not out-voted by a vague
	// vector neighbour.
	MatchedKeywordWeight  float64 `yaml:"matched_keyword_weight"`
	MatchedSemanticWeight float64 `yaml:"matched_semantic_weight"`

	// MultiEntityBonus is added to the keyword score when two or more
	// distinct query terms co-occur in one chunk.
	MultiEntityBonus float64 `yaml:"multi_entity_bonus"`

	// DedupThreshold is the vector distance below which an incoming chunk
	// is considered a duplicate of an existing one and skipped at write time.
	DedupThreshold float64 `yaml:"dedup_threshold"`

	// QualityThreshold rejects auto-learned chunks scoring below it (0–1).
	QualityThreshold float64 `yaml:"quality_threshold"`

	// LearnedOriginPenalty is the permanent multiplicative penalty applied
	// at query time to auto-learned chunks.
	LearnedOriginPenalty float64 `yaml:"learned_origin_penalty"`

	// DecayRatePerYear reduces a learned chunk's decay weight by this
	// fraction per elapsed year.
	DecayRatePerYear float64 `yaml:"decay_rate_per_year"`
	// DecayFloor is the minimum decay weight; stale facts fade but are
	// never automatically discarded.
	DecayFloor float64 `yaml:"decay_floor"`

	// PoolPerCollection is the oversized vector candidate pool fetched per
	// targeted collection, so one large source cannot crowd out smaller
	// ones before scoring runs.
	PoolPerCollection int `yaml:"pool_per_collection"`

	// RerankWeight and HybridWeight blend the final score after reranking.
	RerankWeight float64 `yaml:"rerank_weight"`
	HybridWeight float64 `yaml:"hybrid_weight"`
}

// Default returns the fully-populated default configuration.
func Default() *Config {
	return &Config{
		Qdrant: QdrantConfig{
			Host: "localhost",
			Port: 6334,
		},
		Embedding: EmbeddingConfig{
			Provider:          "ollama",
			Model:             "nomic-embed-text",
			Dimensions:        768,
			Endpoint:          "http://localhost:11434",
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Rerank: RerankConfig{
			Enabled: false,
			Model:   "bge-reranker-v2-m3",
		},
		Server: ServerConfig{
			Host:      "127.0.0.1",
			Port:      8080,
			RateLimit: 10,
			RateBurst: 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Journal: JournalConfig{},
		Ingest: IngestConfig{
			ChunkSize:           2000,
			ChunkOverlap:        300,
			ContextBudgetTokens: 6000,
		},
		Decay: DecayConfig{
			Enabled:  true,
			Interval: 24 * time.Hour,
		},
		Normalizer: NormalizerConfig{
			Locale:    "tr",
			Stopwords: DefaultStopwords(),
		},
		Tuning: DefaultTuning(),
	}
}

// DefaultTuning returns the production-tuned scoring parameter set.
func DefaultTuning() Tuning {
	return Tuning{
		Revision:               "r4",
		SemanticDivisor:        8.0,
		LearnedSemanticDivisor: 5.0,
		SemanticWeight:         0.7,
		KeywordWeight:          0.3,
		MatchedKeywordWeight:   0.8,
		MatchedSemanticWeight:  0.2,
		MultiEntityBonus:       0.25,
		DedupThreshold:         0.15,
		QualityThreshold:       0.35,
		LearnedOriginPenalty:   0.70,
		DecayRatePerYear:       0.20,
		DecayFloor:             0.50,
		PoolPerCollection:      30,
		RerankWeight:           0.6,
		HybridWeight:           0.4,
	}
}

// Collections returns the three product collection names in query order.
func Collections() []string {
	return []string{CollectionDocuments, CollectionLearned, CollectionWebCache}
}

// Load builds the effective configuration: defaults, then the YAML file (if
// any), then env var overrides. It returns the config and the path of the
// file that was loaded ("" when none was found).
func Load(explicitPath string, log *slog.Logger) (*Config, string, error) {
	cfg := Default()

	path := resolveConfigPath(explicitPath)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, "", fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
		// A file that clears the stopword list falls back to the built-ins;
		// an empty list would disable term filtering entirely.
		if len(cfg.Normalizer.Stopwords) == 0 {
			cfg.Normalizer.Stopwords = DefaultStopwords()
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, "", err
	}

	if log != nil {
		if path != "" {
			log.Info("config: loaded YAML config",
				slog.String("path", path),
				slog.String("tuning_revision", cfg.Tuning.Revision),
			)
		} else {
			log.Debug("config: no YAML config file found, using defaults + env vars",
				slog.String("tuning_revision", cfg.Tuning.Revision),
			)
		}
	}

	return cfg, path, nil
}

// applyEnv overlays environment variables onto the config. Env always wins.
func (c *Config) applyEnv() {
	setStr(&c.Qdrant.Host, "QDRANT_HOST")
	setInt(&c.Qdrant.Port, "QDRANT_PORT")
	setStr(&c.Qdrant.APIKey, "QDRANT_API_KEY")
	setBool(&c.Qdrant.TLS, "QDRANT_TLS")

	setStr(&c.Embedding.Provider, "EMBEDDING_PROVIDER")
	setStr(&c.Embedding.Model, "EMBEDDING_MODEL")
	setInt(&c.Embedding.Dimensions, "EMBEDDING_DIMENSIONS")
	setStr(&c.Embedding.Endpoint, "EMBEDDING_ENDPOINT")
	setStr(&c.Embedding.APIKey, "EMBEDDING_API_KEY")

	setBool(&c.Rerank.Enabled, "RERANK_ENABLED")
	setStr(&c.Rerank.Endpoint, "RERANK_ENDPOINT")
	setStr(&c.Rerank.Model, "RERANK_MODEL")
	setStr(&c.Rerank.APIKey, "RERANK_API_KEY")

	setStr(&c.Server.Host, "CORPUS_HOST")
	setInt(&c.Server.Port, "CORPUS_PORT")
	setStr(&c.Server.APIKey, "CORPUS_API_KEY")

	setStr(&c.Logging.Level, "LOG_LEVEL")
	setStr(&c.Logging.Format, "LOG_FORMAT")

	setStr(&c.Journal.DBPath, "CORPUS_JOURNAL_DB")
	setStr(&c.Normalizer.Locale, "CORPUS_LOCALE")
}

// validate rejects configurations that would silently misbehave at runtime.
func (c *Config) validate() error {
	t := c.Tuning
	if t.SemanticDivisor <= 0 || t.LearnedSemanticDivisor <= 0 {
		return fmt.Errorf("config: semantic divisors must be > 0")
	}
	if t.DedupThreshold < 0 {
		return fmt.Errorf("config: dedup_threshold must be >= 0")
	}
	if t.DecayFloor < 0 || t.DecayFloor > 1 || t.DecayRatePerYear < 0 || t.DecayRatePerYear >= 1 {
		return fmt.Errorf("config: decay parameters out of range")
	}
	if t.PoolPerCollection <= 0 {
		return fmt.Errorf("config: pool_per_collection must be > 0")
	}
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("config: chunk_size must be > 0")
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("config: chunk_overlap must be in [0, chunk_size)")
	}
	return nil
}

// DefaultJournalPath returns the default path for the ingestion journal
// database, creating its directory if needed.
func DefaultJournalPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".corpus")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("config: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "journal.db"), nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("CORPUS_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".corpus", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("corpus.yaml"); err == nil {
		return "corpus.yaml"
	}

	return ""
}

// setStr overrides dst with the named env var when set and non-empty.
func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setInt overrides dst with the named env var when set and parseable.
func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

// setBool overrides dst with the named env var when set.
func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}
