package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/murtezaalemdar/CompanyAi-sub001/internal/config"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/embedder"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/ingestion"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/knowledge"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/logging"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/rag"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/rerank"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/search"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/store"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/telemetry"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/textnorm"
)

// recorderCapacity is the size of the in-memory retrieval quality sample ring.
const recorderCapacity = 1024

// runtime bundles the assembled retrieval core and the resources behind it.
// close releases the vector store connection and the ingestion journal.
type runtime struct {
	cfg      *config.Config
	vectors  *rag.QdrantStore
	service  *knowledge.Service
	registry *prometheus.Registry
	close    func()
}

// buildRuntime assembles the full retrieval core from the loaded config:
// normalizer, Qdrant store, embedder, ingestion pipeline with journal,
// search engine, optional reranker, decay sweeper, and telemetry.
func buildRuntime(ctx context.Context, cfg *config.Config, log *slog.Logger) (*runtime, error) {
	norm, err := textnorm.New(cfg.Normalizer.Locale, cfg.Normalizer.Stopwords)
	if err != nil {
		return nil, fmt.Errorf("normalizer: %w", err)
	}

	vectors, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
		Host:       cfg.Qdrant.Host,
		Port:       cfg.Qdrant.Port,
		VectorSize: uint64(cfg.Embedding.Dimensions),
		APIKey:     cfg.Qdrant.APIKey,
		UseTLS:     cfg.Qdrant.TLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", cfg.Qdrant.Host, cfg.Qdrant.Port, err)
	}

	emb, err := embedder.New(cfg.Embedding, log)
	if err != nil {
		vectors.Close()
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised",
		slog.String("provider", cfg.Embedding.Provider),
		slog.String("model", cfg.Embedding.Model),
	)

	journal, closeJournal := openJournal(ctx, cfg, log)

	pipeline := ingestion.NewPipeline(
		vectors,
		emb,
		ingestion.NewChunker(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap),
		ingestion.NewQualityGate(norm),
		cfg.Tuning,
		cfg.Embedding,
		journal,
		logging.Component(log, "ingestion"),
	)

	engine := search.NewEngine(vectors, emb, norm, cfg.Tuning, config.CollectionLearned, logging.Component(log, "search"))

	var reranker *rerank.Reranker
	if cfg.Rerank.Enabled {
		model := rerank.NewHTTPModel(cfg.Rerank)
		reranker = rerank.New(model, cfg.Tuning, logging.Component(log, "rerank"))
		log.Info("reranker enabled", slog.String("model", cfg.Rerank.Model))
	}

	sweeper := ingestion.NewSweeper(vectors, config.CollectionLearned, cfg.Tuning, cfg.Decay.Interval, logging.Component(log, "decay"))

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)
	recorder := telemetry.NewRecorder(recorderCapacity)

	service := knowledge.NewService(cfg, vectors, pipeline, engine, reranker, sweeper, metrics, recorder, logging.Component(log, "knowledge"))

	return &runtime{
		cfg:      cfg,
		vectors:  vectors,
		service:  service,
		registry: registry,
		close: func() {
			closeJournal()
			_ = vectors.Close()
		},
	}, nil
}

// openJournal opens the SQLite ingestion journal and reports any documents
// left incomplete by a previous run. CORPUS_JOURNAL_DB=disabled (or db_path:
// disabled in YAML) turns the journal off; an open failure degrades to
// journal-less operation with a warning rather than refusing to start.
func openJournal(ctx context.Context, cfg *config.Config, log *slog.Logger) (ingestion.Journal, func()) {
	if cfg.Journal.DBPath == "disabled" {
		log.Info("journal: disabled via config")
		return nil, func() {}
	}

	path := cfg.Journal.DBPath
	if path == "" {
		var err error
		path, err = config.DefaultJournalPath()
		if err != nil {
			log.Warn("journal: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil, func() {}
		}
	}

	j, err := store.Open(path)
	if err != nil {
		log.Warn("journal: failed to open, disabling", slog.String("path", path), slog.Any("error", err))
		return nil, func() {}
	}
	log.Info("journal: opened", slog.String("path", path))

	if incomplete, err := j.Incomplete(ctx); err == nil && len(incomplete) > 0 {
		for _, rec := range incomplete {
			log.Warn("journal: document from a previous run is incomplete, re-ingest to repair",
				slog.String("document_id", rec.ID),
				slog.String("collection", rec.Collection),
				slog.String("status", rec.Status),
			)
		}
	}

	return j, func() { _ = j.Close() }
}

// parseOrigin maps a CLI origin flag value to its provenance kind.
// An empty value defaults to document origin.
func parseOrigin(s string) (rag.Origin, error) {
	switch s {
	case "", string(rag.OriginDocument):
		return rag.OriginDocument, nil
	case string(rag.OriginLearned):
		return rag.OriginLearned, nil
	case string(rag.OriginWebCache):
		return rag.OriginWebCache, nil
	default:
		return "", fmt.Errorf("unknown origin %q (want document, learned, or webcache)", s)
	}
}
