// Package knowledge wires the retrieval core together behind one facade:
// ingestion, hybrid search, reranking, context-budget trimming, the decay
// sweep, and telemetry. The HTTP server and the CLI both talk to a Service
// and never touch the underlying components directly.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/murtezaalemdar/CompanyAi-sub001/internal/budget"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/config"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/ingestion"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/rag"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/rerank"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/search"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/telemetry"
)

// Service is the exposed interface of the retrieval core.
type Service struct {
	cfg      *config.Config
	vectors  rag.VectorStore
	pipeline *ingestion.Pipeline
	engine   *search.Engine
	reranker *rerank.Reranker
	sweeper  *ingestion.Sweeper
	metrics  *telemetry.Metrics
	recorder *telemetry.Recorder
	log      *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService assembles a Service from its components. sweeper, metrics, and
// recorder may be nil; the corresponding concerns are then disabled.
func NewService(
	cfg *config.Config,
	vectors rag.VectorStore,
	pipeline *ingestion.Pipeline,
	engine *search.Engine,
	reranker *rerank.Reranker,
	sweeper *ingestion.Sweeper,
	metrics *telemetry.Metrics,
	recorder *telemetry.Recorder,
	log *slog.Logger,
) *Service {
	s := &Service{
		cfg:      cfg,
		vectors:  vectors,
		pipeline: pipeline,
		engine:   engine,
		reranker: reranker,
		sweeper:  sweeper,
		metrics:  metrics,
		recorder: recorder,
		log:      log,
	}
	if metrics != nil {
		if reranker != nil {
			reranker.OnSkip = metrics.RerankSkips.Inc
		}
		if sweeper != nil {
			sweeper.OnSweep = func(updated int) {
				metrics.DecayUpdates.Add(float64(updated))
			}
		}
	}
	return s
}

// Start creates the product collections and launches the decay sweeper.
func (s *Service) Start(ctx context.Context) error {
	for _, name := range config.Collections() {
		if err := s.vectors.EnsureCollection(ctx, name); err != nil {
			return fmt.Errorf("knowledge: ensure collection %s: %w", name, err)
		}
	}
	s.refreshCollectionSizes(ctx)

	if s.sweeper != nil && s.cfg.Decay.Enabled {
		sweepCtx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.sweeper.Run(sweepCtx)
		}()
	}
	return nil
}

// Stop halts background work and waits for in-flight ingestions.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// AddDocument ingests one document synchronously.
func (s *Service) AddDocument(ctx context.Context, req ingestion.Request) (ingestion.Result, error) {
	start := time.Now()
	res, err := s.pipeline.Ingest(ctx, req)
	if err != nil {
		return res, err
	}
	if s.metrics != nil {
		s.metrics.ObserveIngest(time.Since(start), res.Written, res.Duplicates, res.Rejected)
	}
	s.refreshCollectionSizes(ctx)
	return res, nil
}

// AddDocumentAsync starts a background ingestion and returns the document ID
// immediately. Large documents produce many chunks; the triggering request
// should not be held open for the full run. Failures are journaled and
// logged, not returned.
func (s *Service) AddDocumentAsync(req ingestion.Request) string {
	if req.DocumentID == "" {
		req.DocumentID = uuid.NewString()
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if _, err := s.AddDocument(ctx, req); err != nil {
			s.log.Error("knowledge: background ingestion failed",
				slog.String("document_id", req.DocumentID),
				slog.String("error", err.Error()),
			)
		}
	}()
	return req.DocumentID
}

// Search runs hybrid retrieval, reranks when enabled, and trims the result
// to the context token budget.
func (s *Service) Search(ctx context.Context, req search.Request) ([]rag.ScoredCandidate, error) {
	start := time.Now()
	topK := req.TopK
	if topK <= 0 {
		topK = 5
	}

	// Give the reranker a wider slate than the caller asked for; it cuts
	// back to topK after reordering.
	engineReq := req
	engineReq.TopK = topK
	if s.reranker != nil {
		engineReq.TopK = topK * 3
	}

	candidates, err := s.engine.Search(ctx, engineReq)
	if err != nil {
		return nil, err
	}
	if s.reranker != nil {
		candidates = s.reranker.Rerank(ctx, req.Query, candidates, topK)
	} else if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	candidates = budget.TrimToBudget(candidates, s.cfg.Ingest.ContextBudgetTokens)

	latency := time.Since(start)
	if s.metrics != nil {
		s.metrics.ObserveQuery(latency, len(candidates))
	}
	if s.recorder != nil {
		s.recorder.RecordQuery(latency, candidates)
	}
	return candidates, nil
}

// DeleteDocument removes every chunk of a document from all collections and
// reports whether anything was deleted.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) (bool, error) {
	total := 0
	for _, name := range config.Collections() {
		removed, err := s.vectors.DeleteByDocument(ctx, name, documentID)
		if err != nil {
			return total > 0, fmt.Errorf("knowledge: delete document %s from %s: %w", documentID, name, err)
		}
		total += removed
	}
	if total > 0 {
		s.log.Info("knowledge: document deleted",
			slog.String("document_id", documentID),
			slog.Int("chunks", total),
		)
	}
	s.refreshCollectionSizes(ctx)
	return total > 0, nil
}

// ClearCollection removes every chunk in a collection and returns the count.
func (s *Service) ClearCollection(ctx context.Context, name string) (int, error) {
	removed, err := s.vectors.ClearCollection(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("knowledge: clear collection %s: %w", name, err)
	}
	s.log.Info("knowledge: collection cleared",
		slog.String("collection", name),
		slog.Int("chunks", removed),
	)
	s.refreshCollectionSizes(ctx)
	return removed, nil
}

// MetricsSummary aggregates the retrieval quality samples of the past window.
// A zero window covers all retained samples.
func (s *Service) MetricsSummary(window time.Duration) telemetry.Summary {
	if s.recorder == nil {
		return telemetry.Summary{}
	}
	return s.recorder.Summarize(window)
}

// SweepNow runs one decay sweep synchronously.
func (s *Service) SweepNow(ctx context.Context) (int, error) {
	if s.sweeper == nil {
		return 0, fmt.Errorf("knowledge: decay sweeper not configured")
	}
	return s.sweeper.SweepOnce(ctx)
}

func (s *Service) refreshCollectionSizes(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	for _, name := range config.Collections() {
		n, err := s.vectors.Count(ctx, name)
		if err != nil {
			continue
		}
		s.metrics.CollectionSizes.WithLabelValues(name).Set(float64(n))
	}
}
