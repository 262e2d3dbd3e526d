package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/murtezaalemdar/CompanyAi-sub001/internal/config"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/rag"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/store"
)

// Rejection reasons. These are results, not errors: the pipeline worked,
// the content just did not earn a write.
const (
	// ReasonDuplicate marks a chunk whose nearest stored neighbour was
	// closer than the dedup threshold.
	ReasonDuplicate = "duplicate"
	// ReasonLowQuality marks an auto-learned chunk that scored below the
	// quality threshold.
	ReasonLowQuality = "low_quality"
)

// Journal records ingestion progress for crash recovery. A nil Journal
// disables journaling; the pipeline works the same without it.
type Journal interface {
	BeginDocument(ctx context.Context, documentID, collection string, chunkCount int) error
	MarkChunk(ctx context.Context, documentID, chunkID, status string) error
	CompleteDocument(ctx context.Context, documentID string) error
	AbortDocument(ctx context.Context, documentID string) error
}

// Request describes one document to ingest.
type Request struct {
	// Text is the raw document text.
	Text string
	// Collection is the target collection name.
	Collection string
	// DocumentID groups the resulting chunks. Generated when empty.
	DocumentID string
	// Department is the visibility tag of the source.
	Department string
	// Origin is the provenance kind of the content.
	Origin rag.Origin
}

// ChunkOutcome is the result of ingesting one chunk.
type ChunkOutcome struct {
	// ChunkID is the stored chunk's ID; empty when the chunk was not written.
	ChunkID string
	// Accepted is true when the chunk was written.
	Accepted bool
	// Reason explains a rejection: ReasonDuplicate or ReasonLowQuality.
	Reason string
}

// Result is the outcome of one ingestion request.
type Result struct {
	// DocumentID identifies the document (generated when the request had none).
	DocumentID string
	// Chunks holds the per-chunk outcomes, in document order.
	Chunks []ChunkOutcome
	// Written, Duplicates, and Rejected count the chunk outcomes.
	Written    int
	Duplicates int
	Rejected   int
}

// Accepted reports whether at least one chunk was written.
func (r Result) Accepted() bool { return r.Written > 0 }

// Reason returns the rejection reason when nothing was written: the reason
// of the first rejected chunk, or "" when the result has written chunks.
func (r Result) Reason() string {
	if r.Written > 0 {
		return ""
	}
	for _, c := range r.Chunks {
		if c.Reason != "" {
			return c.Reason
		}
	}
	return ""
}

// Pipeline is the ingestion write path. Safe for concurrent use: the
// duplicate-check-then-insert sequence is serialized per collection so two
// concurrent ingestions of near-identical text cannot both pass the check.
// Writes into different collections proceed in parallel.
type Pipeline struct {
	vectors  rag.VectorStore
	embedder rag.Embedder
	chunker  *Chunker
	gate     *QualityGate
	tuning   config.Tuning
	limiter  *rate.Limiter
	journal  Journal
	log      *slog.Logger

	// now is injectable for tests.
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewPipeline constructs a Pipeline. journal may be nil.
func NewPipeline(
	vectors rag.VectorStore,
	embedder rag.Embedder,
	chunker *Chunker,
	gate *QualityGate,
	tuning config.Tuning,
	embedCfg config.EmbeddingConfig,
	journal Journal,
	log *slog.Logger,
) *Pipeline {
	rps := embedCfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := embedCfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Pipeline{
		vectors:  vectors,
		embedder: embedder,
		chunker:  chunker,
		gate:     gate,
		tuning:   tuning,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		journal:  journal,
		log:      log,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Ingest chunks, gates, embeds, dedups, and writes one document.
//
// Embedding happens before any write, so an unreachable provider
// (wrapping [rag.ErrProviderUnavailable]) leaves no partial document behind.
// A context cancellation mid-write marks the document incomplete in the
// journal and returns the context error.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (Result, error) {
	res := Result{DocumentID: req.DocumentID}
	if res.DocumentID == "" {
		res.DocumentID = uuid.NewString()
	}

	texts := p.chunker.Split(req.Text)
	if len(texts) == 0 {
		return res, fmt.Errorf("ingestion: document %s has no content", res.DocumentID)
	}

	// Quality gate applies only to auto-learned content; curated documents
	// and web cache entries are trusted at the gate.
	accepted := make([]string, 0, len(texts))
	outcomes := make([]ChunkOutcome, len(texts))
	for i, text := range texts {
		if req.Origin == rag.OriginLearned {
			if score := p.gate.Score(text); score < p.tuning.QualityThreshold {
				outcomes[i] = ChunkOutcome{Reason: ReasonLowQuality}
				res.Rejected++
				p.log.Debug("ingestion: chunk rejected by quality gate",
					slog.String("document_id", res.DocumentID),
					slog.Float64("score", score),
					slog.Float64("threshold", p.tuning.QualityThreshold),
				)
				continue
			}
		}
		accepted = append(accepted, text)
	}

	if err := p.beginJournal(ctx, res.DocumentID, req.Collection, len(texts)); err != nil {
		return res, err
	}

	var embeddings [][]float32
	if len(accepted) > 0 {
		if err := p.limiter.Wait(ctx); err != nil {
			p.abortJournal(res.DocumentID)
			return res, fmt.Errorf("ingestion: rate limit wait: %w", err)
		}
		var err error
		embeddings, err = p.embedder.Embed(ctx, accepted)
		if err != nil {
			p.abortJournal(res.DocumentID)
			return res, fmt.Errorf("ingestion: embed document %s: %w", res.DocumentID, err)
		}
		if len(embeddings) != len(accepted) {
			p.abortJournal(res.DocumentID)
			return res, fmt.Errorf("ingestion: embedder returned %d vectors for %d chunks", len(embeddings), len(accepted))
		}
	}

	lock := p.collectionLock(req.Collection)
	next := 0
	for i := range texts {
		if outcomes[i].Reason != "" {
			p.markJournal(ctx, res.DocumentID, fmt.Sprintf("%s-%d", res.DocumentID, i), store.ChunkRejected)
			continue
		}
		if err := ctx.Err(); err != nil {
			p.abortJournal(res.DocumentID)
			return res, fmt.Errorf("ingestion: document %s interrupted: %w", res.DocumentID, err)
		}

		chunk := rag.Chunk{
			ID:        uuid.NewString(),
			Text:      texts[i],
			Embedding: embeddings[next],
			Meta: rag.Metadata{
				Collection:  req.Collection,
				DocumentID:  res.DocumentID,
				Department:  req.Department,
				Origin:      req.Origin,
				IngestedAt:  p.now(),
				DecayWeight: 1.0,
			},
		}
		next++

		outcome, err := p.writeChunk(ctx, lock, chunk)
		if err != nil {
			p.markJournal(ctx, res.DocumentID, chunk.ID, store.ChunkFailed)
			p.abortJournal(res.DocumentID)
			return res, err
		}
		outcomes[i] = outcome
		if outcome.Accepted {
			res.Written++
			p.markJournal(ctx, res.DocumentID, chunk.ID, store.ChunkWritten)
		} else {
			res.Duplicates++
			p.markJournal(ctx, res.DocumentID, chunk.ID, store.ChunkDuplicate)
		}
	}
	res.Chunks = outcomes

	if p.journal != nil {
		if err := p.journal.CompleteDocument(ctx, res.DocumentID); err != nil {
			p.log.Warn("ingestion: journal completion failed", slog.String("document_id", res.DocumentID), slog.String("error", err.Error()))
		}
	}

	p.log.Info("ingestion: document processed",
		slog.String("document_id", res.DocumentID),
		slog.String("collection", req.Collection),
		slog.String("origin", string(req.Origin)),
		slog.Int("written", res.Written),
		slog.Int("duplicates", res.Duplicates),
		slog.Int("rejected", res.Rejected),
	)
	return res, nil
}

// writeChunk runs the duplicate check and insert under the collection lock.
func (p *Pipeline) writeChunk(ctx context.Context, lock *sync.Mutex, chunk rag.Chunk) (ChunkOutcome, error) {
	lock.Lock()
	defer lock.Unlock()

	neighbors, err := p.vectors.Nearest(ctx, chunk.Meta.Collection, chunk.Embedding, 1)
	if err != nil {
		// Missing collections included: never fall through to an insert that
		// would auto-create one with the wrong configuration.
		return ChunkOutcome{}, fmt.Errorf("ingestion: duplicate check in %s: %w", chunk.Meta.Collection, err)
	}
	if len(neighbors) > 0 && neighbors[0].Distance < p.tuning.DedupThreshold {
		p.log.Debug("ingestion: duplicate chunk skipped",
			slog.String("collection", chunk.Meta.Collection),
			slog.String("existing_id", neighbors[0].Chunk.ID),
			slog.Float64("distance", neighbors[0].Distance),
		)
		return ChunkOutcome{Reason: ReasonDuplicate}, nil
	}

	if err := p.vectors.Insert(ctx, chunk); err != nil {
		return ChunkOutcome{}, fmt.Errorf("ingestion: insert into %s: %w", chunk.Meta.Collection, err)
	}
	return ChunkOutcome{ChunkID: chunk.ID, Accepted: true}, nil
}

// collectionLock returns the write mutex for a collection, creating it on
// first use.
func (p *Pipeline) collectionLock(collection string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[collection]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[collection] = lock
	}
	return lock
}

func (p *Pipeline) beginJournal(ctx context.Context, documentID, collection string, chunkCount int) error {
	if p.journal == nil {
		return nil
	}
	if err := p.journal.BeginDocument(ctx, documentID, collection, chunkCount); err != nil {
		return fmt.Errorf("ingestion: journal begin for %s: %w", documentID, err)
	}
	return nil
}

func (p *Pipeline) markJournal(ctx context.Context, documentID, chunkID, status string) {
	if p.journal == nil {
		return
	}
	if err := p.journal.MarkChunk(ctx, documentID, chunkID, status); err != nil {
		p.log.Warn("ingestion: journal mark failed",
			slog.String("document_id", documentID),
			slog.String("chunk_id", chunkID),
			slog.String("error", err.Error()),
		)
	}
}

// abortJournal marks the document incomplete. It uses a background context
// so the mark still lands when the request context is already cancelled.
func (p *Pipeline) abortJournal(documentID string) {
	if p.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.journal.AbortDocument(ctx, documentID); err != nil {
		p.log.Warn("ingestion: journal abort failed", slog.String("document_id", documentID), slog.String("error", err.Error()))
	}
}
