// Package rag defines the data model and collaborator interfaces of the
// hybrid retrieval core: chunks, scored candidates, vector storage,
// embedding, and pairwise relevance scoring. Concrete implementations
// (Qdrant, in-memory, HTTP providers) satisfy these interfaces so the
// query and ingestion layers never depend on a specific backend.
package rag

import (
	"context"
	"time"
)

// Origin identifies the provenance of a chunk. Provenance determines both
// which quality gates apply at write time and which score penalty applies
// at query time.
type Origin string

const (
	// OriginDocument marks chunks from curated, uploaded documents.
	OriginDocument Origin = "document"
	// OriginLearned marks facts auto-learned from conversations. These are
	// unverified: they pass a quality gate on ingestion, carry a permanent
	// score penalty, and decay over time.
	OriginLearned Origin = "learned"
	// OriginWebCache marks transient chunks cached from web lookups.
	OriginWebCache Origin = "webcache"
)

// Metadata is the structured metadata stored alongside each chunk.
// Every field except DecayWeight is immutable after the chunk is written.
type Metadata struct {
	// Collection is the name of the collection the chunk belongs to.
	// A chunk belongs to exactly one collection for its lifetime.
	Collection string

	// DocumentID groups all chunks produced from one source document.
	DocumentID string

	// Department is the visibility tag of the source document.
	Department string

	// Origin is the provenance kind of the chunk.
	Origin Origin

	// IngestedAt is when the chunk was written.
	IngestedAt time.Time

	// DecayWeight is the mutable confidence weight in (0, 1]. It starts at
	// 1.0 and is reduced by the periodic decay sweep for learned chunks,
	// floored so stale facts fade without being discarded.
	DecayWeight float64
}

// Chunk is an immutable unit of retrievable text with its embedding.
// Embeddings within one collection are comparable: same provider, same
// dimensionality.
type Chunk struct {
	// ID is the unique identifier assigned at write time.
	ID string

	// Text is the chunk content (~2000 chars, overlapping its neighbours).
	Text string

	// Embedding is the dense vector produced by the embedding provider.
	Embedding []float32

	// Meta is the structured metadata for this chunk.
	Meta Metadata
}

// ScoredCandidate is an ephemeral, per-query scoring of one chunk.
type ScoredCandidate struct {
	// Chunk is the stored chunk this candidate refers to.
	Chunk Chunk

	// Distance is the raw vector distance returned by the index.
	// +Inf for candidates recovered by the keyword-only pass, which have
	// no vector distance.
	Distance float64

	// SemanticScore is the distance mapped into [0, 1].
	SemanticScore float64

	// KeywordScore is the literal term-match score in [0, 1].
	KeywordScore float64

	// KeywordMatch is true when KeywordScore > 0; it flips the hybrid
	// blend weights downstream.
	KeywordMatch bool

	// HybridScore is the combined semantic+keyword score after the origin
	// penalty and decay weight are applied.
	HybridScore float64

	// RerankScore is the pairwise relevance model's score, set only when
	// the rerank pass ran.
	RerankScore float64

	// FinalScore is the post-rerank blended score. Equal to HybridScore
	// when reranking was skipped.
	FinalScore float64
}

// Filter restricts search results by chunk metadata. Zero values mean
// "no restriction". Filters are applied by exclusion after scoring.
type Filter struct {
	// Origins limits results to the given provenance kinds. Empty = all.
	Origins []Origin

	// After excludes chunks ingested before this time. Zero = unbounded.
	After time.Time

	// Before excludes chunks ingested after this time. Zero = unbounded.
	Before time.Time
}

// Matches reports whether metadata passes the filter.
func (f Filter) Matches(m Metadata) bool {
	if len(f.Origins) > 0 {
		ok := false
		for _, o := range f.Origins {
			if m.Origin == o {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if !f.After.IsZero() && m.IngestedAt.Before(f.After) {
		return false
	}
	if !f.Before.IsZero() && m.IngestedAt.After(f.Before) {
		return false
	}
	return true
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice. Unreachable
	// providers report errors wrapping [ErrProviderUnavailable].
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// RelevanceModel scores the pairwise relevance of a candidate text to a
// query. Implementations must be safe to call from multiple goroutines.
type RelevanceModel interface {
	// Score returns a relevance score for (query, text), nominally in [0, 1].
	Score(ctx context.Context, query, text string) (float64, error)
}

// Neighbor is one result of a nearest-neighbour query.
type Neighbor struct {
	// Chunk is the stored chunk.
	Chunk Chunk
	// Distance is the raw vector distance to the query (lower is closer).
	Distance float64
}

// VectorStore is the persistent vector index backend: a set of named,
// independently queryable collections, each holding vectors plus parallel
// structured metadata. Implementations must be safe for concurrent use;
// reads never require locking on the caller's side.
//
// Operations on a collection that does not exist fail with an error
// wrapping [ErrCollectionMissing] — they never silently return empty
// results.
type VectorStore interface {
	// EnsureCollection creates the named collection if it does not exist.
	EnsureCollection(ctx context.Context, name string) error

	// Insert writes a chunk into its collection. The chunk's embedding
	// dimensionality must match the collection's.
	Insert(ctx context.Context, chunk Chunk) error

	// Nearest returns up to limit stored chunks closest to embedding,
	// ordered by ascending distance.
	Nearest(ctx context.Context, collection string, embedding []float32, limit int) ([]Neighbor, error)

	// Scan visits every chunk in the collection. fn returns false to stop
	// early. Used by the keyword-only supplementary pass and the decay
	// sweep; collections in this product stay small enough to scan.
	Scan(ctx context.Context, collection string, fn func(Chunk) bool) error

	// UpdateDecayWeight sets the decay weight of one chunk. This is the
	// only mutation permitted on a stored chunk.
	UpdateDecayWeight(ctx context.Context, collection, id string, weight float64) error

	// DeleteByID removes a single chunk.
	DeleteByID(ctx context.Context, collection, id string) error

	// DeleteByDocument removes every chunk of the given source document
	// from the collection and returns how many were removed.
	DeleteByDocument(ctx context.Context, collection, documentID string) (int, error)

	// ClearCollection removes every chunk in the collection and returns
	// how many were removed. The collection itself remains queryable.
	ClearCollection(ctx context.Context, name string) (int, error)

	// Count returns the number of chunks in the collection.
	Count(ctx context.Context, name string) (int, error)

	// Close releases any resources held by the store.
	Close() error
}
