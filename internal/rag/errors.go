package rag

import "errors"

// Sentinel errors shared across the retrieval core. Callers test for them
// with errors.Is; concrete implementations wrap them with context.
var (
	// ErrProviderUnavailable indicates the embedding or relevance provider
	// could not be reached. During ingestion this aborts the write with no
	// partial chunks; callers should retry with backoff.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrRetrievalUnavailable indicates a query could not be served because
	// a required dependency (embedding provider, index) was unreachable.
	// Callers should surface a degraded-mode response, not fail silently.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrCollectionMissing indicates an operation targeted a collection
	// that does not exist. Fatal for that collection's operations — never
	// masked by an empty result set.
	ErrCollectionMissing = errors.New("collection missing")

	// ErrDimensionMismatch indicates a chunk's embedding dimensionality
	// does not match its collection's.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
