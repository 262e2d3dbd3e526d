package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemStore is a brute-force, in-memory VectorStore. It exists for tests and
// for local development without a Qdrant instance; its semantics — Euclid
// distance, per-collection isolation, loud missing-collection errors — are
// identical to the Qdrant-backed store so the engine behaves the same
// against either.
type MemStore struct {
	// mu guards collections. Reads take the read lock only.
	mu sync.RWMutex
	// collections maps collection name to its chunk set.
	collections map[string]*memCollection
}

// memCollection holds the chunks of one collection in insertion order.
type memCollection struct {
	// dims is the embedding dimensionality, fixed by the first insert.
	dims int
	// order preserves insertion order for deterministic scans.
	order []string
	// chunks maps chunk ID to the stored chunk.
	chunks map[string]Chunk
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{collections: make(map[string]*memCollection)}
}

// EnsureCollection creates the named collection if it does not exist.
func (s *MemStore) EnsureCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		s.collections[name] = &memCollection{chunks: make(map[string]Chunk)}
	}
	return nil
}

// get returns the named collection or an ErrCollectionMissing error.
// Callers must hold at least the read lock.
func (s *MemStore) get(name string) (*memCollection, error) {
	col, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("memstore: %q: %w", name, ErrCollectionMissing)
	}
	return col, nil
}

// Insert writes a chunk into its collection.
func (s *MemStore) Insert(_ context.Context, chunk Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.get(chunk.Meta.Collection)
	if err != nil {
		return err
	}
	if col.dims == 0 {
		col.dims = len(chunk.Embedding)
	} else if len(chunk.Embedding) != col.dims {
		return fmt.Errorf("memstore: %q: got %d dims, collection has %d: %w",
			chunk.Meta.Collection, len(chunk.Embedding), col.dims, ErrDimensionMismatch)
	}

	if _, exists := col.chunks[chunk.ID]; !exists {
		col.order = append(col.order, chunk.ID)
	}
	col.chunks[chunk.ID] = chunk
	return nil
}

// Nearest returns up to limit chunks ordered by ascending Euclid distance.
func (s *MemStore) Nearest(_ context.Context, collection string, embedding []float32, limit int) ([]Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, err := s.get(collection)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	neighbors := make([]Neighbor, 0, len(col.chunks))
	for _, id := range col.order {
		c := col.chunks[id]
		neighbors = append(neighbors, Neighbor{Chunk: c, Distance: euclid(embedding, c.Embedding)})
	}
	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Distance < neighbors[j].Distance
	})
	if len(neighbors) > limit {
		neighbors = neighbors[:limit]
	}
	return neighbors, nil
}

// Scan visits every chunk in insertion order until fn returns false.
func (s *MemStore) Scan(_ context.Context, collection string, fn func(Chunk) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, err := s.get(collection)
	if err != nil {
		return err
	}
	for _, id := range col.order {
		if !fn(col.chunks[id]) {
			return nil
		}
	}
	return nil
}

// UpdateDecayWeight sets the decay weight of one chunk.
func (s *MemStore) UpdateDecayWeight(_ context.Context, collection, id string, weight float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.get(collection)
	if err != nil {
		return err
	}
	c, ok := col.chunks[id]
	if !ok {
		return fmt.Errorf("memstore: %q: no chunk %q", collection, id)
	}
	c.Meta.DecayWeight = weight
	col.chunks[id] = c
	return nil
}

// DeleteByID removes a single chunk.
func (s *MemStore) DeleteByID(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.get(collection)
	if err != nil {
		return err
	}
	if _, ok := col.chunks[id]; !ok {
		return nil
	}
	delete(col.chunks, id)
	col.order = removeID(col.order, id)
	return nil
}

// DeleteByDocument removes every chunk of the given document.
func (s *MemStore) DeleteByDocument(_ context.Context, collection, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.get(collection)
	if err != nil {
		return 0, err
	}
	removed := 0
	kept := col.order[:0]
	for _, id := range col.order {
		if col.chunks[id].Meta.DocumentID == documentID {
			delete(col.chunks, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	col.order = kept
	return removed, nil
}

// ClearCollection removes every chunk; the collection stays queryable.
func (s *MemStore) ClearCollection(_ context.Context, name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.get(name)
	if err != nil {
		return 0, err
	}
	n := len(col.chunks)
	col.chunks = make(map[string]Chunk)
	col.order = nil
	return n, nil
}

// Count returns the number of chunks in the collection.
func (s *MemStore) Count(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, err := s.get(name)
	if err != nil {
		return 0, err
	}
	return len(col.chunks), nil
}

// Close is a no-op for the in-memory store.
func (s *MemStore) Close() error { return nil }

// Ping always succeeds; MemStore has no external dependency.
func (s *MemStore) Ping(context.Context) error { return nil }

// Name returns the dependency label for readiness checks.
func (s *MemStore) Name() string { return "memstore" }

// euclid returns the Euclidean (L2) distance between two vectors. Vectors of
// different lengths compare at +Inf so a dimension mismatch can never rank
// as a near neighbour.
func euclid(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// removeID removes the first occurrence of id from ids, preserving order.
func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
