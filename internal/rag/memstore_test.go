package rag

import (
	"context"
	"errors"
	"testing"
	"time"
)

// newTestStore returns a MemStore with the "documents" collection created.
func newTestStore(t *testing.T) *MemStore {
	t.Helper()
	s := NewMemStore()
	if err := s.EnsureCollection(context.Background(), "documents"); err != nil {
		t.Fatalf("ensure collection: %v", err)
	}
	return s
}

// chunkAt builds a chunk with the given id, embedding, and document id.
func chunkAt(id, docID string, embedding []float32) Chunk {
	return Chunk{
		ID:        id,
		Text:      "text " + id,
		Embedding: embedding,
		Meta: Metadata{
			Collection:  "documents",
			DocumentID:  docID,
			Origin:      OriginDocument,
			IngestedAt:  time.Now(),
			DecayWeight: 1.0,
		},
	}
}

func Test_MemStore_NearestOrdersByDistance(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	for _, c := range []Chunk{
		chunkAt("far", "d1", []float32{10, 0}),
		chunkAt("near", "d1", []float32{1, 0}),
		chunkAt("mid", "d1", []float32{5, 0}),
	} {
		if err := s.Insert(ctx, c); err != nil {
			t.Fatalf("insert %s: %v", c.ID, err)
		}
	}

	neighbors, err := s.Nearest(ctx, "documents", []float32{0, 0}, 2)
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if len(neighbors) != 2 {
		t.Fatalf("want 2 neighbors, got %d", len(neighbors))
	}
	if neighbors[0].Chunk.ID != "near" || neighbors[1].Chunk.ID != "mid" {
		t.Errorf("want [near mid], got [%s %s]", neighbors[0].Chunk.ID, neighbors[1].Chunk.ID)
	}
	if neighbors[0].Distance > neighbors[1].Distance {
		t.Errorf("distances not ascending: %f > %f", neighbors[0].Distance, neighbors[1].Distance)
	}
}

func Test_MemStore_MissingCollectionIsLoud(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Nearest(ctx, "nope", []float32{0}, 5)
	if !errors.Is(err, ErrCollectionMissing) {
		t.Fatalf("want ErrCollectionMissing, got %v", err)
	}
	if err := s.Scan(ctx, "nope", func(Chunk) bool { return true }); !errors.Is(err, ErrCollectionMissing) {
		t.Fatalf("scan: want ErrCollectionMissing, got %v", err)
	}
	if _, err := s.ClearCollection(ctx, "nope"); !errors.Is(err, ErrCollectionMissing) {
		t.Fatalf("clear: want ErrCollectionMissing, got %v", err)
	}
}

func Test_MemStore_DimensionMismatchRejected(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Insert(ctx, chunkAt("a", "d1", []float32{1, 2, 3})); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := s.Insert(ctx, chunkAt("b", "d1", []float32{1, 2}))
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("want ErrDimensionMismatch, got %v", err)
	}
}

func Test_MemStore_DeleteByDocumentRemovesOnlyThatDocument(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	for _, c := range []Chunk{
		chunkAt("a1", "docA", []float32{1}),
		chunkAt("a2", "docA", []float32{2}),
		chunkAt("b1", "docB", []float32{3}),
	} {
		if err := s.Insert(ctx, c); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	removed, err := s.DeleteByDocument(ctx, "documents", "docA")
	if err != nil {
		t.Fatalf("delete by document: %v", err)
	}
	if removed != 2 {
		t.Errorf("want 2 removed, got %d", removed)
	}
	n, err := s.Count(ctx, "documents")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("want 1 remaining, got %d", n)
	}
}

func Test_MemStore_ClearCollectionCountsAndStaysQueryable(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"x", "y", "z"} {
		if err := s.Insert(ctx, chunkAt(id, "d", []float32{float32(i)})); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	n, err := s.ClearCollection(ctx, "documents")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n != 3 {
		t.Errorf("want 3 cleared, got %d", n)
	}

	// Collection must remain usable after a clear.
	if err := s.Insert(ctx, chunkAt("w", "d", []float32{9})); err != nil {
		t.Fatalf("insert after clear: %v", err)
	}
}

func Test_MemStore_UpdateDecayWeightMutatesOnlyWeight(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Insert(ctx, chunkAt("a", "d", []float32{1})); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.UpdateDecayWeight(ctx, "documents", "a", 0.6); err != nil {
		t.Fatalf("update decay: %v", err)
	}

	var got Chunk
	if err := s.Scan(ctx, "documents", func(c Chunk) bool { got = c; return false }); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if got.Meta.DecayWeight != 0.6 {
		t.Errorf("want decay 0.6, got %f", got.Meta.DecayWeight)
	}
	if got.Text != "text a" {
		t.Errorf("text changed unexpectedly: %q", got.Text)
	}
}

func Test_MemStore_ScanStopsWhenFnReturnsFalse(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"1", "2", "3", "4"} {
		if err := s.Insert(ctx, chunkAt(id, "d", []float32{float32(i)})); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	visited := 0
	if err := s.Scan(ctx, "documents", func(Chunk) bool {
		visited++
		return visited < 2
	}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if visited != 2 {
		t.Errorf("want 2 visits, got %d", visited)
	}
}

func Test_Filter_MatchesOriginAndDateRange(t *testing.T) {
	t.Parallel()

	now := time.Now()
	meta := Metadata{Origin: OriginLearned, IngestedAt: now}

	if !(Filter{}).Matches(meta) {
		t.Error("empty filter must match everything")
	}
	if !(Filter{Origins: []Origin{OriginLearned, OriginDocument}}).Matches(meta) {
		t.Error("origin filter with matching origin must pass")
	}
	if (Filter{Origins: []Origin{OriginDocument}}).Matches(meta) {
		t.Error("origin filter without matching origin must exclude")
	}
	if (Filter{After: now.Add(time.Hour)}).Matches(meta) {
		t.Error("After filter must exclude older chunks")
	}
	if (Filter{Before: now.Add(-time.Hour)}).Matches(meta) {
		t.Error("Before filter must exclude newer chunks")
	}
	if !(Filter{After: now.Add(-time.Hour), Before: now.Add(time.Hour)}).Matches(meta) {
		t.Error("in-range chunk must pass")
	}
}
