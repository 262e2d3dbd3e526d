package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/murtezaalemdar/CompanyAi-sub001/internal/config"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/rag"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/textnorm"
)

// stubEmbedder returns fixed vectors per text, or fails when down.
type stubEmbedder struct {
	vectors map[string][]float32
	down    bool
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if s.down {
		return nil, fmt.Errorf("stub: %w: connection refused", rag.ErrProviderUnavailable)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := s.vectors[t]
		if !ok {
			// Deterministic fallback keyed on text length.
			v = []float32{float32(len(t)), float32(len(t)) / 2, 1}
		}
		out[i] = v
	}
	return out, nil
}

func newTestPipeline(t *testing.T, emb rag.Embedder) (*Pipeline, *rag.MemStore) {
	t.Helper()
	s := rag.NewMemStore()
	for _, name := range config.Collections() {
		if err := s.EnsureCollection(context.Background(), name); err != nil {
			t.Fatalf("ensure %s: %v", name, err)
		}
	}

	norm, err := textnorm.New("tr", config.DefaultStopwords())
	if err != nil {
		t.Fatalf("normalizer: %v", err)
	}

	p := NewPipeline(
		s,
		emb,
		NewChunker(2000, 300),
		NewQualityGate(norm),
		config.DefaultTuning(),
		config.EmbeddingConfig{RequestsPerSecond: 1000, Burst: 100},
		nil,
		slog.New(slog.DiscardHandler),
	)
	return p, s
}

func Test_Pipeline_WritesDocumentChunk(t *testing.T) {
	t.Parallel()
	emb := &stubEmbedder{vectors: map[string][]float32{}}
	p, s := newTestPipeline(t, emb)
	ctx := context.Background()

	res, err := p.Ingest(ctx, Request{
		Text:       "Sicil No: 1234, Adı: Ali, Soyadı: Veli, Departman: Muhasebe",
		Collection: config.CollectionDocuments,
		Department: "hr",
		Origin:     rag.OriginDocument,
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !res.Accepted() || res.Written != 1 {
		t.Fatalf("want one written chunk, got %+v", res)
	}
	if res.DocumentID == "" {
		t.Error("document id must be generated")
	}

	n, err := s.Count(ctx, config.CollectionDocuments)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("want 1 stored chunk, got %d", n)
	}
	var stored rag.Chunk
	s.Scan(ctx, config.CollectionDocuments, func(c rag.Chunk) bool { stored = c; return false })
	if stored.Meta.DecayWeight != 1.0 {
		t.Errorf("new chunk must start at decay weight 1.0, got %f", stored.Meta.DecayWeight)
	}
	if stored.Meta.Origin != rag.OriginDocument {
		t.Errorf("origin not preserved: %s", stored.Meta.Origin)
	}
}

func Test_Pipeline_NearIdenticalSecondInsertIsDuplicate(t *testing.T) {
	t.Parallel()
	text1 := "Ali Veli sicil numarası 1234 muhasebe departmanında çalışıyor"
	text2 := "Ali Veli sicil numarası 1234 muhasebe departmanında görevli"
	emb := &stubEmbedder{vectors: map[string][]float32{
		text1: {1.0, 2.0, 3.0},
		text2: {1.0, 2.0, 3.05}, // distance 0.05 < dedup threshold 0.15
	}}
	p, s := newTestPipeline(t, emb)
	ctx := context.Background()

	if _, err := p.Ingest(ctx, Request{Text: text1, Collection: config.CollectionDocuments, Origin: rag.OriginDocument}); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	res, err := p.Ingest(ctx, Request{Text: text2, Collection: config.CollectionDocuments, Origin: rag.OriginDocument})
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}

	if res.Accepted() {
		t.Fatalf("near-duplicate must be rejected, got %+v", res)
	}
	if res.Reason() != ReasonDuplicate {
		t.Errorf("want reason %q, got %q", ReasonDuplicate, res.Reason())
	}
	n, _ := s.Count(ctx, config.CollectionDocuments)
	if n != 1 {
		t.Errorf("duplicate must not be stored: count %d", n)
	}
}

func Test_Pipeline_DistinctTextIsNotDuplicate(t *testing.T) {
	t.Parallel()
	text1 := "Ali Veli muhasebe departmanında çalışıyor"
	text2 := "Yıllık izin politikası 14 iş günüdür"
	emb := &stubEmbedder{vectors: map[string][]float32{
		text1: {1.0, 2.0, 3.0},
		text2: {8.0, 1.0, 0.5},
	}}
	p, s := newTestPipeline(t, emb)
	ctx := context.Background()

	for _, text := range []string{text1, text2} {
		res, err := p.Ingest(ctx, Request{Text: text, Collection: config.CollectionDocuments, Origin: rag.OriginDocument})
		if err != nil {
			t.Fatalf("ingest %q: %v", text, err)
		}
		if !res.Accepted() {
			t.Fatalf("distinct text rejected: %+v", res)
		}
	}
	n, _ := s.Count(ctx, config.CollectionDocuments)
	if n != 2 {
		t.Errorf("want 2 stored chunks, got %d", n)
	}
}

func Test_Pipeline_LearnedChatterRejectedByGate(t *testing.T) {
	t.Parallel()
	emb := &stubEmbedder{vectors: map[string][]float32{}}
	p, s := newTestPipeline(t, emb)
	ctx := context.Background()

	res, err := p.Ingest(ctx, Request{
		Text:       "tamam olur öyle yapalım bence de",
		Collection: config.CollectionLearned,
		Origin:     rag.OriginLearned,
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Accepted() {
		t.Fatalf("low-quality learned chunk must be rejected, got %+v", res)
	}
	if res.Reason() != ReasonLowQuality {
		t.Errorf("want reason %q, got %q", ReasonLowQuality, res.Reason())
	}
	n, _ := s.Count(ctx, config.CollectionLearned)
	if n != 0 {
		t.Errorf("rejected chunk must not be stored: count %d", n)
	}
}

func Test_Pipeline_GateDoesNotApplyToDocuments(t *testing.T) {
	t.Parallel()
	emb := &stubEmbedder{vectors: map[string][]float32{}}
	p, _ := newTestPipeline(t, emb)

	// Same low-quality text, curated origin: stored without gating.
	res, err := p.Ingest(context.Background(), Request{
		Text:       "tamam olur öyle yapalım bence de",
		Collection: config.CollectionDocuments,
		Origin:     rag.OriginDocument,
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !res.Accepted() {
		t.Fatalf("curated content must bypass the quality gate, got %+v", res)
	}
}

func Test_Pipeline_ProviderDownLeavesNoPartialWrites(t *testing.T) {
	t.Parallel()
	emb := &stubEmbedder{down: true}
	p, s := newTestPipeline(t, emb)
	ctx := context.Background()

	_, err := p.Ingest(ctx, Request{
		Text:       "Sicil No: 1234, Adı: Ali, Soyadı: Veli",
		Collection: config.CollectionDocuments,
		Origin:     rag.OriginDocument,
	})
	if !errors.Is(err, rag.ErrProviderUnavailable) {
		t.Fatalf("want ErrProviderUnavailable, got %v", err)
	}
	n, _ := s.Count(ctx, config.CollectionDocuments)
	if n != 0 {
		t.Errorf("failed ingestion must leave no chunks, got %d", n)
	}
}

func Test_Pipeline_MissingCollectionIsLoud(t *testing.T) {
	t.Parallel()
	emb := &stubEmbedder{vectors: map[string][]float32{}}
	p, _ := newTestPipeline(t, emb)

	_, err := p.Ingest(context.Background(), Request{
		Text:       "herhangi bir metin",
		Collection: "no-such-collection",
		Origin:     rag.OriginDocument,
	})
	if !errors.Is(err, rag.ErrCollectionMissing) {
		t.Fatalf("want ErrCollectionMissing, got %v", err)
	}
}

// journalSpy records calls to verify completion and abort marking.
type journalSpy struct {
	begun     []string
	completed []string
	aborted   []string
	marks     map[string][]string
}

func (j *journalSpy) BeginDocument(_ context.Context, id, _ string, _ int) error {
	j.begun = append(j.begun, id)
	return nil
}

func (j *journalSpy) MarkChunk(_ context.Context, id, _ string, status string) error {
	if j.marks == nil {
		j.marks = map[string][]string{}
	}
	j.marks[id] = append(j.marks[id], status)
	return nil
}

func (j *journalSpy) CompleteDocument(_ context.Context, id string) error {
	j.completed = append(j.completed, id)
	return nil
}

func (j *journalSpy) AbortDocument(_ context.Context, id string) error {
	j.aborted = append(j.aborted, id)
	return nil
}

func Test_Pipeline_JournalMarksLifecycle(t *testing.T) {
	t.Parallel()
	emb := &stubEmbedder{vectors: map[string][]float32{}}
	p, _ := newTestPipeline(t, emb)
	spy := &journalSpy{}
	p.journal = spy

	res, err := p.Ingest(context.Background(), Request{
		Text:       "Yıllık izin politikası 14 iş günüdür ve devredilemez.",
		Collection: config.CollectionDocuments,
		DocumentID: "policy-1",
		Origin:     rag.OriginDocument,
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(spy.begun) != 1 || spy.begun[0] != "policy-1" {
		t.Errorf("journal begin missing: %v", spy.begun)
	}
	if len(spy.completed) != 1 || spy.completed[0] != "policy-1" {
		t.Errorf("journal completion missing: %v", spy.completed)
	}
	if len(spy.marks["policy-1"]) != res.Written {
		t.Errorf("want %d chunk marks, got %v", res.Written, spy.marks["policy-1"])
	}
}

func Test_Pipeline_ProviderFailureAbortsJournal(t *testing.T) {
	t.Parallel()
	emb := &stubEmbedder{down: true}
	p, _ := newTestPipeline(t, emb)
	spy := &journalSpy{}
	p.journal = spy

	_, err := p.Ingest(context.Background(), Request{
		Text:       "bir belge",
		Collection: config.CollectionDocuments,
		DocumentID: "doomed",
		Origin:     rag.OriginDocument,
	})
	if err == nil {
		t.Fatal("want error")
	}
	if len(spy.aborted) != 1 || spy.aborted[0] != "doomed" {
		t.Errorf("journal abort missing: %v", spy.aborted)
	}
}

func Test_Pipeline_IngestedAtUsesInjectedClock(t *testing.T) {
	t.Parallel()
	emb := &stubEmbedder{vectors: map[string][]float32{}}
	p, s := newTestPipeline(t, emb)
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }
	ctx := context.Background()

	if _, err := p.Ingest(ctx, Request{Text: "zaman testi metni", Collection: config.CollectionDocuments, Origin: rag.OriginDocument}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	var stored rag.Chunk
	s.Scan(ctx, config.CollectionDocuments, func(c rag.Chunk) bool { stored = c; return false })
	if !stored.Meta.IngestedAt.Equal(fixed) {
		t.Errorf("want ingested_at %v, got %v", fixed, stored.Meta.IngestedAt)
	}
}
