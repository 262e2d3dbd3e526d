package rerank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/murtezaalemdar/CompanyAi-sub001/internal/config"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/rag"
)

// stubModel returns fixed scores per chunk text.
type stubModel struct {
	scores map[string]float64
	down   bool
}

func (m *stubModel) Score(_ context.Context, _ string, text string) (float64, error) {
	if m.down {
		return 0, fmt.Errorf("stub: %w: connection refused", rag.ErrProviderUnavailable)
	}
	return m.scores[text], nil
}

func candidate(id string, hybrid, keyword float64) rag.ScoredCandidate {
	return rag.ScoredCandidate{
		Chunk:        rag.Chunk{ID: id, Text: "text-" + id},
		HybridScore:  hybrid,
		KeywordScore: keyword,
		KeywordMatch: keyword > 0,
		FinalScore:   hybrid,
	}
}

func newTestReranker(model rag.RelevanceModel) *Reranker {
	return New(model, config.DefaultTuning(), slog.New(slog.DiscardHandler))
}

func Test_Reranker_BlendsRerankAndHybridScores(t *testing.T) {
	t.Parallel()
	model := &stubModel{scores: map[string]float64{
		"text-a": 0.2,
		"text-b": 0.9,
	}}
	r := newTestReranker(model)

	in := []rag.ScoredCandidate{
		candidate("a", 0.8, 0),
		candidate("b", 0.5, 0),
	}
	out := r.Rerank(context.Background(), "soru", in, 2)

	// a: 0.6*0.2 + 0.4*0.8 = 0.44; b: 0.6*0.9 + 0.4*0.5 = 0.74.
	if out[0].Chunk.ID != "b" {
		t.Fatalf("want b first after rerank, got %s", out[0].Chunk.ID)
	}
	if out[0].FinalScore < 0.73 || out[0].FinalScore > 0.75 {
		t.Errorf("unexpected blended score: %f", out[0].FinalScore)
	}
	if out[1].FinalScore >= out[0].FinalScore {
		t.Errorf("final scores not descending")
	}
}

func Test_Reranker_KeywordChampionSurvivesDemotion(t *testing.T) {
	t.Parallel()
	// The model hates the keyword champion.
	model := &stubModel{scores: map[string]float64{
		"text-champion": 0.0,
		"text-x":        0.9,
		"text-y":        0.8,
		"text-z":        0.7,
	}}
	r := newTestReranker(model)

	in := []rag.ScoredCandidate{
		candidate("champion", 0.4, 1.0),
		candidate("x", 0.5, 0),
		candidate("y", 0.5, 0),
		candidate("z", 0.5, 0),
	}
	out := r.Rerank(context.Background(), "soru", in, 2)

	if len(out) != 2 {
		t.Fatalf("want 2 results, got %d", len(out))
	}
	found := false
	for _, c := range out {
		if c.Chunk.ID == "champion" {
			found = true
		}
	}
	if !found {
		t.Fatal("keyword champion demoted out of top-k")
	}
	// The displaced entry must be a non-keyword candidate, not the leader.
	if out[0].Chunk.ID != "x" {
		t.Errorf("rerank leader should survive, got %s first", out[0].Chunk.ID)
	}
}

func Test_Reranker_ChampionAlreadyInTopIsUntouched(t *testing.T) {
	t.Parallel()
	model := &stubModel{scores: map[string]float64{
		"text-champion": 0.9,
		"text-x":        0.5,
	}}
	r := newTestReranker(model)

	in := []rag.ScoredCandidate{
		candidate("champion", 0.6, 1.0),
		candidate("x", 0.5, 0),
	}
	out := r.Rerank(context.Background(), "soru", in, 2)

	if out[0].Chunk.ID != "champion" || out[1].Chunk.ID != "x" {
		t.Fatalf("order disturbed: [%s %s]", out[0].Chunk.ID, out[1].Chunk.ID)
	}
}

func Test_Reranker_ModelDownKeepsHybridOrder(t *testing.T) {
	t.Parallel()
	r := newTestReranker(&stubModel{down: true})

	in := []rag.ScoredCandidate{
		candidate("first", 0.9, 0),
		candidate("second", 0.8, 0.5),
		candidate("third", 0.7, 0),
	}
	out := r.Rerank(context.Background(), "soru", in, 3)

	if len(out) != 3 {
		t.Fatalf("want 3 results, got %d", len(out))
	}
	for i, id := range []string{"first", "second", "third"} {
		if out[i].Chunk.ID != id {
			t.Fatalf("hybrid order not preserved: got %s at %d", out[i].Chunk.ID, i)
		}
		if out[i].RerankScore != 0 {
			t.Errorf("rerank score must stay unset on degradation")
		}
	}
}

func Test_Reranker_NilModelPassesThrough(t *testing.T) {
	t.Parallel()
	r := newTestReranker(nil)

	in := []rag.ScoredCandidate{
		candidate("a", 0.9, 0),
		candidate("b", 0.8, 0),
	}
	out := r.Rerank(context.Background(), "soru", in, 1)
	if len(out) != 1 || out[0].Chunk.ID != "a" {
		t.Fatalf("nil model must truncate in hybrid order, got %v", out)
	}
}

func Test_HTTPModel_ScoreParsesResponse(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sekret" {
			t.Errorf("missing auth header, got %q", got)
		}
		fmt.Fprint(w, `{"results":[{"index":0,"relevance_score":0.87}]}`)
	}))
	defer srv.Close()

	m := NewHTTPModel(config.RerankConfig{
		Endpoint: srv.URL,
		Model:    "bge-reranker-v2-m3",
		APIKey:   "sekret",
	})
	score, err := m.Score(context.Background(), "soru", "aday metin")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score != 0.87 {
		t.Errorf("want 0.87, got %f", score)
	}
}

func Test_HTTPModel_ServerErrorIsProviderUnavailable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	m := NewHTTPModel(config.RerankConfig{Endpoint: srv.URL})
	_, err := m.Score(context.Background(), "soru", "metin")
	if !errors.Is(err, rag.ErrProviderUnavailable) {
		t.Fatalf("want ErrProviderUnavailable, got %v", err)
	}
}
