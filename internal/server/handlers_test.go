package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/murtezaalemdar/CompanyAi-sub001/internal/ingestion"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/rag"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/search"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/telemetry"
)

// fakeService implements corpusService with canned responses.
type fakeService struct {
	ingestResult ingestion.Result
	ingestErr    error
	searchResult []rag.ScoredCandidate
	searchErr    error
	deleted      bool
	cleared      int
	summary      telemetry.Summary

	lastIngest ingestion.Request
	lastSearch search.Request
	asyncCalls int
}

func (f *fakeService) AddDocument(_ context.Context, req ingestion.Request) (ingestion.Result, error) {
	f.lastIngest = req
	return f.ingestResult, f.ingestErr
}

func (f *fakeService) AddDocumentAsync(req ingestion.Request) string {
	f.asyncCalls++
	f.lastIngest = req
	return "async-id"
}

func (f *fakeService) Search(_ context.Context, req search.Request) ([]rag.ScoredCandidate, error) {
	f.lastSearch = req
	return f.searchResult, f.searchErr
}

func (f *fakeService) DeleteDocument(context.Context, string) (bool, error) { return f.deleted, nil }

func (f *fakeService) ClearCollection(context.Context, string) (int, error) { return f.cleared, nil }

func (f *fakeService) MetricsSummary(time.Duration) telemetry.Summary { return f.summary }

// newTestServer builds a Server around fake and returns its root handler.
func newTestServer(t *testing.T, fake *fakeService, cfg *Config) http.Handler {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	// Generous limits so rate limiting never interferes unless a test
	// configures it explicitly.
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10000
		cfg.RateBurst = 10000
	}
	s, err := New(fake, cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(s.stopRL)
	return s.httpServer.Handler
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func Test_AddDocument_Success(t *testing.T) {
	t.Parallel()
	fake := &fakeService{ingestResult: ingestion.Result{
		DocumentID: "doc-1",
		Written:    2,
		Chunks:     []ingestion.ChunkOutcome{{ChunkID: "c1", Accepted: true}, {ChunkID: "c2", Accepted: true}},
	}}
	h := newTestServer(t, fake, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/documents", addDocumentRequest{
		Text:       "personel yönetmeliği metni",
		Collection: "documents",
		Department: "hr",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp addDocumentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Accepted || resp.Written != 2 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if fake.lastIngest.Origin != rag.OriginDocument {
		t.Errorf("empty origin must default to document, got %s", fake.lastIngest.Origin)
	}
}

func Test_AddDocument_AsyncReturnsAccepted(t *testing.T) {
	t.Parallel()
	fake := &fakeService{}
	h := newTestServer(t, fake, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/documents", addDocumentRequest{
		Text:  "büyük belge",
		Async: true,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("want 202, got %d", rec.Code)
	}
	if fake.asyncCalls != 1 {
		t.Errorf("async path not taken")
	}
}

func Test_AddDocument_Validation(t *testing.T) {
	t.Parallel()
	h := newTestServer(t, &fakeService{}, nil)

	cases := []struct {
		name string
		body addDocumentRequest
	}{
		{"missing text", addDocumentRequest{}},
		{"bad collection", addDocumentRequest{Text: "x", Collection: "nope"}},
		{"bad origin", addDocumentRequest{Text: "x", Origin: "alien"}},
	}
	for _, tc := range cases {
		rec := doJSON(t, h, http.MethodPost, "/api/documents", tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: want 400, got %d", tc.name, rec.Code)
		}
	}
}

func Test_AddDocument_ProviderDownIs503(t *testing.T) {
	t.Parallel()
	fake := &fakeService{ingestErr: fmt.Errorf("ingest: %w", rag.ErrProviderUnavailable)}
	h := newTestServer(t, fake, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/documents", addDocumentRequest{Text: "metin"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503, got %d", rec.Code)
	}
}

func Test_Search_ReturnsResults(t *testing.T) {
	t.Parallel()
	now := time.Now()
	fake := &fakeService{searchResult: []rag.ScoredCandidate{{
		Chunk: rag.Chunk{
			ID:   "c1",
			Text: "Ali Veli 4821",
			Meta: rag.Metadata{Collection: "documents", DocumentID: "d1", Origin: rag.OriginDocument, IngestedAt: now},
		},
		KeywordMatch: true,
		HybridScore:  0.9,
		FinalScore:   0.9,
	}}}
	h := newTestServer(t, fake, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/search", searchRequest{
		Query:   "Ali Veli",
		TopK:    3,
		Origins: []string{"document"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != "c1" || !resp.Results[0].KeywordMatch {
		t.Errorf("unexpected results: %+v", resp.Results)
	}
	if len(fake.lastSearch.Filter.Origins) != 1 || fake.lastSearch.Filter.Origins[0] != rag.OriginDocument {
		t.Errorf("origin filter not forwarded: %+v", fake.lastSearch.Filter)
	}
}

func Test_Search_DegradedIs503(t *testing.T) {
	t.Parallel()
	fake := &fakeService{searchErr: fmt.Errorf("search: %w", rag.ErrRetrievalUnavailable)}
	h := newTestServer(t, fake, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/search", searchRequest{Query: "soru"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503, got %d", rec.Code)
	}
}

func Test_DeleteDocument_NotFoundWhenNothingRemoved(t *testing.T) {
	t.Parallel()
	h := newTestServer(t, &fakeService{deleted: false}, nil)

	rec := doJSON(t, h, http.MethodDelete, "/api/documents/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", rec.Code)
	}

	h2 := newTestServer(t, &fakeService{deleted: true}, nil)
	rec = doJSON(t, h2, http.MethodDelete, "/api/documents/doc-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
}

func Test_ClearCollection_UnknownIs404(t *testing.T) {
	t.Parallel()
	fake := &fakeService{cleared: 7}
	h := newTestServer(t, fake, nil)

	rec := doJSON(t, h, http.MethodDelete, "/api/collections/webcache", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	var resp clearCollectionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Removed != 7 {
		t.Errorf("want 7 removed, got %d", resp.Removed)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/collections/bogus", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown collection: want 404, got %d", rec.Code)
	}
}

func Test_MetricsSummary_ParsesWindow(t *testing.T) {
	t.Parallel()
	fake := &fakeService{summary: telemetry.Summary{Queries: 12, MeanReciprocalRank: 0.8}}
	h := newTestServer(t, fake, nil)

	rec := doJSON(t, h, http.MethodGet, "/api/metrics/retrieval?window=3600", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	var resp metricsSummaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Queries != 12 || resp.WindowSeconds != 3600 {
		t.Errorf("unexpected summary: %+v", resp)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/metrics/retrieval?window=banana", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad window: want 400, got %d", rec.Code)
	}
}

func Test_Health_AlwaysOK(t *testing.T) {
	t.Parallel()
	h := newTestServer(t, &fakeService{}, nil)

	rec := doJSON(t, h, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
}
