package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/murtezaalemdar/CompanyAi-sub001/internal/ingestion"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/rag"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/search"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/telemetry"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry receives the server's Prometheus metrics and backs GET /metrics.
	// If nil, a private registry is created.
	Registry *prometheus.Registry
}

// corpusService is the interface the handlers call into the retrieval core.
// *knowledge.Service satisfies it; tests inject a fake.
type corpusService interface {
	AddDocument(ctx context.Context, req ingestion.Request) (ingestion.Result, error)
	AddDocumentAsync(req ingestion.Request) string
	Search(ctx context.Context, req search.Request) ([]rag.ScoredCandidate, error)
	DeleteDocument(ctx context.Context, documentID string) (bool, error)
	ClearCollection(ctx context.Context, name string) (int, error)
	MetricsSummary(window time.Duration) telemetry.Summary
}

// Server is the HTTP server that exposes the retrieval core.
type Server struct {
	// service is the retrieval core facade behind every handler.
	service corpusService
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the server-owned Prometheus instruments.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// addDocumentRequest is the JSON body for POST /api/documents.
type addDocumentRequest struct {
	// Text is the raw document text to ingest.
	Text string `json:"text"`
	// Collection is the target collection (default: "documents").
	Collection string `json:"collection,omitempty"`
	// DocumentID groups the resulting chunks. Generated when empty.
	DocumentID string `json:"document_id,omitempty"`
	// Department is the visibility tag of the source document.
	Department string `json:"department,omitempty"`
	// Origin is the provenance kind: document, learned, webcache.
	Origin string `json:"origin,omitempty"`
	// Async runs the ingestion in the background and returns immediately.
	Async bool `json:"async,omitempty"`
}

// addDocumentResponse is the JSON response for POST /api/documents.
type addDocumentResponse struct {
	// DocumentID identifies the ingested document.
	DocumentID string `json:"document_id"`
	// Accepted is true when at least one chunk was written. Always false in
	// async mode, where the outcome is not known yet.
	Accepted bool `json:"accepted"`
	// Reason explains a rejection ("duplicate", "low_quality").
	Reason string `json:"reason,omitempty"`
	// Written, Duplicates, and Rejected count the chunk outcomes.
	Written    int `json:"written"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
	// Async is true when the ingestion was queued instead of executed inline.
	Async bool `json:"async,omitempty"`
}

// searchRequest is the JSON body for POST /api/search.
type searchRequest struct {
	// Query is the raw user query.
	Query string `json:"query"`
	// Collections restricts the search. Empty = all collections.
	Collections []string `json:"collections,omitempty"`
	// TopK caps the result count (default 5).
	TopK int `json:"top_k,omitempty"`
	// Origins filters results by provenance kind.
	Origins []string `json:"origins,omitempty"`
	// After and Before bound the ingestion timestamp (RFC 3339).
	After  time.Time `json:"after,omitempty"`
	Before time.Time `json:"before,omitempty"`
}

// searchResult is one entry of the POST /api/search response.
type searchResult struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	DocumentID   string    `json:"document_id"`
	Collection   string    `json:"collection"`
	Department   string    `json:"department,omitempty"`
	Origin       string    `json:"origin"`
	IngestedAt   time.Time `json:"ingested_at"`
	KeywordMatch bool      `json:"keyword_match"`
	HybridScore  float64   `json:"hybrid_score"`
	FinalScore   float64   `json:"final_score"`
}

// searchResponse is the JSON response for POST /api/search.
type searchResponse struct {
	Results []searchResult `json:"results"`
}

// deleteDocumentResponse is the JSON response for DELETE /api/documents/{id}.
type deleteDocumentResponse struct {
	DocumentID string `json:"document_id"`
	Deleted    bool   `json:"deleted"`
}

// clearCollectionResponse is the JSON response for DELETE /api/collections/{name}.
type clearCollectionResponse struct {
	Collection string `json:"collection"`
	Removed    int    `json:"removed"`
}

// metricsSummaryResponse is the JSON response for GET /api/metrics/retrieval.
type metricsSummaryResponse struct {
	// WindowSeconds is the aggregation window that was applied (0 = all).
	WindowSeconds float64 `json:"window_seconds"`
	telemetry.Summary
}
