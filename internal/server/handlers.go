package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/murtezaalemdar/CompanyAi-sub001/internal/config"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/ingestion"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/logging"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/rag"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/search"
)

// maxDocumentBytes caps the request body of POST /api/documents.
const maxDocumentBytes = 16 << 20

// handleAddDocument handles POST /api/documents. Synchronous by default;
// async mode queues the ingestion and returns the document ID immediately.
func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req addDocumentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDocumentBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	collection := req.Collection
	if collection == "" {
		collection = config.CollectionDocuments
	}
	if !validCollection(collection) {
		http.Error(w, "unknown collection", http.StatusBadRequest)
		return
	}
	origin, ok := parseOrigin(req.Origin)
	if !ok {
		http.Error(w, "unknown origin", http.StatusBadRequest)
		return
	}

	ingestReq := ingestion.Request{
		Text:       req.Text,
		Collection: collection,
		DocumentID: req.DocumentID,
		Department: req.Department,
		Origin:     origin,
	}

	if req.Async {
		id := s.service.AddDocumentAsync(ingestReq)
		writeJSON(w, http.StatusAccepted, addDocumentResponse{DocumentID: id, Async: true})
		return
	}

	res, err := s.service.AddDocument(r.Context(), ingestReq)
	if err != nil {
		if errors.Is(err, rag.ErrProviderUnavailable) {
			http.Error(w, "embedding provider unavailable, retry later", http.StatusServiceUnavailable)
			return
		}
		log.Error("add document failed", slog.String("error", err.Error()))
		http.Error(w, "ingestion failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, addDocumentResponse{
		DocumentID: res.DocumentID,
		Accepted:   res.Accepted(),
		Reason:     res.Reason(),
		Written:    res.Written,
		Duplicates: res.Duplicates,
		Rejected:   res.Rejected,
	})
}

// handleSearch handles POST /api/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}
	for _, c := range req.Collections {
		if !validCollection(c) {
			http.Error(w, "unknown collection", http.StatusBadRequest)
			return
		}
	}

	filter := rag.Filter{After: req.After, Before: req.Before}
	for _, o := range req.Origins {
		origin, ok := parseOrigin(o)
		if !ok {
			http.Error(w, "unknown origin", http.StatusBadRequest)
			return
		}
		filter.Origins = append(filter.Origins, origin)
	}

	results, err := s.service.Search(r.Context(), search.Request{
		Query:       req.Query,
		Collections: req.Collections,
		TopK:        req.TopK,
		Filter:      filter,
	})
	if err != nil {
		if errors.Is(err, rag.ErrRetrievalUnavailable) {
			http.Error(w, "retrieval degraded: embedding provider unavailable", http.StatusServiceUnavailable)
			return
		}
		log.Error("search failed", slog.String("error", err.Error()))
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}

	resp := searchResponse{Results: make([]searchResult, 0, len(results))}
	for _, c := range results {
		resp.Results = append(resp.Results, searchResult{
			ID:           c.Chunk.ID,
			Text:         c.Chunk.Text,
			DocumentID:   c.Chunk.Meta.DocumentID,
			Collection:   c.Chunk.Meta.Collection,
			Department:   c.Chunk.Meta.Department,
			Origin:       string(c.Chunk.Meta.Origin),
			IngestedAt:   c.Chunk.Meta.IngestedAt,
			KeywordMatch: c.KeywordMatch,
			HybridScore:  c.HybridScore,
			FinalScore:   c.FinalScore,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDeleteDocument handles DELETE /api/documents/{id}.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "document id is required", http.StatusBadRequest)
		return
	}

	deleted, err := s.service.DeleteDocument(r.Context(), id)
	if err != nil {
		log.Error("delete document failed",
			slog.String("document_id", id),
			slog.String("error", err.Error()),
		)
		http.Error(w, "delete failed", http.StatusInternalServerError)
		return
	}
	status := http.StatusOK
	if !deleted {
		status = http.StatusNotFound
	}
	writeJSON(w, status, deleteDocumentResponse{DocumentID: id, Deleted: deleted})
}

// handleClearCollection handles DELETE /api/collections/{name}.
func (s *Server) handleClearCollection(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	name := r.PathValue("name")
	if !validCollection(name) {
		http.Error(w, "unknown collection", http.StatusNotFound)
		return
	}

	removed, err := s.service.ClearCollection(r.Context(), name)
	if err != nil {
		log.Error("clear collection failed",
			slog.String("collection", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "clear failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, clearCollectionResponse{Collection: name, Removed: removed})
}

// handleMetricsSummary handles GET /api/metrics/retrieval. The optional
// ?window=<seconds> query parameter bounds the aggregation window.
func (s *Server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	var window time.Duration
	if raw := r.URL.Query().Get("window"); raw != "" {
		secs, err := strconv.ParseFloat(raw, 64)
		if err != nil || secs < 0 {
			http.Error(w, "invalid window", http.StatusBadRequest)
			return
		}
		window = time.Duration(secs * float64(time.Second))
	}

	sum := s.service.MetricsSummary(window)
	writeJSON(w, http.StatusOK, metricsSummaryResponse{
		WindowSeconds: window.Seconds(),
		Summary:       sum,
	})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// validCollection reports whether name is one of the product collections.
func validCollection(name string) bool {
	for _, c := range config.Collections() {
		if c == name {
			return true
		}
	}
	return false
}

// parseOrigin maps the wire origin string to a rag.Origin. An empty string
// defaults to the document origin.
func parseOrigin(raw string) (rag.Origin, bool) {
	switch rag.Origin(raw) {
	case "":
		return rag.OriginDocument, true
	case rag.OriginDocument, rag.OriginLearned, rag.OriginWebCache:
		return rag.Origin(raw), true
	default:
		return "", false
	}
}
