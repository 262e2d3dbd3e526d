package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/murtezaalemdar/CompanyAi-sub001/internal/config"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/rag"
)

// HTTPModel implements rag.RelevanceModel against a rerank REST API
// (Cohere/Jina-compatible request shape). It is safe for concurrent use.
type HTTPModel struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewHTTPModel constructs an HTTPModel from the rerank configuration.
func NewHTTPModel(cfg config.RerankConfig) *HTTPModel {
	return &HTTPModel{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
	Error string `json:"error,omitempty"`
}

// Score returns the pairwise relevance of text to query, nominally in [0, 1].
// Transport failures and 5xx responses wrap [rag.ErrProviderUnavailable] so
// the Reranker degrades to hybrid order.
func (m *HTTPModel) Score(ctx context.Context, query, text string) (float64, error) {
	payload, err := json.Marshal(rerankRequest{
		Model:     m.model,
		Query:     query,
		Documents: []string{text},
	})
	if err != nil {
		return 0, fmt.Errorf("rerank model: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint+"/rerank", bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("rerank model: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rerank model: %w: %s", rag.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	// 5xx first: error bodies are not guaranteed to be JSON.
	if resp.StatusCode >= 500 {
		return 0, fmt.Errorf("rerank model: %w: HTTP %d", rag.ErrProviderUnavailable, resp.StatusCode)
	}

	var result rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("rerank model: decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if result.Error != "" {
			msg = result.Error
		}
		return 0, fmt.Errorf("rerank model: %s", msg)
	}

	if len(result.Results) != 1 {
		return 0, fmt.Errorf("rerank model: expected 1 result, got %d", len(result.Results))
	}
	return result.Results[0].RelevanceScore, nil
}
