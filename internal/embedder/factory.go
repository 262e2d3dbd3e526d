package embedder

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/murtezaalemdar/CompanyAi-sub001/internal/config"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/rag"
)

// Default embedding endpoints per backend.
const (
	defaultOllamaHost = "http://localhost:11434"
	defaultOpenAIBase = "https://api.openai.com/v1"
)

// knownChatModelFragments contains name fragments that identify chat models
// which are NOT suitable for embedding. If the configured model matches any
// of these, a warning is emitted so the operator knows the pipeline is
// probably misconfigured.
var knownChatModelFragments = []string{
	"gpt-4", "gpt-3.5", "o1", "o3", "llama3", "llama-3", "mistral",
	"mixtral", "gemma", "phi-", "claude", "deepseek", "qwen",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, fragment := range knownChatModelFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// New constructs a rag.Embedder from the embedding configuration.
// Every collection in a deployment shares one embedder, which is what keeps
// embeddings within a collection comparable.
func New(cfg config.EmbeddingConfig, log *slog.Logger) (rag.Embedder, error) {
	if log != nil && cfg.Model != "" && looksLikeChatModel(cfg.Model) {
		log.Warn("embedder: configured model looks like a chat model, not an embedding model — "+
			"this will likely produce poor or broken embeddings",
			slog.String("model", cfg.Model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small"),
		)
	}

	switch cfg.Provider {
	case "", "ollama":
		host := cfg.Endpoint
		if host == "" {
			host = defaultOllamaHost
		}
		return NewOllamaEmbedder(&OllamaConfig{
			Host:  host,
			Model: cfg.Model,
		}), nil

	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: openai requires an API key (EMBEDDING_API_KEY or embedding.api_key)")
		}
		baseURL := cfg.Endpoint
		if baseURL == "" {
			baseURL = defaultOpenAIBase
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    baseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown provider %q — valid values: ollama, openai", cfg.Provider)
	}
}
