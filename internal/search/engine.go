// Package search implements the hybrid query engine: a vector
// nearest-neighbour pass blended with a literal keyword pass over the same
// collections, merged into one ranked candidate list.
//
// The two passes fail differently. Vector search misses literal identifiers
// (an employee number, a surname in a tabular record) that embeddings smear
// out; keyword search misses paraphrases. Blending both, with the weighting
// flipped in favour of keywords once a literal match exists, covers both
// failure modes.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/murtezaalemdar/CompanyAi-sub001/internal/config"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/rag"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/textnorm"
)

// Request describes one retrieval query.
type Request struct {
	// Query is the raw user query.
	Query string
	// Collections are the collection names to search. Empty = all product
	// collections.
	Collections []string
	// TopK is the maximum number of results. Defaults to 5.
	TopK int
	// Filter restricts results by chunk metadata.
	Filter rag.Filter
}

// Engine executes hybrid retrieval over a vector store. The read path takes
// no locks and is safe for any number of concurrent queries.
type Engine struct {
	vectors rag.VectorStore
	embed   rag.Embedder
	norm    *textnorm.Normalizer
	tuning  config.Tuning
	// learnedCollection gets the tighter semantic divisor and carries the
	// origin penalty for its learned chunks.
	learnedCollection string
	log               *slog.Logger
}

// NewEngine constructs an Engine.
func NewEngine(vectors rag.VectorStore, embed rag.Embedder, norm *textnorm.Normalizer, tuning config.Tuning, learnedCollection string, log *slog.Logger) *Engine {
	return &Engine{
		vectors:           vectors,
		embed:             embed,
		norm:              norm,
		tuning:            tuning,
		learnedCollection: learnedCollection,
		log:               log,
	}
}

// Search runs the full hybrid retrieval pipeline and returns up to TopK
// candidates ordered by descending hybrid score.
//
// An unreachable embedding provider fails the whole query with an error
// wrapping [rag.ErrRetrievalUnavailable]: a silently degraded half-result
// would be mistaken for "the corpus has nothing on this".
func (e *Engine) Search(ctx context.Context, req Request) ([]rag.ScoredCandidate, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("search: empty query")
	}
	collections := req.Collections
	if len(collections) == 0 {
		collections = config.Collections()
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 5
	}

	terms := e.norm.ExtractTerms(query)
	normalizedQuery := e.norm.Normalize(query)

	queryVec, err := e.embed.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w: %v", rag.ErrRetrievalUnavailable, err)
	}
	if len(queryVec) != 1 {
		return nil, fmt.Errorf("search: embedder returned %d vectors for one query", len(queryVec))
	}

	// Oversized per-collection pools: scoring decides the final mix, so one
	// large homogeneous collection cannot crowd the others out up front.
	seen := make(map[string]struct{})
	var candidates []rag.ScoredCandidate
	for _, collection := range collections {
		neighbors, err := e.vectors.Nearest(ctx, collection, queryVec[0], e.tuning.PoolPerCollection)
		if err != nil {
			return nil, fmt.Errorf("search: vector pass over %s: %w", collection, err)
		}
		for _, nb := range neighbors {
			seen[nb.Chunk.ID] = struct{}{}
			candidates = append(candidates, e.score(nb.Chunk, nb.Distance, collection, terms))
		}
	}

	supplementary, err := e.keywordOnlyPass(ctx, collections, normalizedQuery, terms, seen)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, supplementary...)

	// Metadata filters run by exclusion after scoring, so they cannot
	// change relative ranks.
	filtered := candidates[:0]
	for _, c := range candidates {
		if req.Filter.Matches(c.Chunk.Meta) {
			filtered = append(filtered, c)
		}
	}
	candidates = filtered

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.HybridScore != b.HybridScore {
			return a.HybridScore > b.HybridScore
		}
		if a.KeywordScore != b.KeywordScore {
			return a.KeywordScore > b.KeywordScore
		}
		return a.Chunk.Meta.IngestedAt.After(b.Chunk.Meta.IngestedAt)
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	e.log.Debug("search: query scored",
		slog.Int("terms", len(terms)),
		slog.Int("collections", len(collections)),
		slog.Int("results", len(candidates)),
		slog.String("tuning_revision", e.tuning.Revision),
	)
	return candidates, nil
}

// score computes the hybrid score of one vector-pass candidate.
func (e *Engine) score(chunk rag.Chunk, distance float64, collection string, terms []string) rag.ScoredCandidate {
	c := rag.ScoredCandidate{
		Chunk:         chunk,
		Distance:      distance,
		SemanticScore: e.semanticScore(distance, collection),
	}
	c.KeywordScore, c.KeywordMatch = e.keywordScore(chunk.Text, terms)
	c.HybridScore = e.blend(c)
	c.FinalScore = c.HybridScore
	return c
}

// semanticScore maps a raw distance into [0, 1]. The learned collection uses
// a tighter divisor because its embedding space clusters closer.
func (e *Engine) semanticScore(distance float64, collection string) float64 {
	divisor := e.tuning.SemanticDivisor
	if collection == e.learnedCollection {
		divisor = e.tuning.LearnedSemanticDivisor
	}
	score := 1 - distance/divisor
	if score < 0 {
		return 0
	}
	return score
}

// keywordScore checks each extracted term independently against the chunk
// text. Per-term checks are what make fielded records work: a surname in one
// column and a first name in another never appear as one phrase, but each
// term still matches on its own. Two or more distinct matching terms earn
// the multi-entity bonus.
func (e *Engine) keywordScore(text string, terms []string) (float64, bool) {
	if len(terms) == 0 {
		return 0, false
	}
	normalized := e.norm.Normalize(text)
	matched := 0
	for _, term := range terms {
		if e.norm.ContainsTerm(text, normalized, term) {
			matched++
		}
	}
	if matched == 0 {
		return 0, false
	}
	score := float64(matched) / float64(len(terms))
	if matched >= 2 {
		score += e.tuning.MultiEntityBonus
	}
	if score > 1 {
		score = 1
	}
	return score, true
}

// blend combines semantic and keyword scores, then applies the decay weight
// and the learned-origin penalty. A literal keyword match flips the blend
// weights so a vague vector neighbour cannot out-vote it.
func (e *Engine) blend(c rag.ScoredCandidate) float64 {
	var score float64
	if c.KeywordMatch {
		score = e.tuning.MatchedKeywordWeight*c.KeywordScore + e.tuning.MatchedSemanticWeight*c.SemanticScore
	} else {
		score = e.tuning.SemanticWeight*c.SemanticScore + e.tuning.KeywordWeight*c.KeywordScore
	}

	score *= c.Chunk.Meta.DecayWeight
	if c.Chunk.Meta.Origin == rag.OriginLearned {
		score *= e.tuning.LearnedOriginPenalty
	}
	return score
}

// keywordOnlyPass recovers literal matches the vector pass missed: chunks
// containing the query phrase or any extracted term that were not already in
// the candidate pool. Recovered candidates have no vector distance; their
// semantic score is zero and ranking rests on the keyword signal.
func (e *Engine) keywordOnlyPass(ctx context.Context, collections []string, normalizedQuery string, terms []string, seen map[string]struct{}) ([]rag.ScoredCandidate, error) {
	if len(terms) == 0 && normalizedQuery == "" {
		return nil, nil
	}

	var out []rag.ScoredCandidate
	for _, collection := range collections {
		added := 0
		err := e.vectors.Scan(ctx, collection, func(chunk rag.Chunk) bool {
			if _, dup := seen[chunk.ID]; dup {
				return true
			}

			normalized := e.norm.Normalize(chunk.Text)
			kwScore, match := e.keywordScore(chunk.Text, terms)
			if !match && !strings.Contains(normalized, normalizedQuery) {
				return true
			}

			c := rag.ScoredCandidate{
				Chunk:         chunk,
				Distance:      math.Inf(1),
				SemanticScore: 0,
				KeywordScore:  kwScore,
				KeywordMatch:  true,
			}
			c.HybridScore = e.blend(c)
			c.FinalScore = c.HybridScore
			seen[chunk.ID] = struct{}{}
			out = append(out, c)

			added++
			return added < e.tuning.PoolPerCollection
		})
		if err != nil {
			return nil, fmt.Errorf("search: keyword pass over %s: %w", collection, err)
		}
	}
	return out, nil
}
