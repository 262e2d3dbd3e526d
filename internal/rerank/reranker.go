// Package rerank reorders hybrid retrieval candidates with a heavier
// pairwise relevance model, while guaranteeing that the strongest literal
// keyword match survives the reordering.
package rerank

import (
	"context"
	"log/slog"
	"sort"

	"github.com/murtezaalemdar/CompanyAi-sub001/internal/config"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/rag"
)

// Reranker blends pairwise relevance scores into the hybrid ranking.
// A nil model disables reranking: candidates pass through in hybrid order.
type Reranker struct {
	model  rag.RelevanceModel
	tuning config.Tuning
	log    *slog.Logger

	// OnSkip, when set, is called once per query whose rerank pass was
	// skipped or degraded. Used for telemetry.
	OnSkip func()
}

// New constructs a Reranker. model may be nil to disable the pass.
func New(model rag.RelevanceModel, tuning config.Tuning, log *slog.Logger) *Reranker {
	return &Reranker{model: model, tuning: tuning, log: log}
}

// Rerank scores each candidate against the query and returns up to topK
// candidates ordered by the blended final score.
//
// Guarantee: the single candidate with the highest keyword score in the
// input always appears in the returned topK, even if its rerank score alone
// would have demoted it — it displaces the lowest-ranked candidate without a
// keyword match if necessary.
//
// An unreachable model is not an error: the pass is skipped and the
// hybrid-ordered list is returned unchanged.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []rag.ScoredCandidate, topK int) []rag.ScoredCandidate {
	if topK <= 0 || topK > len(candidates) {
		topK = len(candidates)
	}
	if r.model == nil || len(candidates) == 0 {
		r.skipped()
		return candidates[:topK]
	}

	reranked := make([]rag.ScoredCandidate, len(candidates))
	copy(reranked, candidates)
	for i := range reranked {
		score, err := r.model.Score(ctx, query, reranked[i].Chunk.Text)
		if err != nil {
			// Degrade, don't fail: hybrid order is a usable answer and the
			// caller cannot do anything better with an error here.
			r.log.Warn("rerank: model unavailable, keeping hybrid order",
				slog.String("error", err.Error()),
			)
			r.skipped()
			return candidates[:topK]
		}
		reranked[i].RerankScore = score
		reranked[i].FinalScore = r.tuning.RerankWeight*score + r.tuning.HybridWeight*reranked[i].HybridScore
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].FinalScore > reranked[j].FinalScore
	})

	top := reranked[:topK]
	r.enforceKeywordGuarantee(reranked, top)
	return top
}

func (r *Reranker) skipped() {
	if r.OnSkip != nil {
		r.OnSkip()
	}
}

// enforceKeywordGuarantee force-inserts the input's strongest keyword match
// into the top slice if reranking demoted it out, displacing the
// lowest-ranked entry without a keyword match.
func (r *Reranker) enforceKeywordGuarantee(all, top []rag.ScoredCandidate) {
	champion := -1
	for i, c := range all {
		if !c.KeywordMatch {
			continue
		}
		if champion == -1 || c.KeywordScore > all[champion].KeywordScore {
			champion = i
		}
	}
	if champion == -1 {
		return
	}

	championID := all[champion].Chunk.ID
	for _, c := range top {
		if c.Chunk.ID == championID {
			return
		}
	}

	// Displace the lowest non-keyword entry; if every entry matches a
	// keyword, displace the lowest-ranked one outright.
	victim := -1
	for i := len(top) - 1; i >= 0; i-- {
		if !top[i].KeywordMatch {
			victim = i
			break
		}
	}
	if victim == -1 {
		victim = len(top) - 1
	}

	r.log.Debug("rerank: keyword guarantee displaced a candidate",
		slog.String("inserted", championID),
		slog.String("displaced", top[victim].Chunk.ID),
	)
	copy(top[victim:], top[victim+1:])
	top[len(top)-1] = all[champion]
}
