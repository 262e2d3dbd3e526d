package telemetry

import (
	"sync"
	"time"

	"github.com/murtezaalemdar/CompanyAi-sub001/internal/rag"
)

// Sample is the rank-quality record of one query.
type Sample struct {
	// At is when the query finished.
	At time.Time
	// Latency is the end-to-end query duration.
	Latency time.Duration
	// TopScore is the final score of the best-ranked candidate, 0 when the
	// query returned nothing.
	TopScore float64
	// ReciprocalRank is 1/rank of the first keyword-matching candidate,
	// 0 when no candidate matched a keyword.
	ReciprocalRank float64
}

// Summary aggregates samples inside a time window.
type Summary struct {
	// Queries is the number of samples in the window.
	Queries int `json:"queries"`
	// AvgLatency is the mean query latency.
	AvgLatency time.Duration `json:"avg_latency_ns"`
	// AvgScore is the mean top-candidate final score.
	AvgScore float64 `json:"avg_score"`
	// MeanReciprocalRank averages the per-query reciprocal rank of the first
	// keyword-matching candidate. Tracked per tuning revision: a parameter
	// change that tanks MRR shows up here before users complain.
	MeanReciprocalRank float64 `json:"mean_reciprocal_rank"`
}

// Recorder keeps the most recent query samples in a fixed-size ring.
// Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	samples []Sample
	next    int
	filled  bool

	// now is injectable for tests.
	now func() time.Time
}

// NewRecorder constructs a Recorder holding up to capacity samples.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Recorder{
		samples: make([]Sample, capacity),
		now:     time.Now,
	}
}

// RecordQuery derives a sample from a served query's results and stores it.
func (r *Recorder) RecordQuery(latency time.Duration, results []rag.ScoredCandidate) {
	s := Sample{
		Latency:        latency,
		ReciprocalRank: ReciprocalRank(results),
	}
	if len(results) > 0 {
		s.TopScore = results[0].FinalScore
	}
	r.Record(s)
}

// Record stores one sample, evicting the oldest when the ring is full.
func (r *Recorder) Record(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.At.IsZero() {
		s.At = r.now()
	}
	r.samples[r.next] = s
	r.next++
	if r.next == len(r.samples) {
		r.next = 0
		r.filled = true
	}
}

// Summarize aggregates the samples recorded within the past window.
// A zero window means all retained samples.
func (r *Recorder) Summarize(window time.Duration) Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Time{}
	if window > 0 {
		cutoff = r.now().Add(-window)
	}

	count := r.next
	if r.filled {
		count = len(r.samples)
	}

	var sum Summary
	var latency time.Duration
	var score, mrr float64
	for i := 0; i < count; i++ {
		s := r.samples[i]
		if !cutoff.IsZero() && s.At.Before(cutoff) {
			continue
		}
		sum.Queries++
		latency += s.Latency
		score += s.TopScore
		mrr += s.ReciprocalRank
	}
	if sum.Queries == 0 {
		return sum
	}
	sum.AvgLatency = latency / time.Duration(sum.Queries)
	sum.AvgScore = score / float64(sum.Queries)
	sum.MeanReciprocalRank = mrr / float64(sum.Queries)
	return sum
}

// ReciprocalRank returns 1/rank of the first keyword-matching candidate in
// an ordered result list, or 0 when none matched.
func ReciprocalRank(results []rag.ScoredCandidate) float64 {
	for i, c := range results {
		if c.KeywordMatch {
			return 1 / float64(i+1)
		}
	}
	return 0
}
