package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/murtezaalemdar/CompanyAi-sub001/internal/config"
	"github.com/murtezaalemdar/CompanyAi-sub001/internal/rag"
)

// Sweeper periodically reduces the decay weight of auto-learned chunks so
// stale conversational facts fade relative to curated documents. Weights are
// floored, never zeroed: old facts lose influence but stay retrievable.
type Sweeper struct {
	vectors    rag.VectorStore
	collection string
	tuning     config.Tuning
	interval   time.Duration
	log        *slog.Logger

	// now is injectable for tests.
	now func() time.Time

	// OnSweep, when set, is called with the update count after each
	// successful sweep. Used for telemetry.
	OnSweep func(updated int)
}

// NewSweeper constructs a Sweeper over the given learned collection.
func NewSweeper(vectors rag.VectorStore, collection string, tuning config.Tuning, interval time.Duration, log *slog.Logger) *Sweeper {
	return &Sweeper{
		vectors:    vectors,
		collection: collection,
		tuning:     tuning,
		interval:   interval,
		log:        log,
		now:        time.Now,
	}
}

// DecayWeight returns the weight of a chunk ingested at the given time:
// (1 - rate) compounded per elapsed year, floored. Fractional years count,
// so the weight declines continuously rather than in annual steps.
func DecayWeight(ingestedAt, now time.Time, tuning config.Tuning) float64 {
	years := now.Sub(ingestedAt).Hours() / (24 * 365)
	if years <= 0 {
		return 1.0
	}
	weight := math.Pow(1-tuning.DecayRatePerYear, years)
	if weight < tuning.DecayFloor {
		return tuning.DecayFloor
	}
	return weight
}

// Run executes a sweep immediately and then on every interval tick until the
// context is cancelled. Sweep errors are logged, not fatal: the next tick
// retries.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweepLogged(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Debug("decay sweeper stopped")
			return
		case <-ticker.C:
			s.sweepLogged(ctx)
		}
	}
}

func (s *Sweeper) sweepLogged(ctx context.Context) {
	updated, err := s.SweepOnce(ctx)
	if err != nil {
		s.log.Warn("decay sweep failed", slog.String("error", err.Error()))
		return
	}
	s.log.Info("decay sweep finished",
		slog.String("collection", s.collection),
		slog.Int("updated", updated),
	)
	if s.OnSweep != nil {
		s.OnSweep(updated)
	}
}

// SweepOnce recomputes the decay weight of every learned chunk and writes
// back the ones that changed. Returns how many chunks were updated.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now()

	type update struct {
		id     string
		weight float64
	}
	var updates []update

	err := s.vectors.Scan(ctx, s.collection, func(c rag.Chunk) bool {
		if c.Meta.Origin != rag.OriginLearned {
			return true
		}
		weight := DecayWeight(c.Meta.IngestedAt, now, s.tuning)
		if math.Abs(weight-c.Meta.DecayWeight) > 1e-6 {
			updates = append(updates, update{id: c.ID, weight: weight})
		}
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("decay: scan %s: %w", s.collection, err)
	}

	for _, u := range updates {
		if err := s.vectors.UpdateDecayWeight(ctx, s.collection, u.id, u.weight); err != nil {
			return len(updates), fmt.Errorf("decay: update %s in %s: %w", u.id, s.collection, err)
		}
	}
	return len(updates), nil
}
