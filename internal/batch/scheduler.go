package batch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aevon-lab/regraph/internal/core/query"
	"github.com/aevon-lab/regraph/internal/savedquery"
)

// Sink receives the report of every run, including interrupted ones.
type Sink func(*Report)

type runFunc func(context.Context, []savedquery.Definition) (*Report, error)

// Scheduler re-runs all definitions of a repository on a fixed interval.
// "since" queries move forward with the engine clock on every tick.
type Scheduler struct {
	interval time.Duration
	run      runFunc
	repo     savedquery.Repository
	sink     Sink
	logger   *slog.Logger
}

// NewScheduler creates a scheduler driving runner.
func NewScheduler[R query.Record](interval time.Duration, runner *Runner[R], repo savedquery.Repository, sink Sink) *Scheduler {
	return &Scheduler{
		interval: interval,
		run:      runner.Run,
		repo:     repo,
		sink:     sink,
		logger:   runner.logger,
	}
}

// Start runs once immediately and then on every tick until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("[Scheduler] Starting",
		"interval", s.interval,
		"queries", len(s.repo.Definitions()),
	)

	s.tick(ctx)
	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			s.logger.Info("[Scheduler] Stopping (context cancelled)")
			return nil
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	report, err := s.run(ctx, s.repo.Definitions())
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("[Scheduler] Run failed", "error", err)
	}
	if report != nil && s.sink != nil {
		s.sink(report)
	}
}
