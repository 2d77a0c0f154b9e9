package collection

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler drives the runner on a fixed tick. Cooperative batch execution:
// each tick runs whatever is due and the next tick picks up anything new.
type Scheduler struct {
	runner *Runner
	tick   time.Duration
	logger *slog.Logger
}

func NewScheduler(runner *Runner, tick time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{runner: runner, tick: tick, logger: logger}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.logger.Info("collection scheduler started", "tick", s.tick)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("collection scheduler stopped")
			return
		case now := <-ticker.C:
			ran, err := s.runner.RunDue(ctx, now.UTC())
			if err != nil {
				s.logger.Error("collection tick failed", "error", err)
				continue
			}
			if ran > 0 {
				s.logger.Info("collection tick complete", "jobs_run", ran)
			}
		}
	}
}
