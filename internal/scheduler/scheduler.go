package scheduler

import (
	"context"
	"log/slog"
	"time"

	"auction_scout/internal/domain"
)

// Runner performs one ingestion run and sweeps expired items.
type Runner interface {
	Run(ctx context.Context) (*domain.RunStats, error)
	Sweep(ctx context.Context) (int64, error)
}

// UrgentChecker announces profitable items whose auctions end soon.
type UrgentChecker interface {
	Check(ctx context.Context) ([]domain.RankedItem, error)
}

type Scheduler struct {
	runner         Runner
	interval       time.Duration
	runTimeout     time.Duration
	urgent         UrgentChecker
	urgentInterval time.Duration
	logger         *slog.Logger
}

func NewScheduler(runner Runner, interval, runTimeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		runTimeout: runTimeout,
		logger:     logger.With("component", "scheduler"),
	}
}

// WithUrgentCheck adds an urgent item check every interval and after each run.
func (s *Scheduler) WithUrgentCheck(checker UrgentChecker, interval time.Duration) *Scheduler {
	s.urgent = checker
	s.urgentInterval = interval
	return s
}

// Start runs immediately and then once per interval until ctx is done. Runs
// and urgent checks never overlap: one that outlasts its interval delays the
// next tick.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"interval", s.interval,
		"run_timeout", s.runTimeout,
		"urgent_interval", s.urgentInterval,
	)

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var urgentC <-chan time.Time
	if s.urgent != nil {
		urgentTicker := time.NewTicker(s.urgentInterval)
		defer urgentTicker.Stop()
		urgentC = urgentTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		case <-urgentC:
			s.checkUrgent(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	stats, err := s.runner.Run(runCtx)
	if err == nil {
		s.checkUrgent(ctx)
		return
	}
	s.logger.Error("run failed", "error", err)

	if ctx.Err() != nil || (stats != nil && stats.Status == domain.SessionCompleted) {
		return
	}

	// a failed run skips its own sweep
	if _, err := s.runner.Sweep(context.WithoutCancel(ctx)); err != nil {
		s.logger.Error("sweep failed", "error", err)
	}
}

func (s *Scheduler) checkUrgent(ctx context.Context) {
	if s.urgent == nil || ctx.Err() != nil {
		return
	}

	checkCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	if _, err := s.urgent.Check(checkCtx); err != nil {
		s.logger.Error("urgent check failed", "error", err)
	}
}
