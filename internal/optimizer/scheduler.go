package optimizer

import (
	"context"
	"log/slog"
	"time"

	"github.com/castora/adops/internal/storage"
)

// IntegrationLister is the slice of storage the scheduler polls.
type IntegrationLister interface {
	ListAutonomousIntegrations() ([]storage.Integration, error)
}

// Scheduler periodically runs the optimizer over every integration with
// autonomous mode enabled. Per-run failures are logged and never stop the
// loop; the account gets retried on the next tick.
type Scheduler struct {
	store     IntegrationLister
	optimizer *Optimizer
	interval  time.Duration
	logger    *slog.Logger
}

// NewScheduler creates a Scheduler. If interval <= 0, it defaults to 1h.
func NewScheduler(store IntegrationLister, opt *Optimizer, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		store:     store,
		optimizer: opt,
		interval:  interval,
		logger:    slog.Default(),
	}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce sweeps every autonomous integration exactly once.
func (s *Scheduler) RunOnce(ctx context.Context) {
	integrations, err := s.store.ListAutonomousIntegrations()
	if err != nil {
		s.logger.Error("listing autonomous integrations failed", "error", err)
		return
	}

	for _, integ := range integrations {
		if ctx.Err() != nil {
			return
		}
		res, err := s.optimizer.Run(ctx, integ.AccountID, "scheduled")
		if err != nil {
			s.logger.Error("scheduled run failed", "account", integ.AccountID, "error", err)
			continue
		}
		if res.Disabled {
			continue
		}
		s.logger.Info("scheduled run applied actions", "account", integ.AccountID, "applied", res.ActionsApplied)
	}
}
