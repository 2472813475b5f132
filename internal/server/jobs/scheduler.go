// Package jobs runs the periodic maintenance sweeps of the server.
package jobs

import (
	"context"
	"time"

	"github.com/richmiles/in-the-event-of-my-death/internal/alerting"
	"github.com/richmiles/in-the-event-of-my-death/internal/logging"
)

type SecretSweeper interface {
	SweepClear(ctx context.Context) (int, error)
}

type ChallengeSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

type Alerter interface {
	Alert(ctx context.Context, a alerting.Alert) bool
}

// Scheduler clears due secrets and deletes expired challenges every
// interval. A failed sweep is logged and alerted; the next tick retries.
type Scheduler struct {
	secrets    SecretSweeper
	challenges ChallengeSweeper
	alerter    Alerter
	interval   time.Duration
	logger     logging.Logger
}

func NewScheduler(s SecretSweeper, c ChallengeSweeper, a Alerter, interval time.Duration, l logging.Logger) *Scheduler {
	return &Scheduler{
		secrets:    s,
		challenges: c,
		alerter:    a,
		interval:   interval,
		logger:     l.With("module", "scheduler"),
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	s.logger.Info(ctx, "scheduler started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "scheduler stopped")
			return
		case <-t.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs both sweeps. They are independent: one failing does not
// skip the other.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if n, err := s.secrets.SweepClear(ctx); err != nil {
		s.fail(ctx, "cleanup_secrets", err)
	} else {
		s.logger.Info(ctx, "cleanup secrets completed", "cleared_count", n)
	}

	if n, err := s.challenges.SweepExpired(ctx); err != nil {
		s.fail(ctx, "cleanup_challenges", err)
	} else {
		s.logger.Info(ctx, "cleanup challenges completed", "deleted_count", n)
	}
}

func (s *Scheduler) fail(ctx context.Context, job string, err error) {
	s.logger.Error(ctx, "scheduled job failed", "job_name", job, "error", err)
	if s.alerter == nil {
		return
	}
	s.alerter.Alert(ctx, alerting.Alert{
		Type:    "Scheduler Job Failed",
		Message: err.Error(),
		Context: map[string]string{"job_name": job},
	})
}
