package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flight-radar/internal/logger"
	"flight-radar/internal/services"

	"github.com/mileusna/crontab"
	"github.com/rs/zerolog"
)

type Reconciler interface {
	RunOnce(ctx context.Context, now time.Time) (services.ReconcileReport, error)
}

// Crontab runs arrival reconciliation on a cron schedule.
type Crontab struct {
	ctab       *crontab.Crontab
	reconciler Reconciler
	schedule   string
	jobTimeout time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

// NewCrontab schedules reconciler at schedule (five-field cron, UTC host
// clock). An empty schedule disables the job.
func NewCrontab(reconciler Reconciler, schedule string, jobTimeout time.Duration) *Crontab {
	return &Crontab{
		ctab:       crontab.New(),
		reconciler: reconciler,
		schedule:   schedule,
		jobTimeout: jobTimeout,
		now:        time.Now,
		log:        logger.Component("scheduler"),
	}
}

// Run blocks until ctx is done.
func (c *Crontab) Run(ctx context.Context) error {
	defer c.ctab.Shutdown()

	if c.schedule == "" {
		c.log.Info().Msg("Arrival reconciliation schedule disabled")
		<-ctx.Done()
		return nil
	}

	if err := c.ctab.AddJob(c.schedule, func() { c.runJob(ctx) }); err != nil {
		return fmt.Errorf("failed to add reconciliation job %q: %w", c.schedule, err)
	}
	c.log.Info().Str("schedule", c.schedule).Msg("Arrival reconciliation scheduled")

	<-ctx.Done()
	return nil
}

func (c *Crontab) runJob(ctx context.Context) {
	jobCtx, cancel := context.WithTimeout(ctx, c.jobTimeout)
	defer cancel()

	report, err := c.reconciler.RunOnce(jobCtx, c.now())
	if errors.Is(err, services.ErrReconcileRunning) {
		c.log.Warn().Msg("Previous reconciliation still running, skipping")
		return
	}
	if err != nil {
		c.log.Error().Err(err).Msg("Scheduled reconciliation failed")
		return
	}
	c.log.Info().
		Int("resolved", report.Resolved).
		Int("retried", report.Retried).
		Msg("Scheduled reconciliation done")
}
