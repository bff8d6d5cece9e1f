package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hickar/replybot/internal/app/config"
	"github.com/hickar/replybot/internal/app/mailer"
)

type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	scheduler scheduler
	runner    CycleRunner
}

type scheduler interface {
	ScheduleWithCtx(context.Context, schedulerSettings) error
	Stop()
}

type CycleRunner interface {
	RunCycle(context.Context) (mailer.CycleReport, error)
}

func NewDaemon(
	cfg *config.Config,
	scheduler scheduler,
	runner CycleRunner,
	logger *slog.Logger,
) *Daemon {
	return &Daemon{
		cfg:       cfg,
		scheduler: scheduler,
		runner:    runner,
		logger:    logger,
	}
}

// Start runs processing cycles until ctx is cancelled and returns the context's error.
//
// A failed cycle never stops the daemon: it is logged and the next cycle is
// attempted after the retry cooldown instead of the poll interval.
func (d *Daemon) Start(ctx context.Context) error {
	err := d.scheduler.ScheduleWithCtx(ctx, schedulerSettings{
		LaunchInitially: true, // Execute the job immediately upon scheduling.
		Interval:        d.cfg.PollInterval(),
		Cooldown:        d.cfg.RetryCooldown,
		Callback:        d.runCycle,
	})
	if err != nil {
		return fmt.Errorf("error occurred while launching the scheduler: %w", err)
	}
	d.logger.InfoContext(ctx, "email assistant started",
		slog.String("account", d.cfg.EmailAddress),
		slog.Duration("interval", d.cfg.PollInterval()),
	)

	<-ctx.Done()
	d.logger.InfoContext(ctx, "shutting down, waiting for the current cycle to finish")
	d.scheduler.Stop()

	return ctx.Err()
}

func (d *Daemon) runCycle(ctx context.Context) error {
	started := time.Now()

	report, err := d.runner.RunCycle(ctx)
	if err != nil {
		d.logger.ErrorContext(ctx, "processing cycle failed",
			slog.Any("error", err),
			slog.Duration("retry_in", d.cfg.RetryCooldown),
		)
		return err
	}

	d.logger.DebugContext(ctx, "processing cycle finished",
		slog.Int("messages", len(report.Outcomes)),
		slog.Int("sent", report.Sent()),
		slog.Duration("took", time.Since(started)),
	)

	return nil
}
