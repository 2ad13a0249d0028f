package freshen

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/agentstation/freshen/pkg/errors"
	"github.com/agentstation/freshen/pkg/logging"
)

// Compile-time interface check to ensure proper implementation.
var _ AutoRefresher = (*client)(nil)

// AutoRefresher provides controls for the scheduled refresh jobs.
type AutoRefresher interface {
	// AutoRefreshOn schedules the configured refresh, expiry and prune jobs
	AutoRefreshOn() error

	// AutoRefreshOff stops the scheduled jobs and waits for running ones
	AutoRefreshOff() error
}

// AutoRefreshOn schedules the configured jobs. Calling it again restarts them.
func (c *client) AutoRefreshOn() error {
	if err := c.AutoRefreshOff(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	logger := cronLogger{}
	cr := cron.New(
		cron.WithParser(scheduleParser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"ai-research refresh", c.options.refreshSchedule, c.scheduledAIRefresh},
		{"api refresh", c.options.apiSchedule, c.scheduledAPIRefresh},
		{"expiry sweep", c.options.expireSchedule, c.scheduledExpire},
		{"refresh log prune", c.options.pruneSchedule, c.scheduledPrune},
	}
	scheduled := 0
	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		if _, err := cr.AddFunc(job.spec, c.cronJob(job.name, job.run)); err != nil {
			return errors.NewValidationError("schedule", job.spec, fmt.Sprintf("scheduling %s: %v", job.name, err))
		}
		logging.Info().Str("job", job.name).Str("schedule", job.spec).Msg("Scheduled refresh job")
		scheduled++
	}
	if scheduled == 0 {
		return errors.NewConfigError("auto-refresh", "no jobs scheduled", nil)
	}

	cr.Start()
	c.cron = cr
	return nil
}

// AutoRefreshOff stops the scheduled jobs and waits for running ones to finish.
func (c *client) AutoRefreshOff() error {
	c.mu.Lock()
	cr := c.cron
	c.cron = nil
	c.mu.Unlock()

	if cr != nil {
		<-cr.Stop().Done()
	}
	return nil
}

// cronJob wraps a scheduled job with a bounded context and error logging.
func (c *client) cronJob(name string, run func(context.Context) error) func() {
	return func() {
		ctx := context.Background()
		if c.options.runTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.options.runTimeout)
			defer cancel()
		}
		if err := run(ctx); err != nil {
			if stderrors.Is(err, errors.ErrLeaseHeld) {
				logging.Warn().Str("job", name).Msg("Skipping scheduled job, another run holds the lease")
				return
			}
			logging.Error().Err(err).Str("job", name).Msg("Scheduled job failed")
		}
	}
}

func (c *client) scheduledAIRefresh(ctx context.Context) error {
	if c.engine == nil {
		return nil
	}
	_, err := c.RefreshAIResearched(ctx)
	return err
}

func (c *client) scheduledAPIRefresh(ctx context.Context) error {
	_, err := c.RefreshAPISourced(ctx)
	return err
}

func (c *client) scheduledExpire(ctx context.Context) error {
	_, err := c.ExpireStaleContent(ctx, "")
	return err
}

func (c *client) scheduledPrune(ctx context.Context) error {
	_, err := c.PruneRefreshLogs(ctx, c.options.retentionDays)
	return err
}

// cronLogger routes scheduler logs through the package logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logging.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logging.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
