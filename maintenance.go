package freshen

import (
	"context"
	"time"

	"github.com/agentstation/freshen/pkg/audit"
	"github.com/agentstation/freshen/pkg/errors"
	"github.com/agentstation/freshen/pkg/logging"
)

// AllModules labels audit entries of sweeps that covered every module.
const AllModules = "*"

// Compile-time interface check to ensure proper implementation.
var _ Maintainer = (*client)(nil)

// Maintainer runs the sweeps that bound staleness and log growth.
type Maintainer interface {
	// ExpireStaleContent deactivates active items past their expiry.
	// An empty module sweeps every module.
	ExpireStaleContent(ctx context.Context, module string) (int, error)

	// PruneRefreshLogs deletes refresh log entries older than daysToKeep days.
	PruneRefreshLogs(ctx context.Context, daysToKeep int) (int, error)
}

// ExpireStaleContent deactivates active items past their expiry and records
// the sweep in the refresh log.
func (c *client) ExpireStaleContent(ctx context.Context, module string) (int, error) {
	label := module
	if label == "" {
		label = AllModules
	}
	logger := logging.Ctx(logging.WithModule(ctx, label))
	begin := time.Now()

	n, err := c.store.ExpireStale(ctx, module)
	entry := audit.Entry{
		RunID:        logging.RunID(ctx),
		Module:       label,
		RefreshType:  audit.RefreshExpire,
		Status:       audit.StatusSuccess,
		ItemsChecked: n,
		ItemsExpired: n,
		Duration:     time.Since(begin),
	}
	if err != nil {
		entry.Status = audit.StatusFailed
		entry.ErrorMessage = err.Error()
	}
	if _, logErr := c.log.Append(context.WithoutCancel(ctx), entry); logErr != nil {
		logger.Error().Err(logErr).Msg("Failed to record expiry sweep")
	}
	if err != nil {
		return 0, errors.WrapResource("expire", "content", label, err)
	}

	logger.Info().Int("expired", n).Msg("Expired stale content")
	if n > 0 {
		c.hooks.contentExpired(label, n)
	}
	return n, nil
}

// PruneRefreshLogs deletes refresh log entries older than daysToKeep days.
func (c *client) PruneRefreshLogs(ctx context.Context, daysToKeep int) (int, error) {
	if daysToKeep < 0 {
		return 0, errors.NewValidationError("daysToKeep", daysToKeep, "days to keep must be non-negative")
	}
	cutoff := audit.Cutoff(c.policies.Now(), daysToKeep)
	n, err := c.log.Prune(ctx, cutoff)
	if err != nil {
		return 0, errors.WrapResource("prune", "refresh logs", cutoff.Format(time.RFC3339), err)
	}
	logging.Ctx(ctx).Info().Int("pruned", n).Int("days_to_keep", daysToKeep).Msg("Pruned refresh logs")
	return n, nil
}
