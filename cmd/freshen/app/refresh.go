package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/freshen/pkg/refresh"
)

type refreshFlags struct {
	force    bool
	priority bool
	timeout  time.Duration
}

func (f *refreshFlags) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&f.force, "force", "f", false, "refresh modules that are still fresh")
	cmd.Flags().BoolVar(&f.priority, "by-priority", false, "run critical modules first instead of declared order")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "bound the whole run (0 for the configured run timeout)")
}

// options builds the run options. A zero --timeout falls back to the
// configured run timeout.
func (f *refreshFlags) options(modules []string, runTimeout time.Duration) []refresh.Option {
	timeout := f.timeout
	if timeout == 0 {
		timeout = runTimeout
	}
	return []refresh.Option{
		refresh.WithForce(f.force),
		refresh.WithSortByPriority(f.priority),
		refresh.WithModules(modules...),
		refresh.WithTimeout(timeout),
	}
}

// NewRefreshCommand creates the refresh command.
func (a *App) NewRefreshCommand() *cobra.Command {
	var flags refreshFlags
	cmd := &cobra.Command{
		Use:     "refresh [module...]",
		GroupID: "core",
		Short:   "Reconcile stale ai-research modules",
		Long: `Refresh reconciles every stale ai-research module against recent
news evidence. Modules are visited in declared order, one generative
cycle at a time. Name modules to restrict the run.`,
		Example: `  freshen refresh
  freshen refresh ai-models pricing --force
  freshen refresh --by-priority -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRefresh(cmd, func(ctx context.Context, opts ...refresh.Option) (*refresh.RunResult, error) {
				client, err := a.Client(ctx)
				if err != nil {
					return nil, err
				}
				return client.RefreshAIResearched(ctx, opts...)
			}, flags.options(args, a.config.Refresh.RunTimeout))
		},
	}
	flags.bind(cmd)

	cmd.AddCommand(a.newRefreshAPICommand())
	return cmd
}

func (a *App) newRefreshAPICommand() *cobra.Command {
	var flags refreshFlags
	cmd := &cobra.Command{
		Use:   "api [module...]",
		Short: "Re-fetch api modules from their endpoints",
		Long: `Refresh api re-fetches every api module that declares an endpoint and
stores the response as the module's content.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRefresh(cmd, func(ctx context.Context, opts ...refresh.Option) (*refresh.RunResult, error) {
				client, err := a.Client(ctx)
				if err != nil {
					return nil, err
				}
				return client.RefreshAPISourced(ctx, opts...)
			}, flags.options(args, a.config.Refresh.RunTimeout))
		},
	}
	flags.bind(cmd)
	return cmd
}

type runFunc func(ctx context.Context, opts ...refresh.Option) (*refresh.RunResult, error)

func (a *App) runRefresh(cmd *cobra.Command, run runFunc, opts []refresh.Option) error {
	ctx := cmd.Context()
	res, err := run(ctx, opts...)
	if res != nil {
		a.logger.Info().
			Str("run_id", res.RunID).
			Int("refreshed", res.Refreshed).
			Int("skipped", res.Skipped).
			Int("failed", res.Failed).
			Dur("duration", res.Duration).
			Msg(res.Summary())
		if perr := a.print(cmd, runView{res}); perr != nil && err == nil {
			err = perr
		}
	}
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d of %d modules failed", res.Failed, len(res.Modules))
	}
	return nil
}
