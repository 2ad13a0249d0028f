package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentstation/freshen"
)

// NewExpireCommand creates the expire command.
func (a *App) NewExpireCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "expire [module]",
		GroupID: "management",
		Short:   "Deactivate content past its expiry",
		Long: `Expire deactivates every active item whose expiry has passed.
Expired items stay in the store and come back on the next refresh.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.Client(cmd.Context())
			if err != nil {
				return err
			}
			module := ""
			if len(args) == 1 {
				module = args[0]
			}
			n, err := client.ExpireStaleContent(cmd.Context(), module)
			if err != nil {
				return err
			}
			if module == "" {
				module = freshen.AllModules
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Expired %d items (%s)\n", n, module)
			return err
		},
	}
}

// NewPruneCommand creates the prune command.
func (a *App) NewPruneCommand() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:     "prune",
		GroupID: "management",
		Short:   "Delete old refresh log entries",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.Client(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("days") {
				days = a.config.Refresh.RetentionDays
			}
			n, err := client.PruneRefreshLogs(cmd.Context(), days)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d refresh log entries older than %d days\n", n, days)
			return err
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "days of logs to keep (default from refresh.retention_days)")
	return cmd
}
