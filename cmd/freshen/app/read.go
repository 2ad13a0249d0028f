package app

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/freshen/pkg/audit"
	"github.com/agentstation/freshen/pkg/constants"
	"github.com/agentstation/freshen/pkg/content"
	"github.com/agentstation/freshen/pkg/errors"
)

// NewFreshnessCommand creates the freshness command.
func (a *App) NewFreshnessCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "freshness [module]",
		GroupID: "core",
		Short:   "Show how fresh each module is",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.Client(ctx)
			if err != nil {
				return err
			}
			var all []content.Freshness
			if len(args) == 1 {
				f, err := client.ModuleFreshness(ctx, args[0])
				if err != nil {
					return err
				}
				all = append(all, f)
			} else if all, err = client.AllModuleFreshness(ctx); err != nil {
				return err
			}
			return a.print(cmd, newFreshnessView(client.Policies(), all...))
		},
	}
}

// NewContentCommand creates the content command.
func (a *App) NewContentCommand() *cobra.Command {
	var section string
	cmd := &cobra.Command{
		Use:     "content <module|key>",
		GroupID: "core",
		Short:   "Show a module's active content or one item",
		Long: `Content lists the active items of a module. Given a content key of
the form module:section it shows that single item, active or not.`,
		Example: `  freshen content ai-models
  freshen content ai-models --section releases -o wide
  freshen content ai-models:main -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.Client(ctx)
			if err != nil {
				return err
			}
			if _, _, ok := content.SplitKey(args[0]); ok {
				it, found, err := client.ContentItem(ctx, args[0])
				if err != nil {
					return err
				}
				if !found {
					return errors.NewNotFoundError("content item", args[0])
				}
				return a.print(cmd, itemsView{it})
			}
			items, err := client.ModuleContent(ctx, args[0], section)
			if err != nil {
				return err
			}
			return a.print(cmd, itemsView(items))
		},
	}
	cmd.Flags().StringVar(&section, "section", "", "only items of this section")
	return cmd
}

// NewPoliciesCommand creates the policies command.
func (a *App) NewPoliciesCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "policies",
		GroupID: "management",
		Short:   "List module freshness policies",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.Client(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(cmd, newPoliciesView(client.Policies()))
		},
	}
}

// NewLogsCommand creates the logs command.
func (a *App) NewLogsCommand() *cobra.Command {
	var (
		f     audit.Filter
		typ   string
		state string
		since time.Duration
	)
	cmd := &cobra.Command{
		Use:     "logs",
		GroupID: "management",
		Short:   "Show refresh log entries, newest first",
		Example: `  freshen logs --module ai-models --since 72h
  freshen logs --status failed -o wide`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, err := a.Client(ctx)
			if err != nil {
				return err
			}
			if f.Limit < 1 || f.Limit > constants.MaxPageSize {
				return errors.NewValidationError("limit", f.Limit, "limit must be between 1 and 1000")
			}
			f.RefreshType = audit.RefreshType(typ)
			f.Status = audit.Status(state)
			if since > 0 {
				f.Since = client.Policies().Now().Add(-since)
			}
			entries, err := client.RefreshLogs(ctx, f)
			if err != nil {
				return err
			}
			return a.print(cmd, logsView(entries))
		},
	}
	cmd.Flags().StringVar(&f.Module, "module", "", "only this module")
	cmd.Flags().StringVar(&typ, "type", "", "only this refresh type: ai-research, api, expire")
	cmd.Flags().StringVar(&state, "status", "", "only this status: success, failed")
	cmd.Flags().StringVar(&f.RunID, "run", "", "only this run id")
	cmd.Flags().DurationVar(&since, "since", 0, "only entries newer than this")
	cmd.Flags().IntVar(&f.Limit, "limit", constants.DefaultPageSize, "maximum entries")
	return cmd
}
