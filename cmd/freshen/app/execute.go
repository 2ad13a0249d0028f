package app

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/agentstation/freshen/internal/cmd/output"
)

// Execute runs the CLI with the given arguments.
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.NewRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// NewRootCommand creates the root command with every subcommand.
func (a *App) NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "freshen",
		Short:   "Content freshness and AI reconciliation engine",
		Version: a.version,
		Long: `Freshen keeps keyed dashboard content fresh.

Each module declares a freshness policy. Stale ai-research modules are
reconciled against recent news evidence by a generative model, api modules
are re-fetched from their endpoints, and expired content is swept out.`,
		PersistentPreRunE: func(*cobra.Command, []string) error { return a.load() },
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.AddGroup(
		&cobra.Group{ID: "core", Title: "Core Commands:"},
		&cobra.Group{ID: "management", Title: "Management Commands:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.flags.ConfigFile, "config", "", "config file (default is ./.freshen.yaml or $HOME/.freshen.yaml)")
	flags.BoolVarP(&a.flags.Verbose, "verbose", "v", false, "verbose output (shortcut for --log-level=debug)")
	flags.BoolVarP(&a.flags.Quiet, "quiet", "q", false, "minimal output (shortcut for --log-level=warn)")
	flags.StringVar(&a.flags.LogLevel, "log-level", "", "log level: trace, debug, info, warn, error (overrides -v/-q)")
	flags.StringVarP(&a.flags.Format, "format", "o", "", "output format: table, json, yaml, wide")

	rootCmd.SetVersionTemplate("freshen {{.Version}}\n")

	rootCmd.AddCommand(
		a.NewRefreshCommand(),
		a.NewFreshnessCommand(),
		a.NewContentCommand(),
		a.NewServeCommand(),
		a.NewExpireCommand(),
		a.NewPruneCommand(),
		a.NewPoliciesCommand(),
		a.NewLogsCommand(),
		a.NewVersionCommand(),
	)
	return rootCmd
}

// print writes data to the command output in the selected format.
func (a *App) print(cmd *cobra.Command, data any) error {
	format, err := output.ParseFormat(a.flags.Format)
	if err != nil {
		return err
	}
	if format == "" {
		format = output.DetectFormat("")
	}
	return output.NewFormatter(format).Format(cmd.OutOrStdout(), data)
}
