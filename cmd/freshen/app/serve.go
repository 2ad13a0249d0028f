package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/agentstation/freshen/internal/server"
	"github.com/agentstation/freshen/pkg/constants"
)

// NewServeCommand creates the serve command.
func (a *App) NewServeCommand() *cobra.Command {
	var (
		host        string
		port        int
		autoRefresh bool
		rateLimit   int
		corsOrigins []string
	)
	cmd := &cobra.Command{
		Use:     "serve",
		GroupID: "core",
		Short:   "Serve the read API",
		Long: `Serve starts the HTTP read API over the configured store.

Endpoints (under /api/v1):
  GET  /modules                      modules and their policies
  GET  /modules/{module}/content     active items (?section=)
  GET  /modules/{module}/freshness   module freshness
  GET  /content/{key}                one item
  GET  /freshness                    every module's freshness
  GET  /refresh-logs                 refresh log (?module=&type=&status=&since=&limit=)
  POST /modules/{module}/refresh     run one ai-research cycle (?force=)
  POST /expire                       expire stale content (?module=)
  GET  /updates/ws                   refresh events over WebSocket

With --auto-refresh the scheduled refresh, expiry and prune jobs run
inside the server process.`,
		Example: `  freshen serve --port 9000
  freshen serve --auto-refresh --cors-origins https://dash.example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.config.ServerConfig()
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("rate-limit") {
				cfg.RateLimit = rateLimit
			}
			if len(corsOrigins) > 0 {
				cfg.CORSEnabled = true
				cfg.CORSOrigins = corsOrigins
			}
			return a.serve(cmd.Context(), cfg, autoRefresh)
		},
	}
	cmd.Flags().StringVar(&host, "host", "localhost", "bind address")
	cmd.Flags().IntVarP(&port, "port", "p", constants.DefaultServerPort, "server port")
	cmd.Flags().BoolVar(&autoRefresh, "auto-refresh", false, "run scheduled refresh jobs")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 100, "requests per minute per IP (0 to disable)")
	cmd.Flags().StringSliceVar(&corsOrigins, "cors-origins", nil, "allowed CORS origins (comma-separated)")
	return cmd
}

func (a *App) serve(ctx context.Context, cfg server.Config, autoRefresh bool) error {
	client, err := a.Client(ctx)
	if err != nil {
		return err
	}

	srv, err := server.New(client, a.Components().Metrics, cfg, a.logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Start(ctx)

	if autoRefresh {
		if err := client.AutoRefreshOn(); err != nil {
			return err
		}
	}

	httpServer := srv.HTTPServer()
	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", httpServer.Addr).Bool("auto_refresh", autoRefresh).Msg("Server starting")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- fmt.Errorf("server failed: %w", err)
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		a.logger.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.logger.Info().Msg("Server stopped gracefully")
	return nil
}
