// Package app wires configuration, logging and the freshen client into the
// CLI commands.
package app

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/freshen"
	"github.com/agentstation/freshen/internal/config"
	"github.com/agentstation/freshen/pkg/errors"
	"github.com/agentstation/freshen/pkg/logging"
)

// App holds the CLI dependencies. The client is created on first use.
type App struct {
	version string
	commit  string
	date    string
	builtBy string

	flags  Flags
	config *config.Config
	logger *zerolog.Logger

	mu     sync.Mutex
	comp   *config.Components
	client freshen.Client
}

// Flags are the global command-line flags.
type Flags struct {
	ConfigFile string
	Verbose    bool
	Quiet      bool
	LogLevel   string
	Format     string
}

// New creates an App with the given version information.
func New(version, commit, date, builtBy string) *App {
	return &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
		logger:  logging.Default(),
	}
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// Config returns the loaded configuration. It is nil before a command runs.
func (a *App) Config() *config.Config {
	return a.config
}

// load reads configuration and configures logging. It runs before every command.
func (a *App) load() error {
	cfg, err := config.Load(a.flags.ConfigFile)
	if err != nil {
		return err
	}
	a.config = cfg

	logger := NewLogger(cfg.Log, a.flags)
	a.logger = &logger
	logging.SetDefault(logger)
	return nil
}

// Client returns the freshen client, creating it if needed.
func (a *App) Client(ctx context.Context, opts ...freshen.Option) (freshen.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}
	if a.config == nil {
		return nil, errors.NewConfigError("app", "configuration not loaded", nil)
	}

	comp, err := a.config.Build(ctx)
	if err != nil {
		return nil, err
	}
	client, err := freshen.New(append(comp.Options, opts...)...)
	if err != nil {
		_ = comp.Close()
		return nil, errors.WrapResource("create", "client", "", err)
	}
	a.comp = comp
	a.client = client
	return client, nil
}

// Components returns what the client was built from, or nil before Client.
func (a *App) Components() *config.Components {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.comp
}

// Shutdown stops scheduled jobs and closes connections.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var err error
	if a.client != nil {
		err = a.client.AutoRefreshOff()
		a.client = nil
	}
	if a.comp != nil {
		if cerr := a.comp.Close(); cerr != nil && err == nil {
			err = cerr
		}
		a.comp = nil
	}
	return err
}

// ExitOnError prints err and exits with status 1.
func ExitOnError(err error) {
	if err != nil {
		_, _ = io.WriteString(os.Stderr, "Error: "+err.Error()+"\n")
		os.Exit(1)
	}
}
