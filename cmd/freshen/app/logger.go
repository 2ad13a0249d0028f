package app

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/agentstation/freshen/internal/config"
	"github.com/agentstation/freshen/pkg/logging"
)

// NewLogger creates a logger from configuration and flags.
// Log level precedence (highest to lowest):
//  1. --log-level flag
//  2. -v/--verbose flag (debug)
//  3. -q/--quiet flag (warn)
//  4. log.level from config or FRESHEN_LOG_LEVEL
func NewLogger(cfg config.LogConfig, flags Flags) zerolog.Logger {
	level := determineLogLevel(cfg, flags)
	return logging.NewLoggerFromConfig(&logging.Config{
		Level:     level,
		Format:    cfg.Format,
		Output:    cfg.Output,
		AddCaller: level == "debug" || level == "trace",
	})
}

func determineLogLevel(cfg config.LogConfig, flags Flags) string {
	if flags.LogLevel != "" {
		validated := validateLogLevel(flags.LogLevel)
		if validated != flags.LogLevel {
			fmt.Fprintf(os.Stderr, "Warning: invalid log level %q, using %q\n", flags.LogLevel, validated)
		}
		return validated
	}

	if flags.Verbose && flags.Quiet {
		fmt.Fprintf(os.Stderr, "Warning: both --verbose and --quiet specified, using --quiet\n")
		return "warn"
	}
	if flags.Verbose {
		return "debug"
	}
	if flags.Quiet {
		return "warn"
	}
	if cfg.Level != "" {
		return validateLogLevel(cfg.Level)
	}
	return "info"
}

func validateLogLevel(level string) string {
	switch level {
	case "trace", "debug", "info", "warn", "error":
		return level
	}
	return "info"
}
