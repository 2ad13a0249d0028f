// Package constants provides shared constants used throughout freshen.
// This includes timeouts, limits, file permissions, and the defaults
// that the refresh cycle falls back on when nothing is configured.
package constants

import "time"

// Timeout constants define various timeout durations used in the application
const (
	// DefaultHTTPTimeout is the standard timeout for HTTP requests to API sources and the evidence corpus
	DefaultHTTPTimeout = 30 * time.Second

	// GenerateTimeout bounds a single generative call
	GenerateTimeout = 2 * time.Minute

	// CommandTimeout is the default timeout for CLI commands
	CommandTimeout = 30 * time.Minute

	// ShutdownTimeout is the grace period for the HTTP server to drain
	ShutdownTimeout = 10 * time.Second

	// LeaseTTL is how long a refresh run lease lives before it must be renewed
	LeaseTTL = 45 * time.Minute
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644
)

// Refresh defaults
const (
	// DefaultTTL applies to modules without a declared policy (30 days)
	DefaultTTL = 720 * time.Hour

	// DefaultEvidenceDays is the evidence window when none is given
	DefaultEvidenceDays = 7

	// MaxEvidenceItems caps the evidence handed to a single cycle
	MaxEvidenceItems = 20

	// DefaultModuleDelay is the pause between two generative cycles in a run
	DefaultModuleDelay = 2 * time.Second

	// DefaultMaxTokens is the output token cap per generative call
	DefaultMaxTokens = 4096

	// MaxContractRetries is how many times a malformed response is retried
	MaxContractRetries = 1

	// SummaryRunesPerItem truncates each item's projection in the prompt
	SummaryRunesPerItem = 1500

	// SummaryRunesTotal caps the whole current-state section of the prompt
	SummaryRunesTotal = 24000

	// DefaultUpdateConfidence is recorded when an update carries no confidence
	DefaultUpdateConfidence = 0.7

	// DefaultNewItemConfidence is recorded when a new item carries no confidence
	DefaultNewItemConfidence = 0.6

	// DefaultLogRetentionDays is how long refresh logs are kept by the scheduled prune
	DefaultLogRetentionDays = 90
)

// Server defaults
const (
	// DefaultServerPort is the port the read API listens on
	DefaultServerPort = 8080

	// DefaultPageSize is the default number of refresh logs returned per request
	DefaultPageSize = 100

	// MaxPageSize bounds the limit query parameter
	MaxPageSize = 1000
)
