package app

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/freshen/internal/config"
	"github.com/agentstation/freshen/pkg/errors"
	"github.com/agentstation/freshen/pkg/refresh"
)

const testConfig = `
policies_file: policies.yaml
refresh:
  module_delay: 0s
log:
  level: error
  output: discard
`

const testPolicies = `
modules:
  - module: ai-models
    ttl_hours: 24
    priority: critical
    refresh_source: ai-research
    keywords: [model]
  - module: rates
    ttl_hours: 1
    priority: low
    refresh_source: api
`

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".freshen.yaml"), []byte(testConfig), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "policies.yaml"), []byte(testPolicies), 0o600))

	a := New("1.2.3", "abc", "today", "test")
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func run(t *testing.T, a *App, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := a.NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPoliciesCommand(t *testing.T) {
	a := newTestApp(t)

	out, err := run(t, a, "policies", "-o", "json")
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "ai-models", rows[0]["module"])
	assert.Equal(t, "critical", rows[0]["priority"])
	assert.Equal(t, "rates", rows[1]["module"])

	out, err = run(t, a, "policies", "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "ai-models")
	assert.Contains(t, out, "24h")
}

func TestFreshnessCommand(t *testing.T) {
	a := newTestApp(t)

	out, err := run(t, a, "freshness", "-o", "json")
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.EqualValues(t, 0, rows[0]["active"])
	assert.EqualValues(t, 24, rows[0]["ttl_hours"])

	out, err = run(t, a, "freshness", "rates", "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "empty")
}

func TestContentCommand(t *testing.T) {
	a := newTestApp(t)

	out, err := run(t, a, "content", "ai-models", "-o", "json")
	require.NoError(t, err)
	var items []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	assert.Empty(t, items)

	_, err = run(t, a, "content", "ai-models:main")
	assert.True(t, errors.IsNotFound(err))

	_, err = run(t, a, "content")
	assert.Error(t, err)
}

func TestRefreshWithoutGenerator(t *testing.T) {
	a := newTestApp(t)

	_, err := run(t, a, "refresh")
	var cfgErr *errors.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestExpireAndLogs(t *testing.T) {
	a := newTestApp(t)

	out, err := run(t, a, "expire")
	require.NoError(t, err)
	assert.Equal(t, "Expired 0 items (*)\n", out)

	out, err = run(t, a, "logs", "--type", "expire", "-o", "json")
	require.NoError(t, err)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "*", entries[0]["module"])

	_, err = run(t, a, "logs", "--limit", "0")
	assert.True(t, errors.IsValidationError(err))

	out, err = run(t, a, "prune", "--days", "30")
	require.NoError(t, err)
	assert.Contains(t, out, "Pruned 0 refresh log entries")

	_, err = run(t, a, "prune", "--days", "-1")
	assert.True(t, errors.IsValidationError(err))
}

func TestVersionCommand(t *testing.T) {
	a := New("1.2.3", "abc", "today", "test")
	out, err := run(t, a, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "freshen version 1.2.3")
	assert.Contains(t, out, "commit: abc")
}

func TestInvalidFormat(t *testing.T) {
	a := newTestApp(t)
	_, err := run(t, a, "policies", "-o", "xml")
	assert.Error(t, err)
}

func TestDetermineLogLevel(t *testing.T) {
	tests := []struct {
		name  string
		level string
		flags Flags
		want  string
	}{
		{"default", "", Flags{}, "info"},
		{"config", "warn", Flags{}, "warn"},
		{"verbose", "warn", Flags{Verbose: true}, "debug"},
		{"quiet wins", "", Flags{Verbose: true, Quiet: true}, "warn"},
		{"explicit", "", Flags{LogLevel: "trace", Quiet: true}, "trace"},
		{"invalid", "", Flags{LogLevel: "loud"}, "info"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, determineLogLevel(configLog(tt.level), tt.flags))
		})
	}
}

func configLog(level string) config.LogConfig {
	return config.LogConfig{Level: level}
}

func TestRefreshTimeoutFallback(t *testing.T) {
	var flags refreshFlags

	o := refresh.Defaults().Apply(flags.options(nil, 30*time.Minute)...)
	assert.Equal(t, 30*time.Minute, o.Timeout)

	flags.timeout = time.Minute
	o = refresh.Defaults().Apply(flags.options([]string{"x"}, 30*time.Minute)...)
	assert.Equal(t, time.Minute, o.Timeout)
	assert.Equal(t, []string{"x"}, o.Modules)
}
