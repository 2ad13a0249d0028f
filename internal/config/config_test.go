package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/freshen"
	"github.com/agentstation/freshen/pkg/errors"
)

const policiesYAML = `
modules:
  - module: pricing
    ttl_hours: 48
    priority: high
    refresh_source: ai-research
    keywords: [pricing]
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.ConfigFile)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, ProviderNone, cfg.Generator.Provider)
	assert.Equal(t, 90, cfg.Refresh.RetentionDays)
	assert.Equal(t, 2*time.Second, cfg.Refresh.ModuleDelay)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, "policies.yaml", policiesYAML)
	file := writeFile(t, dir, "freshen.yaml", `
policies_file: policies.yaml
store:
  driver: sqlite3
  dsn: "file::memory:?cache=shared"
generator:
  provider: anthropic
  model: claude-test
refresh:
  retention_days: 30
server:
  port: 9090
`)
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("FRESHEN_SERVER_PORT", "9191")

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, file, cfg.ConfigFile)
	assert.Equal(t, filepath.Join(dir, "policies.yaml"), cfg.PoliciesFile)
	assert.Equal(t, StoreSQLite, cfg.Store.Driver)
	assert.Equal(t, "sk-test", cfg.Generator.APIKey)
	assert.Equal(t, "claude-test", cfg.Generator.Model)
	assert.Equal(t, 30, cfg.Refresh.RetentionDays)
	assert.Equal(t, 9191, cfg.Server.Port, "environment overrides the file")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, ".env", "FRESHEN_LOG_LEVEL=debug\n")
	t.Cleanup(func() { _ = os.Unsetenv("FRESHEN_LOG_LEVEL") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	file := writeFile(t, dir, "bad.yaml", "store:\n  driver: oracle\n")
	_, err = Load(file)
	var cfgErr *errors.ConfigError
	assert.ErrorAs(t, err, &cfgErr)

	file = writeFile(t, dir, "nokey.yaml", "generator:\n  provider: gemini\n")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	_, err = Load(file)
	assert.ErrorIs(t, err, errors.ErrAPIKeyRequired)

	file = writeFile(t, dir, "nodsn.yaml", "store:\n  driver: postgres\n")
	_, err = Load(file)
	assert.ErrorAs(t, err, &cfgErr)
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	mr := miniredis.RunT(t)

	cfg, err := Load("")
	require.NoError(t, err)
	cfg.PoliciesFile = writeFile(t, dir, "policies.yaml", policiesYAML)
	cfg.Lease.RedisURL = "redis://" + mr.Addr()
	cfg.Refresh.ModuleDelay = 0

	comp, err := cfg.Build(context.Background())
	require.NoError(t, err)
	defer comp.Close()

	assert.Equal(t, []string{"pricing"}, comp.Policies.Modules())

	client, err := freshen.New(comp.Options...)
	require.NoError(t, err)

	// The api path runs under the redis lease and releases it afterwards.
	_, err = client.RefreshAPISourced(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mr.Keys())
}

func TestBuildSQLite(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Store = StoreConfig{Driver: StoreSQLite, DSN: ":memory:"}

	comp, err := cfg.Build(context.Background())
	require.NoError(t, err)
	defer comp.Close()

	client, err := freshen.New(comp.Options...)
	require.NoError(t, err)
	n, err := client.ExpireStaleContent(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestServerConfig(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Host: "0.0.0.0", Port: 9000, APIKey: "k", CORSOrigins: []string{"*"}}}
	sc := cfg.ServerConfig()
	assert.Equal(t, "0.0.0.0:9000", sc.Addr())
	assert.True(t, sc.AuthEnabled)
	assert.True(t, sc.CORSEnabled)
	assert.NoError(t, sc.Validate())
}
