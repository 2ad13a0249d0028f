// Package config loads freshen configuration from config files, .env files
// and the environment, and turns it into client options.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/freshen"
	"github.com/agentstation/freshen/internal/lease"
	"github.com/agentstation/freshen/pkg/constants"
	"github.com/agentstation/freshen/pkg/errors"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "FRESHEN"

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite3"
	StorePostgres = "postgres"
)

// Generator providers.
const (
	ProviderNone      = "none"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Config holds the application configuration.
type Config struct {
	// ConfigFile is the config file that was read, if any.
	ConfigFile string

	// PoliciesFile is a YAML policy set. Empty uses the default set.
	PoliciesFile string

	Store     StoreConfig
	Generator GeneratorConfig
	Evidence  EvidenceConfig
	Lease     LeaseConfig
	Refresh   RefreshConfig
	Server    ServerConfig
	Log       LogConfig
}

// StoreConfig selects the content store.
type StoreConfig struct {
	Driver string
	DSN    string
}

// GeneratorConfig selects the generative service.
type GeneratorConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	CallTimeout time.Duration
}

// EvidenceConfig points at the Elasticsearch news corpus. No addresses
// means an empty corpus.
type EvidenceConfig struct {
	Addresses []string
	Index     string
	Username  string
	Password  string
	APIKey    string
	Days      int
}

// LeaseConfig configures the redis run lease. No URL means an in-process lease.
type LeaseConfig struct {
	RedisURL string
	Key      string
	TTL      time.Duration
}

// RefreshConfig controls runs and the scheduler.
type RefreshConfig struct {
	ModuleDelay     time.Duration
	RefreshSchedule string
	APISchedule     string
	ExpireSchedule  string
	PruneSchedule   string
	RetentionDays   int
	RunTimeout      time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string
	Port        int
	APIKey      string
	CORSOrigins []string
	RateLimit   int
	CacheTTL    time.Duration
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// Load reads configuration in order of precedence:
//  1. Environment variables (FRESHEN_STORE_DRIVER and friends)
//  2. .env and .env.local files
//  3. The config file (file, or .freshen.yaml in the working or home directory)
//  4. Defaults
func Load(file string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindAPIKeys(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(".freshen")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !stderrors.As(err, &notFound) {
			return nil, errors.WrapParse("yaml", v.ConfigFileUsed(), err)
		}
	}

	cfg := &Config{
		ConfigFile:   v.ConfigFileUsed(),
		PoliciesFile: v.GetString("policies_file"),
		Store: StoreConfig{
			Driver: v.GetString("store.driver"),
			DSN:    v.GetString("store.dsn"),
		},
		Generator: GeneratorConfig{
			Provider:    v.GetString("generator.provider"),
			Model:       v.GetString("generator.model"),
			BaseURL:     v.GetString("generator.base_url"),
			MaxTokens:   v.GetInt("generator.max_tokens"),
			CallTimeout: v.GetDuration("generator.call_timeout"),
		},
		Evidence: EvidenceConfig{
			Addresses: v.GetStringSlice("evidence.addresses"),
			Index:     v.GetString("evidence.index"),
			Username:  v.GetString("evidence.username"),
			Password:  v.GetString("evidence.password"),
			APIKey:    v.GetString("evidence.api_key"),
			Days:      v.GetInt("evidence.days"),
		},
		Lease: LeaseConfig{
			RedisURL: v.GetString("lease.redis_url"),
			Key:      v.GetString("lease.key"),
			TTL:      v.GetDuration("lease.ttl"),
		},
		Refresh: RefreshConfig{
			ModuleDelay:     v.GetDuration("refresh.module_delay"),
			RefreshSchedule: v.GetString("refresh.schedule"),
			APISchedule:     v.GetString("refresh.api_schedule"),
			ExpireSchedule:  v.GetString("refresh.expire_schedule"),
			PruneSchedule:   v.GetString("refresh.prune_schedule"),
			RetentionDays:   v.GetInt("refresh.retention_days"),
			RunTimeout:      v.GetDuration("refresh.run_timeout"),
		},
		Server: ServerConfig{
			Host:        v.GetString("server.host"),
			Port:        v.GetInt("server.port"),
			APIKey:      v.GetString("server.api_key"),
			CORSOrigins: v.GetStringSlice("server.cors_origins"),
			RateLimit:   v.GetInt("server.rate_limit"),
			CacheTTL:    v.GetDuration("server.cache_ttl"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
	}
	cfg.Generator.APIKey = apiKey(v, cfg.Generator.Provider)

	if cfg.PoliciesFile != "" && cfg.ConfigFile != "" && !filepath.IsAbs(cfg.PoliciesFile) {
		cfg.PoliciesFile = filepath.Join(filepath.Dir(cfg.ConfigFile), cfg.PoliciesFile)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("generator.provider", ProviderNone)
	v.SetDefault("generator.max_tokens", constants.DefaultMaxTokens)
	v.SetDefault("generator.call_timeout", constants.GenerateTimeout)
	v.SetDefault("evidence.index", "news")
	v.SetDefault("evidence.days", constants.DefaultEvidenceDays)
	v.SetDefault("lease.key", lease.DefaultKey)
	v.SetDefault("lease.ttl", constants.LeaseTTL)
	v.SetDefault("refresh.module_delay", constants.DefaultModuleDelay)
	v.SetDefault("refresh.schedule", freshen.DefaultRefreshSchedule)
	v.SetDefault("refresh.api_schedule", freshen.DefaultRefreshSchedule)
	v.SetDefault("refresh.expire_schedule", freshen.DefaultExpireSchedule)
	v.SetDefault("refresh.prune_schedule", freshen.DefaultPruneSchedule)
	v.SetDefault("refresh.retention_days", constants.DefaultLogRetentionDays)
	v.SetDefault("refresh.run_timeout", constants.CommandTimeout)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", constants.DefaultServerPort)
	v.SetDefault("server.rate_limit", 100)
	v.SetDefault("server.cache_ttl", 5*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")
	v.SetDefault("log.output", "stderr")
}

// loadEnvFiles loads environment variables from .env files.
// .env.local overrides .env, and neither overrides the real environment.
func loadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}

// bindAPIKeys binds the provider key variables, which carry no prefix.
func bindAPIKeys(v *viper.Viper) {
	_ = v.BindEnv("anthropic_api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("gemini_api_key", "GEMINI_API_KEY", "GOOGLE_API_KEY")
}

func apiKey(v *viper.Viper, provider string) string {
	if key := v.GetString("generator.api_key"); key != "" {
		return key
	}
	switch provider {
	case ProviderAnthropic:
		return v.GetString("anthropic_api_key")
	case ProviderGemini:
		return v.GetString("gemini_api_key")
	}
	return ""
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory:
	case StoreSQLite, StorePostgres:
		if c.Store.DSN == "" {
			return errors.NewConfigError("store", fmt.Sprintf("driver %s needs a dsn", c.Store.Driver), nil)
		}
	default:
		return errors.NewConfigError("store", fmt.Sprintf("unknown driver %q", c.Store.Driver), nil)
	}

	switch c.Generator.Provider {
	case ProviderNone, "":
	case ProviderAnthropic, ProviderGemini:
		if c.Generator.APIKey == "" {
			return errors.NewConfigError(c.Generator.Provider, "api key is not set", errors.ErrAPIKeyRequired)
		}
	default:
		return errors.NewConfigError("generator", fmt.Sprintf("unknown provider %q", c.Generator.Provider), nil)
	}

	if c.Refresh.RetentionDays < 0 {
		return errors.NewValidationError("refresh.retention_days", c.Refresh.RetentionDays, "must be non-negative")
	}
	return nil
}
