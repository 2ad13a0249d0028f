package config

import (
	"context"
	stderrors "errors"

	"github.com/redis/go-redis/v9"

	"github.com/agentstation/freshen"
	"github.com/agentstation/freshen/internal/apisource"
	"github.com/agentstation/freshen/internal/evidence/elasticsearch"
	"github.com/agentstation/freshen/internal/generative/anthropic"
	"github.com/agentstation/freshen/internal/generative/gemini"
	"github.com/agentstation/freshen/internal/lease"
	"github.com/agentstation/freshen/internal/server"
	"github.com/agentstation/freshen/internal/telemetry"
	"github.com/agentstation/freshen/pkg/audit"
	"github.com/agentstation/freshen/pkg/content"
	"github.com/agentstation/freshen/pkg/content/memory"
	"github.com/agentstation/freshen/pkg/content/sqlstore"
	"github.com/agentstation/freshen/pkg/errors"
	"github.com/agentstation/freshen/pkg/generative"
	"github.com/agentstation/freshen/pkg/policy"
	"github.com/agentstation/freshen/pkg/reconcile"
)

// Components are the pieces Build assembled. Close releases connections.
type Components struct {
	Policies *policy.Registry
	Metrics  *telemetry.Metrics
	Options  []freshen.Option

	closers []func() error
}

// Close releases every connection opened by Build.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Build opens the configured store, generator, evidence corpus and lease
// and returns client options over them.
func (c *Config) Build(ctx context.Context) (_ *Components, err error) {
	comp := &Components{Metrics: telemetry.New()}
	defer func() {
		if err != nil {
			_ = comp.Close()
		}
	}()

	set := policy.DefaultSet()
	if c.PoliciesFile != "" {
		if set, err = policy.LoadFile(c.PoliciesFile); err != nil {
			return nil, err
		}
	}
	comp.Policies = policy.NewRegistry(set)

	store, log, err := c.openStore(ctx, comp)
	if err != nil {
		return nil, err
	}

	comp.Options = append(comp.Options,
		freshen.WithPolicies(comp.Policies),
		freshen.WithStore(store),
		freshen.WithRefreshLog(log),
		freshen.WithFetcher(apisource.New()),
		freshen.WithMetrics(comp.Metrics),
		freshen.WithModuleDelay(c.Refresh.ModuleDelay),
		freshen.WithRefreshSchedule(c.Refresh.RefreshSchedule),
		freshen.WithAPISchedule(c.Refresh.APISchedule),
		freshen.WithExpireSchedule(c.Refresh.ExpireSchedule),
		freshen.WithPruneSchedule(c.Refresh.PruneSchedule),
		freshen.WithRetentionDays(c.Refresh.RetentionDays),
		freshen.WithRunTimeout(c.Refresh.RunTimeout),
		freshen.WithEngineOptions(
			reconcile.WithMaxTokens(c.Generator.MaxTokens),
			reconcile.WithCallTimeout(c.Generator.CallTimeout),
			reconcile.WithEvidenceDays(c.Evidence.Days),
			reconcile.WithTracer(telemetry.Tracer()),
		),
	)

	gen, err := c.generator()
	if err != nil {
		return nil, err
	}
	if gen != nil {
		comp.Options = append(comp.Options, freshen.WithGenerator(gen))
	}

	if len(c.Evidence.Addresses) > 0 {
		corpus, err := elasticsearch.New(elasticsearch.Config{
			Addresses: c.Evidence.Addresses,
			Username:  c.Evidence.Username,
			Password:  c.Evidence.Password,
			APIKey:    c.Evidence.APIKey,
			Index:     c.Evidence.Index,
		})
		if err != nil {
			return nil, err
		}
		comp.Options = append(comp.Options, freshen.WithEvidenceCorpus(corpus))
	}

	if c.Lease.RedisURL != "" {
		opts, err := redis.ParseURL(c.Lease.RedisURL)
		if err != nil {
			return nil, errors.NewConfigError("lease", "invalid redis url", err)
		}
		client := redis.NewClient(opts)
		comp.closers = append(comp.closers, client.Close)
		comp.Options = append(comp.Options, freshen.WithLease(lease.NewRedis(client, c.Lease.Key, c.Lease.TTL)))
	}

	return comp, nil
}

func (c *Config) openStore(ctx context.Context, comp *Components) (content.Store, audit.Log, error) {
	if c.Store.Driver == StoreMemory {
		return memory.New(comp.Policies), audit.NewMemoryLog(comp.Policies.Now), nil
	}

	db, err := sqlstore.Open(ctx, c.Store.Driver, c.Store.DSN)
	if err != nil {
		return nil, nil, errors.WrapResource("open", "store", c.Store.Driver, err)
	}
	st := sqlstore.New(db, comp.Policies)
	comp.closers = append(comp.closers, st.Close)
	if err := st.EnsureSchema(ctx); err != nil {
		return nil, nil, err
	}
	return st, st, nil
}

func (c *Config) generator() (generative.Generator, error) {
	switch c.Generator.Provider {
	case ProviderAnthropic:
		return anthropic.New(anthropic.Config{
			APIKey:  c.Generator.APIKey,
			Model:   c.Generator.Model,
			BaseURL: c.Generator.BaseURL,
		})
	case ProviderGemini:
		return gemini.New(gemini.Config{
			APIKey:  c.Generator.APIKey,
			Model:   c.Generator.Model,
			BaseURL: c.Generator.BaseURL,
		})
	}
	return nil, nil
}

// ServerConfig returns the HTTP server configuration.
func (c *Config) ServerConfig() server.Config {
	cfg := server.DefaultConfig()
	cfg.Host = c.Server.Host
	cfg.Port = c.Server.Port
	cfg.RateLimit = c.Server.RateLimit
	if c.Server.CacheTTL > 0 {
		cfg.CacheTTL = c.Server.CacheTTL
	}
	if c.Server.APIKey != "" {
		cfg.AuthEnabled = true
		cfg.APIKey = c.Server.APIKey
	}
	if len(c.Server.CORSOrigins) > 0 {
		cfg.CORSEnabled = true
		cfg.CORSOrigins = c.Server.CORSOrigins
	}
	return cfg
}
