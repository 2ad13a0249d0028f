// Package freshen keeps per-module dashboard content fresh. It wires the
// policy registry, the versioned content store, the evidence gatherer, a
// generative reconciliation engine and the refresh orchestrator into one
// Client with read APIs, maintenance sweeps, event hooks and cron-driven
// automatic refreshes.
//
// Example usage:
//
//	client, err := freshen.New(
//	    freshen.WithStore(store),
//	    freshen.WithRefreshLog(store),
//	    freshen.WithGenerator(generator),
//	    freshen.WithEvidenceCorpus(corpus),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.AutoRefreshOff()
//
//	client.OnModuleRefreshed(func(r refresh.ModuleResult) {
//	    log.Printf("%s: %d updated", r.Module, r.ItemsUpdated)
//	})
//
//	run, err := client.RefreshAIResearched(ctx, refresh.WithSortByPriority(true))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(run.Summary())
package freshen

import (
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/agentstation/freshen/internal/lease"
	"github.com/agentstation/freshen/pkg/audit"
	"github.com/agentstation/freshen/pkg/content"
	"github.com/agentstation/freshen/pkg/content/memory"
	"github.com/agentstation/freshen/pkg/evidence"
	"github.com/agentstation/freshen/pkg/logging"
	"github.com/agentstation/freshen/pkg/policy"
	"github.com/agentstation/freshen/pkg/reconcile"
	"github.com/agentstation/freshen/pkg/refresh"
)

// Client is the freshen engine.
type Client interface {

	// Reader serves stored content and freshness
	Reader

	// Refresher runs refresh passes
	Refresher

	// Maintainer runs the expiry and retention sweeps
	Maintainer

	// AutoRefresher schedules refreshes and sweeps
	AutoRefresher

	// Hooks provides access to event callback registration
	Hooks

	// Policies returns the policy registry in use.
	Policies() *policy.Registry
}

// client is the internal implementation of the Client interface.
type client struct {
	options *options

	store    content.Store
	log      audit.Log
	policies *policy.Registry
	engine   *reconcile.Engine
	orch     *refresh.Orchestrator

	// auto refresh state
	mu   sync.Mutex
	cron *cron.Cron

	hooks *hooks
}

// New creates a new Client with the given options.
func New(opts ...Option) (Client, error) {
	o := defaults().apply(opts...)
	if err := o.validate(); err != nil {
		return nil, err
	}

	c := &client{
		options:  o,
		policies: o.policies,
		store:    o.store,
		log:      o.log,
		hooks:    newHooks(),
	}
	if c.policies == nil {
		c.policies = policy.NewRegistry(policy.DefaultSet())
	}
	if c.store == nil {
		c.store = memory.New(c.policies)
	}
	if c.log == nil {
		c.log = audit.NewMemoryLog(c.policies.Now)
	}

	log := logging.Debug()
	log.Int("modules", len(c.policies.Modules())).Msg("Creating freshen client")

	if o.generator != nil {
		ev := o.evidence
		if ev == nil {
			corpus := o.corpus
			if corpus == nil {
				corpus = evidence.NewMemoryCorpus()
			}
			ev = evidence.NewGatherer(corpus, c.policies)
		}

		engineOpts := o.engineOpts
		if o.metrics != nil {
			engineOpts = append(engineOpts, reconcile.WithObserver(o.metrics))
		}
		engine, err := reconcile.New(c.store, ev, o.generator, c.log, c.policies, engineOpts...)
		if err != nil {
			return nil, err
		}
		c.engine = engine
	}

	runLease := o.lease
	if runLease == nil {
		runLease = &lease.Local{}
	}
	observers := runObservers{c.hooks}
	if o.metrics != nil {
		observers = append(observers, o.metrics)
	}
	cfg := refresh.Config{
		Store:       c.store,
		Policies:    c.policies,
		Log:         c.log,
		Fetcher:     o.fetcher,
		Lease:       runLease,
		ModuleDelay: o.moduleDelay,
		Observer:    observers,
	}
	if c.engine != nil {
		cfg.Engine = c.engine
	}
	orch, err := refresh.New(cfg)
	if err != nil {
		return nil, err
	}
	c.orch = orch

	if o.autoRefresh {
		if err := c.AutoRefreshOn(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Policies returns the policy registry in use.
func (c *client) Policies() *policy.Registry {
	return c.policies
}

// runObservers fans a finished run out to every observer.
type runObservers []refresh.Observer

func (o runObservers) ObserveRun(r *refresh.RunResult) {
	for _, obs := range o {
		obs.ObserveRun(r)
	}
}
