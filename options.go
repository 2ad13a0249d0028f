package freshen

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/agentstation/freshen/internal/telemetry"
	"github.com/agentstation/freshen/pkg/audit"
	"github.com/agentstation/freshen/pkg/constants"
	"github.com/agentstation/freshen/pkg/content"
	"github.com/agentstation/freshen/pkg/errors"
	"github.com/agentstation/freshen/pkg/evidence"
	"github.com/agentstation/freshen/pkg/generative"
	"github.com/agentstation/freshen/pkg/policy"
	"github.com/agentstation/freshen/pkg/reconcile"
	"github.com/agentstation/freshen/pkg/refresh"
)

// Default schedules of the automatic refresh jobs.
const (
	DefaultRefreshSchedule = "@every 6h"
	DefaultExpireSchedule  = "@hourly"
	DefaultPruneSchedule   = "@daily"
)

// options holds the configuration for the freshen client.
type options struct {
	policies *policy.Registry
	store    content.Store
	log      audit.Log

	// reconciliation
	generator  generative.Generator
	corpus     evidence.Corpus
	evidence   reconcile.EvidenceSource
	engineOpts []reconcile.Option

	// orchestration
	fetcher     refresh.Fetcher
	lease       refresh.Lease
	moduleDelay time.Duration
	metrics     *telemetry.Metrics

	// automatic refreshes
	autoRefresh     bool
	refreshSchedule string
	apiSchedule     string
	expireSchedule  string
	pruneSchedule   string
	retentionDays   int
	runTimeout      time.Duration
}

// Option is a function that configures the freshen client.
type Option func(*options)

func defaults() *options {
	return &options{
		refreshSchedule: DefaultRefreshSchedule,
		expireSchedule:  DefaultExpireSchedule,
		pruneSchedule:   DefaultPruneSchedule,
		retentionDays:   constants.DefaultLogRetentionDays,
		runTimeout:      constants.CommandTimeout,
	}
}

func (o *options) apply(opts ...Option) *options {
	for _, opt := range opts {
		opt(o)
	}
	return o
}

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func (o *options) validate() error {
	schedules := map[string]string{
		"refreshSchedule": o.refreshSchedule,
		"apiSchedule":     o.apiSchedule,
		"expireSchedule":  o.expireSchedule,
		"pruneSchedule":   o.pruneSchedule,
	}
	for field, spec := range schedules {
		if spec == "" {
			continue
		}
		if _, err := scheduleParser.Parse(spec); err != nil {
			return errors.NewValidationError(field, spec, "invalid cron schedule: "+err.Error())
		}
	}
	if o.retentionDays < 0 {
		return errors.NewValidationError("retentionDays", o.retentionDays, "retention must be non-negative")
	}
	if o.runTimeout < 0 {
		return errors.NewValidationError("runTimeout", o.runTimeout, "run timeout must be non-negative")
	}
	return nil
}

// WithPolicies sets the policy registry. Defaults to the built-in policy set.
func WithPolicies(r *policy.Registry) Option {
	return func(o *options) {
		o.policies = r
	}
}

// WithStore sets the content store. Defaults to an in-memory store.
func WithStore(s content.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithRefreshLog sets the audit log. Defaults to an in-memory log.
func WithRefreshLog(l audit.Log) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithGenerator enables the ai-research path with generator.
func WithGenerator(g generative.Generator) Option {
	return func(o *options) {
		o.generator = g
	}
}

// WithEvidenceCorpus sets the news corpus searched for evidence.
func WithEvidenceCorpus(c evidence.Corpus) Option {
	return func(o *options) {
		o.corpus = c
	}
}

// WithEvidenceSource replaces the evidence gatherer entirely.
func WithEvidenceSource(s reconcile.EvidenceSource) Option {
	return func(o *options) {
		o.evidence = s
	}
}

// WithEngineOptions passes options through to the reconciliation engine.
func WithEngineOptions(opts ...reconcile.Option) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, opts...)
	}
}

// WithFetcher enables the plain-API path with f.
func WithFetcher(f refresh.Fetcher) Option {
	return func(o *options) {
		o.fetcher = f
	}
}

// WithLease sets the run lease. Defaults to an in-process lease.
func WithLease(l refresh.Lease) Option {
	return func(o *options) {
		o.lease = l
	}
}

// WithModuleDelay sets the minimum spacing between generative cycles.
func WithModuleDelay(d time.Duration) Option {
	return func(o *options) {
		o.moduleDelay = d
	}
}

// WithMetrics reports cycles and runs to m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithAutoRefresh starts the scheduled jobs when the client is created.
func WithAutoRefresh(enabled bool) Option {
	return func(o *options) {
		o.autoRefresh = enabled
	}
}

// WithRefreshSchedule sets the cron schedule of the ai-research refresh.
// An empty schedule disables the job.
func WithRefreshSchedule(spec string) Option {
	return func(o *options) {
		o.refreshSchedule = spec
	}
}

// WithAPISchedule sets the cron schedule of the plain-API refresh.
// It is disabled unless set.
func WithAPISchedule(spec string) Option {
	return func(o *options) {
		o.apiSchedule = spec
	}
}

// WithExpireSchedule sets the cron schedule of the expiry sweep.
func WithExpireSchedule(spec string) Option {
	return func(o *options) {
		o.expireSchedule = spec
	}
}

// WithPruneSchedule sets the cron schedule of the refresh log retention sweep.
func WithPruneSchedule(spec string) Option {
	return func(o *options) {
		o.pruneSchedule = spec
	}
}

// WithRetentionDays sets how many days of refresh logs the scheduled prune keeps.
func WithRetentionDays(days int) Option {
	return func(o *options) {
		o.retentionDays = days
	}
}

// WithRunTimeout bounds each scheduled run.
func WithRunTimeout(d time.Duration) Option {
	return func(o *options) {
		o.runTimeout = d
	}
}
