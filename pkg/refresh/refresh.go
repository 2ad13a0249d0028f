// Package refresh orchestrates refresh runs across modules. A run visits
// eligible modules strictly one after another, skips modules whose content is
// still fresh, and isolates failures: a failing module is recorded and the
// run moves on.
package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/agentstation/freshen/pkg/audit"
	"github.com/agentstation/freshen/pkg/constants"
	"github.com/agentstation/freshen/pkg/content"
	"github.com/agentstation/freshen/pkg/errors"
	"github.com/agentstation/freshen/pkg/logging"
	"github.com/agentstation/freshen/pkg/policy"
	"github.com/agentstation/freshen/pkg/reconcile"
)

// TracerName names the tracer used for run spans.
const TracerName = "github.com/agentstation/freshen/pkg/refresh"

// Reconciler runs one reconciliation cycle. *reconcile.Engine implements it.
type Reconciler interface {
	Reconcile(ctx context.Context, module string) (reconcile.Result, error)
}

// Fetcher pulls the current payload of an api-sourced module.
type Fetcher interface {
	Fetch(ctx context.Context, module string, endpoint policy.APIEndpoint) (content.Document, error)
}

// Lease guards a run against concurrent runs. Acquire fails with an error
// matching errors.ErrLeaseHeld while another holder owns it.
type Lease interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

// Observer is told about every finished run.
type Observer interface {
	ObserveRun(*RunResult)
}

// Config wires an Orchestrator.
type Config struct {
	Engine   Reconciler
	Store    content.Store
	Policies *policy.Registry
	Log      audit.Log

	// Fetcher serves the plain-API path. Optional.
	Fetcher Fetcher
	// Lease guards runs. Optional.
	Lease Lease
	// ModuleDelay is the minimum spacing between generative cycles.
	// Zero uses the default; a negative value disables spacing.
	ModuleDelay time.Duration
	Observer    Observer
	Tracer      trace.Tracer
}

// Orchestrator runs refreshes.
type Orchestrator struct {
	engine   Reconciler
	store    content.Store
	policies *policy.Registry
	log      audit.Log
	fetcher  Fetcher
	lease    Lease
	limiter  *rate.Limiter
	observer Observer
	tracer   trace.Tracer
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.NewValidationError("store", nil, "content store is required")
	case cfg.Policies == nil:
		return nil, errors.NewValidationError("policies", nil, "policy registry is required")
	case cfg.Log == nil:
		return nil, errors.NewValidationError("audit", nil, "audit log is required")
	}

	delay := cfg.ModuleDelay
	if delay == 0 {
		delay = constants.DefaultModuleDelay
	}
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}

	return &Orchestrator{
		engine:   cfg.Engine,
		store:    cfg.Store,
		policies: cfg.Policies,
		log:      cfg.Log,
		fetcher:  cfg.Fetcher,
		lease:    cfg.Lease,
		limiter:  rate.NewLimiter(limit, 1),
		observer: cfg.Observer,
		tracer:   tracer,
	}, nil
}

// RefreshAIResearched reconciles every module routed through ai-research
// whose content is stale. It returns an error only when the run itself
// cannot proceed: the lease is held or the context ends.
func (o *Orchestrator) RefreshAIResearched(ctx context.Context, opts ...Option) (*RunResult, error) {
	if o.engine == nil {
		return nil, errors.NewConfigError("refresh", "no reconciliation engine configured", nil)
	}
	return o.run(ctx, audit.RefreshAIResearch, policy.SourceAIResearch, o.reconcileModule, opts)
}

// RefreshAPISourced refreshes every module routed through api that declares
// an endpoint.
func (o *Orchestrator) RefreshAPISourced(ctx context.Context, opts ...Option) (*RunResult, error) {
	if o.fetcher == nil {
		return nil, errors.NewConfigError("refresh", "no API fetcher configured", nil)
	}
	return o.run(ctx, audit.RefreshAPI, policy.SourceAPI, o.fetchModule, opts)
}

// RefreshModule runs one ai-research cycle for module. Unless force is set a
// module with fresh content is skipped.
func (o *Orchestrator) RefreshModule(ctx context.Context, module string, force bool) (ModuleResult, error) {
	if o.engine == nil {
		return ModuleResult{}, errors.NewConfigError("refresh", "no reconciliation engine configured", nil)
	}
	release, err := o.acquire(ctx)
	if err != nil {
		return ModuleResult{}, err
	}
	defer release()

	ctx = logging.WithRun(ctx, uuid.NewString())
	res, err := o.visit(ctx, module, force, audit.RefreshAIResearch, o.reconcileModule)
	if err != nil {
		return ModuleResult{}, err
	}
	return res, res.Err
}

// visitFunc refreshes one module. A returned error interrupts the run; module
// failures are reported in the ModuleResult instead.
type visitFunc func(ctx context.Context, module string) (ModuleResult, error)

func (o *Orchestrator) run(ctx context.Context, refreshType audit.RefreshType, source policy.Source, visit visitFunc, opts []Option) (*RunResult, error) {
	options := Defaults().Apply(opts...)
	if err := options.Validate(); err != nil {
		return nil, err
	}
	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	release, err := o.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	result := &RunResult{
		RunID:       uuid.NewString(),
		RefreshType: refreshType,
		StartedAt:   o.policies.Now(),
	}
	begin := time.Now()

	ctx, span := o.tracer.Start(ctx, "refresh.run",
		trace.WithAttributes(
			attribute.String("freshen.run_id", result.RunID),
			attribute.String("freshen.refresh_type", string(refreshType)),
		))
	defer span.End()

	ctx = logging.WithRun(ctx, result.RunID)
	ctx = logging.WithRefreshType(ctx, string(refreshType))
	logger := logging.Ctx(ctx)

	modules := o.policies.ModulesBySource(source)
	if options.SortByPriority {
		modules = o.policies.SortByPriority(modules)
	}
	modules = options.selected(modules)
	logger.Info().Strs("modules", modules).Msg("Starting refresh run")

	var runErr error
	for _, module := range modules {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		m, err := o.visit(ctx, module, options.Force, refreshType, visit)
		if err != nil {
			runErr = err
			break
		}
		result.add(m)
	}

	result.Duration = time.Since(begin)
	span.SetAttributes(
		attribute.Int("freshen.refreshed", result.Refreshed),
		attribute.Int("freshen.failed", result.Failed),
		attribute.Int("freshen.skipped", result.Skipped),
		attribute.Int64("freshen.tokens_used", result.TokensUsed),
	)
	if runErr != nil {
		span.RecordError(runErr)
		logger.Warn().Err(runErr).Int("completed", len(result.Modules)).Msg("Refresh run interrupted")
	} else {
		logger.Info().
			Int("refreshed", result.Refreshed).
			Int("skipped", result.Skipped).
			Int("failed", result.Failed).
			Int64("tokens_used", result.TokensUsed).
			Dur("duration", result.Duration).
			Msg("Refresh run complete")
	}
	if o.observer != nil {
		o.observer.ObserveRun(result)
	}
	return result, runErr
}

// visit runs one module unless its content is fresh.
func (o *Orchestrator) visit(ctx context.Context, module string, force bool, refreshType audit.RefreshType, visit visitFunc) (ModuleResult, error) {
	if !force {
		fresh, reason, err := o.fresh(ctx, module)
		if err != nil {
			return o.fail(ctx, module, refreshType, fmt.Errorf("checking freshness: %w", err)), nil
		}
		if fresh {
			logging.Ctx(ctx).Debug().Str("module", module).Str("reason", reason).Msg("Skipping fresh module")
			return skipped(module, reason), nil
		}
	}
	return visit(ctx, module)
}

func skipped(module, reason string) ModuleResult {
	return ModuleResult{
		Result:     reconcile.Result{Module: module, Status: audit.StatusSuccess},
		Skipped:    true,
		SkipReason: reason,
	}
}

// fresh reports whether module's newest active item is younger than its TTL.
func (o *Orchestrator) fresh(ctx context.Context, module string) (bool, string, error) {
	items, err := o.store.ModuleContent(ctx, module, "")
	if err != nil {
		return false, "", err
	}
	newest, ok := content.NewestActive(items)
	if !ok {
		return false, "", nil
	}
	if o.policies.IsStale(module, newest) {
		return false, "", nil
	}
	age := o.policies.Now().Sub(newest).Truncate(time.Minute)
	return true, fmt.Sprintf("refreshed %s ago, ttl %dh", age, o.policies.Policy(module).TTLHours), nil
}

// reconcileModule spaces generative cycles through the limiter, then runs
// one. Engine failures are already recorded in the result and audit log.
func (o *Orchestrator) reconcileModule(ctx context.Context, module string) (ModuleResult, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return ModuleResult{}, err
	}
	res, _ := o.engine.Reconcile(ctx, module)
	return ModuleResult{Result: res}, nil
}

// fetchModule refreshes one module from its API endpoint and records the
// attempt with refreshType api.
func (o *Orchestrator) fetchModule(ctx context.Context, module string) (ModuleResult, error) {
	p := o.policies.Policy(module)
	if p.API == nil {
		return skipped(module, "no api endpoint configured"), nil
	}

	begin := time.Now()
	ctx = logging.WithModule(ctx, module)
	res := reconcile.Result{Module: module, Status: audit.StatusSuccess, ItemsChecked: 1}

	section := p.API.Section
	if section == "" {
		section = "data"
	}
	key := content.Key(module, section)

	doc, err := o.fetcher.Fetch(ctx, module, *p.API)
	if err == nil {
		var item content.Item
		item, err = o.store.Upsert(ctx, key, module, section, doc, content.Meta{
			SourceType: content.SourceAPI,
			SourceURL:  p.API.URL,
		})
		if err == nil {
			if item.Version == 1 {
				res.ItemsCreated = 1
			} else {
				res.ItemsUpdated = 1
			}
		}
	}
	res.Duration = time.Since(begin)
	if err != nil {
		res.Status = audit.StatusFailed
		res.Notes = "Error: " + err.Error()
		res.Err = err
		logging.Ctx(ctx).Error().Err(err).Str("key", key).Msg("API refresh failed")
	} else {
		logging.Ctx(ctx).Info().Str("key", key).Int("items_created", res.ItemsCreated).Msg("API refresh complete")
	}
	o.record(ctx, audit.RefreshAPI, res)
	return ModuleResult{Result: res}, nil
}

// fail records a module that could not start.
func (o *Orchestrator) fail(ctx context.Context, module string, refreshType audit.RefreshType, err error) ModuleResult {
	res := reconcile.Result{
		Module: module,
		Status: audit.StatusFailed,
		Notes:  "Error: " + err.Error(),
		Err:    err,
	}
	logging.Ctx(ctx).Error().Err(err).Str("module", module).Msg("Module refresh failed")
	o.record(ctx, refreshType, res)
	return ModuleResult{Result: res}
}

func (o *Orchestrator) record(ctx context.Context, refreshType audit.RefreshType, res reconcile.Result) {
	entry := audit.Entry{
		RunID:        logging.RunID(ctx),
		Module:       res.Module,
		RefreshType:  refreshType,
		Status:       res.Status,
		ItemsChecked: res.ItemsChecked,
		ItemsUpdated: res.ItemsUpdated,
		ItemsCreated: res.ItemsCreated,
		ItemsExpired: res.ItemsRemoved,
		TokensUsed:   res.TokensUsed,
		Duration:     res.Duration,
	}
	if res.Err != nil {
		entry.ErrorMessage = res.Err.Error()
	}
	if _, err := o.log.Append(context.WithoutCancel(ctx), entry); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to append refresh log")
	}
}

func (o *Orchestrator) acquire(ctx context.Context) (func(), error) {
	if o.lease == nil {
		return func() {}, nil
	}
	release, err := o.lease.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Failed to release refresh lease")
		}
	}, nil
}
