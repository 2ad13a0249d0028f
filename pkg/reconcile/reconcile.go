// Package reconcile runs one reconciliation cycle for a module: it projects
// the stored content, gathers evidence, asks a generator for a three-bucket
// proposal and applies the accepted changes to the content store.
//
// A cycle never mutates the store before the generated response has been
// parsed and validated. Invocation errors are not retried; a response that
// breaks the output contract is retried at most MaxContractRetries times,
// so one cycle spends at most (1+MaxContractRetries) x MaxTokens output tokens.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentstation/freshen/pkg/audit"
	"github.com/agentstation/freshen/pkg/constants"
	"github.com/agentstation/freshen/pkg/content"
	"github.com/agentstation/freshen/pkg/errors"
	"github.com/agentstation/freshen/pkg/evidence"
	"github.com/agentstation/freshen/pkg/generative"
	"github.com/agentstation/freshen/pkg/logging"
	"github.com/agentstation/freshen/pkg/policy"
)

// TracerName names the tracer used for cycle spans.
const TracerName = "github.com/agentstation/freshen/pkg/reconcile"

// EvidenceSource gathers the evidence digest of a module.
// *evidence.Gatherer implements it.
type EvidenceSource interface {
	RelevantNews(ctx context.Context, module string, daysBack int) (evidence.Digest, error)
}

// Observer is told about every finished cycle.
type Observer interface {
	ObserveCycle(Result)
}

// Result is the outcome of one cycle.
type Result struct {
	Module       string        `json:"module"`
	Status       audit.Status  `json:"status"`
	ItemsChecked int           `json:"itemsChecked"`
	ItemsUpdated int           `json:"itemsUpdated"`
	ItemsCreated int           `json:"itemsCreated"`
	ItemsRemoved int           `json:"itemsRemoved"`
	OutOfScope   []string      `json:"outOfScope,omitempty"`
	TokensUsed   int64         `json:"tokensUsed"`
	Attempts     int           `json:"attempts"`
	Model        string        `json:"model,omitempty"`
	Notes        string        `json:"notes"`
	Duration     time.Duration `json:"duration"`
	// Err is the failure of a failed cycle.
	Err error `json:"-"`
}

// Failed reports whether the cycle failed.
func (r Result) Failed() bool {
	return r.Status == audit.StatusFailed
}

// Engine runs reconciliation cycles.
type Engine struct {
	store     content.Store
	evidence  EvidenceSource
	generator generative.Generator
	log       audit.Log
	policies  *policy.Registry

	budget       Budget
	callTimeout  time.Duration
	maxTokens    int
	retries      int
	evidenceDays int
	temperature  *float64
	tracer       trace.Tracer
	observer     Observer
}

// Option configures an Engine.
type Option func(*Engine) error

// WithBudget sets the summary truncation budget.
func WithBudget(b Budget) Option {
	return func(e *Engine) error {
		if b.PerItem <= 0 || b.Total <= 0 {
			return errors.NewValidationError("budget", b, "per-item and total budgets must be positive")
		}
		e.budget = b
		return nil
	}
}

// WithCallTimeout bounds each generator call.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		if d <= 0 {
			return errors.NewValidationError("call_timeout", d, "must be positive")
		}
		e.callTimeout = d
		return nil
	}
}

// WithMaxTokens caps the output tokens of each generator call.
func WithMaxTokens(n int) Option {
	return func(e *Engine) error {
		if n <= 0 {
			return errors.NewValidationError("max_tokens", n, "must be positive")
		}
		e.maxTokens = n
		return nil
	}
}

// WithContractRetries sets how many times a contract violation is retried.
func WithContractRetries(n int) Option {
	return func(e *Engine) error {
		if n < 0 {
			return errors.NewValidationError("contract_retries", n, "must not be negative")
		}
		e.retries = n
		return nil
	}
}

// WithEvidenceDays sets the evidence lookback window.
func WithEvidenceDays(days int) Option {
	return func(e *Engine) error {
		e.evidenceDays = days
		return nil
	}
}

// WithTemperature sets the sampling temperature passed to the generator.
func WithTemperature(t float64) Option {
	return func(e *Engine) error {
		e.temperature = &t
		return nil
	}
}

// WithTracer replaces the global otel tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) error {
		e.tracer = t
		return nil
	}
}

// WithObserver registers an observer of finished cycles.
func WithObserver(o Observer) Option {
	return func(e *Engine) error {
		e.observer = o
		return nil
	}
}

// New creates an Engine.
func New(store content.Store, ev EvidenceSource, gen generative.Generator, log audit.Log, policies *policy.Registry, opts ...Option) (*Engine, error) {
	switch {
	case store == nil:
		return nil, errors.NewValidationError("store", nil, "content store is required")
	case ev == nil:
		return nil, errors.NewValidationError("evidence", nil, "evidence source is required")
	case gen == nil:
		return nil, errors.NewValidationError("generator", nil, "generator is required")
	case log == nil:
		return nil, errors.NewValidationError("audit", nil, "audit log is required")
	case policies == nil:
		return nil, errors.NewValidationError("policies", nil, "policy registry is required")
	}

	e := &Engine{
		store:     store,
		evidence:  ev,
		generator: gen,
		log:       log,
		policies:  policies,
		budget: Budget{
			PerItem: constants.SummaryRunesPerItem,
			Total:   constants.SummaryRunesTotal,
		},
		callTimeout:  constants.GenerateTimeout,
		maxTokens:    constants.DefaultMaxTokens,
		retries:      constants.MaxContractRetries,
		evidenceDays: constants.DefaultEvidenceDays,
		tracer:       otel.Tracer(TracerName),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Reconcile runs one cycle for module. A failed cycle is reported both in
// the returned Result and as an error; the store is untouched unless the
// failure happened while applying, in which case the counts show how far
// it got. Exactly one audit entry is appended either way.
func (e *Engine) Reconcile(ctx context.Context, module string) (Result, error) {
	begin := time.Now()
	ctx, span := e.tracer.Start(ctx, "reconcile.cycle",
		trace.WithAttributes(
			attribute.String("freshen.module", module),
			attribute.String("freshen.generator", e.generator.Name()),
		))
	defer span.End()

	ctx = logging.WithModule(ctx, module)
	ctx = logging.WithRefreshType(ctx, string(audit.RefreshAIResearch))
	logger := logging.Ctx(ctx)

	res := Result{Module: module, Status: audit.StatusSuccess}
	err := e.cycle(ctx, module, &res)
	res.Duration = time.Since(begin)

	span.SetAttributes(
		attribute.Int("freshen.items_updated", res.ItemsUpdated),
		attribute.Int("freshen.items_created", res.ItemsCreated),
		attribute.Int("freshen.items_removed", res.ItemsRemoved),
		attribute.Int64("freshen.tokens_used", res.TokensUsed),
		attribute.Int("freshen.attempts", res.Attempts),
	)
	if err != nil {
		res.Status = audit.StatusFailed
		res.Notes = "Error: " + err.Error()
		res.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).
			Int("items_updated", res.ItemsUpdated).
			Int("items_created", res.ItemsCreated).
			Int64("tokens_used", res.TokensUsed).
			Msg("Reconciliation failed")
	} else {
		logger.Info().
			Int("items_checked", res.ItemsChecked).
			Int("items_updated", res.ItemsUpdated).
			Int("items_created", res.ItemsCreated).
			Int("items_removed", res.ItemsRemoved).
			Int64("tokens_used", res.TokensUsed).
			Dur("duration", res.Duration).
			Msg("Reconciliation complete")
	}
	if len(res.OutOfScope) > 0 {
		logger.Warn().Strs("keys", res.OutOfScope).Msg("Ignored proposals outside the module")
	}

	e.record(ctx, res)
	if e.observer != nil {
		e.observer.ObserveCycle(res)
	}
	return res, err
}

func (e *Engine) cycle(ctx context.Context, module string, res *Result) error {
	items, err := e.store.ModuleContent(ctx, module, "")
	if err != nil {
		return fmt.Errorf("loading content: %w", err)
	}
	res.ItemsChecked = len(items)

	digest, err := e.evidence.RelevantNews(ctx, module, e.evidenceDays)
	if err != nil {
		return fmt.Errorf("gathering evidence: %w", err)
	}

	prompt := Prompt{
		Module:   module,
		Policy:   e.policies.Policy(module),
		Now:      e.policies.Now(),
		Items:    Summarize(items, e.budget),
		Evidence: digest,
	}
	proposal, err := e.propose(ctx, prompt, res)
	if err != nil {
		return err
	}
	res.Notes = proposal.Notes

	counts, err := Apply(ctx, e.store, module, proposal)
	res.ItemsUpdated = counts.Updated
	res.ItemsCreated = counts.Created
	res.ItemsRemoved = counts.Removed
	res.OutOfScope = counts.Skipped
	return err
}

// propose asks the generator for a proposal, retrying contract violations.
func (e *Engine) propose(ctx context.Context, p Prompt, res *Result) (Proposal, error) {
	for attempt := 0; ; attempt++ {
		resp, err := e.generate(ctx, generative.Request{
			System:      SystemPrompt,
			Prompt:      p.Render(),
			MaxTokens:   e.maxTokens,
			Temperature: e.temperature,
		})
		res.Attempts++
		res.TokensUsed += resp.Usage.Total()
		if err != nil {
			return Proposal{}, err
		}
		if resp.Model != "" {
			res.Model = resp.Model
		}

		proposal, err := Parse(resp.Text)
		if err == nil {
			return proposal, nil
		}
		if attempt >= e.retries {
			return Proposal{}, err
		}
		logging.Ctx(ctx).Warn().Err(err).Int("attempt", attempt+1).Msg("Response broke the output contract, retrying")
		p.Correction = err.Error()
	}
}

func (e *Engine) generate(ctx context.Context, req generative.Request) (generative.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	resp, err := e.generator.Generate(callCtx, req)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() == nil && callCtx.Err() == context.DeadlineExceeded {
		return resp, errors.NewTimeoutError("generate", e.callTimeout.String(), err.Error())
	}
	return resp, fmt.Errorf("generating with %s: %w", e.generator.Name(), err)
}

// record appends the audit entry of a cycle. A failing audit log is logged
// and does not change the cycle outcome.
func (e *Engine) record(ctx context.Context, res Result) {
	entry := audit.Entry{
		RunID:        logging.RunID(ctx),
		Module:       res.Module,
		RefreshType:  audit.RefreshAIResearch,
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
	if _, err := e.log.Append(context.WithoutCancel(ctx), entry); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to append refresh log")
	}
}
