package refresh

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentstation/freshen/pkg/audit"
	"github.com/agentstation/freshen/pkg/reconcile"
)

// ModuleResult is the outcome of one module within a run.
type ModuleResult struct {
	reconcile.Result
	// Skipped is set when the module was fresh and nothing ran.
	Skipped    bool   `json:"skipped,omitempty"`
	SkipReason string `json:"skipReason,omitempty"`
}

// Summary returns a one-line description of the module result.
func (m ModuleResult) Summary() string {
	switch {
	case m.Skipped:
		return fmt.Sprintf("%s: skipped (%s)", m.Module, m.SkipReason)
	case m.Failed():
		return fmt.Sprintf("%s: %s", m.Module, m.Notes)
	}
	return fmt.Sprintf("%s: %d updated, %d created, %d removed, %d tokens",
		m.Module, m.ItemsUpdated, m.ItemsCreated, m.ItemsRemoved, m.TokensUsed)
}

// RunResult is the outcome of one orchestrator run.
type RunResult struct {
	RunID       string            `json:"runId"`
	RefreshType audit.RefreshType `json:"refreshType"`
	StartedAt   time.Time         `json:"startedAt"`
	Duration    time.Duration     `json:"duration"`
	Modules     []ModuleResult    `json:"modules"`

	// Totals across modules.
	ItemsUpdated int   `json:"itemsUpdated"`
	ItemsCreated int   `json:"itemsCreated"`
	ItemsRemoved int   `json:"itemsRemoved"`
	TokensUsed   int64 `json:"tokensUsed"`
	Refreshed    int   `json:"refreshed"`
	Failed       int   `json:"failed"`
	Skipped      int   `json:"skipped"`
}

func (r *RunResult) add(m ModuleResult) {
	r.Modules = append(r.Modules, m)
	r.ItemsUpdated += m.ItemsUpdated
	r.ItemsCreated += m.ItemsCreated
	r.ItemsRemoved += m.ItemsRemoved
	r.TokensUsed += m.TokensUsed
	switch {
	case m.Skipped:
		r.Skipped++
	case m.Failed():
		r.Failed++
	default:
		r.Refreshed++
	}
}

// Module returns the result of module, if it took part in the run.
func (r *RunResult) Module(module string) (ModuleResult, bool) {
	for _, m := range r.Modules {
		if m.Module == module {
			return m, true
		}
	}
	return ModuleResult{}, false
}

// HasChanges reports whether the run wrote anything.
func (r *RunResult) HasChanges() bool {
	return r.ItemsUpdated+r.ItemsCreated+r.ItemsRemoved > 0
}

// Summary returns a human-readable summary of the run.
func (r *RunResult) Summary() string {
	parts := []string{
		fmt.Sprintf("%d refreshed", r.Refreshed),
		fmt.Sprintf("%d skipped", r.Skipped),
		fmt.Sprintf("%d failed", r.Failed),
	}
	return fmt.Sprintf("%s refresh: %s; %d updated, %d created, %d removed, %d tokens",
		r.RefreshType, strings.Join(parts, ", "),
		r.ItemsUpdated, r.ItemsCreated, r.ItemsRemoved, r.TokensUsed)
}
