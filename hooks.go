package freshen

import (
	"sync"

	"github.com/agentstation/freshen/pkg/refresh"
)

// Hook function types for refresh events
type (
	// ModuleRefreshedHook is called when a module cycle completes, changed or not
	ModuleRefreshedHook func(result refresh.ModuleResult)

	// ModuleFailedHook is called when a module cycle fails
	ModuleFailedHook func(result refresh.ModuleResult)

	// RunCompletedHook is called when a refresh run ends, interrupted or not
	RunCompletedHook func(run *refresh.RunResult)

	// ContentExpiredHook is called after an expiry sweep deactivated items
	ContentExpiredHook func(module string, count int)
)

// Hooks provides event callback registration.
type Hooks interface {
	// OnModuleRefreshed registers a callback for completed module cycles
	OnModuleRefreshed(ModuleRefreshedHook)

	// OnModuleFailed registers a callback for failed module cycles
	OnModuleFailed(ModuleFailedHook)

	// OnRunCompleted registers a callback for finished runs
	OnRunCompleted(RunCompletedHook)

	// OnContentExpired registers a callback for expiry sweeps
	OnContentExpired(ContentExpiredHook)
}

// hooks manages event callbacks for refresh events
type hooks struct {
	mu                sync.RWMutex
	onModuleRefreshed []ModuleRefreshedHook
	onModuleFailed    []ModuleFailedHook
	onRunCompleted    []RunCompletedHook
	onContentExpired  []ContentExpiredHook
}

var _ refresh.Observer = (*hooks)(nil)

// newHooks creates a new hooks instance
func newHooks() *hooks {
	return &hooks{}
}

// OnModuleRefreshed registers a callback for completed module cycles.
func (c *client) OnModuleRefreshed(fn ModuleRefreshedHook) {
	c.hooks.mu.Lock()
	defer c.hooks.mu.Unlock()
	c.hooks.onModuleRefreshed = append(c.hooks.onModuleRefreshed, fn)
}

// OnModuleFailed registers a callback for failed module cycles.
func (c *client) OnModuleFailed(fn ModuleFailedHook) {
	c.hooks.mu.Lock()
	defer c.hooks.mu.Unlock()
	c.hooks.onModuleFailed = append(c.hooks.onModuleFailed, fn)
}

// OnRunCompleted registers a callback for finished runs.
func (c *client) OnRunCompleted(fn RunCompletedHook) {
	c.hooks.mu.Lock()
	defer c.hooks.mu.Unlock()
	c.hooks.onRunCompleted = append(c.hooks.onRunCompleted, fn)
}

// OnContentExpired registers a callback for expiry sweeps.
func (c *client) OnContentExpired(fn ContentExpiredHook) {
	c.hooks.mu.Lock()
	defer c.hooks.mu.Unlock()
	c.hooks.onContentExpired = append(c.hooks.onContentExpired, fn)
}

// ObserveRun fires the module and run hooks for a finished run.
// Skipped modules fire nothing.
func (h *hooks) ObserveRun(run *refresh.RunResult) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, m := range run.Modules {
		h.module(m)
	}
	for _, hook := range h.onRunCompleted {
		hook(run)
	}
}

// module fires the hooks for one module result. It expects h.mu held.
func (h *hooks) module(m refresh.ModuleResult) {
	switch {
	case m.Skipped:
	case m.Failed():
		for _, hook := range h.onModuleFailed {
			hook(m)
		}
	default:
		for _, hook := range h.onModuleRefreshed {
			hook(m)
		}
	}
}

// moduleResult fires the module hooks outside of a run.
func (h *hooks) moduleResult(m refresh.ModuleResult) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.module(m)
}

func (h *hooks) contentExpired(module string, count int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, hook := range h.onContentExpired {
		hook(module, count)
	}
}
