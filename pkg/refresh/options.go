package refresh

import (
	"time"

	"github.com/agentstation/freshen/pkg/errors"
)

// Options controls one orchestrator run.
type Options struct {
	// SortByPriority reorders eligible modules critical first instead of
	// keeping registry-declared order.
	SortByPriority bool
	// Force runs modules whose content is still fresh.
	Force bool
	// Modules restricts the run to these modules. Empty means every eligible module.
	Modules []string
	// Timeout bounds the whole run. Zero means no bound beyond the caller's context.
	Timeout time.Duration
}

// Option configures run Options.
type Option func(*Options)

// Defaults returns the default run options.
func Defaults() *Options {
	return &Options{}
}

// Apply applies opts to o.
func (o *Options) Apply(opts ...Option) *Options {
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Validate checks the run options.
func (o *Options) Validate() error {
	if o.Timeout < 0 {
		return &errors.ValidationError{
			Field:   "Timeout",
			Value:   o.Timeout,
			Message: "timeout must be non-negative",
		}
	}
	return nil
}

// WithSortByPriority orders the run by module priority.
func WithSortByPriority(sort bool) Option {
	return func(o *Options) {
		o.SortByPriority = sort
	}
}

// WithForce refreshes modules regardless of freshness.
func WithForce(force bool) Option {
	return func(o *Options) {
		o.Force = force
	}
}

// WithModules restricts the run to modules.
func WithModules(modules ...string) Option {
	return func(o *Options) {
		o.Modules = modules
	}
}

// WithTimeout bounds the whole run.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.Timeout = timeout
	}
}

// selected keeps the eligible modules the options ask for, preserving order.
func (o *Options) selected(eligible []string) []string {
	if len(o.Modules) == 0 {
		return eligible
	}
	want := make(map[string]bool, len(o.Modules))
	for _, m := range o.Modules {
		want[m] = true
	}
	var out []string
	for _, m := range eligible {
		if want[m] {
			out = append(out, m)
		}
	}
	return out
}
