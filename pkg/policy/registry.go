package policy

import (
	"slices"
	"time"
)

// Registry answers policy questions against an immutable Set.
type Registry struct {
	set *Set
	now func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces the wall clock used for staleness checks.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates a Registry over set. A nil set behaves as an empty one.
func NewRegistry(set *Set, opts ...Option) *Registry {
	if set == nil {
		set = &Set{policies: map[string]FreshnessPolicy{}}
	}
	r := &Registry{set: set, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Now returns the registry's current time.
func (r *Registry) Now() time.Time {
	return r.now()
}

// Policy returns the module's policy, or Default when it is not declared.
func (r *Registry) Policy(module string) FreshnessPolicy {
	if p, ok := r.set.Lookup(module); ok {
		return p
	}
	return Default.clone()
}

// Declared reports whether the module has its own policy.
func (r *Registry) Declared(module string) bool {
	_, ok := r.set.policies[module]
	return ok
}

// ExpiresAt returns from + the module's TTL.
func (r *Registry) ExpiresAt(module string, from time.Time) time.Time {
	return from.Add(r.Policy(module).TTL())
}

// IsStale reports whether content refreshed at lastRefreshed is older than the TTL.
func (r *Registry) IsStale(module string, lastRefreshed time.Time) bool {
	return r.now().Sub(lastRefreshed) > r.Policy(module).TTL()
}

// IsExpired reports whether content is older than twice the TTL.
// Anything expired is also stale.
func (r *Registry) IsExpired(module string, lastRefreshed time.Time) bool {
	return r.now().Sub(lastRefreshed) > 2*r.Policy(module).TTL()
}

// Modules returns every declared module in declaration order.
func (r *Registry) Modules() []string {
	return slices.Clone(r.set.order)
}

// ModulesNeedingRefresh returns every declared module ordered
// critical, high, moderate, low. Ties keep declaration order.
func (r *Registry) ModulesNeedingRefresh() []string {
	return r.SortByPriority(r.Modules())
}

// SortByPriority returns modules stably sorted by policy priority.
func (r *Registry) SortByPriority(modules []string) []string {
	out := slices.Clone(modules)
	slices.SortStableFunc(out, func(a, b string) int {
		return r.Policy(a).Priority.Rank() - r.Policy(b).Priority.Rank()
	})
	return out
}

// ModulesBySource returns modules routed through source or through both,
// in declaration order.
func (r *Registry) ModulesBySource(source Source) []string {
	var out []string
	for _, m := range r.set.order {
		if r.set.policies[m].RefreshSource.Serves(source) {
			out = append(out, m)
		}
	}
	return out
}
