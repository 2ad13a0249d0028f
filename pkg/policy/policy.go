// Package policy holds per-module freshness policies and the staleness math
// built on them. A Set is constructed once and never mutated; a Registry
// answers lookups against a Set with a fallback default for unknown modules.
package policy

import (
	"fmt"
	"slices"
	"time"
)

// Priority orders modules when deciding what to refresh first.
type Priority string

// Priorities, most urgent first.
const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityModerate Priority = "moderate"
	PriorityLow      Priority = "low"
)

// Rank returns the sort rank of the priority; lower refreshes first.
// Unknown priorities rank after low.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityModerate:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	return p.Rank() < 4
}

// Source is the refresh path a module is routed through.
type Source string

// Refresh sources.
const (
	SourceAPI        Source = "api"
	SourceAIResearch Source = "ai-research"
	SourceBoth       Source = "both"
)

// IsValid reports whether s is a known source.
func (s Source) IsValid() bool {
	switch s {
	case SourceAPI, SourceAIResearch, SourceBoth:
		return true
	}
	return false
}

// Serves reports whether a module routed through s takes part in refreshes for want.
func (s Source) Serves(want Source) bool {
	return s == want || s == SourceBoth
}

// APIEndpoint describes the plain JSON endpoint behind an api-sourced module.
type APIEndpoint struct {
	URL        string `yaml:"url" json:"url"`
	AuthHeader string `yaml:"auth_header,omitempty" json:"auth_header,omitempty"`
	APIKeyEnv  string `yaml:"api_key_env,omitempty" json:"api_key_env,omitempty"`
	Section    string `yaml:"section,omitempty" json:"section,omitempty"`
}

// FreshnessPolicy is the freshness configuration of one module.
type FreshnessPolicy struct {
	TTLHours      int          `yaml:"ttl_hours" json:"ttl_hours"`
	Priority      Priority     `yaml:"priority" json:"priority"`
	RefreshSource Source       `yaml:"refresh_source" json:"refresh_source"`
	Keywords      []string     `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Instructions  string       `yaml:"instructions,omitempty" json:"instructions,omitempty"`
	API           *APIEndpoint `yaml:"api,omitempty" json:"api,omitempty"`
}

// Default is the policy of any module the set does not declare:
// 30 days, moderate priority, refreshed through ai-research, no keywords.
var Default = FreshnessPolicy{
	TTLHours:      720,
	Priority:      PriorityModerate,
	RefreshSource: SourceAIResearch,
}

// TTL returns the policy's time-to-live.
func (p FreshnessPolicy) TTL() time.Duration {
	return time.Duration(p.TTLHours) * time.Hour
}

// clone returns a copy that shares no slices or pointers with p.
func (p FreshnessPolicy) clone() FreshnessPolicy {
	p.Keywords = slices.Clone(p.Keywords)
	if p.API != nil {
		api := *p.API
		p.API = &api
	}
	return p
}

func (p FreshnessPolicy) validate(module string) error {
	if p.TTLHours <= 0 {
		return fmt.Errorf("module %s: ttl_hours must be positive, got %d", module, p.TTLHours)
	}
	if !p.Priority.IsValid() {
		return fmt.Errorf("module %s: unknown priority %q", module, p.Priority)
	}
	if !p.RefreshSource.IsValid() {
		return fmt.Errorf("module %s: unknown refresh_source %q", module, p.RefreshSource)
	}
	if p.API != nil && p.API.URL == "" {
		return fmt.Errorf("module %s: api block requires a url", module)
	}
	return nil
}
