package policy

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/freshen/pkg/errors"
)

//go:embed defaults.yaml
var defaultPolicies []byte

// Entry pairs a module name with its policy.
type Entry struct {
	Module string `yaml:"module" json:"module"`
	FreshnessPolicy `yaml:",inline"`
}

// Set is an immutable, ordered collection of module policies.
type Set struct {
	order    []string
	policies map[string]FreshnessPolicy
}

type file struct {
	Modules []Entry `yaml:"modules"`
}

// NewSet validates entries and builds a Set in the given order.
func NewSet(entries ...Entry) (*Set, error) {
	s := &Set{
		order:    make([]string, 0, len(entries)),
		policies: make(map[string]FreshnessPolicy, len(entries)),
	}
	for _, e := range entries {
		name := strings.TrimSpace(e.Module)
		if name == "" {
			return nil, errors.NewValidationError("module", e.Module, "module name is required")
		}
		if _, dup := s.policies[name]; dup {
			return nil, errors.NewValidationError("module", name, "declared more than once")
		}
		if err := e.FreshnessPolicy.validate(name); err != nil {
			return nil, errors.NewValidationError("module", name, err.Error())
		}
		s.order = append(s.order, name)
		s.policies[name] = e.FreshnessPolicy.clone()
	}
	return s, nil
}

// Parse reads a policy set from YAML of the form
//
//	modules:
//	  - module: ai-models
//	    ttl_hours: 24
//	    priority: critical
//	    refresh_source: ai-research
//	    keywords: [model, release]
func Parse(data []byte) (*Set, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.WrapParse("yaml", "", err)
	}
	return NewSet(f.Modules...)
}

// LoadFile reads a policy set from a YAML file.
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewConfigError("policy", fmt.Sprintf("reading %s", path), err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}
	return NewSet(f.Modules...)
}

// DefaultSet returns the dashboard's built-in policy table.
func DefaultSet() *Set {
	s, err := Parse(defaultPolicies)
	if err != nil {
		panic(fmt.Sprintf("policy: built-in table is invalid: %v", err))
	}
	return s
}

// Len returns the number of declared modules.
func (s *Set) Len() int {
	return len(s.order)
}

// Lookup returns a copy of the module's declared policy.
func (s *Set) Lookup(module string) (FreshnessPolicy, bool) {
	p, ok := s.policies[module]
	if !ok {
		return FreshnessPolicy{}, false
	}
	return p.clone(), true
}

// Entries returns the declared policies in declaration order.
func (s *Set) Entries() []Entry {
	out := make([]Entry, 0, len(s.order))
	for _, m := range s.order {
		out = append(out, Entry{Module: m, FreshnessPolicy: s.policies[m].clone()})
	}
	return out
}
