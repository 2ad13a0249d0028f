// Package memory is an in-process content.Store used by tests and dry runs.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/agentstation/freshen/pkg/content"
	"github.com/agentstation/freshen/pkg/errors"
	"github.com/agentstation/freshen/pkg/policy"
)

// Store keeps content items in a map guarded by a mutex.
// Payloads are copied on the way in and out.
type Store struct {
	mu       sync.RWMutex
	items    map[string]content.Item
	policies *policy.Registry
}

var _ content.Store = (*Store)(nil)

// New returns an empty store that derives expiry and time from policies.
func New(policies *policy.Registry) *Store {
	if policies == nil {
		policies = policy.NewRegistry(nil)
	}
	return &Store{
		items:    make(map[string]content.Item),
		policies: policies,
	}
}

// ModuleContent implements content.Reader.
func (s *Store) ModuleContent(ctx context.Context, module, section string) ([]content.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []content.Item
	for _, it := range s.items {
		if it.Module != module || !it.IsActive {
			continue
		}
		if section != "" && it.Section != section {
			continue
		}
		out = append(out, it.Clone())
	}
	slices.SortFunc(out, func(a, b content.Item) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

// Item implements content.Reader.
func (s *Store) Item(ctx context.Context, key string) (content.Item, bool, error) {
	if err := ctx.Err(); err != nil {
		return content.Item{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[key]
	if !ok {
		return content.Item{}, false, nil
	}
	return it.Clone(), true, nil
}

// Upsert implements content.Writer.
func (s *Store) Upsert(ctx context.Context, key, module, section string, data content.Document, meta content.Meta) (content.Item, error) {
	if err := ctx.Err(); err != nil {
		return content.Item{}, err
	}
	if err := content.ValidateWrite(key, module, data, meta); err != nil {
		return content.Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(key, module, section, data, meta), nil
}

// UpsertIfVersion implements content.Writer.
func (s *Store) UpsertIfVersion(ctx context.Context, key string, expected int, module, section string, data content.Document, meta content.Meta) (content.Item, error) {
	if err := ctx.Err(); err != nil {
		return content.Item{}, err
	}
	if err := content.ValidateWrite(key, module, data, meta); err != nil {
		return content.Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	actual := 0
	if prev, ok := s.items[key]; ok {
		actual = prev.Version
	}
	if actual != expected {
		return content.Item{}, &errors.VersionConflictError{Key: key, Expected: expected, Actual: actual}
	}
	return s.write(key, module, section, data, meta), nil
}

// write must be called with the lock held.
func (s *Store) write(key, module, section string, data content.Document, meta content.Meta) content.Item {
	now := s.policies.Now()
	var prev *content.Item
	if p, ok := s.items[key]; ok {
		prev = &p
	}
	it := content.Next(prev, key, module, section, data, meta, now, s.policies.ExpiresAt(module, now))
	s.items[key] = it
	return it.Clone()
}

// BulkUpsert implements content.Writer.
func (s *Store) BulkUpsert(ctx context.Context, module string, items []content.Write, meta content.Meta) (int, error) {
	return content.BulkUpsert(ctx, s, module, items, meta)
}

// Deactivate implements content.Writer.
func (s *Store) Deactivate(ctx context.Context, module, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	if !ok || it.Module != module || !it.IsActive {
		return false, nil
	}
	it.IsActive = false
	s.items[key] = it
	return true, nil
}

// ExpireStale implements content.Writer.
func (s *Store) ExpireStale(ctx context.Context, module string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.policies.Now()
	n := 0
	for key, it := range s.items {
		if module != "" && it.Module != module {
			continue
		}
		if it.IsActive && it.ExpiresAt.Before(now) {
			it.IsActive = false
			s.items[key] = it
			n++
		}
	}
	return n, nil
}

// ModuleFreshness implements content.Reader.
func (s *Store) ModuleFreshness(ctx context.Context, module string) (content.Freshness, error) {
	if err := ctx.Err(); err != nil {
		return content.Freshness{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []content.Item
	for _, it := range s.items {
		if it.Module == module {
			items = append(items, it)
		}
	}
	return content.Aggregate(module, items, s.policies.Now()), nil
}

// Put stores an item exactly as given, bypassing versioning. It seeds
// fixtures with arbitrary timestamps.
func (s *Store) Put(it content.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[it.Key] = it.Clone()
}
