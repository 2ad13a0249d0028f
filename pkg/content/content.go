// Package content defines the versioned content model and the Store
// contract the freshness engine reads and writes through.
package content

import (
	"context"
	"strings"
	"time"

	"github.com/agentstation/freshen/pkg/errors"
)

// SourceType records where an item's current data came from.
type SourceType string

// Source types.
const (
	SourceAPI        SourceType = "api"
	SourceAIResearch SourceType = "ai-research"
	SourceSeed       SourceType = "seed"
	SourceManual     SourceType = "manual"
)

// IsValid reports whether s is a known source type.
func (s SourceType) IsValid() bool {
	switch s {
	case SourceAPI, SourceAIResearch, SourceSeed, SourceManual:
		return true
	}
	return false
}

// Item is one keyed, versioned content payload plus its freshness metadata.
type Item struct {
	Key          string     `json:"content_key" db:"content_key"`
	Module       string     `json:"module" db:"module"`
	Section      string     `json:"section,omitempty" db:"section"`
	Data         Document   `json:"data" db:"data"`
	SourceType   SourceType `json:"source_type" db:"source_type"`
	SourceURL    string     `json:"source_url,omitempty" db:"source_url"`
	Confidence   *float64   `json:"confidence,omitempty" db:"confidence"`
	Notes        string     `json:"notes,omitempty" db:"notes"`
	Version      int        `json:"version" db:"version"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	ExpiresAt    time.Time  `json:"expires_at" db:"expires_at"`
	RefreshedAt  time.Time  `json:"refreshed_at" db:"refreshed_at"`
	LastVerified time.Time  `json:"last_verified" db:"last_verified"`
}

// Clone returns a deep copy of the item.
func (it Item) Clone() Item {
	it.Data = it.Data.Clone()
	if it.Confidence != nil {
		c := *it.Confidence
		it.Confidence = &c
	}
	return it
}

// Meta is the provenance attached to a write.
type Meta struct {
	SourceType SourceType
	SourceURL  string
	Confidence *float64
	Notes      string
	// ExpiresAt overrides the policy-derived expiry when set.
	ExpiresAt *time.Time
}

// Validate checks the provenance of a write.
func (m Meta) Validate() error {
	if !m.SourceType.IsValid() {
		return errors.NewValidationError("source_type", m.SourceType, "unknown source type")
	}
	if m.Confidence != nil && (*m.Confidence < 0 || *m.Confidence > 1) {
		return errors.NewValidationError("confidence", *m.Confidence, "must be between 0 and 1")
	}
	return nil
}

// Confidence returns a pointer to c, for building Meta literals.
func Confidence(c float64) *float64 {
	return &c
}

// Key derives the content key of a module section.
func Key(module, section string) string {
	return module + ":" + section
}

// SplitKey splits a content key into module and section.
func SplitKey(key string) (module, section string, ok bool) {
	return strings.Cut(key, ":")
}

// Write is one item of a bulk upsert.
type Write struct {
	Key     string
	Section string
	Data    Document
	// Meta overrides the batch provenance for this item when set.
	Meta *Meta
}

// Freshness aggregates the state of one module's items.
type Freshness struct {
	Module          string             `json:"module"`
	Total           int                `json:"total"`
	Active          int                `json:"active"`
	Stale           int                `json:"stale"`
	Expired         int                `json:"expired"`
	LastRefreshed   *time.Time         `json:"last_refreshed,omitempty"`
	SourceBreakdown map[SourceType]int `json:"source_breakdown"`
}

// Reader is the read side of a content store.
type Reader interface {
	// ModuleContent returns the module's active items ordered by key.
	// An empty section returns every section.
	ModuleContent(ctx context.Context, module, section string) ([]Item, error)
	// Item looks up a key. A missing key is reported by ok=false, not by an error.
	Item(ctx context.Context, key string) (item Item, ok bool, err error)
	// ModuleFreshness aggregates every item of the module, active or not.
	ModuleFreshness(ctx context.Context, module string) (Freshness, error)
}

// Writer is the write side of a content store.
type Writer interface {
	// Upsert creates the item at version 1 or fully replaces it,
	// bumping the version and reactivating it.
	Upsert(ctx context.Context, key, module, section string, data Document, meta Meta) (Item, error)
	// UpsertIfVersion upserts only when the stored version equals expected.
	// Expected 0 means the key must not exist yet.
	UpsertIfVersion(ctx context.Context, key string, expected int, module, section string, data Document, meta Meta) (Item, error)
	// BulkUpsert writes items one at a time, each atomically, and stops at
	// the first failure with a *errors.PartialApplyError.
	BulkUpsert(ctx context.Context, module string, items []Write, meta Meta) (int, error)
	// Deactivate soft-deletes key if it belongs to module.
	Deactivate(ctx context.Context, module, key string) (bool, error)
	// ExpireStale deactivates active items past their expiry.
	// An empty module sweeps every module.
	ExpireStale(ctx context.Context, module string) (int, error)
}

// Store is a versioned content store.
type Store interface {
	Reader
	Writer
}

// ValidateWrite checks the arguments shared by every upsert.
func ValidateWrite(key, module string, data Document, meta Meta) error {
	if strings.TrimSpace(key) == "" {
		return errors.NewValidationError("content_key", key, "content key is required")
	}
	if strings.TrimSpace(module) == "" {
		return errors.NewValidationError("module", module, "module is required")
	}
	if data.IsZero() {
		return errors.NewValidationError("data", key, "data is required")
	}
	return meta.Validate()
}

// BulkUpsert runs a bulk write as a sequence of single upserts against w,
// stopping at the first failure. Stores without a native batch path use it.
func BulkUpsert(ctx context.Context, w Writer, module string, items []Write, meta Meta) (int, error) {
	applied := 0
	for i, item := range items {
		m := meta
		if item.Meta != nil {
			m = *item.Meta
		}
		if err := ctx.Err(); err != nil {
			return applied, &errors.PartialApplyError{Stage: "bulk upsert", Applied: applied, Remaining: len(items) - i, FailedKey: item.Key, Err: err}
		}
		if _, err := w.Upsert(ctx, item.Key, module, item.Section, item.Data, m); err != nil {
			return applied, &errors.PartialApplyError{Stage: "bulk upsert", Applied: applied, Remaining: len(items) - i - 1, FailedKey: item.Key, Err: err}
		}
		applied++
	}
	return applied, nil
}

// Next computes the item produced by writing over prev (nil when absent)
// at now. The expiry is meta's override or expires.
func Next(prev *Item, key, module, section string, data Document, meta Meta, now, expires time.Time) Item {
	it := Item{
		Key:          key,
		Module:       module,
		Section:      section,
		Data:         data.Clone(),
		SourceType:   meta.SourceType,
		SourceURL:    meta.SourceURL,
		Notes:        meta.Notes,
		Version:      1,
		IsActive:     true,
		ExpiresAt:    expires,
		RefreshedAt:  now,
		LastVerified: now,
	}
	if meta.Confidence != nil {
		c := *meta.Confidence
		it.Confidence = &c
	}
	if meta.ExpiresAt != nil {
		it.ExpiresAt = *meta.ExpiresAt
	}
	if prev != nil {
		it.Version = prev.Version + 1
	}
	return it
}

// Aggregate computes module freshness from items at now.
func Aggregate(module string, items []Item, now time.Time) Freshness {
	f := Freshness{Module: module, SourceBreakdown: map[SourceType]int{}}
	for _, it := range items {
		f.Total++
		f.SourceBreakdown[it.SourceType]++
		expired := it.ExpiresAt.Before(now)
		switch {
		case it.IsActive && expired:
			f.Active++
			f.Stale++
		case it.IsActive:
			f.Active++
		case expired:
			f.Expired++
		}
		if f.LastRefreshed == nil || it.RefreshedAt.After(*f.LastRefreshed) {
			r := it.RefreshedAt
			f.LastRefreshed = &r
		}
	}
	return f
}

// NewestActive returns the most recent RefreshedAt among active items.
func NewestActive(items []Item) (time.Time, bool) {
	var newest time.Time
	found := false
	for _, it := range items {
		if !it.IsActive {
			continue
		}
		if !found || it.RefreshedAt.After(newest) {
			newest = it.RefreshedAt
			found = true
		}
	}
	return newest, found
}
