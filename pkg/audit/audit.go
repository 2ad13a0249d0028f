// Package audit records the outcome of every refresh attempt.
// Entries are append-only; Prune is the only way anything is removed.
package audit

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the outcome of a refresh attempt.
type Status string

// Statuses.
const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// RefreshType discriminates the refresh paths sharing the log.
type RefreshType string

// Refresh types.
const (
	RefreshAIResearch RefreshType = "ai-research"
	RefreshAPI        RefreshType = "api"
	RefreshExpire     RefreshType = "expire"
)

// Entry is one refresh attempt.
type Entry struct {
	ID           string        `json:"id"`
	RunID        string        `json:"run_id,omitempty"`
	Module       string        `json:"module"`
	RefreshType  RefreshType   `json:"refresh_type"`
	Status       Status        `json:"status"`
	ItemsChecked int           `json:"items_checked"`
	ItemsUpdated int           `json:"items_updated"`
	ItemsCreated int           `json:"items_created"`
	ItemsExpired int           `json:"items_expired"`
	TokensUsed   int64         `json:"tokens_used"`
	Duration     time.Duration `json:"duration"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Module      string
	RefreshType RefreshType
	Status      Status
	RunID       string
	Since       time.Time
	// Limit caps the number of entries returned, newest first. Zero means no cap.
	Limit int
}

// Matches reports whether e passes the filter, ignoring Limit.
func (f Filter) Matches(e Entry) bool {
	switch {
	case f.Module != "" && e.Module != f.Module:
		return false
	case f.RefreshType != "" && e.RefreshType != f.RefreshType:
		return false
	case f.Status != "" && e.Status != f.Status:
		return false
	case f.RunID != "" && e.RunID != f.RunID:
		return false
	case !f.Since.IsZero() && e.CreatedAt.Before(f.Since):
		return false
	}
	return true
}

// Log is an append-only refresh log.
type Log interface {
	// Append stores e, assigning an ID and CreatedAt when they are empty.
	Append(ctx context.Context, e Entry) (Entry, error)
	// List returns matching entries, newest first.
	List(ctx context.Context, f Filter) ([]Entry, error)
	// Prune deletes entries created before cutoff and returns how many went.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// Stamp fills in the ID and creation time of a new entry.
func Stamp(e Entry, now time.Time) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.Status == "" {
		e.Status = StatusSuccess
	}
	return e
}

// MemoryLog is an in-process Log.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
}

var _ Log = (*MemoryLog)(nil)

// NewMemoryLog returns an empty log. A nil clock uses time.Now.
func NewMemoryLog(now func() time.Time) *MemoryLog {
	if now == nil {
		now = time.Now
	}
	return &MemoryLog{now: now}
}

// Append implements Log.
func (l *MemoryLog) Append(ctx context.Context, e Entry) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	e = Stamp(e, l.now())
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
	return e, nil
}

// List implements Log.
func (l *MemoryLog) List(ctx context.Context, f Filter) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Entry
	for i := len(l.entries) - 1; i >= 0; i-- {
		if f.Matches(l.entries[i]) {
			out = append(out, l.entries[i])
		}
	}
	slices.SortStableFunc(out, func(a, b Entry) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Prune implements Log.
func (l *MemoryLog) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[:0]
	for _, e := range l.entries {
		if !e.CreatedAt.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(l.entries) - len(kept)
	l.entries = kept
	return removed, nil
}

// Cutoff returns the prune cutoff that keeps daysToKeep days of history.
func Cutoff(now time.Time, daysToKeep int) time.Time {
	return now.AddDate(0, 0, -daysToKeep)
}
