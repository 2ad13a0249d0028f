// Package contenttest holds behaviour tests shared by every content.Store.
package contenttest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/freshen/pkg/content"
	"github.com/agentstation/freshen/pkg/errors"
	"github.com/agentstation/freshen/pkg/policy"
)

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock stopped at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Factory builds an empty store that reads time and expiry from reg.
type Factory func(t *testing.T, reg *policy.Registry) content.Store

// Start is the fake time every suite begins at.
var Start = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// Registry returns the registry shared by the suite: modules x and y with a 24h TTL.
func Registry(t *testing.T, clock *Clock) *policy.Registry {
	t.Helper()
	set, err := policy.NewSet(
		policy.Entry{Module: "x", FreshnessPolicy: policy.FreshnessPolicy{TTLHours: 24, Priority: policy.PriorityHigh, RefreshSource: policy.SourceAIResearch}},
		policy.Entry{Module: "y", FreshnessPolicy: policy.FreshnessPolicy{TTLHours: 24, Priority: policy.PriorityLow, RefreshSource: policy.SourceAPI}},
	)
	require.NoError(t, err)
	return policy.NewRegistry(set, policy.WithClock(clock.Now))
}

func seed() content.Meta {
	return content.Meta{SourceType: content.SourceSeed}
}

// Run exercises the content.Store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	setup := func(t *testing.T) (content.Store, *Clock) {
		clock := NewClock(Start)
		return newStore(t, Registry(t, clock)), clock
	}
	ctx := context.Background()

	t.Run("create starts at version one", func(t *testing.T) {
		s, _ := setup(t)
		it, err := s.Upsert(ctx, "x:y", "x", "y", content.MustDocument(map[string]int{"a": 1}), seed())
		require.NoError(t, err)
		assert.Equal(t, 1, it.Version)
		assert.True(t, it.IsActive)
		assert.True(t, it.RefreshedAt.Equal(Start))
		assert.True(t, it.LastVerified.Equal(Start))
		assert.True(t, it.ExpiresAt.Equal(Start.Add(24*time.Hour)))
	})

	t.Run("upsert replaces and bumps version", func(t *testing.T) {
		s, clock := setup(t)
		_, err := s.Upsert(ctx, "x:y", "x", "y", content.MustDocument(map[string]int{"a": 1}), seed())
		require.NoError(t, err)
		clock.Advance(time.Hour)
		_, err = s.Upsert(ctx, "x:y", "x", "y", content.MustDocument(map[string]int{"a": 2}), content.Meta{SourceType: content.SourceManual})
		require.NoError(t, err)

		it, ok, err := s.Item(ctx, "x:y")
		require.NoError(t, err)
		require.True(t, ok)
		assert.JSONEq(t, `{"a":2}`, it.Data.String())
		assert.Equal(t, 2, it.Version)
		assert.Equal(t, content.SourceManual, it.SourceType)
		assert.True(t, it.RefreshedAt.Equal(Start.Add(time.Hour)))
		assert.True(t, it.ExpiresAt.Equal(Start.Add(25*time.Hour)))
	})

	t.Run("repeated upsert is idempotent on data", func(t *testing.T) {
		s, _ := setup(t)
		doc := content.MustDocument(map[string]any{"list": []int{1, 2}})
		_, err := s.Upsert(ctx, "x:a", "x", "a", doc, seed())
		require.NoError(t, err)
		first, _, err := s.Item(ctx, "x:a")
		require.NoError(t, err)

		for range 2 {
			_, err = s.Upsert(ctx, "x:a", "x", "a", doc, seed())
			require.NoError(t, err)
		}
		it, _, err := s.Item(ctx, "x:a")
		require.NoError(t, err)
		assert.Equal(t, first.Version+2, it.Version)
		assert.JSONEq(t, doc.String(), it.Data.String())
	})

	t.Run("missing item is not an error", func(t *testing.T) {
		s, _ := setup(t)
		_, ok, err := s.Item(ctx, "nope:nothing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("metadata round trips", func(t *testing.T) {
		s, _ := setup(t)
		override := Start.Add(5 * time.Hour)
		_, err := s.Upsert(ctx, "x:m", "x", "m", content.MustDocument("v"), content.Meta{
			SourceType: content.SourceAIResearch,
			SourceURL:  "https://example.com/a",
			Confidence: content.Confidence(0.42),
			Notes:      "from evidence",
			ExpiresAt:  &override,
		})
		require.NoError(t, err)

		it, ok, err := s.Item(ctx, "x:m")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "https://example.com/a", it.SourceURL)
		require.NotNil(t, it.Confidence)
		assert.InDelta(t, 0.42, *it.Confidence, 1e-9)
		assert.Equal(t, "from evidence", it.Notes)
		assert.True(t, it.ExpiresAt.Equal(override))
	})

	t.Run("invalid writes are rejected", func(t *testing.T) {
		s, _ := setup(t)
		_, err := s.Upsert(ctx, "", "x", "a", content.MustDocument(1), seed())
		assert.True(t, errors.IsValidationError(err))
		_, err = s.Upsert(ctx, "x:a", "x", "a", content.MustDocument(1), content.Meta{SourceType: "rumour"})
		assert.True(t, errors.IsValidationError(err))
		_, err = s.Upsert(ctx, "x:a", "x", "a", content.MustDocument(1), content.Meta{SourceType: content.SourceSeed, Confidence: content.Confidence(1.5)})
		assert.True(t, errors.IsValidationError(err))
		_, err = s.Upsert(ctx, "x:a", "x", "a", nil, seed())
		assert.True(t, errors.IsValidationError(err))
	})

	t.Run("module content is scoped and ordered", func(t *testing.T) {
		s, _ := setup(t)
		for _, k := range []string{"x:c", "x:a", "y:a", "x:b"} {
			mod, sec, _ := content.SplitKey(k)
			_, err := s.Upsert(ctx, k, mod, sec, content.MustDocument(k), seed())
			require.NoError(t, err)
		}
		ok, err := s.Deactivate(ctx, "x", "x:b")
		require.NoError(t, err)
		require.True(t, ok)

		items, err := s.ModuleContent(ctx, "x", "")
		require.NoError(t, err)
		var keys []string
		for _, it := range items {
			assert.Equal(t, "x", it.Module)
			assert.True(t, it.IsActive)
			keys = append(keys, it.Key)
		}
		assert.Equal(t, []string{"x:a", "x:c"}, keys)

		items, err = s.ModuleContent(ctx, "x", "c")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "x:c", items[0].Key)
	})

	t.Run("deactivate is scoped to module", func(t *testing.T) {
		s, _ := setup(t)
		_, err := s.Upsert(ctx, "y:a", "y", "a", content.MustDocument(1), seed())
		require.NoError(t, err)

		ok, err := s.Deactivate(ctx, "x", "y:a")
		require.NoError(t, err)
		assert.False(t, ok)

		it, _, err := s.Item(ctx, "y:a")
		require.NoError(t, err)
		assert.True(t, it.IsActive)

		ok, err = s.Deactivate(ctx, "y", "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("soft delete is reversible", func(t *testing.T) {
		s, _ := setup(t)
		_, err := s.Upsert(ctx, "x:a", "x", "a", content.MustDocument(1), seed())
		require.NoError(t, err)
		_, err = s.Deactivate(ctx, "x", "x:a")
		require.NoError(t, err)

		it, ok, err := s.Item(ctx, "x:a")
		require.NoError(t, err)
		require.True(t, ok, "inactive items stay readable by key")
		assert.False(t, it.IsActive)
		assert.Equal(t, 1, it.Version)

		it, err = s.Upsert(ctx, "x:a", "x", "a", content.MustDocument(2), seed())
		require.NoError(t, err)
		assert.True(t, it.IsActive)
		assert.Equal(t, 2, it.Version)
	})

	t.Run("expire stale flips only expired active items", func(t *testing.T) {
		s, clock := setup(t)
		_, err := s.Upsert(ctx, "x:old", "x", "old", content.MustDocument(1), seed())
		require.NoError(t, err)
		_, err = s.Upsert(ctx, "y:old", "y", "old", content.MustDocument(1), seed())
		require.NoError(t, err)
		clock.Advance(20 * time.Hour)
		_, err = s.Upsert(ctx, "x:fresh", "x", "fresh", content.MustDocument(1), seed())
		require.NoError(t, err)
		clock.Advance(5 * time.Hour)

		n, err := s.ExpireStale(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		old, _, err := s.Item(ctx, "x:old")
		require.NoError(t, err)
		assert.False(t, old.IsActive)
		fresh, _, err := s.Item(ctx, "x:fresh")
		require.NoError(t, err)
		assert.True(t, fresh.IsActive)
		other, _, err := s.Item(ctx, "y:old")
		require.NoError(t, err)
		assert.True(t, other.IsActive, "sweep is scoped to the module")

		n, err = s.ExpireStale(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("module freshness", func(t *testing.T) {
		s, clock := setup(t)
		_, err := s.Upsert(ctx, "x:a", "x", "a", content.MustDocument(1), seed())
		require.NoError(t, err)
		_, err = s.Upsert(ctx, "x:b", "x", "b", content.MustDocument(1), content.Meta{SourceType: content.SourceManual})
		require.NoError(t, err)
		_, err = s.Upsert(ctx, "x:c", "x", "c", content.MustDocument(1), seed())
		require.NoError(t, err)
		_, err = s.Deactivate(ctx, "x", "x:c")
		require.NoError(t, err)
		clock.Advance(30 * time.Hour)
		_, err = s.Upsert(ctx, "x:d", "x", "d", content.MustDocument(1), content.Meta{SourceType: content.SourceAIResearch})
		require.NoError(t, err)

		f, err := s.ModuleFreshness(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, "x", f.Module)
		assert.Equal(t, 4, f.Total)
		assert.Equal(t, 3, f.Active)
		assert.Equal(t, 2, f.Stale)
		assert.Equal(t, 1, f.Expired)
		require.NotNil(t, f.LastRefreshed)
		assert.True(t, f.LastRefreshed.Equal(Start.Add(30*time.Hour)))
		assert.Equal(t, map[content.SourceType]int{
			content.SourceSeed:       2,
			content.SourceManual:     1,
			content.SourceAIResearch: 1,
		}, f.SourceBreakdown)

		empty, err := s.ModuleFreshness(ctx, "nothing")
		require.NoError(t, err)
		assert.Zero(t, empty.Total)
		assert.Nil(t, empty.LastRefreshed)
	})

	t.Run("compare and swap", func(t *testing.T) {
		s, _ := setup(t)
		it, err := s.UpsertIfVersion(ctx, "x:cas", 0, "x", "cas", content.MustDocument(1), seed())
		require.NoError(t, err)
		assert.Equal(t, 1, it.Version)

		_, err = s.UpsertIfVersion(ctx, "x:cas", 0, "x", "cas", content.MustDocument(2), seed())
		require.Error(t, err)
		assert.True(t, errors.IsVersionConflict(err))

		it, err = s.UpsertIfVersion(ctx, "x:cas", 1, "x", "cas", content.MustDocument(2), seed())
		require.NoError(t, err)
		assert.Equal(t, 2, it.Version)

		_, err = s.UpsertIfVersion(ctx, "x:cas", 1, "x", "cas", content.MustDocument(3), seed())
		var conflict *errors.VersionConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, 1, conflict.Expected)
		assert.Equal(t, 2, conflict.Actual)

		got, _, err := s.Item(ctx, "x:cas")
		require.NoError(t, err)
		assert.JSONEq(t, "2", got.Data.String())
	})

	t.Run("bulk upsert stops at first failure", func(t *testing.T) {
		s, _ := setup(t)
		bad := content.Meta{SourceType: content.SourceSeed, Confidence: content.Confidence(-1)}
		items := []content.Write{
			{Key: "x:1", Section: "1", Data: content.MustDocument(1)},
			{Key: "x:2", Section: "2", Data: content.MustDocument(2)},
			{Key: "x:3", Section: "3", Data: content.MustDocument(3), Meta: &bad},
			{Key: "x:4", Section: "4", Data: content.MustDocument(4)},
		}
		n, err := s.BulkUpsert(ctx, "x", items, seed())
		assert.Equal(t, 2, n)

		var partial *errors.PartialApplyError
		require.ErrorAs(t, err, &partial)
		assert.Equal(t, 2, partial.Applied)
		assert.Equal(t, "x:3", partial.FailedKey)
		assert.Equal(t, 1, partial.Remaining)

		_, ok, err := s.Item(ctx, "x:2")
		require.NoError(t, err)
		assert.True(t, ok, "earlier writes are kept")
		_, ok, err = s.Item(ctx, "x:4")
		require.NoError(t, err)
		assert.False(t, ok, "later writes are not attempted")
	})

	t.Run("bulk upsert writes all", func(t *testing.T) {
		s, _ := setup(t)
		n, err := s.BulkUpsert(ctx, "y", []content.Write{
			{Key: "y:1", Section: "1", Data: content.MustDocument(1)},
			{Key: "y:2", Section: "2", Data: content.MustDocument(2)},
		}, content.Meta{SourceType: content.SourceAPI})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		items, err := s.ModuleContent(ctx, "y", "")
		require.NoError(t, err)
		assert.Len(t, items, 2)
	})
}
