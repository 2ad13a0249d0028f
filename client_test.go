package freshen_test

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/freshen"
	"github.com/agentstation/freshen/internal/telemetry"
	"github.com/agentstation/freshen/pkg/audit"
	"github.com/agentstation/freshen/pkg/content"
	"github.com/agentstation/freshen/pkg/content/memory"
	"github.com/agentstation/freshen/pkg/errors"
	"github.com/agentstation/freshen/pkg/generative"
	"github.com/agentstation/freshen/pkg/policy"
	"github.com/agentstation/freshen/pkg/refresh"
)

var now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

const updateMain = `{"updates":[{"contentKey":"x:main","data":{"v":2},"reason":"new release"}],"newItems":[],"removals":[],"notes":"ok"}`

type fixture struct {
	policies *policy.Registry
	store    *memory.Store
	log      *audit.MemoryLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	set, err := policy.NewSet(
		policy.Entry{Module: "x", FreshnessPolicy: policy.FreshnessPolicy{
			TTLHours: 24, Priority: policy.PriorityHigh, RefreshSource: policy.SourceAIResearch,
		}},
		policy.Entry{Module: "y", FreshnessPolicy: policy.FreshnessPolicy{
			TTLHours: 24, Priority: policy.PriorityLow, RefreshSource: policy.SourceAIResearch,
		}},
	)
	require.NoError(t, err)
	clock := func() time.Time { return now }
	reg := policy.NewRegistry(set, policy.WithClock(clock))
	return &fixture{policies: reg, store: memory.New(reg), log: audit.NewMemoryLog(clock)}
}

func (f *fixture) seed(module, section string, age time.Duration) {
	refreshed := now.Add(-age)
	f.store.Put(content.Item{
		Key:          content.Key(module, section),
		Module:       module,
		Section:      section,
		Data:         content.Document(`{"v":1}`),
		SourceType:   content.SourceSeed,
		Version:      1,
		IsActive:     true,
		RefreshedAt:  refreshed,
		LastVerified: refreshed,
		ExpiresAt:    f.policies.ExpiresAt(module, refreshed),
	})
}

func (f *fixture) client(t *testing.T, opts ...freshen.Option) freshen.Client {
	t.Helper()
	base := []freshen.Option{
		freshen.WithPolicies(f.policies),
		freshen.WithStore(f.store),
		freshen.WithRefreshLog(f.log),
		freshen.WithModuleDelay(-1),
	}
	c, err := freshen.New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.AutoRefreshOff() })
	return c
}

func TestNewDefaults(t *testing.T) {
	c, err := freshen.New()
	require.NoError(t, err)

	assert.Equal(t, policy.DefaultSet().Len(), len(c.Policies().Modules()))

	items, err := c.ModuleContent(context.Background(), "anything", "")
	require.NoError(t, err)
	assert.Empty(t, items)

	_, found, err := c.ContentItem(context.Background(), "anything:main")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = c.RefreshAIResearched(context.Background())
	var cfgErr *errors.ConfigError
	assert.ErrorAs(t, err, &cfgErr, "no generator configured")

	_, err = c.RefreshAPISourced(context.Background())
	assert.ErrorAs(t, err, &cfgErr, "no fetcher configured")
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	_, err := freshen.New(freshen.WithRefreshSchedule("every tuesday"))
	assert.True(t, errors.IsValidationError(err))

	_, err = freshen.New(freshen.WithRetentionDays(-1))
	assert.True(t, errors.IsValidationError(err))
}

func TestRefreshFiresHooksAndMetrics(t *testing.T) {
	f := newFixture(t)
	f.seed("x", "main", 30*time.Hour)
	metrics := telemetry.New()
	gen := generative.Reply(updateMain, 40)
	c := f.client(t, freshen.WithGenerator(gen), freshen.WithMetrics(metrics))

	var mu sync.Mutex
	var refreshed []string
	var runs []*refresh.RunResult
	c.OnModuleRefreshed(func(r refresh.ModuleResult) {
		mu.Lock()
		defer mu.Unlock()
		refreshed = append(refreshed, r.Module)
	})
	c.OnModuleFailed(func(r refresh.ModuleResult) {
		t.Errorf("unexpected failure for %s: %s", r.Module, r.Notes)
	})
	c.OnRunCompleted(func(r *refresh.RunResult) {
		mu.Lock()
		defer mu.Unlock()
		runs = append(runs, r)
	})

	run, err := c.RefreshAIResearched(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, run.Refreshed)
	assert.Equal(t, 1, run.ItemsUpdated)

	assert.Equal(t, []string{"x", "y"}, refreshed)
	require.Len(t, runs, 1)
	assert.Same(t, run, runs[0])

	it, found, err := c.ContentItem(context.Background(), "x:main")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, it.Version)
	assert.Equal(t, content.SourceAIResearch, it.SourceType)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Runs.WithLabelValues("ai-research")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Cycles.WithLabelValues("x", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ItemsApplied.WithLabelValues("x", "updated")), 0)
	assert.InDelta(t, 80, testutil.ToFloat64(metrics.TokensUsed.WithLabelValues("x"))+testutil.ToFloat64(metrics.TokensUsed.WithLabelValues("y")), 0)
}

func TestRefreshModuleFiresFailedHook(t *testing.T) {
	f := newFixture(t)
	gen := generative.Func(func(context.Context, generative.Request) (generative.Response, error) {
		return generative.Response{}, stderrors.New("connection reset")
	})
	c := f.client(t, freshen.WithGenerator(gen))

	var failed []string
	c.OnModuleFailed(func(r refresh.ModuleResult) {
		failed = append(failed, r.Module)
	})

	res, err := c.RefreshModule(context.Background(), "x", true)
	require.Error(t, err)
	assert.True(t, res.Failed())
	assert.Equal(t, []string{"x"}, failed)

	logs, err := c.RefreshLogs(context.Background(), audit.Filter{Module: "x"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, audit.StatusFailed, logs[0].Status)
}

func TestExpireStaleContent(t *testing.T) {
	f := newFixture(t)
	f.seed("x", "old", 30*time.Hour)
	f.seed("x", "new", time.Hour)
	f.seed("y", "old", 30*time.Hour)
	c := f.client(t)

	type expired struct {
		module string
		count  int
	}
	var calls []expired
	c.OnContentExpired(func(module string, count int) {
		calls = append(calls, expired{module, count})
	})

	ctx := context.Background()
	n, err := c.ExpireStaleContent(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	items, err := c.ModuleContent(ctx, "x", "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "x:new", items[0].Key)

	n, err = c.ExpireStaleContent(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only y:old is left to expire")

	n, err = c.ExpireStaleContent(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, []expired{{"x", 1}, {freshen.AllModules, 1}}, calls)

	logs, err := c.RefreshLogs(ctx, audit.Filter{RefreshType: audit.RefreshExpire})
	require.NoError(t, err)
	require.Len(t, logs, 3)
	total := 0
	for _, e := range logs {
		total += e.ItemsExpired
	}
	assert.Equal(t, 2, total)

	// Expired items stay readable by key.
	it, found, err := c.ContentItem(ctx, "x:old")
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, it.IsActive)
}

func TestPruneRefreshLogs(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)
	ctx := context.Background()

	for _, age := range []int{1, 10, 100, 200} {
		_, err := f.log.Append(ctx, audit.Entry{
			Module:      "x",
			RefreshType: audit.RefreshAIResearch,
			CreatedAt:   now.AddDate(0, 0, -age),
		})
		require.NoError(t, err)
	}

	n, err := c.PruneRefreshLogs(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	logs, err := c.RefreshLogs(ctx, audit.Filter{})
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	_, err = c.PruneRefreshLogs(ctx, -1)
	assert.True(t, errors.IsValidationError(err))
}

func TestAllModuleFreshness(t *testing.T) {
	f := newFixture(t)
	f.seed("x", "a", 30*time.Hour)
	f.seed("x", "b", time.Hour)
	c := f.client(t)

	all, err := c.AllModuleFreshness(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "x", all[0].Module)
	assert.Equal(t, 2, all[0].Active)
	assert.Equal(t, 1, all[0].Stale)
	assert.Equal(t, "y", all[1].Module)
	assert.Zero(t, all[1].Total)
}

func TestAutoRefresh(t *testing.T) {
	f := newFixture(t)
	f.seed("x", "old", 30*time.Hour)
	c := f.client(t,
		freshen.WithRefreshSchedule(""),
		freshen.WithPruneSchedule(""),
		freshen.WithExpireSchedule("@every 1s"),
	)

	var expired atomic.Int64
	c.OnContentExpired(func(_ string, count int) {
		expired.Add(int64(count))
	})

	require.NoError(t, c.AutoRefreshOn())
	assert.Eventually(t, func() bool { return expired.Load() == 1 }, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, c.AutoRefreshOff())
	require.NoError(t, c.AutoRefreshOff(), "stopping twice is harmless")
}

func TestAutoRefreshWithoutJobs(t *testing.T) {
	f := newFixture(t)
	c := f.client(t,
		freshen.WithRefreshSchedule(""),
		freshen.WithExpireSchedule(""),
		freshen.WithPruneSchedule(""),
	)
	var cfgErr *errors.ConfigError
	assert.ErrorAs(t, c.AutoRefreshOn(), &cfgErr)
}
