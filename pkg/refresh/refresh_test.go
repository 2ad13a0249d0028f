package refresh_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/freshen/internal/lease"
	"github.com/agentstation/freshen/pkg/audit"
	"github.com/agentstation/freshen/pkg/content"
	"github.com/agentstation/freshen/pkg/content/memory"
	"github.com/agentstation/freshen/pkg/errors"
	"github.com/agentstation/freshen/pkg/evidence"
	"github.com/agentstation/freshen/pkg/generative"
	"github.com/agentstation/freshen/pkg/policy"
	"github.com/agentstation/freshen/pkg/reconcile"
	"github.com/agentstation/freshen/pkg/refresh"
)

var now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

const noChanges = `{"updates":[],"newItems":[],"removals":[],"notes":"nothing new"}`

type harness struct {
	policies *policy.Registry
	store    *memory.Store
	log      *audit.MemoryLog
	gen      generative.Generator
}

func newHarness(t *testing.T, gen generative.Generator, entries ...policy.Entry) *harness {
	t.Helper()
	set, err := policy.NewSet(entries...)
	require.NoError(t, err)
	clock := func() time.Time { return now }
	reg := policy.NewRegistry(set, policy.WithClock(clock))
	return &harness{
		policies: reg,
		store:    memory.New(reg),
		log:      audit.NewMemoryLog(clock),
		gen:      gen,
	}
}

func (h *harness) orchestrator(t *testing.T, mutate ...func(*refresh.Config)) *refresh.Orchestrator {
	t.Helper()
	engine, err := reconcile.New(h.store, evidence.NewGatherer(evidence.NewMemoryCorpus(), h.policies), h.gen, h.log, h.policies)
	require.NoError(t, err)
	cfg := refresh.Config{
		Engine:      engine,
		Store:       h.store,
		Policies:    h.policies,
		Log:         h.log,
		ModuleDelay: -1,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	o, err := refresh.New(cfg)
	require.NoError(t, err)
	return o
}

// seed stores an active item for module refreshed age ago.
func (h *harness) seed(module string, age time.Duration) {
	refreshed := now.Add(-age)
	h.store.Put(content.Item{
		Key:          content.Key(module, "main"),
		Module:       module,
		Section:      "main",
		Data:         content.Document(`{"v":1}`),
		SourceType:   content.SourceSeed,
		Version:      1,
		IsActive:     true,
		RefreshedAt:  refreshed,
		LastVerified: refreshed,
		ExpiresAt:    h.policies.ExpiresAt(module, refreshed),
	})
}

func (h *harness) entries(t *testing.T, f audit.Filter) []audit.Entry {
	t.Helper()
	entries, err := h.log.List(context.Background(), f)
	require.NoError(t, err)
	return entries
}

func entry(module string, ttl int, priority policy.Priority, source policy.Source) policy.Entry {
	return policy.Entry{Module: module, FreshnessPolicy: policy.FreshnessPolicy{
		TTLHours: ttl, Priority: priority, RefreshSource: source,
	}}
}

// modulesOf returns the modules named in the prompts a script received.
func modulesOf(reqs []generative.Request) []string {
	var out []string
	for _, r := range reqs {
		first, _, _ := strings.Cut(r.Prompt, "\n")
		out = append(out, strings.TrimPrefix(first, "Module: "))
	}
	return out
}

func TestRefreshSkipsFreshModules(t *testing.T) {
	gen := generative.Reply(noChanges, 10)
	h := newHarness(t, gen,
		entry("a", 24, policy.PriorityCritical, policy.SourceAIResearch),
		entry("b", 24, policy.PriorityCritical, policy.SourceAIResearch),
	)
	h.seed("a", time.Hour)
	h.seed("b", 30*time.Hour)

	res, err := h.orchestrator(t).RefreshAIResearched(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, gen.Calls())
	assert.Equal(t, []string{"b"}, modulesOf(gen.Requests()))

	a, ok := res.Module("a")
	require.True(t, ok)
	assert.True(t, a.Skipped)
	assert.Contains(t, a.SkipReason, "ttl 24h")

	b, ok := res.Module("b")
	require.True(t, ok)
	assert.False(t, b.Skipped)
	assert.Equal(t, audit.StatusSuccess, b.Status)
	assert.Equal(t, "nothing new", b.Notes)

	assert.Equal(t, 1, res.Refreshed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, int64(10), res.TokensUsed)

	entries := h.entries(t, audit.Filter{})
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].Module)
	assert.Equal(t, res.RunID, entries[0].RunID)
}

func TestRefreshIsolatesFailures(t *testing.T) {
	gen := generative.Func(func(_ context.Context, req generative.Request) (generative.Response, error) {
		if strings.HasPrefix(req.Prompt, "Module: b\n") {
			return generative.Response{}, fmt.Errorf("connection reset")
		}
		return generative.Response{
			Text:  `{"updates":[],"newItems":[{"section":"s","data":{"n":1}}],"removals":[]}`,
			Usage: generative.Usage{InputTokens: 50, OutputTokens: 25},
		}, nil
	})
	h := newHarness(t, gen,
		entry("a", 24, policy.PriorityHigh, policy.SourceAIResearch),
		entry("b", 24, policy.PriorityHigh, policy.SourceAIResearch),
		entry("c", 24, policy.PriorityHigh, policy.SourceAIResearch),
	)

	res, err := h.orchestrator(t).RefreshAIResearched(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Modules, 3)
	assert.Equal(t, "a", res.Modules[0].Module)
	assert.Equal(t, "b", res.Modules[1].Module)
	assert.Equal(t, "c", res.Modules[2].Module)

	assert.True(t, res.Modules[1].Failed())
	assert.Equal(t, "Error: generating with func: connection reset", res.Modules[1].Notes)
	assert.Equal(t, 2, res.Refreshed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.ItemsCreated)
	assert.Equal(t, int64(150), res.TokensUsed)

	failed := h.entries(t, audit.Filter{Status: audit.StatusFailed})
	require.Len(t, failed, 1)
	assert.Equal(t, "b", failed[0].Module)
	assert.Len(t, h.entries(t, audit.Filter{Status: audit.StatusSuccess}), 2)

	items, err := h.store.ModuleContent(context.Background(), "c", "")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestRefreshOrder(t *testing.T) {
	entries := []policy.Entry{
		entry("low", 24, policy.PriorityLow, policy.SourceAIResearch),
		entry("api-only", 24, policy.PriorityCritical, policy.SourceAPI),
		entry("critical", 24, policy.PriorityCritical, policy.SourceBoth),
		entry("high", 24, policy.PriorityHigh, policy.SourceAIResearch),
	}

	t.Run("declared", func(t *testing.T) {
		gen := generative.Reply(noChanges, 1)
		h := newHarness(t, gen, entries...)
		_, err := h.orchestrator(t).RefreshAIResearched(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"low", "critical", "high"}, modulesOf(gen.Requests()))
	})

	t.Run("by priority", func(t *testing.T) {
		gen := generative.Reply(noChanges, 1)
		h := newHarness(t, gen, entries...)
		_, err := h.orchestrator(t).RefreshAIResearched(context.Background(), refresh.WithSortByPriority(true))
		require.NoError(t, err)
		assert.Equal(t, []string{"critical", "high", "low"}, modulesOf(gen.Requests()))
	})

	t.Run("selected modules", func(t *testing.T) {
		gen := generative.Reply(noChanges, 1)
		h := newHarness(t, gen, entries...)
		res, err := h.orchestrator(t).RefreshAIResearched(context.Background(), refresh.WithModules("high", "api-only"))
		require.NoError(t, err)
		assert.Equal(t, []string{"high"}, modulesOf(gen.Requests()))
		assert.Len(t, res.Modules, 1)
	})
}

func TestRefreshForce(t *testing.T) {
	gen := generative.Reply(noChanges, 1)
	h := newHarness(t, gen, entry("a", 24, policy.PriorityHigh, policy.SourceAIResearch))
	h.seed("a", time.Minute)
	o := h.orchestrator(t)

	res, err := o.RefreshAIResearched(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, gen.Calls())

	res, err = o.RefreshAIResearched(context.Background(), refresh.WithForce(true))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Refreshed)
	assert.Equal(t, 1, gen.Calls())
}

func TestRefreshModule(t *testing.T) {
	gen := generative.Reply(noChanges, 7)
	h := newHarness(t, gen, entry("a", 24, policy.PriorityHigh, policy.SourceAIResearch))
	h.seed("a", time.Minute)
	o := h.orchestrator(t)

	res, err := o.RefreshModule(context.Background(), "a", false)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 0, gen.Calls())

	res, err = o.RefreshModule(context.Background(), "a", true)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, int64(7), res.TokensUsed)

	entries := h.entries(t, audit.Filter{Module: "a"})
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].RunID)
}

func TestRefreshLeaseHeld(t *testing.T) {
	gen := generative.Reply(noChanges, 1)
	h := newHarness(t, gen, entry("a", 24, policy.PriorityHigh, policy.SourceAIResearch))
	l := &lease.Local{}
	o := h.orchestrator(t, func(c *refresh.Config) { c.Lease = l })

	release, err := l.Acquire(context.Background())
	require.NoError(t, err)

	_, err = o.RefreshAIResearched(context.Background())
	assert.ErrorIs(t, err, errors.ErrLeaseHeld)
	_, err = o.RefreshModule(context.Background(), "a", true)
	assert.ErrorIs(t, err, errors.ErrLeaseHeld)
	assert.Equal(t, 0, gen.Calls())

	require.NoError(t, release(context.Background()))
	res, err := o.RefreshAIResearched(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Refreshed)
}

func TestRefreshContextCancelled(t *testing.T) {
	gen := generative.Reply(noChanges, 1)
	h := newHarness(t, gen,
		entry("a", 24, policy.PriorityHigh, policy.SourceAIResearch),
		entry("b", 24, policy.PriorityHigh, policy.SourceAIResearch),
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.orchestrator(t).RefreshAIResearched(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Empty(t, res.Modules)
	assert.Equal(t, 0, gen.Calls())
}

func TestRefreshSpacesGenerativeCycles(t *testing.T) {
	gen := generative.Reply(noChanges, 1)
	h := newHarness(t, gen,
		entry("a", 24, policy.PriorityHigh, policy.SourceAIResearch),
		entry("b", 24, policy.PriorityHigh, policy.SourceAIResearch),
		entry("c", 24, policy.PriorityHigh, policy.SourceAIResearch),
	)
	o := h.orchestrator(t, func(c *refresh.Config) { c.ModuleDelay = 40 * time.Millisecond })

	begin := time.Now()
	res, err := o.RefreshAIResearched(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Refreshed)
	assert.GreaterOrEqual(t, time.Since(begin), 70*time.Millisecond)
}

type fetcher struct {
	mu    sync.Mutex
	docs  map[string]content.Document
	calls []string
}

func (f *fetcher) Fetch(_ context.Context, module string, endpoint policy.APIEndpoint) (content.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, module+" "+endpoint.URL)
	doc, ok := f.docs[module]
	if !ok {
		return nil, errors.NewAPIError(module, 502, "bad gateway")
	}
	return doc, nil
}

func TestRefreshAPISourced(t *testing.T) {
	withAPI := func(e policy.Entry, url, section string) policy.Entry {
		e.API = &policy.APIEndpoint{URL: url, Section: section}
		return e
	}
	h := newHarness(t, generative.Reply(noChanges, 1),
		withAPI(entry("prices", 24, policy.PriorityHigh, policy.SourceAPI), "https://api.example/prices", "quotes"),
		withAPI(entry("tools", 24, policy.PriorityHigh, policy.SourceBoth), "https://api.example/tools", ""),
		withAPI(entry("broken", 24, policy.PriorityHigh, policy.SourceAPI), "https://api.example/broken", ""),
		entry("manual", 24, policy.PriorityHigh, policy.SourceAPI),
		withAPI(entry("research", 24, policy.PriorityHigh, policy.SourceAIResearch), "https://api.example/research", ""),
	)
	f := &fetcher{docs: map[string]content.Document{
		"prices": content.Document(`{"btc":1}`),
		"tools":  content.Document(`["a"]`),
	}}
	o := h.orchestrator(t, func(c *refresh.Config) { c.Fetcher = f })
	ctx := context.Background()

	res, err := o.RefreshAPISourced(ctx)
	require.NoError(t, err)
	assert.Equal(t, audit.RefreshAPI, res.RefreshType)
	assert.Equal(t, []string{
		"prices https://api.example/prices",
		"tools https://api.example/tools",
		"broken https://api.example/broken",
	}, f.calls)
	assert.Equal(t, 2, res.Refreshed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 2, res.ItemsCreated)

	quotes, ok, err := h.store.Item(ctx, "prices:quotes")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, content.SourceAPI, quotes.SourceType)
	assert.Equal(t, "https://api.example/prices", quotes.SourceURL)

	_, ok, err = h.store.Item(ctx, "tools:data")
	require.NoError(t, err)
	assert.True(t, ok)

	entries := h.entries(t, audit.Filter{RefreshType: audit.RefreshAPI})
	assert.Len(t, entries, 3)
	failed := h.entries(t, audit.Filter{RefreshType: audit.RefreshAPI, Status: audit.StatusFailed})
	require.Len(t, failed, 1)
	assert.Equal(t, "broken", failed[0].Module)
	assert.Contains(t, failed[0].ErrorMessage, "bad gateway")

	// A forced single-module pass rewrites the existing item.
	f.calls = nil
	res, err = o.RefreshAPISourced(ctx, refresh.WithForce(true), refresh.WithModules("prices"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ItemsUpdated)
	assert.Equal(t, []string{"prices https://api.example/prices"}, f.calls)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := refresh.New(refresh.Config{})
	assert.True(t, errors.IsValidationError(err))

	h := newHarness(t, generative.Reply(noChanges, 1), entry("a", 24, policy.PriorityHigh, policy.SourceAIResearch))
	o, err := refresh.New(refresh.Config{Store: h.store, Policies: h.policies, Log: h.log})
	require.NoError(t, err)
	_, err = o.RefreshAIResearched(context.Background())
	assert.Error(t, err)
	_, err = o.RefreshAPISourced(context.Background())
	assert.Error(t, err)
}
