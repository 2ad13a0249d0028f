package reconcile_test

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/freshen/pkg/content"
	"github.com/agentstation/freshen/pkg/evidence"
	"github.com/agentstation/freshen/pkg/policy"
	"github.com/agentstation/freshen/pkg/reconcile"
)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestPromptGolden(t *testing.T) {
	items := []content.Item{
		{
			Key: "ai-models:pricing", Module: "ai-models", Section: "pricing",
			Data:       content.Document(`{"input":3,"output":15}`),
			SourceType: content.SourceAIResearch, Confidence: content.Confidence(0.8),
			Version: 3, IsActive: true, RefreshedAt: day("2025-03-09"),
		},
		{
			Key: "ai-models:releases", Module: "ai-models", Section: "releases",
			Data:       content.Document(`{"latest":"model-a"}`),
			SourceType: content.SourceSeed,
			Version:    1, IsActive: true, RefreshedAt: day("2025-03-01"),
		},
		{
			Key: "ai-models:vendors", Module: "ai-models", Section: "vendors",
			Data:       content.Document(`["a","b"]`),
			SourceType: content.SourceManual,
			Version:    2, IsActive: true, RefreshedAt: day("2025-02-20"),
		},
	}
	news := []evidence.Item{{
		Title:       "Model B launches",
		Summary:     "Model B ships with lower prices.",
		Source:      "Wire",
		URL:         "https://example.com/b",
		PublishedAt: day("2025-03-08"),
	}}

	p := reconcile.Prompt{
		Module: "ai-models",
		Policy: policy.FreshnessPolicy{
			TTLHours:      24,
			Priority:      policy.PriorityCritical,
			RefreshSource: policy.SourceAIResearch,
			Instructions:  "Track frontier model releases and pricing.",
		},
		Now:      time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		Items:    reconcile.Summarize(items, reconcile.Budget{PerItem: 30, Total: 30}),
		Evidence: evidence.Digest{Module: "ai-models", Items: news, Text: evidence.Format(news)},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "prompt", []byte(p.Render()))
}

func TestPromptGoldenRetry(t *testing.T) {
	_, err := reconcile.Parse("Sorry, nothing to report today.")
	require.Error(t, err)

	p := reconcile.Prompt{
		Module: "glossary",
		Policy: policy.Default,
		Now:    time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		Evidence: evidence.Digest{
			Module: "glossary",
			Text:   "No news keywords are configured for glossary; no recent evidence was gathered.",
		},
		Correction: err.Error(),
	}
	p.Policy.Priority = policy.PriorityLow

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "prompt_retry", []byte(p.Render()))
}
