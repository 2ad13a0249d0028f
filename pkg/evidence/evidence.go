// Package evidence gathers recent news that bears on a module, for the
// reconciliation prompt. Gathering never fails for lack of matches: an
// empty result yields a placeholder digest so the prompt stays well formed.
package evidence

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/agentstation/freshen/pkg/constants"
	"github.com/agentstation/freshen/pkg/policy"
)

// Item is one piece of news evidence. It is never persisted.
type Item struct {
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

// Query selects candidate evidence from a corpus.
type Query struct {
	From     time.Time
	To       time.Time
	Keywords []string
	// Limit is a hint; corpora may return more and the gatherer trims.
	Limit int
}

// Corpus is a searchable store of news items. Implementations must return
// items published within [From, To]; keyword narrowing is optional.
type Corpus interface {
	Search(ctx context.Context, q Query) ([]Item, error)
}

// Digest is the formatted evidence for one module.
type Digest struct {
	Module string `json:"module"`
	Items  []Item `json:"items"`
	Text   string `json:"text"`
}

// Empty reports whether the digest carries no evidence items.
func (d Digest) Empty() bool {
	return len(d.Items) == 0
}

// Gatherer filters corpus results down to a module's keywords.
type Gatherer struct {
	corpus   Corpus
	policies *policy.Registry
	maxItems int
}

// Option configures a Gatherer.
type Option func(*Gatherer)

// WithMaxItems overrides the evidence cap.
func WithMaxItems(n int) Option {
	return func(g *Gatherer) {
		if n > 0 {
			g.maxItems = n
		}
	}
}

// NewGatherer creates a Gatherer over corpus.
func NewGatherer(corpus Corpus, policies *policy.Registry, opts ...Option) *Gatherer {
	g := &Gatherer{
		corpus:   corpus,
		policies: policies,
		maxItems: constants.MaxEvidenceItems,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RelevantNews returns up to the cap of items published in the last daysBack
// days (7 when daysBack <= 0) whose title or summary mentions one of the
// module's keywords, newest first.
func (g *Gatherer) RelevantNews(ctx context.Context, module string, daysBack int) (Digest, error) {
	if daysBack <= 0 {
		daysBack = constants.DefaultEvidenceDays
	}
	keywords := g.policies.Policy(module).Keywords
	matcher := newMatcher(keywords)
	if matcher == nil {
		return Digest{Module: module, Text: noKeywordsText(module)}, nil
	}

	now := g.policies.Now()
	candidates, err := g.corpus.Search(ctx, Query{
		From:     now.AddDate(0, 0, -daysBack),
		To:       now,
		Keywords: keywords,
		Limit:    g.maxItems,
	})
	if err != nil {
		return Digest{}, fmt.Errorf("searching evidence for %s: %w", module, err)
	}

	from := now.AddDate(0, 0, -daysBack)
	var items []Item
	for _, it := range candidates {
		if it.PublishedAt.Before(from) || it.PublishedAt.After(now) {
			continue
		}
		if matcher.matches(it.Title, it.Summary) {
			items = append(items, it)
		}
	}
	slices.SortStableFunc(items, func(a, b Item) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})
	if len(items) > g.maxItems {
		items = items[:g.maxItems]
	}

	if len(items) == 0 {
		return Digest{Module: module, Text: noMatchesText(module, daysBack)}, nil
	}
	return Digest{Module: module, Items: items, Text: Format(items)}, nil
}

// Format renders items as a numbered plain-text list.
func Format(items []Item) string {
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. [%s] %s", i+1, it.PublishedAt.UTC().Format(time.DateOnly), strings.TrimSpace(it.Title))
		if it.Source != "" {
			fmt.Fprintf(&b, " (%s)", it.Source)
		}
		b.WriteByte('\n')
		if s := strings.TrimSpace(it.Summary); s != "" {
			fmt.Fprintf(&b, "   %s\n", s)
		}
		if it.URL != "" {
			fmt.Fprintf(&b, "   %s\n", it.URL)
		}
	}
	return b.String()
}

func noKeywordsText(module string) string {
	return fmt.Sprintf("No news keywords are configured for %s; no recent evidence was gathered.", module)
}

func noMatchesText(module string, days int) string {
	return fmt.Sprintf("No relevant news found for %s in the last %d days.", module, days)
}
