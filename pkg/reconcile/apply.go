package reconcile

import (
	"context"

	"github.com/agentstation/freshen/pkg/constants"
	"github.com/agentstation/freshen/pkg/content"
	"github.com/agentstation/freshen/pkg/errors"
)

// Counts tallies the writes of one applied proposal.
type Counts struct {
	Updated int
	Created int
	Removed int
	// Skipped lists keys that were proposed outside the module.
	Skipped []string
}

func (c Counts) applied() int {
	return c.Updated + c.Created + c.Removed
}

// Apply writes p into store for module: updates, then new items, then
// removals. Each write is its own transaction. The first store failure stops
// the apply and is returned as a *errors.PartialApplyError alongside the
// counts reached so far.
func Apply(ctx context.Context, store content.Writer, module string, p Proposal) (Counts, error) {
	var c Counts
	total := len(p.Updates) + len(p.NewItems) + len(p.Removals)
	attempted := 0
	stop := func(stage, key string, err error) (Counts, error) {
		return c, &errors.PartialApplyError{
			Stage:     stage,
			Applied:   c.applied(),
			Remaining: total - attempted,
			FailedKey: key,
			Err:       err,
		}
	}

	for _, u := range p.Updates {
		attempted++
		section, ok := owned(module, u.Key)
		if !ok {
			c.Skipped = append(c.Skipped, u.Key)
			continue
		}
		meta := content.Meta{
			SourceType: content.SourceAIResearch,
			SourceURL:  u.SourceURL,
			Confidence: confidence(u.Confidence, constants.DefaultUpdateConfidence),
			Notes:      u.Reason,
		}
		if _, err := store.Upsert(ctx, u.Key, module, section, u.Data, meta); err != nil {
			return stop("updates", u.Key, err)
		}
		c.Updated++
	}

	for _, n := range p.NewItems {
		attempted++
		key := content.Key(module, n.Section)
		meta := content.Meta{
			SourceType: content.SourceAIResearch,
			SourceURL:  n.SourceURL,
			Confidence: confidence(n.Confidence, constants.DefaultNewItemConfidence),
			Notes:      n.Reason,
		}
		if _, err := store.Upsert(ctx, key, module, n.Section, n.Data, meta); err != nil {
			return stop("newItems", key, err)
		}
		c.Created++
	}

	for _, r := range p.Removals {
		attempted++
		if _, ok := owned(module, r.Key); !ok {
			c.Skipped = append(c.Skipped, r.Key)
			continue
		}
		removed, err := store.Deactivate(ctx, module, r.Key)
		if err != nil {
			return stop("removals", r.Key, err)
		}
		if removed {
			c.Removed++
		}
	}
	return c, nil
}

// owned returns the section of key when key belongs to module.
func owned(module, key string) (string, bool) {
	m, section, ok := content.SplitKey(key)
	if !ok || m != module || section == "" {
		return "", false
	}
	return section, true
}

// confidence applies the default and clamps to [0, 1].
func confidence(c *float64, def float64) *float64 {
	v := def
	if c != nil {
		v = *c
	}
	v = max(0, min(1, v))
	return &v
}
