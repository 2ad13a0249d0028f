package freshen

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/agentstation/freshen/pkg/audit"
	"github.com/agentstation/freshen/pkg/content"
	"github.com/agentstation/freshen/pkg/errors"
)

// Compile-time interface check to ensure proper implementation.
var _ Reader = (*client)(nil)

// Reader serves stored content, freshness and the refresh log.
type Reader interface {
	// ModuleContent returns the module's active items. An empty section returns every section.
	ModuleContent(ctx context.Context, module, section string) ([]content.Item, error)

	// ContentItem returns one item by key, active or not. A missing key
	// reports false with a nil error.
	ContentItem(ctx context.Context, key string) (content.Item, bool, error)

	// ModuleFreshness aggregates the state of one module.
	ModuleFreshness(ctx context.Context, module string) (content.Freshness, error)

	// AllModuleFreshness aggregates every declared module, in declared order.
	AllModuleFreshness(ctx context.Context) ([]content.Freshness, error)

	// RefreshLogs lists refresh log entries, newest first.
	RefreshLogs(ctx context.Context, f audit.Filter) ([]audit.Entry, error)
}

// ModuleContent returns the module's active items.
func (c *client) ModuleContent(ctx context.Context, module, section string) ([]content.Item, error) {
	return c.store.ModuleContent(ctx, module, section)
}

// ContentItem returns one item by key.
func (c *client) ContentItem(ctx context.Context, key string) (content.Item, bool, error) {
	return c.store.Item(ctx, key)
}

// ModuleFreshness aggregates the state of one module.
func (c *client) ModuleFreshness(ctx context.Context, module string) (content.Freshness, error) {
	return c.store.ModuleFreshness(ctx, module)
}

// maxFreshnessReads bounds concurrent store reads in AllModuleFreshness.
const maxFreshnessReads = 4

// AllModuleFreshness aggregates every declared module. Modules are read
// concurrently; the result keeps declared order.
func (c *client) AllModuleFreshness(ctx context.Context) ([]content.Freshness, error) {
	modules := c.policies.Modules()
	out := make([]content.Freshness, len(modules))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFreshnessReads)
	for i, m := range modules {
		g.Go(func() error {
			f, err := c.store.ModuleFreshness(ctx, m)
			if err != nil {
				return errors.WrapResource("aggregate", "freshness", m, err)
			}
			out[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// RefreshLogs lists refresh log entries, newest first.
func (c *client) RefreshLogs(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	return c.log.List(ctx, f)
}
