package freshen

import (
	"context"

	"github.com/agentstation/freshen/pkg/refresh"
)

// Compile-time interface check to ensure proper implementation.
var _ Refresher = (*client)(nil)

// Refresher runs refresh passes.
type Refresher interface {
	// RefreshAIResearched reconciles every stale ai-research module.
	RefreshAIResearched(ctx context.Context, opts ...refresh.Option) (*refresh.RunResult, error)

	// RefreshAPISourced refreshes every api module that declares an endpoint.
	RefreshAPISourced(ctx context.Context, opts ...refresh.Option) (*refresh.RunResult, error)

	// RefreshModule runs one ai-research cycle for module.
	RefreshModule(ctx context.Context, module string, force bool) (refresh.ModuleResult, error)
}

// RefreshAIResearched reconciles every stale ai-research module.
func (c *client) RefreshAIResearched(ctx context.Context, opts ...refresh.Option) (*refresh.RunResult, error) {
	return c.orch.RefreshAIResearched(ctx, opts...)
}

// RefreshAPISourced refreshes every api module that declares an endpoint.
func (c *client) RefreshAPISourced(ctx context.Context, opts ...refresh.Option) (*refresh.RunResult, error) {
	return c.orch.RefreshAPISourced(ctx, opts...)
}

// RefreshModule runs one ai-research cycle for module and fires the module hooks.
func (c *client) RefreshModule(ctx context.Context, module string, force bool) (refresh.ModuleResult, error) {
	res, err := c.orch.RefreshModule(ctx, module, force)
	if res.Module != "" {
		c.hooks.moduleResult(res)
	}
	return res, err
}
