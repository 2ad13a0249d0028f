package handlers

import (
	"net/http"
	"time"

	"github.com/agentstation/freshen/internal/server/response"
	"github.com/agentstation/freshen/pkg/content"
)

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, map[string]any{
		"status":            "healthy",
		"service":           "freshen",
		"uptime":            time.Since(h.startTime).Truncate(time.Second).String(),
		"websocket_clients": h.wsHub.ClientCount(),
		"cache":             h.cache.Stats(),
	})
}

// HandleReady handles GET /api/v1/ready. The server is ready once the
// content store answers a read.
func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	modules := h.client.Policies().Modules()
	probe := "freshen"
	if len(modules) > 0 {
		probe = modules[0]
	}
	if _, err := h.client.ModuleFreshness(r.Context(), probe); err != nil {
		h.logger.Warn().Err(err).Msg("Readiness probe failed")
		response.ServiceUnavailable(w, "content store not available")
		return
	}
	response.OK(w, map[string]any{"status": "ready"})
}

// freshnessView adds staleness verdicts to stored freshness.
type freshnessView struct {
	content.Freshness
	IsStale   bool `json:"is_stale"`
	IsExpired bool `json:"is_expired"`
}
