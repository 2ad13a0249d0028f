package handlers

import (
	"net/http"
	"strconv"

	"github.com/agentstation/freshen"
	"github.com/agentstation/freshen/internal/server/response"
	"github.com/agentstation/freshen/pkg/errors"
)

// HandleRefreshModule handles POST /api/v1/modules/{module}/refresh.
// Set force=true to refresh a module that is still fresh.
func (h *Handlers) HandleRefreshModule(w http.ResponseWriter, r *http.Request) {
	module := r.PathValue("module")
	force, err := boolParam(r, "force")
	if err != nil {
		response.Err(w, err)
		return
	}

	res, err := h.client.RefreshModule(r.Context(), module, force)
	if err != nil {
		response.Err(w, err)
		return
	}
	response.OK(w, res)
}

// HandleExpire handles POST /api/v1/expire. Without a module query
// parameter every module is swept.
func (h *Handlers) HandleExpire(w http.ResponseWriter, r *http.Request) {
	module := r.URL.Query().Get("module")
	n, err := h.client.ExpireStaleContent(r.Context(), module)
	if err != nil {
		response.Err(w, err)
		return
	}
	if module == "" {
		module = freshen.AllModules
	}
	response.OK(w, map[string]any{
		"module":        module,
		"items_expired": n,
	})
}

func boolParam(r *http.Request, name string) (bool, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, errors.NewValidationError(name, s, name+" must be a boolean")
	}
	return v, nil
}
