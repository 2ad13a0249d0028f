package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/agentstation/freshen/internal/server/cache"
	"github.com/agentstation/freshen/internal/server/response"
	"github.com/agentstation/freshen/pkg/audit"
	"github.com/agentstation/freshen/pkg/constants"
	"github.com/agentstation/freshen/pkg/content"
	"github.com/agentstation/freshen/pkg/errors"
	"github.com/agentstation/freshen/pkg/policy"
)

// moduleView is one entry of the module list.
type moduleView struct {
	Module   string `json:"module"`
	Declared bool   `json:"declared"`
	policy.FreshnessPolicy
}

// HandleListModules handles GET /api/v1/modules.
func (h *Handlers) HandleListModules(w http.ResponseWriter, _ *http.Request) {
	v, _ := h.cache.GetOrLoad(cache.Key("modules", cache.AnyModule), func() (any, error) {
		reg := h.client.Policies()
		modules := reg.Modules()
		out := make([]moduleView, 0, len(modules))
		for _, m := range modules {
			out = append(out, moduleView{Module: m, Declared: reg.Declared(m), FreshnessPolicy: reg.Policy(m)})
		}
		return out, nil
	})
	views := v.([]moduleView)
	response.JSON(w, http.StatusOK, response.List(views, len(views), 0))
}

// HandleModuleContent handles GET /api/v1/modules/{module}/content.
func (h *Handlers) HandleModuleContent(w http.ResponseWriter, r *http.Request) {
	module := r.PathValue("module")
	section := r.URL.Query().Get("section")

	v, err := h.cache.GetOrLoad(cache.Key("content", module, section), func() (any, error) {
		return h.client.ModuleContent(r.Context(), module, section)
	})
	if err != nil {
		response.Err(w, err)
		return
	}
	items := v.([]content.Item)
	response.JSON(w, http.StatusOK, response.List(items, len(items), 0))
}

// HandleModuleFreshness handles GET /api/v1/modules/{module}/freshness.
func (h *Handlers) HandleModuleFreshness(w http.ResponseWriter, r *http.Request) {
	module := r.PathValue("module")
	v, err := h.cache.GetOrLoad(cache.Key("freshness", module), func() (any, error) {
		f, err := h.client.ModuleFreshness(r.Context(), module)
		if err != nil {
			return nil, err
		}
		return h.view(f), nil
	})
	if err != nil {
		response.Err(w, err)
		return
	}
	response.OK(w, v)
}

// HandleAllFreshness handles GET /api/v1/freshness.
func (h *Handlers) HandleAllFreshness(w http.ResponseWriter, r *http.Request) {
	v, err := h.cache.GetOrLoad(cache.Key("freshness", cache.AnyModule), func() (any, error) {
		all, err := h.client.AllModuleFreshness(r.Context())
		if err != nil {
			return nil, err
		}
		out := make([]freshnessView, 0, len(all))
		for _, f := range all {
			out = append(out, h.view(f))
		}
		return out, nil
	})
	if err != nil {
		response.Err(w, err)
		return
	}
	views := v.([]freshnessView)
	response.JSON(w, http.StatusOK, response.List(views, len(views), 0))
}

func (h *Handlers) view(f content.Freshness) freshnessView {
	v := freshnessView{Freshness: f}
	if f.LastRefreshed != nil {
		reg := h.client.Policies()
		v.IsStale = reg.IsStale(f.Module, *f.LastRefreshed)
		v.IsExpired = reg.IsExpired(f.Module, *f.LastRefreshed)
	}
	return v
}

// HandleContentItem handles GET /api/v1/content/{key}.
func (h *Handlers) HandleContentItem(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	module, _, ok := content.SplitKey(key)
	if !ok {
		response.BadRequest(w, "Invalid content key", "content keys have the form module:section")
		return
	}
	v, err := h.cache.GetOrLoad(cache.Key("item", module, key), func() (any, error) {
		it, found, err := h.client.ContentItem(r.Context(), key)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, errors.NewNotFoundError("content item", key)
		}
		return it, nil
	})
	if err != nil {
		response.Err(w, err)
		return
	}
	response.OK(w, v)
}

// HandleRefreshLogs handles GET /api/v1/refresh-logs. Logs are never cached.
func (h *Handlers) HandleRefreshLogs(w http.ResponseWriter, r *http.Request) {
	f, err := logFilter(r)
	if err != nil {
		response.Err(w, err)
		return
	}
	entries, err := h.client.RefreshLogs(r.Context(), f)
	if err != nil {
		response.Err(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.List(entries, len(entries), f.Limit))
}

func logFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	f := audit.Filter{
		Module:      q.Get("module"),
		RefreshType: audit.RefreshType(q.Get("type")),
		Status:      audit.Status(q.Get("status")),
		RunID:       q.Get("run_id"),
		Limit:       constants.DefaultPageSize,
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > constants.MaxPageSize {
			return f, errors.NewValidationError("limit", s, "limit must be between 1 and "+strconv.Itoa(constants.MaxPageSize))
		}
		f.Limit = n
	}
	if s := q.Get("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return f, errors.NewValidationError("since", s, "since must be an RFC 3339 timestamp")
		}
		f.Since = since
	}
	return f, nil
}
