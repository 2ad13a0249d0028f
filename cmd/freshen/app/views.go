package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/freshen/internal/cmd/output"
	"github.com/agentstation/freshen/pkg/audit"
	"github.com/agentstation/freshen/pkg/content"
	"github.com/agentstation/freshen/pkg/policy"
	"github.com/agentstation/freshen/pkg/refresh"
)

const timeLayout = "2006-01-02 15:04"

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return t.Local().Format(timeLayout)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

type runView struct {
	*refresh.RunResult
}

func resultHeaders(wide bool) []string {
	headers := []string{"Module", "Status", "Updated", "Created", "Removed", "Tokens"}
	if wide {
		headers = append(headers, "Notes")
	}
	return headers
}

func (v runView) Table(wide bool) output.Data {
	d := output.Data{
		Headers:         resultHeaders(wide),
		ColumnAlignment: []output.Align{output.AlignLeft, output.AlignLeft, output.AlignRight, output.AlignRight, output.AlignRight, output.AlignRight},
	}
	for _, m := range v.Modules {
		d.Rows = append(d.Rows, moduleRow(m, wide))
	}
	return d
}

func moduleRow(m refresh.ModuleResult, wide bool) []string {
	status := string(m.Status)
	notes := m.Notes
	if m.Skipped {
		status = "skipped"
		notes = m.SkipReason
	}
	row := []string{
		m.Module,
		status,
		strconv.Itoa(m.ItemsUpdated),
		strconv.Itoa(m.ItemsCreated),
		strconv.Itoa(m.ItemsRemoved),
		strconv.FormatInt(m.TokensUsed, 10),
	}
	if wide {
		row = append(row, truncate(notes, 80))
	}
	return row
}

type moduleView struct {
	refresh.ModuleResult
}

func (v moduleView) Table(wide bool) output.Data {
	return output.Data{
		Headers: resultHeaders(wide),
		Rows:    [][]string{moduleRow(v.ModuleResult, wide)},
	}
}

type freshnessRow struct {
	content.Freshness
	TTLHours  int  `json:"ttl_hours"`
	IsStale   bool `json:"is_stale"`
	IsExpired bool `json:"is_expired"`
}

type freshnessView []freshnessRow

func newFreshnessView(reg *policy.Registry, all ...content.Freshness) freshnessView {
	out := make(freshnessView, 0, len(all))
	for _, f := range all {
		row := freshnessRow{Freshness: f, TTLHours: reg.Policy(f.Module).TTLHours}
		if f.LastRefreshed != nil {
			row.IsStale = reg.IsStale(f.Module, *f.LastRefreshed)
			row.IsExpired = reg.IsExpired(f.Module, *f.LastRefreshed)
		}
		out = append(out, row)
	}
	return out
}

func (v freshnessView) Table(wide bool) output.Data {
	headers := []string{"Module", "Active", "Stale", "Expired", "Last Refreshed", "State"}
	if wide {
		headers = append(headers, "TTL", "Sources")
	}
	d := output.Data{Headers: headers}
	for _, r := range v {
		state := "fresh"
		switch {
		case r.LastRefreshed == nil:
			state = "empty"
		case r.IsExpired:
			state = "expired"
		case r.IsStale:
			state = "stale"
		}
		row := []string{
			r.Module,
			strconv.Itoa(r.Active),
			strconv.Itoa(r.Stale),
			strconv.Itoa(r.Expired),
			formatTime(r.LastRefreshed),
			state,
		}
		if wide {
			var sources []string
			for src, n := range r.SourceBreakdown {
				sources = append(sources, fmt.Sprintf("%s=%d", src, n))
			}
			row = append(row, strconv.Itoa(r.TTLHours)+"h", strings.Join(sources, " "))
		}
		d.Rows = append(d.Rows, row)
	}
	return d
}

type itemsView []content.Item

func (v itemsView) Table(wide bool) output.Data {
	headers := []string{"Key", "Version", "Source", "Refreshed", "Expires"}
	if wide {
		headers = append(headers, "Data")
	}
	d := output.Data{Headers: headers}
	for _, it := range v {
		refreshed, expires := it.RefreshedAt, it.ExpiresAt
		row := []string{
			it.Key,
			strconv.Itoa(it.Version),
			string(it.SourceType),
			formatTime(&refreshed),
			formatTime(&expires),
		}
		if wide {
			row = append(row, truncate(it.Data.String(), 100))
		}
		d.Rows = append(d.Rows, row)
	}
	return d
}

type policyRow struct {
	Module string `json:"module"`
	policy.FreshnessPolicy
}

type policiesView []policyRow

func newPoliciesView(reg *policy.Registry) policiesView {
	modules := reg.Modules()
	out := make(policiesView, 0, len(modules))
	for _, m := range modules {
		out = append(out, policyRow{Module: m, FreshnessPolicy: reg.Policy(m)})
	}
	return out
}

func (v policiesView) Table(wide bool) output.Data {
	headers := []string{"Module", "TTL", "Priority", "Source"}
	if wide {
		headers = append(headers, "Keywords", "Endpoint")
	}
	d := output.Data{Headers: headers}
	for _, p := range v {
		row := []string{p.Module, strconv.Itoa(p.TTLHours) + "h", string(p.Priority), string(p.RefreshSource)}
		if wide {
			endpoint := ""
			if p.API != nil {
				endpoint = p.API.URL
			}
			row = append(row, strings.Join(p.Keywords, ", "), endpoint)
		}
		d.Rows = append(d.Rows, row)
	}
	return d
}

type logsView []audit.Entry

func (v logsView) Table(wide bool) output.Data {
	headers := []string{"Time", "Module", "Type", "Status", "Checked", "Updated", "Created", "Expired", "Tokens"}
	if wide {
		headers = append(headers, "Run", "Duration", "Error")
	}
	d := output.Data{Headers: headers}
	for _, e := range v {
		at := e.CreatedAt
		row := []string{
			formatTime(&at),
			e.Module,
			string(e.RefreshType),
			string(e.Status),
			strconv.Itoa(e.ItemsChecked),
			strconv.Itoa(e.ItemsUpdated),
			strconv.Itoa(e.ItemsCreated),
			strconv.Itoa(e.ItemsExpired),
			strconv.FormatInt(e.TokensUsed, 10),
		}
		if wide {
			row = append(row, e.RunID, e.Duration.Round(time.Millisecond).String(), truncate(e.ErrorMessage, 60))
		}
		d.Rows = append(d.Rows, row)
	}
	return d
}
