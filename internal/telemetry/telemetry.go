// Package telemetry exposes Prometheus metrics and the otel tracer for
// refresh runs, reconciliation cycles and the HTTP API.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentstation/freshen/pkg/reconcile"
	"github.com/agentstation/freshen/pkg/refresh"
)

// ServiceName names the tracer and prefixes every metric.
const ServiceName = "freshen"

// Metrics holds the freshen Prometheus metrics on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	// Reconciliation cycles
	Cycles          *prometheus.CounterVec
	CycleDuration   *prometheus.HistogramVec
	ItemsApplied    *prometheus.CounterVec
	TokensUsed      *prometheus.CounterVec
	ContractRetries *prometheus.CounterVec

	// Orchestrator runs
	Runs        *prometheus.CounterVec
	RunModules  *prometheus.CounterVec
	LastRunTime *prometheus.GaugeVec
	RunDuration *prometheus.HistogramVec

	// HTTP API
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

var (
	_ reconcile.Observer = (*Metrics)(nil)
	_ refresh.Observer   = (*Metrics)(nil)
)

// New registers the metrics, plus Go and process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ServiceName,
			Name:      "reconcile_cycles_total",
			Help:      "Reconciliation cycles by module and status",
		}, []string{"module", "status"}),
		CycleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ServiceName,
			Name:      "reconcile_cycle_duration_seconds",
			Help:      "Wall time of one reconciliation cycle",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"module"}),
		ItemsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ServiceName,
			Name:      "reconcile_items_total",
			Help:      "Content items written by reconciliation, by operation",
		}, []string{"module", "operation"}),
		TokensUsed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ServiceName,
			Name:      "generative_tokens_total",
			Help:      "Generative tokens spent by module",
		}, []string{"module"}),
		ContractRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ServiceName,
			Name:      "reconcile_contract_retries_total",
			Help:      "Generative calls repeated after an output contract violation",
		}, []string{"module"}),

		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ServiceName,
			Name:      "refresh_runs_total",
			Help:      "Orchestrator runs by refresh type",
		}, []string{"refresh_type"}),
		RunModules: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ServiceName,
			Name:      "refresh_modules_total",
			Help:      "Modules visited by orchestrator runs, by outcome",
		}, []string{"refresh_type", "outcome"}),
		LastRunTime: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ServiceName,
			Name:      "refresh_last_run_timestamp_seconds",
			Help:      "Unix time the last run of each refresh type started",
		}, []string{"refresh_type"}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ServiceName,
			Name:      "refresh_run_duration_seconds",
			Help:      "Wall time of one orchestrator run",
			Buckets:   []float64{1, 10, 30, 60, 300, 600, 1800},
		}, []string{"refresh_type"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ServiceName,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code",
		}, []string{"method", "route", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ServiceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCycle implements reconcile.Observer.
func (m *Metrics) ObserveCycle(r reconcile.Result) {
	m.Cycles.WithLabelValues(r.Module, string(r.Status)).Inc()
	m.CycleDuration.WithLabelValues(r.Module).Observe(r.Duration.Seconds())
	m.ItemsApplied.WithLabelValues(r.Module, "updated").Add(float64(r.ItemsUpdated))
	m.ItemsApplied.WithLabelValues(r.Module, "created").Add(float64(r.ItemsCreated))
	m.ItemsApplied.WithLabelValues(r.Module, "removed").Add(float64(r.ItemsRemoved))
	m.TokensUsed.WithLabelValues(r.Module).Add(float64(r.TokensUsed))
	if r.Attempts > 1 {
		m.ContractRetries.WithLabelValues(r.Module).Add(float64(r.Attempts - 1))
	}
}

// ObserveRun implements refresh.Observer.
func (m *Metrics) ObserveRun(r *refresh.RunResult) {
	t := string(r.RefreshType)
	m.Runs.WithLabelValues(t).Inc()
	m.RunModules.WithLabelValues(t, "refreshed").Add(float64(r.Refreshed))
	m.RunModules.WithLabelValues(t, "skipped").Add(float64(r.Skipped))
	m.RunModules.WithLabelValues(t, "failed").Add(float64(r.Failed))
	m.LastRunTime.WithLabelValues(t).Set(float64(r.StartedAt.Unix()))
	m.RunDuration.WithLabelValues(t).Observe(r.Duration.Seconds())
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, code int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Tracer returns the service tracer from the global otel provider.
func Tracer() trace.Tracer {
	return otel.Tracer(ServiceName)
}
