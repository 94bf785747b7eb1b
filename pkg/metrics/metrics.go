// Package metrics defines the Prometheus collectors of the budget ledger.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "budget_ledger"

// Metrics groups every collector. Construct with New and pass it down.
type Metrics struct {
	registry *prometheus.Registry

	ImportsTotal     *prometheus.CounterVec   // format, outcome
	ImportDuration   *prometheus.HistogramVec // format
	ImportedRecords  *prometheus.CounterVec   // kind
	SkippedRecords   *prometheus.CounterVec   // reason
	CleanupRuns      *prometheus.CounterVec   // outcome
	RenumberedItems  prometheus.Counter
	PendingPurchases prometheus.Gauge
	JobRuns          *prometheus.CounterVec   // job, outcome
	HTTPRequests     *prometheus.CounterVec   // method, route, status
	HTTPDuration     *prometheus.HistogramVec // method, route
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ImportsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Import runs by file format and outcome.",
		}, []string{"format", "outcome"}),
		ImportDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_duration_seconds",
			Help:      "Wall time of an import run.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"format"}),
		ImportedRecords: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imported_records_total",
			Help:      "Plan entries and expenses written by imports.",
		}, []string{"kind"}),
		SkippedRecords: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_records_total",
			Help:      "Import records skipped, by error class.",
		}, []string{"reason"}),
		CleanupRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_runs_total",
			Help:      "Cleanup runs by outcome.",
		}, []string{"outcome"}),
		RenumberedItems: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renumbered_items_total",
			Help:      "Budget items whose code changed during resequencing.",
		}),
		PendingPurchases: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_purchase_forms",
			Help:      "Planned purchases of the current month with no prepared form, as of the last reminder run.",
		}),
		JobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route template and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route template.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
