// Package metrics holds the Prometheus collectors for contribution writes
// and lineage reads.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Contribution kinds used as label values.
const (
	KindRoot  = "root"
	KindChild = "child"
)

// Metrics owns a registry and the vault collectors registered on it.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	created   *prometheus.CounterVec
	failures  *prometheus.CounterVec
	depth     prometheus.Histogram
	truncated prometheus.Counter
}

// New creates the collectors on a fresh registry, together with the Go
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
		created: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_contributions_created_total",
			Help: "Contributions persisted, by kind (root or child).",
		}, []string{"kind"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_contribution_failures_total",
			Help: "Rejected or failed contributions, by error kind.",
		}, []string{"kind"}),
		depth: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_lineage_depth",
			Help:    "Number of contributions in each resolved lineage.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		truncated: f.NewCounter(prometheus.CounterOpts{
			Name: "vault_lineage_truncated_total",
			Help: "Lineages returned truncated because an ancestor was missing.",
		}),
	}
}

// ContributionCreated counts a persisted contribution.
func (m *Metrics) ContributionCreated(kind string) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(kind).Inc()
}

// ContributionFailed counts a failed contribution by error kind.
func (m *Metrics) ContributionFailed(kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(kind).Inc()
}

// ObserveLineage records the depth of a resolved lineage.
func (m *Metrics) ObserveLineage(depth int, truncated bool) {
	if m == nil {
		return
	}
	m.depth.Observe(float64(depth))
	if truncated {
		m.truncated.Inc()
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
