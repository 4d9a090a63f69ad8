// Package metrics holds the Prometheus collectors of the ingestion pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orgchart"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	// OutcomeRejected is a client error: bad file, bad mapping, invalid rows, stale staging.
	OutcomeRejected = "rejected"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	uploadsTotal          *prometheus.CounterVec
	commitsTotal          *prometheus.CounterVec
	recordsCommittedTotal *prometheus.CounterVec
	stagingSweptTotal     prometheus.Counter
	sessionsSweptTotal    prometheus.Counter
}

// New registers the pipeline collectors plus the Go and process collectors
// on a dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		uploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Total number of dataset uploads by outcome.",
		}, []string{"kind", "outcome"}),
		commitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Total number of map and commit requests by outcome.",
		}, []string{"kind", "outcome"}),
		recordsCommittedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_committed_total",
			Help:      "Total number of records written to the sink.",
		}, []string{"kind"}),
		stagingSweptTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staging_swept_total",
			Help:      "Total number of abandoned staged datasets removed by sweeps.",
		}),
		sessionsSweptTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_swept_total",
			Help:      "Total number of expired sessions removed by sweeps.",
		}),
	}
}

func (m *Metrics) ObserveUpload(kind, outcome string) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveCommit(kind, outcome string, records int64) {
	if m == nil {
		return
	}
	m.commitsTotal.WithLabelValues(kind, outcome).Inc()
	if outcome == OutcomeSuccess && records > 0 {
		m.recordsCommittedTotal.WithLabelValues(kind).Add(float64(records))
	}
}

func (m *Metrics) ObserveStagingSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.stagingSweptTotal.Add(float64(n))
}

func (m *Metrics) ObserveSessionsSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsSweptTotal.Add(float64(n))
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
