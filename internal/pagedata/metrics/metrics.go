package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for page data aggregation.
type Metrics struct {
	// Full build latency including related fetches and rule evaluation
	BuildLatency prometheus.Histogram

	// Build outcomes: "ok" or "failed"
	BuildOutcome *prometheus.CounterVec

	// Related-record fetches that degraded to absent, by entity type
	RelatedDegraded *prometheus.CounterVec

	// Concurrent builds that shared an in-flight build for the same case
	BuildJoins prometheus.Counter
}

// New creates a new Metrics instance with all aggregation metrics registered.
func New() *Metrics {
	return &Metrics{
		BuildLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "casegov_pagedata_build_duration_seconds",
			Help:    "Duration of full page data builds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		BuildOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "casegov_pagedata_builds_total",
			Help: "Page data build outcomes",
		}, []string{"outcome"}),

		RelatedDegraded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "casegov_pagedata_related_degraded_total",
			Help: "Related-record fetches degraded to absent entries",
		}, []string{"entity_type"}),

		BuildJoins: promauto.NewCounter(prometheus.CounterOpts{
			Name: "casegov_pagedata_build_joins_total",
			Help: "Build requests coalesced onto an in-flight build",
		}),
	}
}

// ObserveBuildLatency records a completed build duration.
func (m *Metrics) ObserveBuildLatency(d time.Duration) {
	if m != nil {
		m.BuildLatency.Observe(d.Seconds())
	}
}

// IncrementOutcome records a build outcome.
func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.BuildOutcome.WithLabelValues(outcome).Inc()
	}
}

// IncrementRelatedDegraded records a related fetch that degraded to absent.
func (m *Metrics) IncrementRelatedDegraded(entityType string) {
	if m != nil {
		m.RelatedDegraded.WithLabelValues(entityType).Inc()
	}
}

// IncrementBuildJoin records a coalesced build request.
func (m *Metrics) IncrementBuildJoin() {
	if m != nil {
		m.BuildJoins.Inc()
	}
}
