package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the context store.
type Metrics struct {
	// Cache hits and misses by entity type
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Explicit invalidations by entity type
	Invalidations *prometheus.CounterVec

	// Backing store fetch latency by entity type
	FetchLatency *prometheus.HistogramVec

	// Joins onto an already in-flight fetch (single-flight saves)
	InflightJoins *prometheus.CounterVec
}

// New creates a new Metrics instance with all context store metrics registered.
func New() *Metrics {
	return &Metrics{
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "casegov_contextstore_cache_hits_total",
			Help: "Cache hits by entity type",
		}, []string{"entity_type"}),

		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "casegov_contextstore_cache_misses_total",
			Help: "Cache misses (including TTL expiries) by entity type",
		}, []string{"entity_type"}),

		Invalidations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "casegov_contextstore_invalidations_total",
			Help: "Explicit cache invalidations by entity type",
		}, []string{"entity_type"}),

		FetchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "casegov_contextstore_fetch_duration_seconds",
			Help:    "Backing store fetch duration by entity type",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"entity_type"}),

		InflightJoins: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "casegov_contextstore_inflight_joins_total",
			Help: "Requests that joined an already in-flight fetch instead of duplicating it",
		}, []string{"entity_type"}),
	}
}

// IncrementHit records a cache hit.
func (m *Metrics) IncrementHit(entityType string) {
	if m != nil {
		m.CacheHits.WithLabelValues(entityType).Inc()
	}
}

// IncrementMiss records a cache miss.
func (m *Metrics) IncrementMiss(entityType string) {
	if m != nil {
		m.CacheMisses.WithLabelValues(entityType).Inc()
	}
}

// IncrementInvalidation records an explicit invalidation.
func (m *Metrics) IncrementInvalidation(entityType string) {
	if m != nil {
		m.Invalidations.WithLabelValues(entityType).Inc()
	}
}

// ObserveFetchLatency records the duration of a backing store fetch.
func (m *Metrics) ObserveFetchLatency(entityType string, d time.Duration) {
	if m != nil {
		m.FetchLatency.WithLabelValues(entityType).Observe(d.Seconds())
	}
}

// IncrementInflightJoin records a request deduplicated onto an in-flight fetch.
func (m *Metrics) IncrementInflightJoin(entityType string) {
	if m != nil {
		m.InflightJoins.WithLabelValues(entityType).Inc()
	}
}
