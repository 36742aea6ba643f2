package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the distribution hub and its consumers.
type Metrics struct {
	// Broadcasts by event type (load, refresh, error)
	Broadcasts *prometheus.CounterVec

	// Refresh requests by scope (full, section)
	RefreshRequests *prometheus.CounterVec

	// Hub state transitions by target state
	StateTransitions *prometheus.CounterVec

	// Consumer-side envelopes discarded as stale
	StaleDiscards prometheus.Counter

	// Consumer fallbacks to the direct aggregation path by reason
	Fallbacks *prometheus.CounterVec
}

// New creates a new Metrics instance with all governor metrics registered.
func New() *Metrics {
	return &Metrics{
		Broadcasts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "casegov_governor_broadcasts_total",
			Help: "Envelopes published on the broadcast channel by event type",
		}, []string{"event_type"}),

		RefreshRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "casegov_governor_refresh_requests_total",
			Help: "Refresh requests by scope",
		}, []string{"scope"}),

		StateTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "casegov_governor_state_transitions_total",
			Help: "Hub state machine transitions by target state",
		}, []string{"state"}),

		StaleDiscards: promauto.NewCounter(prometheus.CounterOpts{
			Name: "casegov_governor_stale_discards_total",
			Help: "Consumer envelopes discarded because a newer snapshot was already applied",
		}),

		Fallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "casegov_governor_consumer_fallbacks_total",
			Help: "Consumer fallbacks to the direct aggregation path by reason",
		}, []string{"reason"}),
	}
}

// IncrementBroadcast records a published envelope.
func (m *Metrics) IncrementBroadcast(eventType string) {
	if m != nil {
		m.Broadcasts.WithLabelValues(eventType).Inc()
	}
}

// IncrementRefreshRequest records a refresh request.
func (m *Metrics) IncrementRefreshRequest(scope string) {
	if m != nil {
		m.RefreshRequests.WithLabelValues(scope).Inc()
	}
}

// IncrementTransition records a hub state transition.
func (m *Metrics) IncrementTransition(state string) {
	if m != nil {
		m.StateTransitions.WithLabelValues(state).Inc()
	}
}

// IncrementStaleDiscard records a discarded out-of-order envelope.
func (m *Metrics) IncrementStaleDiscard() {
	if m != nil {
		m.StaleDiscards.Inc()
	}
}

// IncrementFallback records a consumer fallback to the direct path.
func (m *Metrics) IncrementFallback(reason string) {
	if m != nil {
		m.Fallbacks.WithLabelValues(reason).Inc()
	}
}
