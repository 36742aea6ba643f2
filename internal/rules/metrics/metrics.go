package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for rule evaluation.
type Metrics struct {
	// Rules skipped because a referenced field had no usable value
	RulesSkipped *prometheus.CounterVec

	// Evaluations by category
	Evaluations *prometheus.CounterVec
}

// New creates a new Metrics instance with all rule metrics registered.
func New() *Metrics {
	return &Metrics{
		RulesSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "casegov_rules_skipped_total",
			Help: "Rules skipped due to missing or malformed input fields",
		}, []string{"rule_id"}),

		Evaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "casegov_rules_evaluations_total",
			Help: "Rule evaluations by category",
		}, []string{"category"}),
	}
}

// IncrementSkipped records a skipped rule.
func (m *Metrics) IncrementSkipped(ruleID string) {
	if m != nil {
		m.RulesSkipped.WithLabelValues(ruleID).Inc()
	}
}

// IncrementEvaluation records one category evaluation.
func (m *Metrics) IncrementEvaluation(category string) {
	if m != nil {
		m.Evaluations.WithLabelValues(category).Inc()
	}
}
