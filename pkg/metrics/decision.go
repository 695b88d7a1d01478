package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DecisionMetrics counts winner-decision attempts by outcome. These counters
// are process-scoped caches over the order tables, never a source of truth;
// restarting the process resets them.
type DecisionMetrics struct {
	outcomes *prometheus.CounterVec
	retries  prometheus.Counter
}

// Decision outcome labels.
const (
	DecisionOutcomeAssigned     = "assigned"
	DecisionOutcomeIdempotent   = "idempotent"
	DecisionOutcomeNoBids       = "no_bids"
	DecisionOutcomeInsufficient = "insufficient_resource"
	DecisionOutcomeError        = "error"
)

// NewDecisionMetrics registers decision metrics on the provided registerer.
func NewDecisionMetrics(reg prometheus.Registerer) *DecisionMetrics {
	if reg == nil {
		return &DecisionMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "decision_attempts_total",
		Help: "Winner decision attempts by outcome.",
	}, []string{"outcome"})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "decision_retries_total",
		Help: "Decision transactions retried after serialization conflicts.",
	})
	reg.MustRegister(outcomes, retries)
	return &DecisionMetrics{outcomes: outcomes, retries: retries}
}

// IncOutcome increments the counter for the given decision outcome.
func (d *DecisionMetrics) IncOutcome(outcome string) {
	if d == nil || d.outcomes == nil {
		return
	}
	d.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncRetry increments the retry counter.
func (d *DecisionMetrics) IncRetry() {
	if d == nil || d.retries == nil {
		return
	}
	d.retries.Inc()
}
