// Package metrics defines the Prometheus collectors shared by the
// eligibility oracle, the intent pipeline, the milestone engine and the
// reconciler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "poapgate"

// Metrics is safe to use through a nil pointer; every recorder is then a
// no-op.
type Metrics struct {
	eligibilityChecks *prometheus.CounterVec
	intents           *prometheus.CounterVec
	partialFailures   *prometheus.CounterVec
	divergences       *prometheus.CounterVec
	completions       *prometheus.CounterVec
	pendingTx         *prometheus.GaugeVec
	ledgerCalls       *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		eligibilityChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "eligibility_checks_total",
			Help:      "Credential checks by result (granted, denied, error).",
		}, []string{"result"}),
		intents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_total",
			Help:      "Submitted intents by action and terminal outcome.",
		}, []string{"action", "outcome"}),
		partialFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intent_partial_failures_total",
			Help:      "Intents whose later steps failed after an earlier step took effect.",
		}, []string{"action", "step"}),
		divergences: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_divergences_total",
			Help:      "Mirror records whose ledger transaction failed after the mirror write.",
		}, []string{"kind"}),
		completions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "milestone_completions_total",
			Help:      "Milestone completions awarded by category.",
		}, []string{"category"}),
		pendingTx: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_pending_transactions",
			Help:      "Mirror records still waiting for ledger confirmation, as of the last reconcile pass.",
		}, []string{"kind"}),
		ledgerCalls: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_call_duration_seconds",
			Help:      "Latency of ledger calls by function.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"function"}),
	}
}

func (m *Metrics) EligibilityCheck(result string) {
	if m == nil {
		return
	}
	m.eligibilityChecks.WithLabelValues(result).Inc()
}

func (m *Metrics) Intent(action, outcome string) {
	if m == nil {
		return
	}
	m.intents.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) PartialFailure(action, step string) {
	if m == nil {
		return
	}
	m.partialFailures.WithLabelValues(action, step).Inc()
}

func (m *Metrics) Divergence(kind string) {
	if m == nil {
		return
	}
	m.divergences.WithLabelValues(kind).Inc()
}

func (m *Metrics) Completion(category string) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(category).Inc()
}

func (m *Metrics) PendingTransactions(kind string, n int) {
	if m == nil {
		return
	}
	m.pendingTx.WithLabelValues(kind).Set(float64(n))
}

func (m *Metrics) ObserveLedgerCall(function string, seconds float64) {
	if m == nil {
		return
	}
	m.ledgerCalls.WithLabelValues(function).Observe(seconds)
}
