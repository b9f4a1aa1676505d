package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics records webhook and reconciliation outcomes. Gateway-facing
// handlers never surface failures to the gateway, so these counters are the
// primary signal that something needs manual follow-up.
type PaymentMetrics struct {
	callbacks     *prometheus.CounterVec
	confirmations *prometheus.CounterVec
	matches       *prometheus.CounterVec
	manualChecks  *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	callbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callbacks_total",
		Help: "STK push callbacks processed, by outcome.",
	}, []string{"outcome"})
	confirmations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_c2b_confirmations_total",
		Help: "C2B till-deposit confirmations processed, by outcome.",
	}, []string{"outcome"})
	matches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconcile_attempts_total",
		Help: "Automatic reconciliation attempts, by result.",
	}, []string{"result"})
	manualChecks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_manual_verifications_total",
		Help: "Manual receipt verifications, by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(callbacks, confirmations, matches, manualChecks)
	return &PaymentMetrics{
		callbacks:     callbacks,
		confirmations: confirmations,
		matches:       matches,
		manualChecks:  manualChecks,
	}
}

// ObserveCallback counts a processed STK callback.
func (m *PaymentMetrics) ObserveCallback(outcome string) {
	if m == nil || m.callbacks == nil {
		return
	}
	m.callbacks.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveConfirmation counts a processed C2B confirmation.
func (m *PaymentMetrics) ObserveConfirmation(outcome string) {
	if m == nil || m.confirmations == nil {
		return
	}
	m.confirmations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveMatch counts a reconciliation attempt result.
func (m *PaymentMetrics) ObserveMatch(result string) {
	if m == nil || m.matches == nil {
		return
	}
	m.matches.WithLabelValues(normalizeLabel(result)).Inc()
}

// ObserveManualCheck counts a manual receipt verification outcome.
func (m *PaymentMetrics) ObserveManualCheck(outcome string) {
	if m == nil || m.manualChecks == nil {
		return
	}
	m.manualChecks.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
