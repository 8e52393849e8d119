package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSucceeded    = "succeeded"
	OutcomeAlreadyPaid  = "already_paid"
	OutcomeUnderpaid    = "underpaid"
	OutcomeCancelled    = "cancelled"
	OutcomeNotConfirmed = "not_confirmed"
	OutcomeRejected     = "rejected"
	OutcomeDuplicate    = "duplicate_refunded"
	OutcomeError        = "error"
)

// OrderMetrics counts order lifecycle signals. A nil *OrderMetrics is valid
// and records nothing.
type OrderMetrics struct {
	checkouts       *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	redemptions     *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	externalErrors  *prometheus.CounterVec
	housekeeping    *prometheus.CounterVec
}

// NewOrderMetrics registers the order counters on the default registry.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	m := &OrderMetrics{
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderflow_checkouts_started_total",
			Help: "Gateway checkouts opened, by brand and flow.",
		}, []string{"brand", "flow"}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderflow_payment_reconciliations_total",
			Help: "Payment callback reconciliation outcomes.",
		}, []string{"outcome"}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderflow_discount_redemptions_total",
			Help: "Discount code application attempts.",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderflow_session_transitions_total",
			Help: "Form session status transitions.",
		}, []string{"from", "to"}),
		externalErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderflow_external_call_errors_total",
			Help: "Failed calls to the payment gateway or signer.",
		}, []string{"service", "op"}),
		housekeeping: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderflow_housekeeping_items_total",
			Help: "Payments touched by background housekeeping jobs.",
		}, []string{"job", "outcome"}),
	}
	registerer.MustRegister(m.checkouts, m.reconciliations, m.redemptions, m.transitions, m.externalErrors, m.housekeeping)
	return m
}

func (m *OrderMetrics) RecordCheckoutStarted(brand, flow string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(label(brand), label(flow)).Inc()
}

func (m *OrderMetrics) RecordReconciliation(outcome string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(label(outcome)).Inc()
}

func (m *OrderMetrics) RecordDiscountRedemption(outcome string) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(label(outcome)).Inc()
}

func (m *OrderMetrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(label(from), label(to)).Inc()
}

func (m *OrderMetrics) RecordExternalError(service, op string) {
	if m == nil {
		return
	}
	m.externalErrors.WithLabelValues(label(service), label(op)).Inc()
}

func (m *OrderMetrics) RecordHousekeeping(job, outcome string) {
	if m == nil {
		return
	}
	m.housekeeping.WithLabelValues(label(job), label(outcome)).Inc()
}

func label(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}
