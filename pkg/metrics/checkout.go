package metrics

import "github.com/prometheus/client_golang/prometheus"

// Checkout outcome labels.
const (
	OutcomeInitiated         = "initiated"
	OutcomeConfirmed         = "confirmed"
	OutcomeAuthorized        = "authorized"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeSessionExpired    = "session_expired"
	OutcomePaymentFailed     = "payment_failed"
	OutcomeValidationFailed  = "validation_failed"
	OutcomeError             = "error"
)

// CheckoutMetrics counts checkout and stock ledger outcomes.
type CheckoutMetrics struct {
	outcomes            *prometheus.CounterVec
	reservationFailures prometheus.Counter
	lowStockAlerts      *prometheus.CounterVec
	cancellations       *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checkout",
		Name:      "outcomes_total",
		Help:      "Checkout attempts partitioned by stage and result.",
	}, []string{"stage", "result"})
	reservationFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "inventory",
		Name:      "reservation_failures_total",
		Help:      "Reservations rejected for insufficient stock.",
	})
	lowStockAlerts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "inventory",
		Name:      "low_stock_alerts_total",
		Help:      "Stock alerts raised by type.",
	}, []string{"alert_type"})
	cancellations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "cancellations_total",
		Help:      "Cancelled orders by actor kind.",
	}, []string{"actor"})
	reg.MustRegister(outcomes, reservationFailures, lowStockAlerts, cancellations)
	return &CheckoutMetrics{
		outcomes:            outcomes,
		reservationFailures: reservationFailures,
		lowStockAlerts:      lowStockAlerts,
		cancellations:       cancellations,
	}
}

// IncOutcome records one checkout result for the given stage (initiate, confirm, capture).
func (m *CheckoutMetrics) IncOutcome(stage, result string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(stage), normalizeLabel(result)).Inc()
}

// IncReservationFailure records a rejected reservation.
func (m *CheckoutMetrics) IncReservationFailure() {
	if m == nil || m.reservationFailures == nil {
		return
	}
	m.reservationFailures.Inc()
}

// IncLowStockAlert records a raised stock alert.
func (m *CheckoutMetrics) IncLowStockAlert(alertType string) {
	if m == nil || m.lowStockAlerts == nil {
		return
	}
	m.lowStockAlerts.WithLabelValues(normalizeLabel(alertType)).Inc()
}

// IncCancellation records a cancelled order.
func (m *CheckoutMetrics) IncCancellation(actor string) {
	if m == nil || m.cancellations == nil {
		return
	}
	m.cancellations.WithLabelValues(normalizeLabel(actor)).Inc()
}
