package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's prometheus collectors. Booking outcomes use a
// label rather than separate counters so dashboards can sum across them.
type Metrics struct {
	Bookings             *prometheus.CounterVec
	LifecycleTransitions *prometheus.CounterVec
	PaymentConfirmations *prometheus.CounterVec
	HoldsExpired         prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Bookings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome.",
		}, []string{"outcome"}),
		LifecycleTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "lifecycle_transitions_total",
			Help:      "Cancel, reschedule and complete transitions by outcome.",
		}, []string{"transition", "outcome"}),
		PaymentConfirmations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "payment_confirmations_total",
			Help:      "Gateway confirmation webhooks by outcome.",
		}, []string{"outcome"}),
		HoldsExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "holds_expired_total",
			Help:      "Unpaid reservations cancelled by the expiry sweep.",
		}),
	}
}
