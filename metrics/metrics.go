package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ReservationsCreated  prometheus.Counter
	BookingConflicts     prometheus.Counter
	Transitions          *prometheus.CounterVec
	LatePayments         prometheus.Counter
	JobOutcomes          *prometheus.CounterVec
	JobFailures          *prometheus.CounterVec
	NotificationFailures *prometheus.CounterVec
	SweptReservations    prometheus.Counter
}

// NewMetrics registers the service metrics on reg. Tests pass a fresh
// prometheus.NewRegistry(); main passes the registry served on /metrics.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ReservationsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_created_total",
			Help:      "The total number of reservations created",
		}),
		BookingConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_conflicts_total",
			Help:      "The total number of bookings rejected for overlapping a blocking reservation",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_transitions_total",
			Help:      "Applied reservation status transitions",
		}, []string{"from", "to"}),
		LatePayments: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "late_payments_total",
			Help:      "Payments received for reservations that had already ended",
		}),
		JobOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Scheduled jobs processed, by kind and outcome",
		}, []string{"kind", "outcome"}),
		JobFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_failures_total",
			Help:      "Failed job attempts, by kind and whether the job was dead-lettered",
		}, []string{"kind", "dead_lettered"}),
		NotificationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Notifications that could not be delivered, by channel",
		}, []string{"channel"}),
		SweptReservations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overdue_reservations_swept_total",
			Help:      "Overdue reservations re-enqueued for expiry by the sweeper",
		}),
	}
}

func (m *Metrics) ReservationCreated() {
	if m == nil {
		return
	}
	m.ReservationsCreated.Inc()
}

func (m *Metrics) BookingConflict() {
	if m == nil {
		return
	}
	m.BookingConflicts.Inc()
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) LatePayment() {
	if m == nil {
		return
	}
	m.LatePayments.Inc()
}

func (m *Metrics) NotificationFailed(channel string) {
	if m == nil {
		return
	}
	m.NotificationFailures.WithLabelValues(channel).Inc()
}

func (m *Metrics) Swept(n int) {
	if m == nil {
		return
	}
	m.SweptReservations.Add(float64(n))
}

// JobFinished and JobFailed make *Metrics a scheduler.Observer.
func (m *Metrics) JobFinished(kind, outcome string) {
	if m == nil {
		return
	}
	m.JobOutcomes.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) JobFailed(kind string, deadLettered bool) {
	if m == nil {
		return
	}
	m.JobFailures.WithLabelValues(kind, strconv.FormatBool(deadLettered)).Inc()
}
