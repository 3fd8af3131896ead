package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())

	m.ReservationCreated()
	m.ReservationCreated()
	m.BookingConflict()
	m.Transition("PENDING", "CONFIRMED")
	m.JobFinished("reservation:expire", "skipped")
	m.JobFailed("reservation:expire", true)
	m.NotificationFailed("email")
	m.Swept(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReservationsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BookingConflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("PENDING", "CONFIRMED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobOutcomes.WithLabelValues("reservation:expire", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobFailures.WithLabelValues("reservation:expire", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationFailures.WithLabelValues("email")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SweptReservations))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ReservationCreated()
		m.BookingConflict()
		m.Transition("PENDING", "EXPIRED")
		m.LatePayment()
		m.JobFinished("k", "completed")
		m.JobFailed("k", false)
		m.NotificationFailed("push")
		m.Swept(1)
	})
}
