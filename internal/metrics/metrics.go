package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "citas"

var (
	once sync.Once

	messagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound messages by channel.",
		},
		[]string{"channel"},
	)

	messagesDuplicate = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_duplicate_total",
			Help:      "Inbound messages dropped as redeliveries.",
		},
	)

	turnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time to process one dialogue turn.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"outcome"},
	)

	appointments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointments_total",
			Help:      "Appointment lifecycle changes by action.",
		},
		[]string{"action"},
	)

	slotConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_conflicts_total",
			Help:      "Reservation attempts rejected by the slot guard.",
		},
		[]string{"reason"},
	)

	sendFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Outbound replies that could not be delivered.",
		},
		[]string{"provider"},
	)

	extractorErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractor_errors_total",
			Help:      "Entity extractor failures by provider.",
		},
		[]string{"provider"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(messagesReceived, messagesDuplicate, turnDuration, appointments, slotConflicts, sendFailures, extractorErrors)
	})
}

func IncMessageReceived(channel string) {
	messagesReceived.WithLabelValues(channel).Inc()
}

func IncDuplicate() {
	messagesDuplicate.Inc()
}

func ObserveTurn(outcome string, d time.Duration) {
	turnDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// IncAppointment counts created, cancelled, rescheduled and status_updated actions.
func IncAppointment(action string) {
	appointments.WithLabelValues(action).Inc()
}

func IncSlotConflict(reason string) {
	slotConflicts.WithLabelValues(reason).Inc()
}

func IncSendFailure(provider string) {
	sendFailures.WithLabelValues(provider).Inc()
}

func IncExtractorError(provider string) {
	extractorErrors.WithLabelValues(provider).Inc()
}
