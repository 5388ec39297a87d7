// Package events is an in-process pub/sub for appointment lifecycle events.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/superst1/chatbot-whatsapp-citas/internal/metrics"
	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
)

const (
	AppointmentCreated     = "appointment.created"
	AppointmentCancelled   = "appointment.cancelled"
	AppointmentRescheduled = "appointment.rescheduled"
	AppointmentUpdated     = "appointment.status_updated"
)

// Event describes a change to a committed appointment.
type Event struct {
	Type        string
	UserID      string
	Appointment models.Appointment
	// PreviousNumber is set for reschedules.
	PreviousNumber int64
	CreatedAt      time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus delivers events to subscribers synchronously, in subscription order.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. Handler errors are logged
// and do not stop later handlers.
func (b *EventBus) Publish(event Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).Str("event", event.Type).Int64("appointment", event.Appointment.Number).Msg("event handler failed")
		}
	}
}

// SubscribeDefaults wires the metrics counter and an audit log line to every
// appointment event.
func SubscribeDefaults(b *EventBus) {
	for eventType, action := range map[string]string{
		AppointmentCreated:     "created",
		AppointmentCancelled:   "cancelled",
		AppointmentRescheduled: "rescheduled",
		AppointmentUpdated:     "status_updated",
	} {
		action := action
		b.Subscribe(eventType, func(e Event) error {
			metrics.IncAppointment(action)
			b.logger.Info().
				Str("action", action).
				Str("user_id", e.UserID).
				Int64("appointment", e.Appointment.Number).
				Int64("previous", e.PreviousNumber).
				Str("slot", e.Appointment.SlotKey()).
				Str("status", e.Appointment.Status).
				Msg("appointment event")
			return nil
		})
	}
}
