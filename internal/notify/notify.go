package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Lifecycle event types published to recipients.
const (
	TypeBooked           = "appointment.booked"
	TypeCancelled        = "appointment.cancelled"
	TypeRescheduled      = "appointment.rescheduled"
	TypeCompleted        = "appointment.completed"
	TypePaymentConfirmed = "appointment.payment_confirmed"
	TypeHoldExpired      = "appointment.hold_expired"
)

// Event is the outbound notification payload. Dispatch failures are logged
// and swallowed by callers: a notification must never roll back the
// lifecycle transition that produced it.
type Event struct {
	Type          string    `json:"type"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Recipient     string    `json:"recipient"`
	ProviderName  string    `json:"provider_name"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event) error
}

// LogDispatcher is the fallback used when no broker is configured.
type LogDispatcher struct {
	log *zap.Logger
}

func NewLogDispatcher(log *zap.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Dispatch(_ context.Context, ev Event) error {
	d.log.Info("lifecycle notification",
		zap.String("type", ev.Type),
		zap.String("appointment_id", ev.AppointmentID.String()),
		zap.String("recipient", ev.Recipient),
		zap.String("date", ev.Date),
		zap.String("time", ev.Time),
	)
	return nil
}
