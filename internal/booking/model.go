package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinova/scheduler/internal/schedule"
)

// GuestEmail is the fixed sentinel address that identifies the shared guest
// patient. Bookings without a patient identity resolve to this row.
const GuestEmail = "guest@clinova.invalid"

const GuestName = "Guest Patient"

// Event types written to the event log.
const (
	EventBooked             = "APPOINTMENT_BOOKED"
	EventCancelled          = "APPOINTMENT_CANCELLED"
	EventRescheduled        = "APPOINTMENT_RESCHEDULED"
	EventCompleted          = "APPOINTMENT_COMPLETED"
	EventHoldExpired        = "APPOINTMENT_HOLD_EXPIRED"
	EventPaymentConfirmed   = "PAYMENT_CONFIRMED"
	EventPaymentConflict    = "PAYMENT_RECONCILIATION_CONFLICT"
	EventPaymentIntentSaved = "PAYMENT_INTENT_CREATED"
)

type Provider struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	Available bool
	FeeMinor  int64
	Currency  string
	Schedule  schedule.Schedule
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment carries the slot identity, the fee snapshot captured at
// booking time, and the three lifecycle flags. The snapshot never changes
// when the provider's listed fee does.
type Appointment struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	ProviderID  uuid.UUID
	SlotDate    string
	SlotTime    string
	FeeMinor    int64
	Currency    string
	Cancelled   bool
	Paid        bool
	Completed   bool
	OrderRef    *string
	Diagnosis   *string
	Medications *string
	Notes       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Terminal reports whether the appointment can no longer transition.
func (a *Appointment) Terminal() bool {
	return a.Cancelled || a.Completed
}

// State derives the lifecycle state from the flags.
func (a *Appointment) State() string {
	switch {
	case a.Cancelled:
		return "cancelled"
	case a.Completed:
		return "completed"
	case a.Paid:
		return "paid"
	default:
		return "created"
	}
}

// Report is the clinical payload attached when a provider completes an
// appointment.
type Report struct {
	Diagnosis   string
	Medications string
	Notes       string
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
