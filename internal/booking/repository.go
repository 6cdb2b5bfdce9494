package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the engine and the
// payment reconciler. Multi-step methods are transactional: the slot ledger
// and the appointment row move together or not at all, so the conservation
// invariant holds on every exit path.
type Repository interface {
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	// EnsureGuestPatient resolves the canonical guest identity, creating it
	// idempotently on first use.
	EnsureGuestPatient(ctx context.Context) (uuid.UUID, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentByOrderRef(ctx context.Context, ref string) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	// OccupiedSlots returns the ledger entries for one provider between two
	// date keys inclusive, as date -> set of times. Read-only, no lock.
	OccupiedSlots(ctx context.Context, providerID uuid.UUID, fromDate, toDate string) (map[string]map[string]bool, error)

	// CreateBooked reserves the slot and inserts the appointment in one
	// transaction. Returns ErrSlotUnavailable, with no side effects, if the
	// ledger entry already exists.
	CreateBooked(ctx context.Context, appt *Appointment) error

	// CancelAndRelease flips the cancelled flag and deletes the ledger entry
	// in one transaction. Returns ErrStateConflict if the appointment is
	// already terminal.
	CancelAndRelease(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ExpireHold is CancelAndRelease restricted to unpaid appointments: the
	// conditional also requires NOT paid, so a confirmation that lands after
	// the stale scan leaves the hold untouched (ErrStateConflict).
	ExpireHold(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// RescheduleSlot reserves the new slot before releasing the old one,
	// all inside one transaction. On ErrSlotUnavailable the appointment and
	// its old reservation are left completely unchanged.
	RescheduleSlot(ctx context.Context, id uuid.UUID, newDate, newTime string) (*Appointment, error)

	// CompleteAppointment marks the appointment completed and attaches the
	// report. The ledger is not touched: the slot stays consumed by history.
	CompleteAppointment(ctx context.Context, id uuid.UUID, rep Report) (*Appointment, error)

	// SetOrderRef stores the gateway reference only while none exists.
	// Reports false without error when another reference landed first.
	SetOrderRef(ctx context.Context, id uuid.UUID, ref string) (bool, error)

	// MarkPaid conditionally sets the payment flag on a live unpaid
	// appointment. Reports false without error when the condition did not
	// hold; the caller decides whether that is a duplicate or a conflict.
	MarkPaid(ctx context.Context, id uuid.UUID) (bool, error)

	// FindStaleUnpaid lists live unpaid appointments created before cutoff,
	// for the expiry sweep.
	FindStaleUnpaid(ctx context.Context, cutoff time.Time) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
