package booking

import "errors"

var (
	// ErrValidation covers malformed or out-of-range input, including a
	// requested slot that is not in the provider's candidate set.
	ErrValidation = errors.New("invalid booking input")

	ErrProviderNotFound    = errors.New("provider not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotUnavailable means the reservation race was lost or the slot is
	// already held. The ledger is never mutated by the failing attempt, so
	// retrying with a different slot is always safe.
	ErrSlotUnavailable = errors.New("slot already booked")

	ErrUnauthorized = errors.New("requester does not own this appointment")

	// ErrStateConflict means the appointment is cancelled or completed and
	// the requested transition is not allowed from there.
	ErrStateConflict = errors.New("appointment state does not permit this operation")
)
