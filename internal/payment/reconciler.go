package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/clinova/scheduler/internal/booking"
	"github.com/clinova/scheduler/internal/observability"
)

// ErrReconciliationConflict means the gateway settled a payment for an
// appointment that was cancelled in the meantime. The appointment is left
// untouched; resolution happens out of band.
var ErrReconciliationConflict = errors.New("payment settled for a cancelled appointment")

// AppointmentStore is the slice of the booking repository the reconciler
// needs. *booking.PgRepository satisfies it.
type AppointmentStore interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)
	GetAppointmentByOrderRef(ctx context.Context, ref string) (*booking.Appointment, error)
	SetOrderRef(ctx context.Context, id uuid.UUID, ref string) (bool, error)
	MarkPaid(ctx context.Context, id uuid.UUID) (bool, error)
	InsertEvent(ctx context.Context, ev booking.EventLog) error
}

// Reconciler bridges the gateway's asynchronous confirmations into the
// appointment's payment flag. It exclusively owns that flag. Gateway round
// trips never happen while a provider lock is held.
type Reconciler struct {
	store   AppointmentStore
	gateway Gateway
	metrics *observability.Metrics
	log     *zap.Logger
}

func NewReconciler(store AppointmentStore, gateway Gateway, metrics *observability.Metrics, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.New(prometheus.NewRegistry())
	}
	return &Reconciler{
		store:   store,
		gateway: gateway,
		metrics: metrics,
		log:     log,
	}
}

// CreateIntent asks the gateway for a payment intent covering the fee
// snapshot and stores the returned reference as the correlation id. Status
// flags are not touched. Calling it again returns the existing reference.
func (r *Reconciler) CreateIntent(ctx context.Context, apptID uuid.UUID) (string, error) {
	appt, err := r.store.GetAppointmentByID(ctx, apptID)
	if err != nil {
		return "", err
	}
	if appt.Cancelled {
		return "", fmt.Errorf("%w: appointment is cancelled", booking.ErrStateConflict)
	}
	if appt.OrderRef != nil {
		return *appt.OrderRef, nil
	}

	ref, err := r.gateway.CreateIntent(ctx, appt.FeeMinor, appt.Currency, appt.ID.String())
	if err != nil {
		return "", err
	}

	stored, err := r.store.SetOrderRef(ctx, appt.ID, ref)
	if err != nil {
		return "", fmt.Errorf("store order ref: %w", err)
	}
	if !stored {
		// Lost the race with a concurrent intent creation: the reference
		// that landed first wins and the fresh intent is abandoned at the
		// gateway.
		current, err := r.store.GetAppointmentByID(ctx, appt.ID)
		if err != nil {
			return "", err
		}
		if current.OrderRef == nil {
			return "", fmt.Errorf("%w: order ref was not stored", booking.ErrStateConflict)
		}
		r.log.Warn("abandoning duplicate payment intent",
			zap.String("appointment_id", appt.ID.String()),
			zap.String("order_ref", ref))
		return *current.OrderRef, nil
	}

	r.logEvent(ctx, appt.ID, booking.EventPaymentIntentSaved, map[string]any{
		"order_ref": ref,
		"amount":    appt.FeeMinor,
		"currency":  appt.Currency,
	})

	return ref, nil
}

// Confirm resolves the appointment by correlation id, verifies the gateway
// reports the intent as settled, and flips the payment flag. Replays of the
// same confirmation are no-ops. A settled payment on a cancelled
// appointment raises ErrReconciliationConflict instead of silently marking
// it paid.
func (r *Reconciler) Confirm(ctx context.Context, correlationID string) (*booking.Appointment, error) {
	appt, err := r.store.GetAppointmentByOrderRef(ctx, correlationID)
	if err != nil {
		return nil, err
	}

	// Duplicate webhook: the first confirmation already landed.
	if appt.Paid {
		r.metrics.PaymentConfirmations.WithLabelValues("duplicate").Inc()
		return appt, nil
	}

	status, err := r.gateway.GetStatus(ctx, correlationID)
	if err != nil {
		r.metrics.PaymentConfirmations.WithLabelValues("gateway_error").Inc()
		return nil, err
	}
	if status != StatusSucceeded {
		r.metrics.PaymentConfirmations.WithLabelValues("unsettled").Inc()
		return nil, fmt.Errorf("%w: intent %s is %s, not settled", ErrGateway, correlationID, status)
	}

	if appt.Cancelled {
		return nil, r.conflict(ctx, appt, correlationID)
	}

	updated, err := r.store.MarkPaid(ctx, appt.ID)
	if err != nil {
		return nil, err
	}
	if !updated {
		// Lost a race with another confirmation or a cancellation.
		current, err := r.store.GetAppointmentByID(ctx, appt.ID)
		if err != nil {
			return nil, err
		}
		if current.Paid {
			return current, nil
		}
		return nil, r.conflict(ctx, current, correlationID)
	}

	r.metrics.PaymentConfirmations.WithLabelValues("confirmed").Inc()
	r.logEvent(ctx, appt.ID, booking.EventPaymentConfirmed, map[string]any{
		"order_ref": correlationID,
	})

	return r.store.GetAppointmentByID(ctx, appt.ID)
}

func (r *Reconciler) conflict(ctx context.Context, appt *booking.Appointment, correlationID string) error {
	r.metrics.PaymentConfirmations.WithLabelValues("conflict").Inc()
	r.log.Error("payment settled for cancelled appointment, manual resolution required",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("order_ref", correlationID))
	r.logEvent(ctx, appt.ID, booking.EventPaymentConflict, map[string]any{
		"order_ref": correlationID,
	})
	return ErrReconciliationConflict
}

func (r *Reconciler) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = nil
	}

	apptID := appointmentID

	ev := booking.EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := r.store.InsertEvent(ctx, ev); err != nil {
		r.log.Warn("failed to insert event log",
			zap.String("event", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err))
	}
}
