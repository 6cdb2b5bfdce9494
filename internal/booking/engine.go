package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/clinova/scheduler/internal/notify"
	"github.com/clinova/scheduler/internal/observability"
	redisclient "github.com/clinova/scheduler/internal/redis"
	"github.com/clinova/scheduler/internal/schedule"
)

const maxSlotRangeDays = 90

// Engine owns slot allocation and every lifecycle transition. All
// booking-path mutations for one provider run under that provider's lock;
// the ledger's primary key stays the final arbiter either way.
type Engine struct {
	repo     Repository
	locker   redisclient.Locker
	notifier notify.Dispatcher
	metrics  *observability.Metrics
	log      *zap.Logger

	// overridable in tests
	now     func() time.Time
	holdTTL time.Duration
}

func NewEngine(repo Repository, locker redisclient.Locker, notifier notify.Dispatcher, metrics *observability.Metrics, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.NewLogDispatcher(log)
	}
	if metrics == nil {
		metrics = observability.New(prometheus.NewRegistry())
	}
	return &Engine{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		metrics:  metrics,
		log:      log,
		now:      time.Now,
	}
}

// SetHoldTTL enables the expiry sweep. Zero leaves unpaid holds untouched,
// which is the baseline behavior when the worker is not deployed.
func (e *Engine) SetHoldTTL(ttl time.Duration) {
	e.holdTTL = ttl
}

// Book validates the request against the provider's candidate slot set,
// reserves the slot and creates the appointment atomically. A nil patientID
// resolves to the shared guest identity instead of being rejected.
func (e *Engine) Book(ctx context.Context, patientID *uuid.UUID, providerID uuid.UUID, date, tm string) (*Appointment, error) {
	provider, err := e.repo.GetProviderByID(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if !provider.Available {
		return nil, fmt.Errorf("%w: provider is not accepting bookings", ErrValidation)
	}
	if err := e.validateSlot(provider, date, tm); err != nil {
		return nil, err
	}

	var pid uuid.UUID
	if patientID == nil {
		pid, err = e.repo.EnsureGuestPatient(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		patient, err := e.repo.GetPatientByID(ctx, *patientID)
		if err != nil {
			return nil, err
		}
		pid = patient.ID
	}

	appt := &Appointment{
		ID:         uuid.New(),
		PatientID:  pid,
		ProviderID: providerID,
		SlotDate:   date,
		SlotTime:   tm,
		FeeMinor:   provider.FeeMinor,
		Currency:   provider.Currency,
		CreatedAt:  e.now(),
		UpdatedAt:  e.now(),
	}

	err = e.locker.WithProviderLock(ctx, providerID, func(lockCtx context.Context) error {
		return e.repo.CreateBooked(lockCtx, appt)
	})
	if err != nil {
		if errors.Is(err, ErrSlotUnavailable) {
			e.metrics.Bookings.WithLabelValues("slot_unavailable").Inc()
		} else {
			e.metrics.Bookings.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	e.metrics.Bookings.WithLabelValues("created").Inc()
	e.logEvent(ctx, appt.ID, EventBooked, map[string]any{
		"provider_id": providerID.String(),
		"patient_id":  pid.String(),
		"slot_date":   date,
		"slot_time":   tm,
		"fee_minor":   appt.FeeMinor,
	})
	e.dispatch(ctx, notify.Event{
		Type:          notify.TypeBooked,
		AppointmentID: appt.ID,
		Recipient:     pid.String(),
		ProviderName:  provider.Name,
		Date:          date,
		Time:          tm,
	})

	return appt, nil
}

// Cancel is terminal and irreversible. Only the booking patient may cancel.
func (e *Engine) Cancel(ctx context.Context, apptID, requesterID uuid.UUID) (*Appointment, error) {
	appt, err := e.repo.GetAppointmentByID(ctx, apptID)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != requesterID {
		return nil, ErrUnauthorized
	}
	if appt.Terminal() {
		return nil, ErrStateConflict
	}

	var cancelled *Appointment
	err = e.locker.WithProviderLock(ctx, appt.ProviderID, func(lockCtx context.Context) error {
		var err error
		cancelled, err = e.repo.CancelAndRelease(lockCtx, apptID)
		return err
	})
	if err != nil {
		e.metrics.LifecycleTransitions.WithLabelValues("cancel", "rejected").Inc()
		return nil, err
	}

	e.metrics.LifecycleTransitions.WithLabelValues("cancel", "ok").Inc()
	e.logEvent(ctx, apptID, EventCancelled, map[string]any{
		"slot_date": cancelled.SlotDate,
		"slot_time": cancelled.SlotTime,
	})
	e.dispatch(ctx, notify.Event{
		Type:          notify.TypeCancelled,
		AppointmentID: apptID,
		Recipient:     appt.PatientID.String(),
		Date:          cancelled.SlotDate,
		Time:          cancelled.SlotTime,
	})

	return cancelled, nil
}

// Reschedule moves a live appointment to a new slot. The new slot is
// reserved before the old one is released; if the new slot is taken, the
// appointment and its old reservation are left completely unchanged.
func (e *Engine) Reschedule(ctx context.Context, apptID, requesterID uuid.UUID, newDate, newTime string) (*Appointment, error) {
	appt, err := e.repo.GetAppointmentByID(ctx, apptID)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != requesterID {
		return nil, ErrUnauthorized
	}
	if appt.Terminal() {
		return nil, ErrStateConflict
	}

	provider, err := e.repo.GetProviderByID(ctx, appt.ProviderID)
	if err != nil {
		return nil, err
	}
	if !provider.Available {
		return nil, fmt.Errorf("%w: provider is not accepting bookings", ErrValidation)
	}
	if err := e.validateSlot(provider, newDate, newTime); err != nil {
		return nil, err
	}
	if appt.SlotDate == newDate && appt.SlotTime == newTime {
		return nil, fmt.Errorf("%w: appointment already holds this slot", ErrValidation)
	}

	oldDate, oldTime := appt.SlotDate, appt.SlotTime

	var updated *Appointment
	err = e.locker.WithProviderLock(ctx, appt.ProviderID, func(lockCtx context.Context) error {
		var err error
		updated, err = e.repo.RescheduleSlot(lockCtx, apptID, newDate, newTime)
		return err
	})
	if err != nil {
		e.metrics.LifecycleTransitions.WithLabelValues("reschedule", "rejected").Inc()
		return nil, err
	}

	e.metrics.LifecycleTransitions.WithLabelValues("reschedule", "ok").Inc()
	e.logEvent(ctx, apptID, EventRescheduled, map[string]any{
		"old_date": oldDate,
		"old_time": oldTime,
		"new_date": newDate,
		"new_time": newTime,
	})
	e.dispatch(ctx, notify.Event{
		Type:          notify.TypeRescheduled,
		AppointmentID: apptID,
		Recipient:     appt.PatientID.String(),
		ProviderName:  provider.Name,
		Date:          newDate,
		Time:          newTime,
	})

	return updated, nil
}

// Complete marks a paid appointment done and attaches the clinical report.
// Only the owning provider may complete; the ledger entry stays, the slot
// is consumed by history.
func (e *Engine) Complete(ctx context.Context, apptID, providerID uuid.UUID, rep Report) (*Appointment, error) {
	appt, err := e.repo.GetAppointmentByID(ctx, apptID)
	if err != nil {
		return nil, err
	}
	if appt.ProviderID != providerID {
		return nil, ErrUnauthorized
	}
	if appt.Terminal() {
		return nil, ErrStateConflict
	}
	if !appt.Paid {
		return nil, fmt.Errorf("%w: appointment is not paid", ErrStateConflict)
	}

	completed, err := e.repo.CompleteAppointment(ctx, apptID, rep)
	if err != nil {
		e.metrics.LifecycleTransitions.WithLabelValues("complete", "rejected").Inc()
		return nil, err
	}

	e.metrics.LifecycleTransitions.WithLabelValues("complete", "ok").Inc()
	e.logEvent(ctx, apptID, EventCompleted, map[string]any{})
	e.dispatch(ctx, notify.Event{
		Type:          notify.TypeCompleted,
		AppointmentID: apptID,
		Recipient:     appt.PatientID.String(),
		Date:          completed.SlotDate,
		Time:          completed.SlotTime,
	})

	return completed, nil
}

// Slots returns the open candidate slots for a provider between two dates:
// the generated candidate set minus the occupied ledger entries. Read-only,
// no lock.
func (e *Engine) Slots(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]schedule.Slot, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end precedes start", ErrValidation)
	}
	if to.Sub(from) > maxSlotRangeDays*24*time.Hour {
		to = from.AddDate(0, 0, maxSlotRangeDays)
	}

	provider, err := e.repo.GetProviderByID(ctx, providerID)
	if err != nil {
		return nil, err
	}

	occupied, err := e.repo.OccupiedSlots(ctx, providerID,
		from.UTC().Format(schedule.DateLayout), to.UTC().Format(schedule.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	var open []schedule.Slot
	for slot := range provider.Schedule.Slots(from, to) {
		if occupied[slot.Date][slot.Time] {
			continue
		}
		open = append(open, slot)
	}

	return open, nil
}

func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return e.repo.GetAppointmentByID(ctx, id)
}

func (e *Engine) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return e.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
}

// ExpireStaleHolds cancels unpaid appointments older than the hold TTL and
// releases their slots. Intended to be called periodically by the worker.
func (e *Engine) ExpireStaleHolds(ctx context.Context) error {
	if e.holdTTL <= 0 {
		return nil
	}

	cutoff := e.now().Add(-e.holdTTL)
	stale, err := e.repo.FindStaleUnpaid(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("find stale unpaid appointments: %w", err)
	}

	for _, appt := range stale {
		err := e.locker.WithProviderLock(ctx, appt.ProviderID, func(lockCtx context.Context) error {
			_, err := e.repo.ExpireHold(lockCtx, appt.ID)
			return err
		})
		if err != nil {
			// Paid, cancelled or completed since the scan; nothing to do.
			if errors.Is(err, ErrStateConflict) {
				continue
			}
			e.log.Warn("failed to expire hold",
				zap.String("appointment_id", appt.ID.String()),
				zap.Error(err))
			continue
		}

		e.metrics.HoldsExpired.Inc()
		e.logEvent(ctx, appt.ID, EventHoldExpired, map[string]any{
			"slot_date": appt.SlotDate,
			"slot_time": appt.SlotTime,
		})
		e.dispatch(ctx, notify.Event{
			Type:          notify.TypeHoldExpired,
			AppointmentID: appt.ID,
			Recipient:     appt.PatientID.String(),
			Date:          appt.SlotDate,
			Time:          appt.SlotTime,
		})
	}

	return nil
}

func (e *Engine) validateSlot(provider *Provider, date, tm string) error {
	if !provider.Schedule.Contains(date, tm) {
		return fmt.Errorf("%w: (%s %s) is not a bookable slot for this provider", ErrValidation, date, tm)
	}
	startsAt, err := schedule.StartsAt(date, tm)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if startsAt.Before(e.now().UTC()) {
		return fmt.Errorf("%w: slot is in the past", ErrValidation)
	}
	return nil
}

func (e *Engine) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		e.log.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     e.now(),
	}

	if err := e.repo.InsertEvent(ctx, ev); err != nil {
		e.log.Warn("failed to insert event log",
			zap.String("event", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err))
	}
}

// dispatch is fire-and-forget: a notification failure never affects the
// transition that produced it.
func (e *Engine) dispatch(ctx context.Context, ev notify.Event) {
	if err := e.notifier.Dispatch(ctx, ev); err != nil {
		e.log.Warn("notification dispatch failed",
			zap.String("type", ev.Type),
			zap.String("appointment_id", ev.AppointmentID.String()),
			zap.Error(err))
	}
}
