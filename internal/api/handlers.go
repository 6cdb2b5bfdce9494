package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinova/scheduler/internal/booking"
	"github.com/clinova/scheduler/internal/payment"
	redisclient "github.com/clinova/scheduler/internal/redis"
	"github.com/clinova/scheduler/internal/schedule"
)

// BookingService is the engine surface the handlers need.
type BookingService interface {
	Book(ctx context.Context, patientID *uuid.UUID, providerID uuid.UUID, date, tm string) (*booking.Appointment, error)
	Cancel(ctx context.Context, apptID, requesterID uuid.UUID) (*booking.Appointment, error)
	Reschedule(ctx context.Context, apptID, requesterID uuid.UUID, newDate, newTime string) (*booking.Appointment, error)
	Complete(ctx context.Context, apptID, providerID uuid.UUID, rep booking.Report) (*booking.Appointment, error)
	Slots(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]schedule.Slot, error)
	Get(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]booking.Appointment, error)
}

// PaymentService is the reconciler surface the handlers need.
type PaymentService interface {
	CreateIntent(ctx context.Context, apptID uuid.UUID) (string, error)
	Confirm(ctx context.Context, correlationID string) (*booking.Appointment, error)
}

type Handler struct {
	bookings BookingService
	payments PaymentService
	validate *validator.Validate
	log      *zap.Logger
}

func NewHandler(bookings BookingService, payments PaymentService, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		bookings: bookings,
		payments: payments,
		validate: validator.New(),
		log:      log,
	}
}

func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	var req BookRequest
	if !h.decode(w, r, &req) {
		return
	}

	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
		return
	}

	// Absent patient identity resolves to the shared guest patient.
	var patientID *uuid.UUID
	if req.PatientID != "" {
		id, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		patientID = &id
	}

	appt, err := h.bookings.Book(r.Context(), patientID, providerID, req.Date, req.Time)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	apptID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req CancelRequest
	if !h.decode(w, r, &req) {
		return
	}
	requesterID, _ := uuid.Parse(req.RequesterID)

	appt, err := h.bookings.Cancel(r.Context(), apptID, requesterID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	apptID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req RescheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	requesterID, _ := uuid.Parse(req.RequesterID)

	appt, err := h.bookings.Reschedule(r.Context(), apptID, requesterID, req.Date, req.Time)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	apptID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req CompleteRequest
	if !h.decode(w, r, &req) {
		return
	}
	providerID, _ := uuid.Parse(req.ProviderID)

	appt, err := h.bookings.Complete(r.Context(), apptID, providerID, booking.Report{
		Diagnosis:   req.Diagnosis,
		Medications: req.Medications,
		Notes:       req.Notes,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	apptID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	ref, err := h.payments.CreateIntent(r.Context(), apptID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, PaymentIntentResponse{
		AppointmentID: apptID,
		GatewayRef:    ref,
	})
}

func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req ConfirmPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	appt, err := h.payments.Confirm(r.Context(), req.CorrelationID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	apptID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	appt, err := h.bookings.Get(r.Context(), apptID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	patientID, err := uuid.Parse(r.URL.Query().Get("patient_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
		return
	}

	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	appts, err := h.bookings.ListByPatient(r.Context(), patientID, limit, offset)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ProviderSlots(w http.ResponseWriter, r *http.Request) {
	providerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
		return
	}

	now := time.Now().UTC()
	from, err := queryDate(r, "from", now)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
		return
	}
	to, err := queryDate(r, "to", from.AddDate(0, 0, 14))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
		return
	}

	slots, err := h.bookings.Slots(r.Context(), providerID, from, to)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if slots == nil {
		slots = []schedule.Slot{}
	}

	writeJSON(w, http.StatusOK, SlotsResponse{ProviderID: providerID, Slots: slots})
}

// Helpers

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, booking.ErrProviderNotFound),
		errors.Is(err, booking.ErrPatientNotFound),
		errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, booking.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "unauthorized", err.Error())
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, booking.ErrStateConflict):
		writeError(w, http.StatusConflict, "state_conflict", err.Error())
	case errors.Is(err, payment.ErrReconciliationConflict):
		writeError(w, http.StatusConflict, "reconciliation_conflict", err.Error())
	case errors.Is(err, payment.ErrGateway):
		writeError(w, http.StatusBadGateway, "gateway_error", err.Error())
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "provider_busy", "provider is busy, please retry shortly")
	default:
		h.log.Error("unhandled request error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func queryDate(r *http.Request, key string, def time.Time) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return schedule.ParseDate(v)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
