package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinova/scheduler/internal/booking"
	"github.com/clinova/scheduler/internal/schedule"
)

type BookRequest struct {
	PatientID  string `json:"patient_id" validate:"omitempty,uuid"`
	ProviderID string `json:"provider_id" validate:"required,uuid"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	Time       string `json:"time" validate:"required,datetime=15:04"`
}

type CancelRequest struct {
	RequesterID string `json:"requester_id" validate:"required,uuid"`
}

type RescheduleRequest struct {
	RequesterID string `json:"requester_id" validate:"required,uuid"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Time        string `json:"time" validate:"required,datetime=15:04"`
}

type CompleteRequest struct {
	ProviderID  string `json:"provider_id" validate:"required,uuid"`
	Diagnosis   string `json:"diagnosis"`
	Medications string `json:"medications"`
	Notes       string `json:"notes"`
}

type ConfirmPaymentRequest struct {
	CorrelationID string `json:"correlation_id" validate:"required"`
}

type AppointmentResponse struct {
	ID         uuid.UUID `json:"id"`
	PatientID  uuid.UUID `json:"patient_id"`
	ProviderID uuid.UUID `json:"provider_id"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
	FeeMinor   int64     `json:"fee_minor"`
	Currency   string    `json:"currency"`
	Status     string    `json:"status"`
	OrderRef   *string   `json:"order_ref,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:         a.ID,
		PatientID:  a.PatientID,
		ProviderID: a.ProviderID,
		Date:       a.SlotDate,
		Time:       a.SlotTime,
		FeeMinor:   a.FeeMinor,
		Currency:   a.Currency,
		Status:     a.State(),
		OrderRef:   a.OrderRef,
		CreatedAt:  a.CreatedAt,
	}
}

type PaymentIntentResponse struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	GatewayRef    string    `json:"gateway_ref"`
}

type SlotsResponse struct {
	ProviderID uuid.UUID       `json:"provider_id"`
	Slots      []schedule.Slot `json:"slots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
