package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/saraivavision/booking-service/internal/booking"
	"github.com/saraivavision/booking-service/internal/config"
	"github.com/saraivavision/booking-service/internal/schedule"
)

type AvailabilityResponse struct {
	Availability      map[string][]schedule.Slot `json:"availability"`
	SchedulingEnabled bool                       `json:"scheduling_enabled"`
	Contact           config.Contact             `json:"contact"`
}

type AppointmentPayload struct {
	ServiceID    string  `json:"service_id"`
	PatientName  string  `json:"patient_name"`
	PatientEmail string  `json:"patient_email"`
	PatientPhone string  `json:"patient_phone"`
	Date         string  `json:"appointment_date"`
	StartTime    string  `json:"appointment_time"`
	EndTime      string  `json:"end_time"`
	Notes        *string `json:"notes,omitempty"`
	Status       string  `json:"status"`
}

type BookingResponse struct {
	ID               uuid.UUID          `json:"id"`
	Appointment      AppointmentPayload `json:"appointment"`
	ConfirmationSent bool               `json:"confirmation_sent"`
	ExpiresAt        *time.Time         `json:"expires_at,omitempty"`
}

type ConfirmRequest struct {
	AppointmentID string `json:"appointment_id"`
	Token         string `json:"token"`
}

type CancelRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type CSRFTokenResponse struct {
	Token     string `json:"csrf_token"`
	ExpiresIn int    `json:"expires_in_seconds"`
}

type ErrorResponse struct {
	Error   string               `json:"error"`
	Message string               `json:"message,omitempty"`
	Fields  []booking.FieldError `json:"fields,omitempty"`
}

func appointmentPayload(appt *booking.Appointment) AppointmentPayload {
	return AppointmentPayload{
		ServiceID:    appt.ServiceID,
		PatientName:  appt.PatientName,
		PatientEmail: appt.PatientEmail,
		PatientPhone: appt.PatientPhone,
		Date:         appt.Date.Format(schedule.DateLayout),
		StartTime:    appt.StartTime,
		EndTime:      appt.EndTime,
		Notes:        appt.Notes,
		Status:       string(appt.Status),
	}
}
