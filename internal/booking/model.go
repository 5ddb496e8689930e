package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/saraivavision/booking-service/internal/schedule"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Appointment is the persisted booking record. Rows are never hard-deleted;
// cancellation is a status transition, and only non-cancelled rows hold their
// slot.
type Appointment struct {
	ID                uuid.UUID
	ServiceID         string
	PatientName       string
	PatientEmail      string
	PatientPhone      string
	Date              time.Time // calendar date, midnight in clinic timezone
	StartTime         string    // "HH:MM"
	EndTime           string    // "HH:MM"
	Notes             *string
	Status            Status
	ConfirmationToken string
	ExpiresAt         *time.Time // pending bookings past this are expired by the worker
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Request is the raw client submission, consumed exactly once on success.
type Request struct {
	ServiceID    string `json:"service_id"`
	PatientName  string `json:"patient_name"`
	PatientEmail string `json:"patient_email"`
	PatientPhone string `json:"patient_phone"`
	Date         string `json:"appointment_date"`
	StartTime    string `json:"appointment_time"`
	Notes        string `json:"notes,omitempty"`
	Consent      bool   `json:"lgpd_consent"`
	Honeypot     string `json:"honeypot,omitempty"`
}

// ValidatedRequest is the parsed, normalized form of a Request that passed
// every validation rule.
type ValidatedRequest struct {
	ServiceID    string
	PatientName  string
	PatientEmail string // lowercased
	PatientPhone string
	Date         time.Time
	StartTime    schedule.ClockTime
	EndTime      schedule.ClockTime
	Notes        *string
}
