package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/saraivavision/booking-service/internal/availability"
	"github.com/saraivavision/booking-service/internal/outbox"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotTaken is the unique-index conflict: another non-cancelled
	// appointment already holds the (service, date, start time) tuple.
	ErrSlotTaken = errors.New("slot already has an active appointment")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// CreateWithOutbox inserts the appointment and its notification record
	// in one transaction: either both exist afterwards or neither does.
	CreateWithOutbox(ctx context.Context, appt *Appointment, rec outbox.Record) (*Appointment, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// UpdateStatus is a compare-and-swap: it only transitions rows currently
	// in the from status and reports ErrAppointmentNotFound otherwise.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// Expiry worker
	FindExpiredPending(ctx context.Context, now time.Time) ([]Appointment, error)

	// BookedSlots feeds the availability reconciler with locally held slots.
	BookedSlots(ctx context.Context, serviceID string, from, to time.Time) ([]availability.BookedSlot, error)
}
