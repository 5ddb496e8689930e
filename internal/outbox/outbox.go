package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Record is one notification hand-off. It is written in the same transaction
// as its appointment and delivered asynchronously, at least once; delivery
// failure never rolls back the booking.
type Record struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Channel       string // email, whatsapp
	Recipient     string
	Payload       []byte
	Status        Status
	Attempts      int
	LastError     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Notifier delivers one record. Implementations own retry semantics beyond
// the dispatcher's attempt counting.
type Notifier interface {
	Send(ctx context.Context, rec Record) error
}
