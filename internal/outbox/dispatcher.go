package outbox

import (
	"context"

	"github.com/google/uuid"

	"github.com/saraivavision/booking-service/pkg/logging"
)

const defaultMaxAttempts = 5

// Repository is what the dispatcher needs from storage.
type Repository interface {
	FindPending(ctx context.Context, limit int) ([]Record, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause error, maxAttempts int) error
}

// Dispatcher drains pending records through a Notifier. Delivery is at least
// once: a crash between Send and MarkSent redelivers on the next run.
type Dispatcher struct {
	repo        Repository
	notifier    Notifier
	logger      *logging.Logger
	batchSize   int
	maxAttempts int
}

func NewDispatcher(repo Repository, notifier Notifier, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		repo:        repo,
		notifier:    notifier,
		logger:      logger,
		batchSize:   50,
		maxAttempts: defaultMaxAttempts,
	}
}

// RunOnce processes one batch of pending notifications.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	pending, err := d.repo.FindPending(ctx, d.batchSize)
	if err != nil {
		return err
	}

	for _, rec := range pending {
		if err := d.notifier.Send(ctx, rec); err != nil {
			d.logger.Warn("notification delivery failed",
				"outbox_id", rec.ID, "appointment_id", rec.AppointmentID,
				"channel", rec.Channel, "attempts", rec.Attempts+1, "error", err)
			if err := d.repo.MarkFailed(ctx, rec.ID, err, d.maxAttempts); err != nil {
				d.logger.Error("failed to record delivery failure", "outbox_id", rec.ID, "error", err)
			}
			continue
		}
		if err := d.repo.MarkSent(ctx, rec.ID); err != nil {
			d.logger.Error("failed to mark record sent", "outbox_id", rec.ID, "error", err)
		}
	}

	return nil
}

// LogNotifier is the development notifier: it logs the hand-off instead of
// delivering. The production channel is owned by an external service.
type LogNotifier struct {
	Logger *logging.Logger
}

func (n LogNotifier) Send(_ context.Context, rec Record) error {
	logger := n.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger.Info("notification hand-off",
		"appointment_id", rec.AppointmentID, "channel", rec.Channel, "recipient", rec.Recipient)
	return nil
}
