package outbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// querier covers both a pool and an open transaction, so appointment creation
// can enqueue its notification inside the same transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// InsertTx writes a record using the caller's transaction (or pool).
func InsertTx(ctx context.Context, q querier, rec Record) error {
	_, err := q.Exec(ctx, `
		INSERT INTO notification_outbox (id, appointment_id, channel, recipient, payload, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', 0, now(), now())
	`, rec.ID, rec.AppointmentID, rec.Channel, rec.Recipient, rec.Payload)
	if err != nil {
		return fmt.Errorf("insert outbox record: %w", err)
	}
	return nil
}

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

// FindPending returns undelivered records, oldest first.
func (r *PgRepository) FindPending(ctx context.Context, limit int) ([]Record, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, appointment_id, channel, recipient, payload, status, attempts, last_error, created_at, updated_at
		FROM notification_outbox
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Record
	for rows.Next() {
		var rec Record
		err := rows.Scan(
			&rec.ID,
			&rec.AppointmentID,
			&rec.Channel,
			&rec.Recipient,
			&rec.Payload,
			&rec.Status,
			&rec.Attempts,
			&rec.LastError,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// MarkSent records a successful delivery.
func (r *PgRepository) MarkSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE notification_outbox
		SET status = 'sent',
		    attempts = attempts + 1,
		    updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark outbox record sent: %w", err)
	}
	return nil
}

// MarkFailed bumps the attempt counter and keeps the record pending until the
// attempt limit, after which it is parked as failed for operator review.
func (r *PgRepository) MarkFailed(ctx context.Context, id uuid.UUID, cause error, maxAttempts int) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	_, err := r.db.Exec(ctx, `
		UPDATE notification_outbox
		SET attempts = attempts + 1,
		    last_error = $2,
		    status = CASE WHEN attempts + 1 >= $3 THEN 'failed' ELSE 'pending' END,
		    updated_at = now()
		WHERE id = $1
	`, id, msg, maxAttempts)
	if err != nil {
		return fmt.Errorf("mark outbox record failed: %w", err)
	}
	return nil
}
