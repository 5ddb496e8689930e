package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/saraivavision/booking-service/internal/availability"
	"github.com/saraivavision/booking-service/internal/outbox"
	"github.com/saraivavision/booking-service/internal/schedule"
)

// DB is the subset of pgxpool.Pool the repository uses; pgxmock satisfies it
// in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

const appointmentColumns = `id, service_id, patient_name, patient_email, patient_phone, date, start_time, end_time, notes, status, confirmation_token, expires_at, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.ServiceID,
		&a.PatientName,
		&a.PatientEmail,
		&a.PatientPhone,
		&a.Date,
		&a.StartTime,
		&a.EndTime,
		&a.Notes,
		&a.Status,
		&a.ConfirmationToken,
		&a.ExpiresAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func (r *PgRepository) CreateWithOutbox(ctx context.Context, appt *Appointment, rec outbox.Record) (*Appointment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, service_id, patient_name, patient_email, patient_phone, date, start_time, end_time, notes, status, confirmation_token, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending', $10, $11, now(), now())
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.ServiceID, appt.PatientName, appt.PatientEmail, appt.PatientPhone,
		appt.Date, appt.StartTime, appt.EndTime, appt.Notes, appt.ConfirmationToken, appt.ExpiresAt)

	created, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrSlotTaken
		}
		return nil, err
	}

	rec.AppointmentID = created.ID
	if err := outbox.InsertTx(ctx, tx, rec); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return created, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) FindExpiredPending(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'pending'
		  AND expires_at IS NOT NULL
		  AND expires_at < $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) BookedSlots(ctx context.Context, serviceID string, from, to time.Time) ([]availability.BookedSlot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT date, start_time
		FROM appointments
		WHERE service_id = $1
		  AND date BETWEEN $2 AND $3
		  AND status IN ('pending', 'confirmed', 'completed')
	`, serviceID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []availability.BookedSlot
	for rows.Next() {
		var date time.Time
		var start string
		if err := rows.Scan(&date, &start); err != nil {
			return nil, err
		}
		result = append(result, availability.BookedSlot{
			Date:      date.Format(schedule.DateLayout),
			StartTime: start,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
