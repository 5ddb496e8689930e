package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saraivavision/booking-service/internal/outbox"
)

func repoFixture(t *testing.T) (pgxmock.PgxPoolIface, *PgRepository, *Appointment) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	expires := time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC)
	appt := &Appointment{
		ID:                uuid.New(),
		ServiceID:         "consultation",
		PatientName:       "João da Silva",
		PatientEmail:      "joao.silva@example.com",
		PatientPhone:      "(33) 99860-1427",
		Date:              time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		StartTime:         "09:00",
		EndTime:           "09:30",
		Status:            StatusPending,
		ConfirmationToken: uuid.NewString(),
		ExpiresAt:         &expires,
	}

	return mock, NewPgRepository(mock), appt
}

func appointmentRow(appt *Appointment) *pgxmock.Rows {
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	return pgxmock.NewRows([]string{
		"id", "service_id", "patient_name", "patient_email", "patient_phone",
		"date", "start_time", "end_time", "notes", "status",
		"confirmation_token", "expires_at", "created_at", "updated_at",
	}).AddRow(
		appt.ID, appt.ServiceID, appt.PatientName, appt.PatientEmail, appt.PatientPhone,
		appt.Date, appt.StartTime, appt.EndTime, appt.Notes, appt.Status,
		appt.ConfirmationToken, appt.ExpiresAt, now, now,
	)
}

func TestCreateWithOutboxCommits(t *testing.T) {
	mock, repo, appt := repoFixture(t)

	rec := outbox.Record{
		ID:        uuid.New(),
		Channel:   "email",
		Recipient: appt.PatientEmail,
		Payload:   []byte(`{"confirmation_token":"x"}`),
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(appt.ID, appt.ServiceID, appt.PatientName, appt.PatientEmail, appt.PatientPhone,
			appt.Date, appt.StartTime, appt.EndTime, appt.Notes, appt.ConfirmationToken, appt.ExpiresAt).
		WillReturnRows(appointmentRow(appt))
	mock.ExpectExec("INSERT INTO notification_outbox").
		WithArgs(rec.ID, appt.ID, rec.Channel, rec.Recipient, rec.Payload).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	created, err := repo.CreateWithOutbox(context.Background(), appt, rec)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, created.ID)
	assert.Equal(t, StatusPending, created.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithOutboxSlotConflict(t *testing.T) {
	mock, repo, appt := repoFixture(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(appt.ID, appt.ServiceID, appt.PatientName, appt.PatientEmail, appt.PatientPhone,
			appt.Date, appt.StartTime, appt.EndTime, appt.Notes, appt.ConfirmationToken, appt.ExpiresAt).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "appointments_active_slot_idx"})
	mock.ExpectRollback()

	_, err := repo.CreateWithOutbox(context.Background(), appt, outbox.Record{ID: uuid.New()})
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithOutboxRollsBackOnOutboxFailure(t *testing.T) {
	mock, repo, appt := repoFixture(t)

	rec := outbox.Record{ID: uuid.New(), Channel: "email", Recipient: appt.PatientEmail}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(appt.ID, appt.ServiceID, appt.PatientName, appt.PatientEmail, appt.PatientPhone,
			appt.Date, appt.StartTime, appt.EndTime, appt.Notes, appt.ConfirmationToken, appt.ExpiresAt).
		WillReturnRows(appointmentRow(appt))
	mock.ExpectExec("INSERT INTO notification_outbox").
		WithArgs(rec.ID, appt.ID, rec.Channel, rec.Recipient, rec.Payload).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := repo.CreateWithOutbox(context.Background(), appt, rec)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDNotFound(t *testing.T) {
	mock, repo, _ := repoFixture(t)

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusCAS(t *testing.T) {
	mock, repo, appt := repoFixture(t)

	confirmed := *appt
	confirmed.Status = StatusConfirmed
	mock.ExpectQuery("UPDATE appointments").
		WithArgs(appt.ID, StatusConfirmed, StatusPending).
		WillReturnRows(appointmentRow(&confirmed))

	updated, err := repo.UpdateStatus(context.Background(), appt.ID, StatusPending, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusMismatchedFrom(t *testing.T) {
	mock, repo, appt := repoFixture(t)

	// no row matches the compare-and-swap predicate
	mock.ExpectQuery("UPDATE appointments").
		WithArgs(appt.ID, StatusCancelled, StatusPending).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err := repo.UpdateStatus(context.Background(), appt.ID, StatusPending, StatusCancelled)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindExpiredPending(t *testing.T) {
	mock, repo, appt := repoFixture(t)

	now := time.Date(2026, 9, 3, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(now).
		WillReturnRows(appointmentRow(appt))

	expired, err := repo.FindExpiredPending(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, appt.ID, expired[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookedSlotsQuery(t *testing.T) {
	mock, repo, _ := repoFixture(t)

	from := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT date, start_time").
		WithArgs("consultation", from, to).
		WillReturnRows(pgxmock.NewRows([]string{"date", "start_time"}).
			AddRow(from, "09:00").
			AddRow(from, "10:30"))

	slots, err := repo.BookedSlots(context.Background(), "consultation", from, to)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "2026-09-07", slots[0].Date)
	assert.Equal(t, "09:00", slots[0].StartTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}
