package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/saraivavision/booking-service/internal/config"
	"github.com/saraivavision/booking-service/internal/outbox"
	redisclient "github.com/saraivavision/booking-service/internal/redis"
	"github.com/saraivavision/booking-service/internal/schedule"
	"github.com/saraivavision/booking-service/pkg/logging"
)

var (
	ErrSlotBeingBooked         = errors.New("slot is currently being booked, please retry")
	ErrSchedulingDisabled      = errors.New("online scheduling is disabled")
	ErrBookingExpired          = errors.New("booking expired before confirmation")
	ErrInvalidToken            = errors.New("confirmation token does not match")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// AvailabilityChecker is the commit-time availability re-check plus cache
// invalidation after a successful write.
type AvailabilityChecker interface {
	SlotTaken(ctx context.Context, serviceID string, day time.Time, startTime string) (bool, error)
	Invalidate(ctx context.Context, serviceID, date string) error
}

// Service owns booking submission, confirmation, cancellation and expiry.
type Service struct {
	repo   Repository
	locker redisclient.Locker
	avail  AvailabilityChecker
	sched  schedule.Schedule
	cfg    config.Config
	logger *logging.Logger
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, avail AvailabilityChecker, sched schedule.Schedule, cfg config.Config, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	loc := cfg.Location()
	return &Service{
		repo:   repo,
		locker: locker,
		avail:  avail,
		sched:  sched,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().In(loc) },
	}
}

// Submit validates a booking request, then performs the guarded create: a
// per-slot lock, a commit-time availability re-check, and the transactional
// insert. Concurrent submissions for the same slot cannot both succeed; the
// loser sees ErrSlotTaken (or ErrSlotBeingBooked while the lock is held).
func (s *Service) Submit(ctx context.Context, req Request) (*Appointment, error) {
	if !s.cfg.SchedulingEnabled {
		return nil, ErrSchedulingDisabled
	}

	svc, ok := s.cfg.ServiceByID(req.ServiceID)
	if !ok {
		return nil, &ValidationError{Fields: []FieldError{
			{Field: "service_id", Message: "Serviço desconhecido"},
		}}
	}

	validated, err := Validate(req, s.sched, svc.DurationMinutes, s.now())
	if err != nil {
		return nil, err
	}

	var created *Appointment
	lockKey := slotKey(validated.ServiceID, validated.Date, validated.StartTime)

	err = s.locker.WithLock(ctx, lockKey, func(lockCtx context.Context) error {
		// Re-check inside the critical section: the client's availability
		// view may be stale by the time the submission arrives.
		taken, err := s.avail.SlotTaken(lockCtx, validated.ServiceID, validated.Date, validated.StartTime.String())
		if err != nil {
			return fmt.Errorf("commit-time availability check: %w", err)
		}
		if taken {
			return ErrSlotTaken
		}

		expiresAt := s.now().Add(s.cfg.BookingTTL)
		appt := &Appointment{
			ID:                uuid.New(),
			ServiceID:         validated.ServiceID,
			PatientName:       validated.PatientName,
			PatientEmail:      validated.PatientEmail,
			PatientPhone:      validated.PatientPhone,
			Date:              validated.Date,
			StartTime:         validated.StartTime.String(),
			EndTime:           validated.EndTime.String(),
			Notes:             validated.Notes,
			ConfirmationToken: uuid.NewString(),
			ExpiresAt:         &expiresAt,
		}

		created, err = s.repo.CreateWithOutbox(lockCtx, appt, s.confirmationRecord(appt))
		if err != nil {
			return err
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.invalidateSlot(ctx, created)
	s.logger.Info("appointment created",
		"appointment_id", created.ID, "service_id", created.ServiceID,
		"date", created.Date.Format(schedule.DateLayout), "start_time", created.StartTime)

	return created, nil
}

// Confirm moves a pending appointment to confirmed when the token matches
// and the confirmation window has not lapsed.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, token string) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if appt.Status != StatusPending {
		return nil, ErrInvalidStatusTransition
	}
	if appt.ConfirmationToken != token {
		return nil, ErrInvalidToken
	}

	if appt.ExpiresAt != nil && appt.ExpiresAt.Before(s.now()) {
		if _, err := s.repo.UpdateStatus(ctx, appt.ID, StatusPending, StatusCancelled); err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			s.logger.Error("failed to cancel expired booking during confirm", "appointment_id", appt.ID, "error", err)
		}
		s.invalidateSlot(ctx, appt)
		return nil, ErrBookingExpired
	}

	updated, err := s.repo.UpdateStatus(ctx, appt.ID, StatusPending, StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("confirm appointment: %w", err)
	}

	s.logger.Info("appointment confirmed", "appointment_id", updated.ID)
	return updated, nil
}

// Cancel transitions an appointment to cancelled, freeing its slot.
// Cancelling an already cancelled appointment is a no-op.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if appt.Status == StatusCancelled {
		return appt, nil
	}

	updated, err := s.repo.UpdateStatus(ctx, appt.ID, appt.Status, StatusCancelled)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Status moved under us; surface as a transition conflict.
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.invalidateSlot(ctx, updated)
	s.logger.Info("appointment cancelled", "appointment_id", updated.ID)
	return updated, nil
}

// ExpirePending cancels pending bookings whose confirmation window lapsed.
// Called periodically by the worker.
func (s *Service) ExpirePending(ctx context.Context) error {
	expired, err := s.repo.FindExpiredPending(ctx, s.now())
	if err != nil {
		return fmt.Errorf("find expired pending bookings: %w", err)
	}

	for _, appt := range expired {
		if _, err := s.repo.UpdateStatus(ctx, appt.ID, StatusPending, StatusCancelled); err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				s.logger.Error("failed to expire booking", "appointment_id", appt.ID, "error", err)
			}
			continue
		}
		s.invalidateSlot(ctx, &appt)
		s.logger.Info("pending booking expired", "appointment_id", appt.ID)
	}

	return nil
}

func (s *Service) confirmationRecord(appt *Appointment) outbox.Record {
	payload, err := json.Marshal(map[string]any{
		"appointment_id":     appt.ID.String(),
		"patient_name":       appt.PatientName,
		"service_id":         appt.ServiceID,
		"date":               appt.Date.Format(schedule.DateLayout),
		"start_time":         appt.StartTime,
		"confirmation_token": appt.ConfirmationToken,
	})
	if err != nil {
		payload = nil
	}

	return outbox.Record{
		ID:        uuid.New(),
		Channel:   "email",
		Recipient: appt.PatientEmail,
		Payload:   payload,
	}
}

func (s *Service) invalidateSlot(ctx context.Context, appt *Appointment) {
	date := appt.Date.Format(schedule.DateLayout)
	if err := s.avail.Invalidate(ctx, appt.ServiceID, date); err != nil {
		s.logger.Warn("availability cache invalidation failed",
			"service_id", appt.ServiceID, "date", date, "error", err)
	}
}

func slotKey(serviceID string, day time.Time, start schedule.ClockTime) string {
	return fmt.Sprintf("%s:%s:%s", serviceID, day.Format(schedule.DateLayout), start)
}
