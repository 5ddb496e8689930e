package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/saraivavision/booking-service/internal/availability"
	"github.com/saraivavision/booking-service/internal/booking"
	"github.com/saraivavision/booking-service/internal/config"
	"github.com/saraivavision/booking-service/internal/csrf"
	"github.com/saraivavision/booking-service/internal/metrics"
	"github.com/saraivavision/booking-service/internal/schedule"
	"github.com/saraivavision/booking-service/pkg/logging"
)

const (
	defaultAvailabilityDays = 14
	maxAvailabilityDays     = 60

	csrfHeader = "X-CSRF-Token"
)

// BookingService is the booking use cases the handlers call.
type BookingService interface {
	Submit(ctx context.Context, req booking.Request) (*booking.Appointment, error)
	Confirm(ctx context.Context, id uuid.UUID, token string) (*booking.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)
}

// AvailabilityService computes annotated candidate slots for a date range.
type AvailabilityService interface {
	Slots(ctx context.Context, serviceID string, from, to time.Time, sched schedule.Schedule, durationMinutes int, now time.Time) ([]schedule.Slot, error)
}

type Handler struct {
	booking BookingService
	avail   AvailabilityService
	tokens  csrf.Store
	sched   schedule.Schedule
	cfg     config.Config
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
	now     func() time.Time
}

func NewHandler(bookingSvc BookingService, availSvc AvailabilityService, tokens csrf.Store, sched schedule.Schedule, cfg config.Config, logger *logging.Logger, m *metrics.BookingMetrics) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	loc := cfg.Location()
	return &Handler{
		booking: bookingSvc,
		avail:   availSvc,
		tokens:  tokens,
		sched:   sched,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().In(loc) },
	}
}

func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	serviceID := r.URL.Query().Get("service_id")
	svc, ok := h.cfg.ServiceByID(serviceID)
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "service_id desconhecido")
		return
	}

	now := h.now()
	from, to, err := h.dateRange(r, now)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	slots, err := h.avail.Slots(r.Context(), svc.ID, from, to, h.sched, svc.DurationMinutes, now)
	if err != nil {
		switch {
		case errors.Is(err, availability.ErrExternalUnavailable):
			h.metrics.ObserveAvailability("upstream_error")
			h.logger.Warn("availability lookup failed closed", "service_id", svc.ID, "error", err)
			writeError(w, http.StatusServiceUnavailable, "EXTERNAL_UNAVAILABLE",
				"Não foi possível consultar a agenda, tente novamente ou ligue para a clínica")
		case errors.Is(err, schedule.ErrInvalidDuration):
			h.metrics.ObserveAvailability("error")
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Duração de consulta inválida")
		default:
			h.metrics.ObserveAvailability("error")
			h.logger.Error("availability lookup failed", "service_id", svc.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "unexpected error")
		}
		return
	}

	byDate := make(map[string][]schedule.Slot)
	for _, s := range slots {
		byDate[s.Date] = append(byDate[s.Date], s)
	}

	h.metrics.ObserveAvailability("ok")
	writeJSON(w, http.StatusOK, AvailabilityResponse{
		Availability:      byDate,
		SchedulingEnabled: h.cfg.SchedulingEnabled,
		Contact:           h.cfg.Contact,
	})
}

func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	if h.tokens != nil {
		client := csrf.Fingerprint(clientIP(r), r.UserAgent())
		if err := h.tokens.Redeem(r.Context(), client, r.Header.Get(csrfHeader)); err != nil {
			if errors.Is(err, csrf.ErrInvalidToken) {
				writeError(w, http.StatusForbidden, "INVALID_CSRF_TOKEN", "Token de segurança inválido ou expirado")
				return
			}
			h.logger.Error("csrf redeem failed", "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "unexpected error")
			return
		}
	}

	var req booking.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "could not parse JSON")
		return
	}

	appt, err := h.booking.Submit(r.Context(), req)
	if err != nil {
		h.handleSubmitError(w, req, err)
		return
	}

	h.metrics.ObserveSubmission("created")
	writeJSON(w, http.StatusCreated, BookingResponse{
		ID:               appt.ID,
		Appointment:      appointmentPayload(appt),
		ConfirmationSent: true,
		ExpiresAt:        appt.ExpiresAt,
	})
}

func (h *Handler) handleSubmitError(w http.ResponseWriter, req booking.Request, err error) {
	var verr *booking.ValidationError

	switch {
	case errors.Is(err, booking.ErrSuspectedSpam):
		// Success-shaped answer with no persisted side effects, so the bot
		// cannot distinguish detection from acceptance.
		h.metrics.ObserveSubmission("spam")
		writeJSON(w, http.StatusCreated, BookingResponse{
			ID: uuid.New(),
			Appointment: AppointmentPayload{
				ServiceID:    req.ServiceID,
				PatientName:  req.PatientName,
				PatientEmail: req.PatientEmail,
				PatientPhone: req.PatientPhone,
				Date:         req.Date,
				StartTime:    req.StartTime,
				Status:       string(booking.StatusPending),
			},
			ConfirmationSent: true,
		})
	case errors.As(err, &verr):
		h.metrics.ObserveSubmission("validation_error")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "VALIDATION_ERROR",
			Message: "Verifique os campos informados",
			Fields:  verr.Fields,
		})
	case errors.Is(err, booking.ErrSlotTaken), errors.Is(err, booking.ErrSlotBeingBooked):
		h.metrics.ObserveSubmission("conflict")
		writeError(w, http.StatusConflict, "SLOT_UNAVAILABLE", "Este horário acabou de ser preenchido, escolha outro")
	case errors.Is(err, availability.ErrExternalUnavailable):
		h.metrics.ObserveSubmission("upstream_error")
		writeError(w, http.StatusServiceUnavailable, "EXTERNAL_UNAVAILABLE",
			"Não foi possível confirmar a disponibilidade, tente novamente ou ligue para a clínica")
	case errors.Is(err, booking.ErrSchedulingDisabled):
		h.metrics.ObserveSubmission("disabled")
		writeError(w, http.StatusServiceUnavailable, "SCHEDULING_DISABLED",
			"Agendamento online temporariamente indisponível, entre em contato por telefone")
	default:
		h.metrics.ObserveSubmission("error")
		h.logger.Error("booking submission failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "unexpected error")
	}
}

func (h *Handler) ConfirmAppointment(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "could not parse JSON")
		return
	}

	id, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "appointment_id must be a valid UUID")
		return
	}

	appt, err := h.booking.Confirm(r.Context(), id, req.Token)
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrAppointmentNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Agendamento não encontrado")
		case errors.Is(err, booking.ErrInvalidToken):
			writeError(w, http.StatusConflict, "INVALID_TOKEN", "Token de confirmação inválido")
		case errors.Is(err, booking.ErrBookingExpired):
			writeError(w, http.StatusConflict, "BOOKING_EXPIRED", "O prazo de confirmação expirou, faça um novo agendamento")
		case errors.Is(err, booking.ErrInvalidStatusTransition):
			writeError(w, http.StatusConflict, "INVALID_STATUS_TRANSITION", "Agendamento não está aguardando confirmação")
		default:
			h.logger.Error("confirmation failed", "appointment_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "unexpected error")
		}
		return
	}

	writeJSON(w, http.StatusOK, BookingResponse{
		ID:          appt.ID,
		Appointment: appointmentPayload(appt),
	})
}

func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "could not parse JSON")
		return
	}

	id, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "appointment_id must be a valid UUID")
		return
	}

	appt, err := h.booking.Cancel(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrAppointmentNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Agendamento não encontrado")
		case errors.Is(err, booking.ErrInvalidStatusTransition):
			writeError(w, http.StatusConflict, "INVALID_STATUS_TRANSITION", "Agendamento não pode mais ser cancelado")
		default:
			h.logger.Error("cancellation failed", "appointment_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "unexpected error")
		}
		return
	}

	writeJSON(w, http.StatusOK, BookingResponse{
		ID:          appt.ID,
		Appointment: appointmentPayload(appt),
	})
}

func (h *Handler) IssueCSRFToken(w http.ResponseWriter, r *http.Request) {
	client := csrf.Fingerprint(clientIP(r), r.UserAgent())
	token, err := h.tokens.Issue(r.Context(), client)
	if err != nil {
		h.logger.Error("csrf issue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "unexpected error")
		return
	}

	writeJSON(w, http.StatusOK, CSRFTokenResponse{
		Token:     token,
		ExpiresIn: int(h.cfg.CSRFTokenTTL.Seconds()),
	})
}

func (h *Handler) dateRange(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	from := today
	if raw := r.URL.Query().Get("start_date"); raw != "" {
		parsed, err := time.ParseInLocation(schedule.DateLayout, raw, loc)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("start_date inválida, use AAAA-MM-DD")
		}
		from = parsed
	}

	to := from.AddDate(0, 0, defaultAvailabilityDays-1)
	if raw := r.URL.Query().Get("end_date"); raw != "" {
		parsed, err := time.ParseInLocation(schedule.DateLayout, raw, loc)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("end_date inválida, use AAAA-MM-DD")
		}
		to = parsed
	}

	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("end_date deve ser posterior a start_date")
	}
	if to.Sub(from) > maxAvailabilityDays*24*time.Hour {
		return time.Time{}, time.Time{}, errors.New("intervalo máximo de consulta é de 60 dias")
	}

	return from, to, nil
}
