package booking

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/saraivavision/booking-service/internal/schedule"
)

var (
	// ErrSuspectedSpam marks a honeypot hit. Callers answer with a
	// success-shaped response and do no further work, so bots get no signal.
	ErrSuspectedSpam = errors.New("request flagged as suspected spam")
)

// FieldError is one user-correctable validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every failed rule at once, never just the first,
// so the client can surface all field errors in a single round trip.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}

var (
	nameRe  = regexp.MustCompile(`^[\p{L}][\p{L} '-]+$`)
	emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	// Brazilian phone: optional +55 country code, 2-digit area code with or
	// without parentheses, 8 or 9 digit number, common separators tolerated.
	phoneRe = regexp.MustCompile(`^(\+?55[\s.-]?)?(\(?\d{2}\)?[\s.-]?)?\d{4,5}[\s.-]?\d{4}$`)
)

// Validate checks a booking request against format and business rules. All
// rules run independently; the result collects every failure. A non-empty
// honeypot short-circuits to ErrSuspectedSpam before any other work.
func Validate(req Request, sched schedule.Schedule, durationMinutes int, now time.Time) (*ValidatedRequest, error) {
	if strings.TrimSpace(req.Honeypot) != "" {
		return nil, ErrSuspectedSpam
	}

	var fields []FieldError
	fail := func(field, message string) {
		fields = append(fields, FieldError{Field: field, Message: message})
	}

	name := strings.TrimSpace(req.PatientName)
	switch {
	case name == "":
		fail("patient_name", "Nome é obrigatório")
	case len([]rune(name)) < 2 || len([]rune(name)) > 100:
		fail("patient_name", "Nome deve ter entre 2 e 100 caracteres")
	case !nameRe.MatchString(name):
		fail("patient_name", "Nome contém caracteres inválidos")
	}

	email := strings.ToLower(strings.TrimSpace(req.PatientEmail))
	switch {
	case email == "":
		fail("patient_email", "Email é obrigatório")
	case len(email) > 100 || !emailRe.MatchString(email):
		fail("patient_email", "Email inválido")
	}

	phone := strings.TrimSpace(req.PatientPhone)
	switch {
	case phone == "":
		fail("patient_phone", "Telefone é obrigatório")
	case !phoneRe.MatchString(phone):
		fail("patient_phone", "Telefone inválido, informe o número com DDD")
	}

	if !req.Consent {
		fail("lgpd_consent", "É necessário aceitar os termos de privacidade")
	}

	day, start, slotErrs := validateSlot(req, sched, durationMinutes, now)
	fields = append(fields, slotErrs...)

	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	var notes *string
	if n := strings.TrimSpace(req.Notes); n != "" {
		notes = &n
	}

	return &ValidatedRequest{
		ServiceID:    req.ServiceID,
		PatientName:  name,
		PatientEmail: email,
		PatientPhone: phone,
		Date:         day,
		StartTime:    start,
		EndTime:      start.Add(durationMinutes),
		Notes:        notes,
	}, nil
}

func validateSlot(req Request, sched schedule.Schedule, durationMinutes int, now time.Time) (time.Time, schedule.ClockTime, []FieldError) {
	var fields []FieldError

	day, dateErr := time.ParseInLocation(schedule.DateLayout, strings.TrimSpace(req.Date), now.Location())
	if dateErr != nil {
		fields = append(fields, FieldError{Field: "appointment_date", Message: "Data inválida"})
	}

	start, timeErr := schedule.ParseClock(req.StartTime)
	if timeErr != nil {
		fields = append(fields, FieldError{Field: "appointment_time", Message: "Horário inválido"})
	}

	if dateErr != nil || timeErr != nil {
		return time.Time{}, 0, fields
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	nowClock := schedule.ClockTime(now.Hour()*60 + now.Minute())

	switch {
	case day.Before(today):
		fields = append(fields, FieldError{Field: "appointment_date", Message: "Data não pode estar no passado"})
	case day.Equal(today) && start <= nowClock:
		fields = append(fields, FieldError{Field: "appointment_time", Message: "Horário já passou"})
	case !schedule.FitsSchedule(sched, day, start, durationMinutes):
		fields = append(fields, FieldError{Field: "appointment_time", Message: "Horário fora do expediente da clínica"})
	}

	return day, start, fields
}
