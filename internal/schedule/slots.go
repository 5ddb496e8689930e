package schedule

import (
	"errors"
	"time"
)

var (
	ErrInvalidDuration = errors.New("slot duration must be a positive number of minutes")
)

// Slot is one candidate booking interval. Slots are derived views: they are
// generated per availability query and never persisted.
type Slot struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Available bool   `json:"is_available"`
}

// Generate produces every candidate slot between the from and to calendar
// dates (inclusive), walking each open day from open to close in
// durationMinutes steps. A slot is only emitted when it ends at or before
// closing time. Days in the past relative to now are skipped entirely, and
// slots earlier than now on the current day are skipped as well. Output is
// ordered by date, then start time; consumers rely on that ordering.
func Generate(sched Schedule, from, to time.Time, durationMinutes int, now time.Time) ([]Slot, error) {
	if durationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}

	today := truncateToDay(now)
	nowClock := ClockTime(now.Hour()*60 + now.Minute())

	slots := make([]Slot, 0)

	for day := truncateToDay(from); !day.After(truncateToDay(to)); day = day.AddDate(0, 0, 1) {
		if day.Before(today) {
			continue
		}

		hours := sched.Hours(day.Weekday())
		if hours.Closed() {
			continue
		}

		isToday := day.Equal(today)
		date := day.Format(DateLayout)

		for start := *hours.Open; start.Add(durationMinutes) <= *hours.Close; start = start.Add(durationMinutes) {
			if isToday && start <= nowClock {
				continue
			}
			slots = append(slots, Slot{
				Date:      date,
				StartTime: start.String(),
				EndTime:   start.Add(durationMinutes).String(),
				Available: true,
			})
		}
	}

	return slots, nil
}

// FitsSchedule reports whether a (date, start) pair is a slot the generator
// would emit for the given duration: the day is open, the start is aligned to
// the slot grid, and the interval ends by closing time.
func FitsSchedule(sched Schedule, day time.Time, start ClockTime, durationMinutes int) bool {
	if durationMinutes <= 0 {
		return false
	}

	hours := sched.Hours(day.Weekday())
	if hours.Closed() {
		return false
	}

	if start < *hours.Open || start.Add(durationMinutes) > *hours.Close {
		return false
	}

	return (int(start)-int(*hours.Open))%durationMinutes == 0
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
