package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar dates across the service.
const DateLayout = "2006-01-02"

// ClockTime is a time of day in minutes since midnight.
type ClockTime int

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse clock time %q: %w", s, err)
	}
	return ClockTime(t.Hour()*60 + t.Minute()), nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Add returns the clock time shifted by the given number of minutes.
func (c ClockTime) Add(minutes int) ClockTime {
	return c + ClockTime(minutes)
}

// DayHours is the open/close pair for one weekday. A nil side means closed.
type DayHours struct {
	Open  *ClockTime
	Close *ClockTime
}

// Closed reports whether the clinic does not take bookings on this day.
func (d DayHours) Closed() bool {
	return d.Open == nil || d.Close == nil
}

// Schedule is the canonical weekly working-hours table. It is immutable once
// normalized; the availability path only reads it.
type Schedule struct {
	days [7]DayHours
}

// Hours returns the working hours for a weekday.
func (s Schedule) Hours(wd time.Weekday) DayHours {
	return s.days[int(wd)]
}

// RawRule is one entry of the uncontrolled working-hours input. Fields are
// `any` on purpose: upstream configuration (CMS, env) may hand us anything,
// and malformed values must degrade to "closed", never to an error.
type RawRule struct {
	Weekdays any `json:"weekdays"`
	Open     any `json:"open"`
	Close    any `json:"close"`
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Normalize turns raw rules into a canonical Schedule. It never fails: a
// non-array weekday list, an unknown weekday name, or an unparseable open or
// close time simply leaves the affected days closed.
func Normalize(rules []RawRule) Schedule {
	var s Schedule

	for _, rule := range rules {
		open := coerceClock(rule.Open)
		close := coerceClock(rule.Close)

		days, ok := rule.Weekdays.([]any)
		if !ok {
			continue
		}
		for _, d := range days {
			name, ok := d.(string)
			if !ok {
				continue
			}
			wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
			if !ok {
				continue
			}
			s.days[int(wd)] = DayHours{Open: open, Close: close}
		}
	}

	return s
}

// NormalizeJSON parses and normalizes a raw working-hours JSON document.
// Invalid JSON yields an all-closed schedule.
func NormalizeJSON(raw string) Schedule {
	var rules []RawRule
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		return Schedule{}
	}
	return Normalize(rules)
}

func coerceClock(v any) *ClockTime {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	c, err := ParseClock(s)
	if err != nil {
		return nil
	}
	return &c
}
