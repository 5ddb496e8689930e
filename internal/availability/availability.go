package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/saraivavision/booking-service/internal/schedule"
	"github.com/saraivavision/booking-service/pkg/logging"
)

var (
	// ErrExternalUnavailable means the upstream scheduling system could not
	// confirm the booked set. Availability queries fail closed on it: a slot
	// is never presented as available without a confirmed absence of conflict.
	ErrExternalUnavailable = errors.New("external scheduling source unavailable")
)

// BookedSlot is a (date, start time) pair already taken for a service.
type BookedSlot struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
}

// ExternalSource reports slots booked in the practice-management system.
type ExternalSource interface {
	BookedSlots(ctx context.Context, serviceID string, from, to time.Time) ([]BookedSlot, error)
}

// LocalSource reports slots held by non-cancelled local appointments.
type LocalSource interface {
	BookedSlots(ctx context.Context, serviceID string, from, to time.Time) ([]BookedSlot, error)
}

// Reconcile marks each candidate unavailable when its (date, start) pair is
// in the booked set. Duplicate booked entries collapse into one exclusion.
// The input order is preserved and the inputs are not mutated.
func Reconcile(candidates []schedule.Slot, booked []BookedSlot) []schedule.Slot {
	taken := make(map[BookedSlot]struct{}, len(booked))
	for _, b := range booked {
		taken[b] = struct{}{}
	}

	out := make([]schedule.Slot, len(candidates))
	for i, c := range candidates {
		_, isTaken := taken[BookedSlot{Date: c.Date, StartTime: c.StartTime}]
		c.Available = !isTaken
		out[i] = c
	}
	return out
}

// Service computes true availability: generated candidates cross-referenced
// against the union of upstream and local bookings. The upstream booked set
// goes through a short-TTL Redis cache keyed per service and date, which is
// invalidated whenever a local booking lands.
type Service struct {
	external ExternalSource
	local    LocalSource
	cache    *redis.Client
	cacheTTL time.Duration
	logger   *logging.Logger
}

func NewService(external ExternalSource, local LocalSource, cache *redis.Client, cacheTTL time.Duration, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		external: external,
		local:    local,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// Slots returns every candidate slot in the date range annotated with its
// availability. When the upstream source cannot be reached the whole query
// fails with ErrExternalUnavailable.
func (s *Service) Slots(ctx context.Context, serviceID string, from, to time.Time, sched schedule.Schedule, durationMinutes int, now time.Time) ([]schedule.Slot, error) {
	candidates, err := schedule.Generate(sched, from, to, durationMinutes, now)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return candidates, nil
	}

	booked, err := s.bookedSet(ctx, serviceID, from, to, true)
	if err != nil {
		return nil, err
	}

	return Reconcile(candidates, booked), nil
}

// SlotTaken re-checks a single slot immediately before a write. It bypasses
// the cache so the commit-time decision never rides on stale data.
func (s *Service) SlotTaken(ctx context.Context, serviceID string, day time.Time, startTime string) (bool, error) {
	booked, err := s.bookedSet(ctx, serviceID, day, day, false)
	if err != nil {
		return false, err
	}

	want := BookedSlot{Date: day.Format(schedule.DateLayout), StartTime: startTime}
	for _, b := range booked {
		if b == want {
			return true, nil
		}
	}
	return false, nil
}

// Invalidate drops the cached upstream booked set for one service and date.
// Called after a successful local write so a just-taken slot is not served as
// available from cache.
func (s *Service) Invalidate(ctx context.Context, serviceID, date string) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Del(ctx, cacheKey(serviceID, date)); err.Err() != nil {
		return fmt.Errorf("invalidate availability cache: %w", err.Err())
	}
	return nil
}

func (s *Service) bookedSet(ctx context.Context, serviceID string, from, to time.Time, useCache bool) ([]BookedSlot, error) {
	booked, err := s.externalBooked(ctx, serviceID, from, to, useCache)
	if err != nil {
		return nil, err
	}

	if s.local != nil {
		localBooked, err := s.local.BookedSlots(ctx, serviceID, from, to)
		if err != nil {
			return nil, fmt.Errorf("local booked slots: %w", err)
		}
		booked = append(booked, localBooked...)
	}

	return booked, nil
}

func (s *Service) externalBooked(ctx context.Context, serviceID string, from, to time.Time, useCache bool) ([]BookedSlot, error) {
	if s.external == nil {
		return nil, nil
	}

	if !useCache || s.cache == nil {
		booked, err := s.external.BookedSlots(ctx, serviceID, from, to)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrExternalUnavailable, err)
		}
		return booked, nil
	}

	var all []BookedSlot
	var missFrom, missTo *time.Time

	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		date := day.Format(schedule.DateLayout)
		cached, ok := s.cacheGet(ctx, serviceID, date)
		if ok {
			all = append(all, cached...)
			continue
		}
		d := day
		if missFrom == nil {
			missFrom = &d
		}
		missTo = &d
	}

	if missFrom == nil {
		return all, nil
	}

	// One upstream call covers the whole span of cache misses.
	fetched, err := s.external.BookedSlots(ctx, serviceID, *missFrom, *missTo)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExternalUnavailable, err)
	}

	perDate := make(map[string][]BookedSlot)
	for day := *missFrom; !day.After(*missTo); day = day.AddDate(0, 0, 1) {
		perDate[day.Format(schedule.DateLayout)] = []BookedSlot{}
	}
	for _, b := range fetched {
		perDate[b.Date] = append(perDate[b.Date], b)
	}
	for date, slots := range perDate {
		s.cacheSet(ctx, serviceID, date, slots)
		all = append(all, slots...)
	}

	return all, nil
}

func (s *Service) cacheGet(ctx context.Context, serviceID, date string) ([]BookedSlot, bool) {
	raw, err := s.cache.Get(ctx, cacheKey(serviceID, date)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("availability cache read failed", "error", err)
		}
		return nil, false
	}

	var booked []BookedSlot
	if err := json.Unmarshal(raw, &booked); err != nil {
		s.logger.Warn("availability cache entry corrupt, dropping", "error", err)
		_ = s.cache.Del(ctx, cacheKey(serviceID, date)).Err()
		return nil, false
	}
	return booked, true
}

func (s *Service) cacheSet(ctx context.Context, serviceID, date string, booked []BookedSlot) {
	raw, err := json.Marshal(booked)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(serviceID, date), raw, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("availability cache write failed", "error", err)
	}
}

func cacheKey(serviceID, date string) string {
	return fmt.Sprintf("avail:booked:%s:%s", serviceID, date)
}
