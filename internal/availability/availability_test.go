package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saraivavision/booking-service/internal/schedule"
)

type fakeSource struct {
	slots []BookedSlot
	err   error
	calls int
}

func (f *fakeSource) BookedSlots(ctx context.Context, serviceID string, from, to time.Time) ([]BookedSlot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.slots, nil
}

var (
	testNow    = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC) // Tuesday
	nextMonday = time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	testSched  = schedule.NormalizeJSON(`[{"weekdays": ["monday"], "open": "08:00", "close": "12:00"}]`)
)

func TestReconcileMarksBookedSlots(t *testing.T) {
	candidates := []schedule.Slot{
		{Date: "2026-09-07", StartTime: "08:00", EndTime: "09:00", Available: true},
		{Date: "2026-09-07", StartTime: "09:00", EndTime: "10:00", Available: true},
		{Date: "2026-09-07", StartTime: "10:00", EndTime: "11:00", Available: true},
	}
	booked := []BookedSlot{
		{Date: "2026-09-07", StartTime: "09:00"},
		{Date: "2026-09-07", StartTime: "09:00"}, // duplicate, one exclusion
	}

	out := Reconcile(candidates, booked)
	require.Len(t, out, 3)
	assert.True(t, out[0].Available)
	assert.False(t, out[1].Available)
	assert.True(t, out[2].Available)
}

func TestReconcileIdempotent(t *testing.T) {
	candidates := []schedule.Slot{
		{Date: "2026-09-07", StartTime: "08:00", Available: true},
		{Date: "2026-09-07", StartTime: "09:00", Available: true},
	}
	booked := []BookedSlot{{Date: "2026-09-07", StartTime: "08:00"}}

	first := Reconcile(candidates, booked)
	second := Reconcile(first, booked)
	assert.Equal(t, first, second)
}

func TestSlotsMergesExternalAndLocal(t *testing.T) {
	external := &fakeSource{slots: []BookedSlot{{Date: "2026-09-07", StartTime: "08:00"}}}
	local := &fakeSource{slots: []BookedSlot{{Date: "2026-09-07", StartTime: "11:00"}}}
	svc := NewService(external, local, nil, 0, nil)

	slots, err := svc.Slots(context.Background(), "consultation", nextMonday, nextMonday, testSched, 60, testNow)
	require.NoError(t, err)
	require.Len(t, slots, 4)

	byStart := map[string]bool{}
	for _, s := range slots {
		byStart[s.StartTime] = s.Available
	}
	assert.False(t, byStart["08:00"])
	assert.True(t, byStart["09:00"])
	assert.True(t, byStart["10:00"])
	assert.False(t, byStart["11:00"])
}

func TestSlotsFailsClosedOnExternalError(t *testing.T) {
	external := &fakeSource{err: errors.New("upstream timeout")}
	svc := NewService(external, &fakeSource{}, nil, 0, nil)

	slots, err := svc.Slots(context.Background(), "consultation", nextMonday, nextMonday, testSched, 60, testNow)
	assert.ErrorIs(t, err, ErrExternalUnavailable)
	assert.Nil(t, slots)
}

func TestSlotsPropagatesInvalidDuration(t *testing.T) {
	svc := NewService(&fakeSource{}, &fakeSource{}, nil, 0, nil)

	_, err := svc.Slots(context.Background(), "consultation", nextMonday, nextMonday, testSched, 0, testNow)
	assert.ErrorIs(t, err, schedule.ErrInvalidDuration)
}

func TestSlotsCachesUpstreamBookedSet(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	external := &fakeSource{slots: []BookedSlot{{Date: "2026-09-07", StartTime: "08:00"}}}
	svc := NewService(external, nil, rdb, time.Minute, nil)

	ctx := context.Background()
	_, err := svc.Slots(ctx, "consultation", nextMonday, nextMonday, testSched, 60, testNow)
	require.NoError(t, err)
	_, err = svc.Slots(ctx, "consultation", nextMonday, nextMonday, testSched, 60, testNow)
	require.NoError(t, err)

	assert.Equal(t, 1, external.calls, "second query should be served from cache")
}

func TestInvalidateDropsCacheEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	external := &fakeSource{slots: []BookedSlot{}}
	svc := NewService(external, nil, rdb, time.Minute, nil)

	ctx := context.Background()
	_, err := svc.Slots(ctx, "consultation", nextMonday, nextMonday, testSched, 60, testNow)
	require.NoError(t, err)
	require.Equal(t, 1, external.calls)

	require.NoError(t, svc.Invalidate(ctx, "consultation", "2026-09-07"))

	_, err = svc.Slots(ctx, "consultation", nextMonday, nextMonday, testSched, 60, testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, external.calls, "invalidation should force an upstream refetch")
}

func TestSlotTakenBypassesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	external := &fakeSource{slots: []BookedSlot{}}
	svc := NewService(external, nil, rdb, time.Minute, nil)

	ctx := context.Background()
	_, err := svc.Slots(ctx, "consultation", nextMonday, nextMonday, testSched, 60, testNow)
	require.NoError(t, err)
	require.Equal(t, 1, external.calls)

	// Upstream books the slot after the cached read.
	external.slots = []BookedSlot{{Date: "2026-09-07", StartTime: "09:00"}}

	taken, err := svc.SlotTaken(ctx, "consultation", nextMonday, "09:00")
	require.NoError(t, err)
	assert.True(t, taken)
	assert.Equal(t, 2, external.calls)
}

func TestSlotTakenFailsClosed(t *testing.T) {
	external := &fakeSource{err: errors.New("connection refused")}
	svc := NewService(external, nil, nil, 0, nil)

	_, err := svc.SlotTaken(context.Background(), "consultation", nextMonday, "09:00")
	assert.ErrorIs(t, err, ErrExternalUnavailable)
}
