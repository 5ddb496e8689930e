package redisclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (Locker, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisSlotLocker(client, 2*time.Second), client
}

func TestWithLockRunsAndReleases(t *testing.T) {
	locker, client := newTestLocker(t)
	ctx := context.Background()

	ran := false
	err := locker.WithLock(ctx, "consultation:2026-09-07:09:00", func(ctx context.Context) error {
		ran = true

		// the lock key exists while the critical section runs
		n, err := client.Exists(ctx, "lock:slot:consultation:2026-09-07:09:00").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	n, err := client.Exists(ctx, "lock:slot:consultation:2026-09-07:09:00").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "lock released after the section returns")
}

func TestWithLockPropagatesError(t *testing.T) {
	locker, _ := newTestLocker(t)

	sentinel := errors.New("boom")
	err := locker.WithLock(context.Background(), "key", func(context.Context) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	// the lock is released even on error
	err = locker.WithLock(context.Background(), "key", func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestWithLockContention(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = locker.WithLock(ctx, "contended", func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()

	<-entered
	err := locker.WithLock(ctx, "contended", func(context.Context) error {
		t.Error("second holder must not enter the critical section")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	close(release)
	wg.Wait()

	// free again after the first holder exits
	err = locker.WithLock(ctx, "contended", func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestWithLockDistinctKeysDoNotContend(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	err := locker.WithLock(ctx, "slot-a", func(ctx context.Context) error {
		return locker.WithLock(ctx, "slot-b", func(context.Context) error { return nil })
	})
	assert.NoError(t, err)
}
