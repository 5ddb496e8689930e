package csrf

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStore(client, 10*time.Minute), mr
}

func TestIssueAndRedeem(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	client := Fingerprint("203.0.113.10:443", "Mozilla/5.0")

	token, err := store.Issue(ctx, client)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	require.NoError(t, store.Redeem(ctx, client, token))

	// single use
	assert.ErrorIs(t, store.Redeem(ctx, client, token), ErrInvalidToken)
}

func TestRedeemRejectsWrongClient(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	token, err := store.Issue(ctx, Fingerprint("203.0.113.10:443", "Mozilla/5.0"))
	require.NoError(t, err)

	err = store.Redeem(ctx, Fingerprint("198.51.100.7:443", "curl/8.0"), token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// the attempt still consumed the token
	err = store.Redeem(ctx, Fingerprint("203.0.113.10:443", "Mozilla/5.0"), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRedeemUnknownOrEmptyToken(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	client := Fingerprint("203.0.113.10:443", "Mozilla/5.0")

	assert.ErrorIs(t, store.Redeem(ctx, client, "never-issued"), ErrInvalidToken)
	assert.ErrorIs(t, store.Redeem(ctx, client, ""), ErrInvalidToken)
}

func TestRedeemExpiredToken(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	client := Fingerprint("203.0.113.10:443", "Mozilla/5.0")

	token, err := store.Issue(ctx, client)
	require.NoError(t, err)

	mr.FastForward(11 * time.Minute)

	assert.ErrorIs(t, store.Redeem(ctx, client, token), ErrInvalidToken)
}

func TestConcurrentRedeemSingleWinner(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	client := Fingerprint("203.0.113.10:443", "Mozilla/5.0")

	token, err := store.Issue(ctx, client)
	require.NoError(t, err)

	const attempts = 10
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Redeem(ctx, client, token)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrInvalidToken)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint("203.0.113.10:443", "Mozilla/5.0")
	b := Fingerprint("203.0.113.10:443", "Mozilla/5.0")
	c := Fingerprint("203.0.113.10:443", "Mozilla/6.0")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}
