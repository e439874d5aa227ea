package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

var validateRule = Rule{Name: "otp_validate", Limit: 5, Window: 15 * time.Minute}

func TestLimiter_WindowRule_Redis(t *testing.T) {
	mr, client := newTestRedis(t)
	limiter := NewLimiter(NewRedisStore(client), "test")
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d, err := limiter.Allow(ctx, validateRule, "user@example.com")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "attempt %d", i)
		assert.Equal(t, 5-i, d.Remaining)
	}

	d, err := limiter.Allow(ctx, validateRule, "user@example.com")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	// other identities are independent
	d, err = limiter.Allow(ctx, validateRule, "other@example.com")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	mr.FastForward(15*time.Minute + time.Second)

	d, err = limiter.Allow(ctx, validateRule, "user@example.com")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Count)
}

func TestLimiter_KeysDoNotContainIdentity(t *testing.T) {
	mr, client := newTestRedis(t)
	limiter := NewLimiter(NewRedisStore(client), "folio")

	_, err := limiter.Allow(context.Background(), validateRule, "User@Example.com ")
	require.NoError(t, err)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], "folio:rl:otp_validate:")
	assert.NotContains(t, keys[0], "example")

	// normalization folds case and whitespace into the same counter
	d, err := limiter.Allow(context.Background(), validateRule, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(2), d.Count)
}

func TestLimiter_DailyRule_ResetsAtUTCMidnight(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)}
	store := NewMemoryStore().WithClock(clock.Now)
	limiter := NewLimiter(store, "test").WithClock(clock.Now)
	rule := Rule{Name: "otp_request", Limit: 10, Daily: true}
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		d, err := limiter.Allow(ctx, rule, "user@example.com")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	d, err := limiter.Allow(ctx, rule, "user@example.com")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Hour, d.RetryAfter)

	clock.Advance(time.Hour)

	d, err = limiter.Allow(ctx, rule, "user@example.com")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Count)
}

func TestLimiter_DailyRule_RedisTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	now := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	limiter := NewLimiter(NewRedisStore(client), "test").WithClock(func() time.Time { return now })

	_, err := limiter.Allow(context.Background(), Rule{Name: "resend", Limit: 5, Daily: true}, "a@b.co")
	require.NoError(t, err)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], "2026-03-10")
	assert.Equal(t, 6*time.Hour, mr.TTL(keys[0]))
}

func TestLimiter_PeekAndReset(t *testing.T) {
	store := NewMemoryStore()
	limiter := NewLimiter(store, "test")
	rule := Rule{Name: "login_failures", Limit: 2, Window: time.Minute}
	ctx := context.Background()

	d, err := limiter.Peek(ctx, rule, "u")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(0), d.Count)

	_, _ = limiter.Allow(ctx, rule, "u")
	_, _ = limiter.Allow(ctx, rule, "u")

	d, err = limiter.Peek(ctx, rule, "u")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(2), d.Count)

	require.NoError(t, limiter.Reset(ctx, rule, "u"))

	d, err = limiter.Peek(ctx, rule, "u")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLimiter_StoreFailureReportsAllowed(t *testing.T) {
	mr, client := newTestRedis(t)
	limiter := NewLimiter(NewRedisStore(client), "test")
	mr.Close()

	d, err := limiter.Allow(context.Background(), validateRule, "user@example.com")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.True(t, d.Allowed)
}

func TestMemoryStore_Sweep(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	store := NewMemoryStore().WithClock(clock.Now)
	ctx := context.Background()

	_, _ = store.Increment(ctx, "short", time.Second)
	_, _ = store.Increment(ctx, "long", time.Hour)

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, store.Sweep())

	count, err := store.Get(ctx, "long")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRedisStore_GetMissingKey(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisStore(client)

	count, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Zero(t, count)

	ttl, err := store.TTL(context.Background(), "missing")
	require.NoError(t, err)
	assert.Zero(t, ttl)
}

func TestRedisStore_IncrementAlwaysLeavesTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	// A counter left behind without a TTL gets one on the next increment
	require.NoError(t, client.Set(ctx, "orphan", 3, 0).Err())

	count, err := store.Increment(ctx, "orphan", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
	assert.Equal(t, time.Minute, mr.TTL("orphan"))

	// Later increments keep the original window
	mr.FastForward(20 * time.Second)
	_, err = store.Increment(ctx, "orphan", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 40*time.Second, mr.TTL("orphan"))
}

func TestRedisStore_IncrementReportsUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisStore(client)
	mr.Close()

	_, err := store.Increment(context.Background(), "k", time.Minute)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
