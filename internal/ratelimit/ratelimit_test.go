package ratelimit

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newRedisLimiter(t *testing.T, c *clock) *RedisLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l := NewRedis(client)
	l.now = c.now
	return l
}

func newLocalLimiter(c *clock) *LocalLimiter {
	l := NewLocal()
	l.now = c.now
	return l
}

func TestLimiters(t *testing.T) {
	impls := map[string]func(*testing.T, *clock) Limiter{
		"redis": func(t *testing.T, c *clock) Limiter { return newRedisLimiter(t, c) },
		"local": func(_ *testing.T, c *clock) Limiter { return newLocalLimiter(c) },
	}
	for name, build := range impls {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := &clock{t: time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)}
			l := build(t, c)

			for want := Borrow.Limit - 1; want >= 0; want-- {
				res, err := l.Allow(ctx, "10.0.0.1", Borrow)
				require.NoError(t, err)
				assert.True(t, res.Allowed)
				assert.Equal(t, Borrow.Limit, res.Limit)
				assert.Equal(t, want, res.Remaining)
			}

			res, err := l.Allow(ctx, "10.0.0.1", Borrow)
			require.NoError(t, err)
			assert.False(t, res.Allowed)
			assert.Zero(t, res.Remaining)
			assert.True(t, res.ResetAt.After(c.t))

			other, err := l.Allow(ctx, "10.0.0.2", Borrow)
			require.NoError(t, err)
			assert.True(t, other.Allowed, "keys are independent")

			api, err := l.Allow(ctx, "10.0.0.1", API)
			require.NoError(t, err)
			assert.True(t, api.Allowed, "policies are independent")

			c.t = c.t.Add(Borrow.Window + time.Second)
			res, err = l.Allow(ctx, "10.0.0.1", Borrow)
			require.NoError(t, err)
			assert.True(t, res.Allowed)
		})
	}
}

func TestRedisResetTracksOldestRequest(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)
	c := &clock{t: start}
	l := newRedisLimiter(t, c)

	_, err := l.Allow(ctx, "k", Auth)
	require.NoError(t, err)
	c.t = start.Add(10 * time.Second)
	res, err := l.Allow(ctx, "k", Auth)
	require.NoError(t, err)
	assert.Equal(t, start.Add(Auth.Window).UnixMilli(), res.ResetAt.UnixMilli())
}

type failing struct{}

func (failing) Allow(context.Context, string, Policy) (Result, error) {
	return Result{}, errors.New("connection refused")
}

func TestWithFallback(t *testing.T) {
	c := &clock{t: time.Now()}
	l := WithFallback(failing{}, newLocalLimiter(c), zap.NewNop())
	res, err := l.Allow(context.Background(), "k", API)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, API.Limit-1, res.Remaining)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.10:5555"
	assert.Equal(t, "192.0.2.10", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", ClientIP(r))
}

func TestSetHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	Result{Limit: 10, Remaining: 4, ResetAt: time.UnixMilli(1704110400000)}.SetHeaders(rec.Header())
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1704110400000", rec.Header().Get("X-RateLimit-Reset"))
}
