package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter approximates the sliding window with one token bucket per
// key, refilled at Limit tokens per Window. Windows are per process.
type LocalLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	now       func() time.Time
	lastSweep time.Time
}

// NewLocal constructs a LocalLimiter.
func NewLocal() *LocalLimiter {
	return &LocalLimiter{buckets: make(map[string]*bucket), now: time.Now}
}

// Allow takes one token from the key's bucket.
func (l *LocalLimiter) Allow(_ context.Context, key string, p Policy) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)
	id := p.Name + ":" + key
	b, ok := l.buckets[id]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(p.Window/time.Duration(p.Limit)), p.Limit)}
		l.buckets[id] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	remaining := int(tokens)
	if remaining < 0 {
		remaining = 0
	}
	missing := float64(p.Limit) - tokens
	reset := now.Add(time.Duration(missing * float64(p.Window) / float64(p.Limit)))
	return Result{Allowed: allowed, Limit: p.Limit, Remaining: remaining, ResetAt: reset}, nil
}

// sweep drops buckets idle for more than ten minutes, at most once a minute.
func (l *LocalLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < time.Minute {
		return
	}
	l.lastSweep = now
	for id, b := range l.buckets {
		if now.Sub(b.lastSeen) > 10*time.Minute {
			delete(l.buckets, id)
		}
	}
}
