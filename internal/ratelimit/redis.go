package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
)

// slidingWindow keeps one sorted-set member per admitted request, scored by
// its time in milliseconds. It returns {allowed, remaining, resetMillis}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)
local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {allowed, limit - count, reset}
`)

// RedisLimiter shares windows between every API process.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedis constructs a RedisLimiter.
func NewRedis(client redis.UniversalClient) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: "ratelimit", now: time.Now}
}

// Allow admits the request when fewer than p.Limit requests were admitted in
// the trailing window.
func (l *RedisLimiter) Allow(ctx context.Context, key string, p Policy) (Result, error) {
	now := l.now().UnixMilli()
	redisKey := fmt.Sprintf("%s:%s:%s", l.prefix, p.Name, key)
	member := fmt.Sprintf("%d-%s", now, xid.New().String())
	vals, err := slidingWindow.Run(ctx, l.client, []string{redisKey}, now, p.Window.Milliseconds(), p.Limit, member).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit %s: %w", p.Name, err)
	}
	if len(vals) != 3 {
		return Result{}, fmt.Errorf("rate limit %s: unexpected reply %v", p.Name, vals)
	}
	remaining := int(vals[1])
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   vals[0] == 1,
		Limit:     p.Limit,
		Remaining: remaining,
		ResetAt:   time.UnixMilli(vals[2]),
	}, nil
}
