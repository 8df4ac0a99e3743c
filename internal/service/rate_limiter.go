package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter handles rate limiting using Redis
type RateLimiter struct {
	client redis.Cmdable
	limit  int
	window time.Duration
	now    func() time.Time
}

type RateLimiterOption func(*RateLimiter)

// WithRateLimiterClock overrides the time source.
func WithRateLimiterClock(now func() time.Time) RateLimiterOption {
	return func(r *RateLimiter) { r.now = now }
}

// NewRateLimiter creates a limiter allowing limit requests per key within a
// sliding window.
func NewRateLimiter(client redis.Cmdable, limit int, window time.Duration, opts ...RateLimiterOption) *RateLimiter {
	r := &RateLimiter{client: client, limit: limit, window: window, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Limit returns the number of requests allowed per window.
func (r *RateLimiter) Limit() int {
	return r.limit
}

// slidingWindowScript trims the window, then either records the request or
// reports the oldest entry, in one atomic step.
//
// KEYS[1] key; ARGV: now ms, window ms, limit, member, ttl ms.
// Returns {1, 0} when recorded and {0, oldest ms} when over the limit.
var slidingWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. (now - tonumber(ARGV[2])))
if redis.call('ZCARD', KEYS[1]) < limit then
	redis.call('ZADD', KEYS[1], now, ARGV[4])
	redis.call('PEXPIRE', KEYS[1], ARGV[5])
	return {1, 0}
end
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
return {0, tonumber(oldest[2]) or now}
`)

// Allow records a request for key using a sliding window log and reports
// whether it fits the limit. When it does not, retryAfter says how long until
// the oldest request in the window expires.
func (r *RateLimiter) Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error) {
	now := r.now()

	res, err := slidingWindowScript.Run(ctx, r.client, []string{"ratelimit:" + key},
		now.UnixMilli(),
		r.window.Milliseconds(),
		r.limit,
		uuid.NewString(),
		(r.window + time.Minute).Milliseconds(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("failed to check rate limit: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("unexpected rate limit reply %v", res)
	}
	if res[0] == 1 {
		return true, 0, nil
	}

	retryAfter = time.UnixMilli(res[1]).Add(r.window).Sub(now)
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return false, retryAfter, nil
}

// Remaining returns the number of requests still allowed for key in the
// current window.
func (r *RateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	windowStart := r.now().Add(-r.window)
	redisKey := "ratelimit:" + key

	count, err := r.client.ZCount(ctx, redisKey, strconv.FormatInt(windowStart.UnixMilli(), 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}

	remaining := r.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
