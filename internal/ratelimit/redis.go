package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KEYS[1]: window counter key
// ARGV[1]: window length in milliseconds
// Returns the count after increment. The TTL is set only by the first
// increment so the window is fixed, not sliding.
var fixedWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// RedisLimiter is a fixed-window limiter shared by all instances
type RedisLimiter struct {
	client redis.Scripter
	policy Policy
	window time.Duration
	prefix string
}

// NewRedisLimiter creates a limiter on an existing Redis client
func NewRedisLimiter(client redis.Scripter, policy Policy, windowLen time.Duration) *RedisLimiter {
	if windowLen <= 0 {
		windowLen = DefaultWindow
	}
	return &RedisLimiter{
		client: client,
		policy: policy,
		window: windowLen,
		prefix: "shorturl:rl:",
	}
}

// Allow implements Limiter. On Redis errors the request is allowed and the
// error is returned for logging.
func (l *RedisLimiter) Allow(ctx context.Context, class Class, clientKey string, authenticated bool) (bool, error) {
	limit, err := l.policy.limit(class, authenticated)
	if err != nil {
		return true, err
	}

	count, err := fixedWindowScript.Run(ctx, l.client,
		[]string{l.prefix + windowKey(class, clientKey)},
		l.window.Milliseconds(),
	).Int64()
	if err != nil {
		return true, fmt.Errorf("redis rate limit: %w", err)
	}

	return count <= int64(limit), nil
}
