package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the counter and starts the window on the
// first hit; it returns the post-increment count and the window's PTTL.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("PTTL", KEYS[1])}
`)

// RedisLimiter shares windows across replicas through Redis
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client redis.UniversalClient) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: "dispatch:ratelimit:"}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	res, err := fixedWindowScript.Run(ctx, l.client, []string{l.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("unexpected rate limit reply %v", res)
	}

	count, ttl := res[0], time.Duration(res[1])*time.Millisecond
	if ttl < 0 {
		ttl = window
	}
	if count > int64(limit) {
		return Decision{Allowed: false, ResetIn: ttl}, nil
	}
	return Decision{Allowed: true, Remaining: limit - int(count), ResetIn: ttl}, nil
}
