package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var hitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// RedisLimiter keeps counters in redis so every instance shares one quota.
// Any redis failure is answered by the in-memory Fallback.
type RedisLimiter struct {
	Client   *redis.Client
	Prefix   string
	Timeout  time.Duration
	Fallback *InMemoryLimiter
}

func NewRedis(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{
		Client:   client,
		Prefix:   "rl:",
		Timeout:  2 * time.Second,
		Fallback: NewInMemory(),
	}
}

func (l *RedisLimiter) TooManyAttempts(ctx context.Context, key string, maxAttempts int) bool {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if l.Client == nil {
		return l.Fallback.TooManyAttempts(ctx, key, maxAttempts)
	}
	ctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()
	raw, err := l.Client.Get(ctx, l.Prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		return l.Fallback.TooManyAttempts(ctx, key, maxAttempts)
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return false
	}
	return count >= maxAttempts
}

func (l *RedisLimiter) Hit(ctx context.Context, key string, window time.Duration) Decision {
	if window <= 0 {
		window = time.Minute
	}
	if l.Client == nil {
		return l.Fallback.Hit(ctx, key, window)
	}
	ctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()
	res, err := hitScript.Run(ctx, l.Client, []string{l.Prefix + key}, window.Milliseconds()).Result()
	if err != nil {
		return l.Fallback.Hit(ctx, key, window)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		return l.Fallback.Hit(ctx, key, window)
	}
	count, _ := vals[0].(int64)
	ttlMs, _ := vals[1].(int64)
	if ttlMs < 0 {
		ttlMs = window.Milliseconds()
	}
	return Decision{
		Count:   int(count),
		ResetAt: time.Now().UTC().Add(time.Duration(ttlMs) * time.Millisecond),
	}
}
