package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var recordFailureScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RedisFailureLimiter counts auth failures per key in Redis so the
// threshold holds across instances. The window is fixed rather than
// sliding: the counter expires as one unit.
type RedisFailureLimiter struct {
	threshold int
	window    time.Duration
	prefix    string
	client    *redis.Client
}

// NewRedisFailureLimiter builds a Redis-backed distributed limiter.
func NewRedisFailureLimiter(addr, password, prefix string, threshold int, window time.Duration) (*RedisFailureLimiter, error) {
	if threshold <= 0 || window <= 0 {
		return nil, errors.New("failure limiter requires positive threshold and window")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("failure limiter redis addr is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "linguatutor:authfail"
	}
	return &RedisFailureLimiter{
		threshold: threshold,
		window:    window,
		prefix:    prefix,
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
	}, nil
}

func (l *RedisFailureLimiter) key(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	return l.prefix + ":" + key
}

// Allow reports whether the key is under the threshold.
// On Redis failures, it fails closed and returns false.
func (l *RedisFailureLimiter) Allow(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	count, err := l.client.Get(ctx, l.key(key)).Int64()
	if err == redis.Nil {
		return true
	}
	if err != nil {
		return false
	}
	return count < int64(l.threshold)
}

// RecordFailure increments the key's failure counter, starting the window
// on the first failure.
func (l *RedisFailureLimiter) RecordFailure(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _ = recordFailureScript.Run(ctx, l.client, []string{l.key(key)}, l.window.Milliseconds()).Result()
}

// Reset clears the key's counter.
func (l *RedisFailureLimiter) Reset(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = l.client.Del(ctx, l.key(key)).Err()
}
