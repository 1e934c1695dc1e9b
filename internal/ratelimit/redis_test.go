package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestRedisLimiterBlocksAtThreshold(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFailureLimiter(redis.Addr(), "", "test:authfail", 2, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	if !limiter.Allow("ip-1") {
		t.Fatalf("fresh key should be allowed")
	}
	limiter.RecordFailure("ip-1")
	if !limiter.Allow("ip-1") {
		t.Fatalf("one failure should still be allowed")
	}
	limiter.RecordFailure("ip-1")
	if limiter.Allow("ip-1") {
		t.Fatalf("expected block at threshold")
	}
}

func TestRedisLimiterResetClearsCounter(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFailureLimiter(redis.Addr(), "", "test:authfail", 1, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	limiter.RecordFailure("ip-1")
	if limiter.Allow("ip-1") {
		t.Fatalf("expected block before reset")
	}
	limiter.Reset("ip-1")
	if !limiter.Allow("ip-1") {
		t.Fatalf("expected reset to clear failures")
	}
}

func TestRedisLimiterWindowExpires(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFailureLimiter(redis.Addr(), "", "test:authfail", 1, time.Second)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	limiter.RecordFailure("ip-1")
	if limiter.Allow("ip-1") {
		t.Fatalf("expected block inside window")
	}
	redis.FastForward(2 * time.Second)
	if !limiter.Allow("ip-1") {
		t.Fatalf("expected counter to expire with the window")
	}
}

func TestRedisLimiterFailsClosed(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFailureLimiter(redis.Addr(), "", "test:authfail", 5, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	redis.Close()
	if limiter.Allow("ip-1") {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestRedisLimiterRequiresAddr(t *testing.T) {
	if _, err := NewRedisFailureLimiter("", "", "test:authfail", 1, time.Minute); err == nil {
		t.Fatalf("expected constructor error for empty redis addr")
	}
}
