package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/horizonsync/authcore"
)

func newRedisLimiter(t *testing.T, cfg Config) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLimiter(client, cfg), mr
}

func TestRedisLoginWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LoginLimit = 3
	l, mr := newRedisLimiter(t, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.CheckLogin(ctx, "ana@example.com", "203.0.113.9"); err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		l.IncrementLogin(ctx, "ana@example.com", "203.0.113.9")
	}

	if err := l.CheckLogin(ctx, "ana@example.com", "203.0.113.9"); !errors.Is(err, authcore.ErrLoginRateLimited) {
		t.Fatalf("over limit: %v", err)
	}
	// Another identity is untouched.
	if err := l.CheckLogin(ctx, "bo@example.com", "203.0.113.9"); err != nil {
		t.Fatalf("other email throttled: %v", err)
	}

	n, err := l.LoginAttempts(ctx, "ana@example.com")
	if err != nil || n != 3 {
		t.Fatalf("attempts = %d, %v", n, err)
	}

	// The window expires.
	mr.FastForward(16 * time.Minute)
	if err := l.CheckLogin(ctx, "ana@example.com", "203.0.113.9"); err != nil {
		t.Fatalf("after window: %v", err)
	}
}

func TestRedisIPWindowTripsIndependently(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LoginLimit = 100
	cfg.IPLoginLimit = 2
	l, _ := newRedisLimiter(t, cfg)
	ctx := context.Background()

	// Two failures from one address across different emails.
	l.IncrementLogin(ctx, "one@example.com", "198.51.100.7")
	l.IncrementLogin(ctx, "two@example.com", "198.51.100.7")

	if err := l.CheckLogin(ctx, "three@example.com", "198.51.100.7"); !errors.Is(err, authcore.ErrLoginRateLimited) {
		t.Fatalf("address not throttled: %v", err)
	}
	if err := l.CheckLogin(ctx, "three@example.com", "203.0.113.9"); err != nil {
		t.Fatalf("clean address throttled: %v", err)
	}
}

func TestRedisResetClearsWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LoginLimit = 1
	l, _ := newRedisLimiter(t, cfg)
	ctx := context.Background()

	l.IncrementLogin(ctx, "ana@example.com", "203.0.113.9")
	if err := l.CheckLogin(ctx, "ana@example.com", "203.0.113.9"); !errors.Is(err, authcore.ErrLoginRateLimited) {
		t.Fatal("limit not reached")
	}

	l.ResetLogin(ctx, "ana@example.com", "203.0.113.9")
	if err := l.CheckLogin(ctx, "ana@example.com", "203.0.113.9"); err != nil {
		t.Fatalf("after reset: %v", err)
	}
}

func TestRedisRefreshWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RefreshLimit = 2
	l, mr := newRedisLimiter(t, cfg)
	ctx := context.Background()

	l.IncrementRefresh(ctx, "203.0.113.9")
	l.IncrementRefresh(ctx, "203.0.113.9")
	if err := l.CheckRefresh(ctx, "203.0.113.9"); !errors.Is(err, authcore.ErrRefreshRateLimited) {
		t.Fatalf("refresh not throttled: %v", err)
	}

	mr.FastForward(6 * time.Minute)
	if err := l.CheckRefresh(ctx, "203.0.113.9"); err != nil {
		t.Fatalf("after window: %v", err)
	}
}

func TestRedisFailsOpenWhenDown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LoginLimit = 1
	l, mr := newRedisLimiter(t, cfg)
	ctx := context.Background()

	l.IncrementLogin(ctx, "ana@example.com", "")
	mr.Close()

	// With Redis gone, nothing is throttled and nothing errors.
	if err := l.CheckLogin(ctx, "ana@example.com", ""); err != nil {
		t.Fatalf("outage should fail open: %v", err)
	}
	if err := l.IncrementLogin(ctx, "ana@example.com", ""); err != nil {
		t.Fatalf("increment during outage: %v", err)
	}
}
