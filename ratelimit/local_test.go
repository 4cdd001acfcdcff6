package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/horizonsync/authcore"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newLocal(cfg Config) (*LocalLimiter, *stepClock) {
	clock := &stepClock{t: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	return NewLocalLimiter(cfg).WithClock(clock.Now), clock
}

func TestLocalLoginBurstAndRefill(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LoginLimit = 3
	cfg.LoginWindow = 3 * time.Minute // one token a minute
	l, clock := newLocal(cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.CheckLogin(ctx, "ana@example.com", ""); err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		l.IncrementLogin(ctx, "ana@example.com", "")
	}
	if err := l.CheckLogin(ctx, "ana@example.com", ""); !errors.Is(err, authcore.ErrLoginRateLimited) {
		t.Fatalf("burst not exhausted: %v", err)
	}

	// One window-fraction later a single attempt is back.
	clock.Advance(time.Minute)
	if err := l.CheckLogin(ctx, "ana@example.com", ""); err != nil {
		t.Fatalf("after refill: %v", err)
	}
	l.IncrementLogin(ctx, "ana@example.com", "")
	if err := l.CheckLogin(ctx, "ana@example.com", ""); !errors.Is(err, authcore.ErrLoginRateLimited) {
		t.Fatal("refill granted more than one token")
	}
}

func TestLocalResetForgetsKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LoginLimit = 1
	l, _ := newLocal(cfg)
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

func TestLocalRefreshIndependentKeys(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RefreshLimit = 1
	l, _ := newLocal(cfg)
	ctx := context.Background()

	l.IncrementRefresh(ctx, "key-a")
	if err := l.CheckRefresh(ctx, "key-a"); !errors.Is(err, authcore.ErrRefreshRateLimited) {
		t.Fatalf("key-a: %v", err)
	}
	if err := l.CheckRefresh(ctx, "key-b"); err != nil {
		t.Fatalf("key-b throttled by key-a: %v", err)
	}
}

func TestLocalZeroLimitsDisable(t *testing.T) {
	l, _ := newLocal(Config{})
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		l.IncrementLogin(ctx, "ana@example.com", "203.0.113.9")
		l.IncrementRefresh(ctx, "203.0.113.9")
	}
	if err := l.CheckLogin(ctx, "ana@example.com", "203.0.113.9"); err != nil {
		t.Fatalf("zero limit throttled login: %v", err)
	}
	if err := l.CheckRefresh(ctx, "203.0.113.9"); err != nil {
		t.Fatalf("zero limit throttled refresh: %v", err)
	}
}
