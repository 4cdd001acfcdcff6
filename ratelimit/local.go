package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/horizonsync/authcore"
)

// sweepThreshold bounds the key maps; past it, idle buckets are
// discarded on the next increment.
const sweepThreshold = 4096

// LocalLimiter applies the same limits in process memory, one token
// bucket per key, each refilling over its window. It is the choice
// when there is no Redis to share state through.
type LocalLimiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	login   map[string]*rate.Limiter
	loginIP map[string]*rate.Limiter
	refresh map[string]*rate.Limiter
}

func NewLocalLimiter(cfg Config) *LocalLimiter {
	return &LocalLimiter{
		cfg:     cfg,
		now:     time.Now,
		login:   make(map[string]*rate.Limiter),
		loginIP: make(map[string]*rate.Limiter),
		refresh: make(map[string]*rate.Limiter),
	}
}

// WithClock replaces the limiter's notion of now. Tests pair it with
// the engine's fake clock.
func (l *LocalLimiter) WithClock(now func() time.Time) *LocalLimiter {
	l.now = now
	return l
}

func bucketFor(m map[string]*rate.Limiter, key string, limit int, window time.Duration) *rate.Limiter {
	b, ok := m[key]
	if !ok {
		b = rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
		m[key] = b
	}
	return b
}

func sweep(m map[string]*rate.Limiter, now time.Time, burst int) {
	if len(m) < sweepThreshold {
		return
	}
	for k, b := range m {
		if b.TokensAt(now) >= float64(burst) {
			delete(m, k)
		}
	}
}

func (l *LocalLimiter) CheckLogin(_ context.Context, email, ip string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if l.cfg.LoginLimit > 0 && bucketFor(l.login, email, l.cfg.LoginLimit, l.cfg.LoginWindow).TokensAt(now) < 1 {
		return authcore.ErrLoginRateLimited
	}
	if ip != "" && l.cfg.IPLoginLimit > 0 && bucketFor(l.loginIP, ip, l.cfg.IPLoginLimit, l.cfg.LoginWindow).TokensAt(now) < 1 {
		return authcore.ErrLoginRateLimited
	}
	return nil
}

func (l *LocalLimiter) IncrementLogin(_ context.Context, email, ip string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if l.cfg.LoginLimit > 0 {
		bucketFor(l.login, email, l.cfg.LoginLimit, l.cfg.LoginWindow).AllowN(now, 1)
		sweep(l.login, now, l.cfg.LoginLimit)
	}
	if ip != "" && l.cfg.IPLoginLimit > 0 {
		bucketFor(l.loginIP, ip, l.cfg.IPLoginLimit, l.cfg.LoginWindow).AllowN(now, 1)
		sweep(l.loginIP, now, l.cfg.IPLoginLimit)
	}
	return nil
}

func (l *LocalLimiter) ResetLogin(_ context.Context, email, ip string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.login, email)
	if ip != "" {
		delete(l.loginIP, ip)
	}
	return nil
}

func (l *LocalLimiter) CheckRefresh(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cfg.RefreshLimit > 0 && bucketFor(l.refresh, key, l.cfg.RefreshLimit, l.cfg.RefreshWindow).TokensAt(l.now()) < 1 {
		return authcore.ErrRefreshRateLimited
	}
	return nil
}

func (l *LocalLimiter) IncrementRefresh(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if l.cfg.RefreshLimit > 0 {
		bucketFor(l.refresh, key, l.cfg.RefreshLimit, l.cfg.RefreshWindow).AllowN(now, 1)
		sweep(l.refresh, now, l.cfg.RefreshLimit)
	}
	return nil
}
