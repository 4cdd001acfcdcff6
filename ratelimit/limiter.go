// Package ratelimit throttles login and refresh traffic for the auth
// engine. The Redis limiter is the production path and shares its
// windows across replicas; the local limiter covers single-process
// deployments and tests.
//
// Both implementations satisfy authcore.RateLimiter. Infrastructure
// failures fail open: a Redis outage must not take logins down with
// it, so only a genuinely exceeded limit ever reports an error.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/horizonsync/authcore"
)

// Config bounds attempts per identity and per source address within a
// fixed window. Limits count failures, not requests; successful
// logins reset their window.
type Config struct {
	LoginLimit   int
	IPLoginLimit int
	LoginWindow  time.Duration

	RefreshLimit  int
	RefreshWindow time.Duration
}

// DefaultConfig allows ten failures per email and thirty per address
// in fifteen minutes, and sixty bad refresh attempts in five.
func DefaultConfig() Config {
	return Config{
		LoginLimit:    10,
		IPLoginLimit:  30,
		LoginWindow:   15 * time.Minute,
		RefreshLimit:  60,
		RefreshWindow: 5 * time.Minute,
	}
}

// Key prefixes keep the three windows from colliding in one keyspace.
func loginKey(email string) string { return "al:" + email }
func loginIPKey(ip string) string  { return "ali:" + ip }
func refreshKey(key string) string { return "ar:" + key }

// RedisLimiter counts attempts in Redis with INCR and a TTL stamped
// on the window's first hit.
type RedisLimiter struct {
	client *redis.Client
	cfg    Config
}

func NewRedisLimiter(client *redis.Client, cfg Config) *RedisLimiter {
	return &RedisLimiter{client: client, cfg: cfg}
}

func (l *RedisLimiter) count(ctx context.Context, key string) (int64, error) {
	n, err := l.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (l *RedisLimiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) error {
	n, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 1 {
		return l.client.Expire(ctx, key, ttl).Err()
	}
	return nil
}

func (l *RedisLimiter) CheckLogin(ctx context.Context, email, ip string) error {
	if n, err := l.count(ctx, loginKey(email)); err == nil && l.cfg.LoginLimit > 0 && n >= int64(l.cfg.LoginLimit) {
		return authcore.ErrLoginRateLimited
	}
	if ip == "" {
		return nil
	}
	if n, err := l.count(ctx, loginIPKey(ip)); err == nil && l.cfg.IPLoginLimit > 0 && n >= int64(l.cfg.IPLoginLimit) {
		return authcore.ErrLoginRateLimited
	}
	return nil
}

func (l *RedisLimiter) IncrementLogin(ctx context.Context, email, ip string) error {
	if err := l.incrementWithTTL(ctx, loginKey(email), l.cfg.LoginWindow); err != nil {
		return nil
	}
	if ip != "" {
		l.incrementWithTTL(ctx, loginIPKey(ip), l.cfg.LoginWindow)
	}
	return nil
}

func (l *RedisLimiter) ResetLogin(ctx context.Context, email, ip string) error {
	keys := []string{loginKey(email)}
	if ip != "" {
		keys = append(keys, loginIPKey(ip))
	}
	l.client.Del(ctx, keys...)
	return nil
}

func (l *RedisLimiter) CheckRefresh(ctx context.Context, key string) error {
	if n, err := l.count(ctx, refreshKey(key)); err == nil && l.cfg.RefreshLimit > 0 && n >= int64(l.cfg.RefreshLimit) {
		return authcore.ErrRefreshRateLimited
	}
	return nil
}

func (l *RedisLimiter) IncrementRefresh(ctx context.Context, key string) error {
	l.incrementWithTTL(ctx, refreshKey(key), l.cfg.RefreshWindow)
	return nil
}

// LoginAttempts reports the current failure count for an email, for
// operator tooling. Missing keys read as zero.
func (l *RedisLimiter) LoginAttempts(ctx context.Context, email string) (int64, error) {
	return l.count(ctx, loginKey(email))
}
