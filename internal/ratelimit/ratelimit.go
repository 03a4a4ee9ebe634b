// Package ratelimit provides rate limiting using the cache subsystem.
package ratelimit

import (
	"context"
	"time"

	"github.com/storebotdev/storebot-go/internal/cache"
)

// Config defines rate limiting parameters.
type Config struct {
	// RequestsPerWindow is the maximum requests allowed per window.
	RequestsPerWindow int64

	// Window is the time window for rate limiting.
	Window time.Duration

	// KeyPrefix is prepended to all rate limit keys.
	KeyPrefix string
}

// LoginConfig returns the limit applied to admin login attempts.
func LoginConfig() *Config {
	return &Config{
		RequestsPerWindow: 10,
		Window:            time.Minute,
		KeyPrefix:         "ratelimit:login:",
	}
}

// Limiter provides windowed rate limiting over a cache counter.
type Limiter struct {
	cache  cache.Counter
	config *Config
}

// New creates a new rate limiter.
func New(c cache.Counter, cfg *Config) *Limiter {
	if cfg == nil {
		cfg = LoginConfig()
	}
	return &Limiter{
		cache:  c,
		config: cfg,
	}
}

// Limit returns the configured requests per window.
func (l *Limiter) Limit() int64 {
	return l.config.RequestsPerWindow
}

// Result contains the rate limit check result.
type Result struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
}

// Allow counts one request for key and reports whether it is within the
// window's quota.
func (l *Limiter) Allow(ctx context.Context, key string) (*Result, error) {
	count, resetAt, err := l.cache.Increment(ctx, l.config.KeyPrefix+key, 1, l.config.Window)
	if err != nil {
		return nil, err
	}

	remaining := l.config.RequestsPerWindow - count
	if remaining < 0 {
		remaining = 0
	}

	return &Result{
		Allowed:   count <= l.config.RequestsPerWindow,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// Reset clears the rate limit for a key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.cache.Reset(ctx, l.config.KeyPrefix+key)
}
