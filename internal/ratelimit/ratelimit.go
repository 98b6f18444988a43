// Package ratelimit provides Redis-INCR-based request throttling for
// the unauthenticated HTTP surface in front of the session layer.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned when a caller has exceeded its quota.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter enforces fixed-window counters over a shared Redis client.
type Limiter struct {
	redis *redis.Client
}

// New wraps the storage layer's existing Redis client rather than
// dialing a second pool.
func New(rdb *redis.Client) *Limiter {
	return &Limiter{redis: rdb}
}

// EmailCodeLimits bounds POST /email/code: spec.md leaves this endpoint's
// rate limiting as an open question (the original implementation only
// carries a TODO); this resolves it with a per-IP and per-address window
// layered on top of internal/notify's existing per-address cooldown.
type EmailCodeLimits struct {
	PerIPLimit     int
	PerIPWindow    time.Duration
	PerEmailLimit  int
	PerEmailWindow time.Duration
}

// DefaultEmailCodeLimits returns the limits applied by CheckEmailCode.
func DefaultEmailCodeLimits() EmailCodeLimits {
	return EmailCodeLimits{
		PerIPLimit:     20,
		PerIPWindow:    time.Hour,
		PerEmailLimit:  5,
		PerEmailWindow: time.Hour,
	}
}

// CheckEmailCode enforces both windows for one /email/code request.
// Redis errors fail open: availability of the verification flow matters
// more than strict enforcement of an abuse guard.
func (l *Limiter) CheckEmailCode(ctx context.Context, ip, email string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	limits := DefaultEmailCodeLimits()

	if ip != "" {
		key := fmt.Sprintf("ratelimit:emailcode:ip:%s", ip)
		if err := l.checkLimit(ctx, key, limits.PerIPLimit, limits.PerIPWindow); err != nil {
			log.Printf("[RateLimit] ip %s exceeded email-code limit", ip)
			return ErrRateLimited
		}
	}
	key := fmt.Sprintf("ratelimit:emailcode:addr:%s", email)
	if err := l.checkLimit(ctx, key, limits.PerEmailLimit, limits.PerEmailWindow); err != nil {
		log.Printf("[RateLimit] address %s exceeded email-code limit", email)
		return ErrRateLimited
	}
	return nil
}

// checkLimit increments a fixed-window counter, arming its expiry on
// the first hit in the window.
func (l *Limiter) checkLimit(ctx context.Context, key string, limit int, window time.Duration) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return nil
	}
	if count == 1 {
		l.redis.Expire(ctx, key, window)
	}
	if int(count) > limit {
		return ErrRateLimited
	}
	return nil
}

// Remaining reports how many requests a key has left in its window,
// for surfacing in diagnostics or a future Retry-After header.
func (l *Limiter) Remaining(ctx context.Context, key string, limit int) (int, error) {
	if l == nil || l.redis == nil {
		return limit, nil
	}
	count, err := l.redis.Get(ctx, key).Int()
	if err == redis.Nil {
		return limit, nil
	}
	if err != nil {
		return limit, err
	}
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
