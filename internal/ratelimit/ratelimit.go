// Package ratelimit implements a keyed token bucket rate limiter. Gateways
// key it by learner for session creation and by session for attempts, so
// a script hammering one sandbox cannot starve the others.
// Thread-safe. No background goroutines; tokens are refilled lazily on each Allow call.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a key has exhausted its token bucket.
var ErrRateLimited = errors.New("rate limit exceeded")

// Config configures the token bucket rate limiter.
type Config struct {
	RequestsPerMinute int // Tokens added per minute. 0 = unlimited (Allow always succeeds).
	BurstSize         int // Maximum tokens in bucket. 0 = defaults to RequestsPerMinute.
}

// Limiter is a keyed token bucket rate limiter.
// Each key gets an independent bucket.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   float64 // max bucket capacity
	now     func() time.Time
}

type bucket struct {
	tokens   float64
	lastFill time.Time
}

// NewLimiter creates a rate limiter with the given configuration.
// If RequestsPerMinute is 0, Allow always succeeds (unlimited).
func NewLimiter(cfg Config) *Limiter {
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = cfg.RequestsPerMinute
	}
	if burst <= 0 {
		burst = 1 // safety floor
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    float64(cfg.RequestsPerMinute) / 60.0,
		burst:   float64(burst),
		now:     time.Now,
	}
}

// Allow checks whether key has tokens remaining.
// Consumes one token on success. Returns ErrRateLimited if the bucket is empty.
// A nil Limiter allows everything.
func (l *Limiter) Allow(key string) error {
	// Unlimited mode.
	if l == nil || l.rate <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		// First request: start with a full bucket.
		b = &bucket{tokens: l.burst, lastFill: now}
		l.buckets[key] = b
	}

	// Refill tokens based on elapsed time.
	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens += elapsed * l.rate
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.lastFill = now

	// Try to consume one token.
	if b.tokens < 1 {
		return ErrRateLimited
	}
	b.tokens--
	return nil
}

// Forget drops the bucket of key, typically when its session closes.
func (l *Limiter) Forget(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
