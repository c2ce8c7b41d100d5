package profile

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER - Token Bucket implementation
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiter throttles calls to the profile service. Every journey read
// fetches the child, so a burst of reads must not turn into a burst against
// the profile service.
type RateLimiter struct {
	mu sync.Mutex

	maxTokens   float64
	refillRate  float64 // tokens per second
	baseRate    float64
	tokens      float64
	lastRefill  time.Time
	waitTimeout time.Duration
	blockedTill time.Time // set by a 429 from the service
}

// RateLimiterConfig contains configuration for the rate limiter.
type RateLimiterConfig struct {
	// RequestsPerSecond is the sustained rate. Zero selects the defaults.
	RequestsPerSecond float64

	// BurstSize is the bucket capacity.
	BurstSize int

	// WaitTimeout bounds how long a caller waits for a token.
	WaitTimeout time.Duration
}

// DefaultRateLimiterConfig returns the limits used when none are configured.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 50,
		BurstSize:         100,
		WaitTimeout:       2 * time.Second,
	}
}

// NewRateLimiter creates a full bucket.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.RequestsPerSecond <= 0 {
		config = DefaultRateLimiterConfig()
	}
	if config.BurstSize < 1 {
		config.BurstSize = 1
	}
	return &RateLimiter{
		maxTokens:   float64(config.BurstSize),
		refillRate:  config.RequestsPerSecond,
		baseRate:    config.RequestsPerSecond,
		tokens:      float64(config.BurstSize),
		lastRefill:  time.Now(),
		waitTimeout: config.WaitTimeout,
	}
}

// ErrRateLimited is returned when no token became available within the wait
// timeout.
var ErrRateLimited = errors.New("profile service rate limit exceeded")

// Allow blocks until a token is available, the wait timeout passes or ctx is
// done.
func (rl *RateLimiter) Allow(ctx context.Context) error {
	deadline := time.Now().Add(rl.waitTimeout)
	for {
		wait, ok := rl.tryAcquire()
		if ok {
			return nil
		}
		if time.Now().Add(wait).After(deadline) {
			return ErrRateLimited
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire takes a token or reports how long to wait for one.
func (rl *RateLimiter) tryAcquire() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Before(rl.blockedTill) {
		return rl.blockedTill.Sub(now), false
	}
	rl.refill(now)

	if rl.tokens < 1 {
		return time.Duration((1 - rl.tokens) / rl.refillRate * float64(time.Second)), false
	}
	rl.tokens--
	return 0, true
}

// refill must be called with mu held.
func (rl *RateLimiter) refill(now time.Time) {
	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
		// A full bucket means the service has been quiet; restore the rate.
		rl.refillRate = rl.baseRate
	}
	rl.lastRefill = now
}

// RecordRateLimitHit empties the bucket, slows the refill rate and blocks
// until retryAfter has passed.
func (rl *RateLimiter) RecordRateLimitHit(retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.tokens = 0
	rl.refillRate *= 0.8
	if retryAfter > 0 {
		rl.blockedTill = time.Now().Add(retryAfter)
	}
}

// Available reports the current token count.
func (rl *RateLimiter) Available() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill(time.Now())
	return rl.tokens
}

// parseRetryAfter reads a Retry-After header in seconds.
func parseRetryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
