package twitter

import (
	"context"
	"sync"
	"time"
)

// RateLimiter manages Twitter API rate limiting
type RateLimiter interface {
	Wait(ctx context.Context) error
	UpdateLimit(remaining int, resetTime time.Time)
}

// twitterRateLimiter implements RateLimiter for the Twitter v2 API
type twitterRateLimiter struct {
	mu        sync.Mutex
	remaining int
	resetTime time.Time
	minDelay  time.Duration
	lastCall  time.Time
}

// NewRateLimiter creates a new rate limiter. The mentions timeline allows
// a small per-window budget, so the limiter starts conservative and trusts
// the response headers from then on.
func NewRateLimiter() RateLimiter {
	return &twitterRateLimiter{
		remaining: 180,
		resetTime: time.Now().Add(15 * time.Minute),
		minDelay:  100 * time.Millisecond, // Minimum delay between requests
	}
}

// Wait waits until it's safe to make another API call
func (r *twitterRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check if we need to wait for rate limit reset
	if r.remaining <= 1 {
		waitDuration := time.Until(r.resetTime)
		if waitDuration > 0 {
			r.mu.Unlock()
			select {
			case <-ctx.Done():
				r.mu.Lock()
				return ctx.Err()
			case <-time.After(waitDuration):
				r.mu.Lock()
			}
		}
		// Reset after waiting
		r.remaining = 180
		r.resetTime = time.Now().Add(15 * time.Minute)
	}

	// Ensure minimum delay between requests
	elapsed := time.Since(r.lastCall)
	if elapsed < r.minDelay {
		r.mu.Unlock()
		select {
		case <-ctx.Done():
			r.mu.Lock()
			return ctx.Err()
		case <-time.After(r.minDelay - elapsed):
			r.mu.Lock()
		}
	}

	r.lastCall = time.Now()
	return nil
}

// UpdateLimit updates the rate limit from API response headers
func (r *twitterRateLimiter) UpdateLimit(remaining int, resetTime time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining = remaining
	r.resetTime = resetTime
}
