package ratelimiter

import "time"

// RateLimiter is the interface for rate limiting.
// Allow returns true if a request may proceed and false if it should be rejected.
type RateLimiter interface {
	Allow() bool
}

// clock is swapped out in tests.
type clock func() time.Time
