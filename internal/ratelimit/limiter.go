package ratelimit

import "context"

// RateLimiter throttles outbound provider calls per source.
type RateLimiter interface {
	// Allow reports whether one more call to source may proceed now.
	Allow(ctx context.Context, source string) (bool, error)
	// Wait blocks until a call to source is allowed or ctx is done.
	Wait(ctx context.Context, source string) error
}
