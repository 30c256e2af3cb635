package limiter

import (
	"context"
	"time"
)

// Defaults applied by the limiter constructors.
const (
	DefaultPrefix      = "ratelimit"
	DefaultMaxRequests = int64(100)
	DefaultWindow      = 60 * time.Second
	DefaultTimeout     = 5 * time.Second
)

// Quota describes the state of an identifier's current window.
type Quota struct {
	// Limit is the configured maximum number of requests per window.
	Limit int64

	// Remaining is how many more requests the identifier may make before
	// the window resets. Never negative.
	Remaining int64

	// Reset is the time until the current window expires. When no window
	// is active it reports the full window length.
	Reset time.Duration
}

// RateLimiter admits or denies requests per client identifier.
type RateLimiter interface {
	// Allow reports whether a request from the identifier is admitted
	// under the configured limit. Denial is not an error.
	Allow(ctx context.Context, identifier string) (bool, error)

	// Remaining returns the identifier's remaining quota and reset time.
	Remaining(ctx context.Context, identifier string) (Quota, error)
}
