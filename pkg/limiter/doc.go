// Package limiter provides local and distributed request rate limiting based
// on a fixed-window counter.
//
// The primary entry point is the RateLimiter interface:
//
//	allowed, err := limiter.Allow(ctx, identifier)
//	quota, err := limiter.Remaining(ctx, identifier)
//
// Allow reports whether the request is admitted; Remaining returns the quota
// left in the current window and the time until it resets, for callers that
// want to set rate-limit headers (for example, Retry-After).
//
// # Overview
//
// Each identifier owns a counter stored under "{prefix}:{identifier}" with a
// TTL equal to the window length. The first request of a window creates the
// counter at 1 and starts the TTL; each admitted request increments it; once
// the counter reaches the configured maximum, further requests are denied
// without incrementing, so denied traffic does not extend the penalty. The
// window resets when the key expires and the next request re-creates it.
//
// Fixed windows trade strictness for O(1) state: a burst straddling a window
// boundary can admit up to twice the maximum in a short interval. A sliding
// window or token bucket is a stricter drop-in alternative behind the same
// interface.
//
// # Backends
//
//   - MemoryLimiter: an in-process limiter backed by a Go map. Useful for
//     unit tests, local development, and single-instance deployments. Its
//     state is local to the process and is not shared across replicas.
//
//   - RedisLimiter: a distributed limiter backed by Redis. The
//     check-increment-expire cycle runs as a single Lua script via EVALSHA,
//     so racing first requests from many application instances converge to
//     the correct count with no lost updates.
//
// # Concurrency
//
// MemoryLimiter guards its map with a mutex and is safe for concurrent use.
// RedisLimiter delegates concurrency safety to Redis and the go-redis
// client.
//
// # Context and Error Policy
//
// Both methods accept a context.Context, which RedisLimiter passes through
// to Redis so callers can enforce deadlines during partial outages. A denied
// request is not an error: Allow returns (false, nil). Errors mean the
// backend could not be consulted; the package does not impose a fail-open or
// fail-closed policy, the caller decides.
//
// # Configuration
//
// RedisLimiter uses the functional options pattern:
//
//	l, err := limiter.NewRedisLimiter(client,
//		limiter.WithPrefix("ratelimit"),
//		limiter.WithMaxRequests(100),
//		limiter.WithWindow(time.Minute),
//		limiter.WithRecorder(recorder),
//	)
//
// Supported options:
//
//   - WithPrefix(string): key prefix (default "ratelimit").
//   - WithMaxRequests(int64): admitted requests per window (default 100).
//   - WithWindow(time.Duration): window length (default 60s).
//   - WithTimeout(time.Duration): per-operation Redis timeout (default 5s).
//   - WithRecorder(MetricsRecorder): metrics backend (default no-op; a
//     Prometheus implementation is provided).
package limiter
