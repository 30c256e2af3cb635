package limiter

import "time"

// Option configures a RedisLimiter.
type Option func(*RedisLimiter)

// WithPrefix sets the key prefix (default "ratelimit").
func WithPrefix(prefix string) Option {
	return func(r *RedisLimiter) { r.prefix = prefix }
}

// WithMaxRequests sets the number of admitted requests per window
// (default 100).
func WithMaxRequests(max int64) Option {
	return func(r *RedisLimiter) { r.max = max }
}

// WithWindow sets the window length (default 60s).
func WithWindow(window time.Duration) Option {
	return func(r *RedisLimiter) { r.window = window }
}

// WithTimeout sets the context timeout for Redis operations (default 5s).
func WithTimeout(timeout time.Duration) Option {
	return func(r *RedisLimiter) { r.timeout = timeout }
}

// WithRecorder injects a custom metrics backend.
func WithRecorder(recorder MetricsRecorder) Option {
	return func(r *RedisLimiter) { r.recorder = recorder }
}
