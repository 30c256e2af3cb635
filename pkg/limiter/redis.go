package limiter

import (
	"context"
	_ "embed"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

//go:embed fixed_window.lua
var fixedWindowScript string

// RedisLimiter is a distributed fixed-window rate limiter backed by Redis.
// The check-and-increment cycle runs as a single Lua script, which makes it
// safe to use across many application instances while enforcing one global
// budget per identifier.
type RedisLimiter struct {
	client    *redis.Client
	scriptSHA string
	prefix    string
	max       int64
	window    time.Duration
	timeout   time.Duration
	recorder  MetricsRecorder
}

// NewRedisLimiter verifies the Redis connection, loads the window script and
// returns a configured limiter.
func NewRedisLimiter(client *redis.Client, opts ...Option) (*RedisLimiter, error) {
	r := &RedisLimiter{
		client:   client,
		prefix:   DefaultPrefix,
		max:      DefaultMaxRequests,
		window:   DefaultWindow,
		timeout:  DefaultTimeout,
		recorder: &NoOpMetricsRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to redis")
	}

	sha, err := client.ScriptLoad(ctx, fixedWindowScript).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load fixed window script")
	}
	r.scriptSHA = sha

	return r, nil
}

// MaxRequests returns the configured per-window maximum.
func (r *RedisLimiter) MaxRequests() int64 {
	return r.max
}

func (r *RedisLimiter) key(identifier string) string {
	return r.prefix + ":" + identifier
}

// Allow admits or denies a request from the identifier. The first request of
// a window creates the counter with the window TTL; requests at or above the
// maximum are denied without incrementing.
func (r *RedisLimiter) Allow(ctx context.Context, identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	result, err := r.client.EvalSha(ctx, r.scriptSHA, []string{r.key(identifier)},
		r.max,                   // ARGV[1]
		int(r.window.Seconds()), // ARGV[2]
	).Result()
	r.recorder.Observe("ratelimit.latency", time.Since(start).Seconds(), nil)
	if err != nil {
		return false, errors.Wrap(err, "rate limit check failed")
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return false, errors.New("invalid lua response format")
	}
	allowed, _ := values[0].(int64)

	if allowed == 1 {
		r.recorder.Add("ratelimit.call", 1, map[string]string{"outcome": "allowed"})
		return true, nil
	}
	r.recorder.Add("ratelimit.call", 1, map[string]string{"outcome": "denied"})
	return false, nil
}

// Remaining reads the identifier's counter and its TTL in one round trip and
// derives the remaining quota. An absent or expired key reports the full
// window as the reset time.
func (r *RedisLimiter) Remaining(ctx context.Context, identifier string) (Quota, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	key := r.key(identifier)
	pipe := r.client.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Quota{}, errors.Wrap(err, "failed to read rate limit state")
	}

	count, err := getCmd.Int64()
	if err != nil && err != redis.Nil {
		return Quota{}, errors.Wrap(err, "failed to parse rate limit counter")
	}

	reset := ttlCmd.Val()
	if reset <= 0 {
		reset = r.window
	}

	remaining := r.max - count
	if remaining < 0 {
		remaining = 0
	}

	return Quota{
		Limit:     r.max,
		Remaining: remaining,
		Reset:     reset,
	}, nil
}
