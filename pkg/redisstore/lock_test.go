package redisstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestLockAcquireRelease(t *testing.T) {
	assert := assert.New(t)
	client, mr := newTestRedis(t)
	ctx := context.Background()

	lock := NewLock(client, "reconnect")

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	assert.True(ok)
	assert.True(mr.Exists("lock:reconnect"))

	released, err := lock.Release(ctx)
	require.NoError(t, err)
	assert.True(released)
	assert.False(mr.Exists("lock:reconnect"))

	// Releasing again without re-acquiring is a no-op.
	released, err = lock.Release(ctx)
	require.NoError(t, err)
	assert.False(released)
}

func TestLockMutualExclusion(t *testing.T) {
	assert := assert.New(t)
	client, _ := newTestRedis(t)
	ctx := context.Background()

	holder := NewLock(client, "cache-clear")
	contender := NewLock(client, "cache-clear",
		WithAcquireTimeout(150*time.Millisecond),
		WithRetryDelay(10*time.Millisecond))

	ok, err := holder.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Contention exhaustion is a false return, not an error.
	ok, err = contender.Acquire(ctx)
	assert.NoError(err)
	assert.False(ok)

	released, err := holder.Release(ctx)
	require.NoError(t, err)
	require.True(t, released)

	ok, err = contender.Acquire(ctx)
	assert.NoError(err)
	assert.True(ok, "contender should acquire after the holder releases")
}

func TestLockMutualExclusionConcurrent(t *testing.T) {
	client, _ := newTestRedis(t)
	ctx := context.Background()

	const n = 8
	results := make([]bool, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			l := NewLock(client, "race",
				WithAcquireTimeout(100*time.Millisecond),
				WithRetryDelay(10*time.Millisecond))
			ok, err := l.Acquire(ctx)
			if err != nil {
				t.Errorf("acquire %d failed: %v", i, err)
				return
			}
			results[i] = ok
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, ok := range results {
		if ok {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("expected exactly one goroutine to hold the lock, got %d", winners)
	}
}

func TestLockOwnershipIsolation(t *testing.T) {
	assert := assert.New(t)
	client, mr := newTestRedis(t)
	ctx := context.Background()

	holder := NewLock(client, "guarded")
	ok, err := holder.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// A forged release with a stale token must leave the real lock intact.
	forger := NewLock(client, "guarded")
	forger.token = "not-the-real-token"

	released, err := forger.Release(ctx)
	require.NoError(t, err)
	assert.False(released)
	assert.True(mr.Exists("lock:guarded"), "forged release deleted a lock it did not own")

	released, err = holder.Release(ctx)
	require.NoError(t, err)
	assert.True(released)
}

func TestLockExpiryThenReacquire(t *testing.T) {
	assert := assert.New(t)
	client, mr := newTestRedis(t)
	ctx := context.Background()

	first := NewLock(client, "short", WithExpiry(time.Second))
	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	second := NewLock(client, "short")
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(ok, "lock should be acquirable after its expiry lapses")

	// The first holder's late release must not delete the second holder's
	// lock.
	released, err := first.Release(ctx)
	require.NoError(t, err)
	assert.False(released)
	assert.True(mr.Exists("lock:short"))
}

func TestWithLockRunsAndReleases(t *testing.T) {
	assert := assert.New(t)
	client, mr := newTestRedis(t)
	ctx := context.Background()

	lock := NewLock(client, "scoped")

	ran := false
	err := lock.WithLock(ctx, func(ctx context.Context) error {
		ran = true
		assert.True(mr.Exists("lock:scoped"))
		return nil
	})
	assert.NoError(err)
	assert.True(ran)
	assert.False(mr.Exists("lock:scoped"), "lock should be released on exit")
}

func TestWithLockReleasesOnError(t *testing.T) {
	assert := assert.New(t)
	client, mr := newTestRedis(t)
	ctx := context.Background()

	lock := NewLock(client, "scoped")
	boom := errors.New("boom")

	err := lock.WithLock(ctx, func(ctx context.Context) error {
		return boom
	})
	assert.Equal(boom, err, "the block's error must not be swallowed")
	assert.False(mr.Exists("lock:scoped"), "lock should be released even when the block fails")
}

func TestWithLockReleasesAfterCancellation(t *testing.T) {
	assert := assert.New(t)
	client, mr := newTestRedis(t)

	ctx, cancel := context.WithCancel(context.Background())
	lock := NewLock(client, "cancelled")

	err := lock.WithLock(ctx, func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})
	assert.True(errors.Is(err, context.Canceled))
	assert.False(mr.Exists("lock:cancelled"),
		"lock must be freed immediately even when the holder's context died")
}

func TestWithLockNotAcquired(t *testing.T) {
	assert := assert.New(t)
	client, _ := newTestRedis(t)
	ctx := context.Background()

	holder := NewLock(client, "busy")
	ok, err := holder.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	contender := NewLock(client, "busy",
		WithAcquireTimeout(100*time.Millisecond),
		WithRetryDelay(10*time.Millisecond))

	err = contender.WithLock(ctx, func(ctx context.Context) error {
		t.Error("protected block must not run without the lock")
		return nil
	})
	assert.True(errors.Is(err, ErrLockNotAcquired))
}
