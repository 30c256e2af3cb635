package redisstore

import (
	"context"
	_ "embed"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

//go:embed release_lock.lua
var releaseLockScript string

// releaseScript deletes the lock key only if it still holds the caller's
// token. The compare and the delete run as one atomic unit on the server, so
// a lock that expired and was re-acquired by another holder is never deleted
// by the previous one.
var releaseScript = redis.NewScript(releaseLockScript)

// ErrLockNotAcquired is returned by WithLock when the lock could not be
// obtained within the acquisition timeout. Callers typically map it to a
// service-unavailable response.
var ErrLockNotAcquired = errors.New("lock not acquired")

const (
	// DefaultLockExpiry is the lock's automatic expiry, i.e. the maximum
	// time a holder may keep it before Redis reclaims the key.
	DefaultLockExpiry = 60 * time.Second

	// DefaultAcquireTimeout bounds how long Acquire keeps retrying.
	DefaultAcquireTimeout = 10 * time.Second

	// DefaultRetryDelay is the pause between failed acquisition attempts.
	DefaultRetryDelay = 100 * time.Millisecond
)

// Lock is a distributed mutual-exclusion primitive stored under
// "lock:{name}". Each acquisition writes a fresh unique token; release is
// conditioned on token equality so no client ever deletes a lock it does not
// currently own.
//
// A Lock instance is intended for use by a single goroutine at a time; the
// cross-process exclusion is what Redis provides.
type Lock struct {
	client  *redis.Client
	name    string
	expiry  time.Duration
	retry   time.Duration
	timeout time.Duration
	token   string
}

// LockOption configures a Lock.
type LockOption func(*Lock)

// WithExpiry sets the lock's automatic expiry (default 60s).
func WithExpiry(d time.Duration) LockOption {
	return func(l *Lock) { l.expiry = d }
}

// WithRetryDelay sets the pause between acquisition attempts (default 100ms).
func WithRetryDelay(d time.Duration) LockOption {
	return func(l *Lock) { l.retry = d }
}

// WithAcquireTimeout sets how long Acquire keeps retrying before giving up
// (default 10s). Independent of the lock's own expiry.
func WithAcquireTimeout(d time.Duration) LockOption {
	return func(l *Lock) { l.timeout = d }
}

// NewLock constructs a lock handle for the given name.
func NewLock(client *redis.Client, name string, opts ...LockOption) *Lock {
	l := &Lock{
		client:  client,
		name:    name,
		expiry:  DefaultLockExpiry,
		retry:   DefaultRetryDelay,
		timeout: DefaultAcquireTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Lock) key() string {
	return "lock:" + l.name
}

// Acquire attempts to take the lock, retrying until the acquisition timeout
// elapses. Running out of time is not an error: it returns (false, nil) and
// the caller decides whether to treat "try later" as fatal. Redis
// connectivity failures propagate as errors.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	l.token = uuid.NewString()
	deadline := time.Now().Add(l.timeout)

	for {
		ok, err := l.client.SetNX(ctx, l.key(), l.token, l.expiry).Result()
		if err != nil {
			return false, errors.Wrapf(err, "failed to acquire lock %q", l.name)
		}
		if ok {
			log.Debugf("lock %q acquired with token %s", l.name, l.token)
			return true, nil
		}

		if !time.Now().Add(l.retry).Before(deadline) {
			log.Warnf("failed to acquire lock %q within %s", l.name, l.timeout)
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

// Release deletes the lock if and only if this instance still owns it.
// Calling Release without a prior successful Acquire returns false without
// contacting Redis. Returns true only if the delete actually occurred.
func (l *Lock) Release(ctx context.Context) (bool, error) {
	if l.token == "" {
		log.Warnf("attempted to release lock %q that was never acquired", l.name)
		return false, nil
	}

	deleted, err := releaseScript.Run(ctx, l.client, []string{l.key()}, l.token).Int()
	if err != nil {
		return false, errors.Wrapf(err, "failed to release lock %q", l.name)
	}
	if deleted == 0 {
		log.Warnf("lock %q not released: not owner or already expired", l.name)
		return false, nil
	}

	log.Debugf("lock %q released", l.name)
	l.token = ""
	return true, nil
}

// WithLock runs fn while holding the lock and releases it on every exit
// path. If the lock cannot be acquired within the timeout it returns
// ErrLockNotAcquired without running fn. An error from fn is logged and
// returned; the release still runs. The release uses its own short context
// rather than the caller's, so a lock whose holder was cancelled is freed
// immediately instead of lingering until expiry.
func (l *Lock) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	ok, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockNotAcquired
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, rerr := l.Release(releaseCtx); rerr != nil {
			log.Errorf("failed to release lock %q: %v", l.name, rerr)
		}
	}()

	if err := fn(ctx); err != nil {
		log.Errorf("error inside locked section %q: %v", l.name, err)
		return err
	}
	return nil
}
