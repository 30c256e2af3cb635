package limiter

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int64
	resetAt time.Time
}

// MemoryLimiter is an in-process fixed-window rate limiter.
//
// It is safe for concurrent use by multiple goroutines, but its state is
// local to the process and is not shared across replicas. Use RedisLimiter
// when you need a single global limit across multiple instances.
type MemoryLimiter struct {
	mu        sync.Mutex
	max       int64
	windowLen time.Duration
	windows   map[string]*window
}

// NewMemoryLimiter constructs a MemoryLimiter with empty state.
func NewMemoryLimiter(max int64, windowLen time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		max:       max,
		windowLen: windowLen,
		windows:   make(map[string]*window),
	}
}

// MaxRequests returns the configured per-window maximum.
func (m *MemoryLimiter) MaxRequests() int64 {
	return m.max
}

// Allow admits or denies a request from the identifier under the configured
// window.
func (m *MemoryLimiter) Allow(ctx context.Context, identifier string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	w, exists := m.windows[identifier]
	if !exists || !now.Before(w.resetAt) {
		m.windows[identifier] = &window{count: 1, resetAt: now.Add(m.windowLen)}
		return true, nil
	}
	if w.count >= m.max {
		return false, nil
	}
	w.count++
	return true, nil
}

// Remaining returns the identifier's remaining quota and reset time.
func (m *MemoryLimiter) Remaining(ctx context.Context, identifier string) (Quota, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	w, exists := m.windows[identifier]
	if !exists || !now.Before(w.resetAt) {
		return Quota{Limit: m.max, Remaining: m.max, Reset: m.windowLen}, nil
	}

	remaining := m.max - w.count
	if remaining < 0 {
		remaining = 0
	}
	return Quota{
		Limit:     m.max,
		Remaining: remaining,
		Reset:     w.resetAt.Sub(now),
	}, nil
}
