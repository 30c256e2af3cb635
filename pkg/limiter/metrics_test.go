package limiter

import (
	"context"
	"testing"
	"time"
)

// MockRecorder captures metrics in memory for assertion
type MockRecorder struct {
	Counters map[string]float64
	Outcomes map[string]float64
	Timings  map[string][]float64
}

func NewMockRecorder() *MockRecorder {
	return &MockRecorder{
		Counters: make(map[string]float64),
		Outcomes: make(map[string]float64),
		Timings:  make(map[string][]float64),
	}
}

func (m *MockRecorder) Add(name string, value float64, tags map[string]string) {
	m.Counters[name] += value
	m.Outcomes[tags["outcome"]] += value
}

func (m *MockRecorder) Observe(name string, value float64, tags map[string]string) {
	m.Timings[name] = append(m.Timings[name], value)
}

func TestRedisLimiter_Metrics(t *testing.T) {
	mock := NewMockRecorder()
	l, _ := newTestRedisLimiter(t, WithMaxRequests(1), WithWindow(time.Minute), WithRecorder(mock))
	ctx := context.Background()

	if _, err := l.Allow(ctx, "user_1"); err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if _, err := l.Allow(ctx, "user_1"); err != nil {
		t.Fatalf("Allow failed: %v", err)
	}

	if val := mock.Counters["ratelimit.call"]; val != 2 {
		t.Errorf("Expected 'ratelimit.call' counter to be 2, got %v", val)
	}
	if val := mock.Outcomes["allowed"]; val != 1 {
		t.Errorf("Expected 1 allowed outcome, got %v", val)
	}
	if val := mock.Outcomes["denied"]; val != 1 {
		t.Errorf("Expected 1 denied outcome, got %v", val)
	}

	timings, ok := mock.Timings["ratelimit.latency"]
	if !ok || len(timings) != 2 {
		t.Error("Expected 2 latency observations")
	}
}
