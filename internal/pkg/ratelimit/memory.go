package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"
)

type window struct {
	count   int
	resetAt time.Time
}

// Memory is a process-local Limiter. Counts are exact within one process and
// advisory across several.
type Memory struct {
	mu      sync.Mutex
	windows map[string]*window
	clock   quartz.Clock
}

type MemoryOption func(*Memory)

// WithClock overrides the clock, mostly for tests.
func WithClock(clock quartz.Clock) MemoryOption {
	return func(m *Memory) { m.clock = clock }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		windows: make(map[string]*window),
		clock:   quartz.NewReal(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Check(_ context.Context, key string, length time.Duration, max int) (Result, error) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		m.windows[key] = &window{count: 1, resetAt: now.Add(length)}
		return Result{Allowed: true, Remaining: remaining(max, 1), ResetIn: length}, nil
	}
	if w.count >= max {
		return Result{Allowed: false, Remaining: 0, ResetIn: w.resetAt.Sub(now)}, nil
	}
	w.count++
	return Result{Allowed: true, Remaining: remaining(max, w.count), ResetIn: w.resetAt.Sub(now)}, nil
}

// Sweep drops every expired window and reports how many were removed.
func (m *Memory) Sweep() int {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}
