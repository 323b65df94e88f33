// Package ratelimit holds the in-process rate limiter used when no shared store is configured.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"orafinite-billing/internal/domain/ports/adapter"
)

var _ adapter.RateLimiter = (*MemoryLimiter)(nil)

type entry struct {
	limiter     *rate.Limiter
	windowStart time.Time
	lastSeen    time.Time
}

// MemoryLimiter admits limit requests per key in a fixed window that opens on
// the key's first request, like the Redis backend. Buckets never refill inside
// a window; a new window gets a fresh bucket. State is lost on restart.
type MemoryLimiter struct {
	mu       sync.Mutex
	entries  map[string]*entry
	limit    int
	window   time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMemoryLimiter starts a limiter and its garbage collector. Call Stop to end the collector.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	m := &MemoryLimiter{
		entries: make(map[string]*entry),
		limit:   limit,
		window:  window,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go m.cleanup(window)
	return m
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	e, ok := m.entries[key]
	if !ok || now.Sub(e.windowStart) >= m.window {
		// zero rate: the burst is the whole allowance for the window
		e = &entry{limiter: rate.NewLimiter(0, m.limit), windowStart: now}
		m.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1), nil
}

// cleanup drops keys idle for a full window; their window has closed anyway.
func (m *MemoryLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.gc()
		case <-m.stopCh:
			return
		}
	}
}

func (m *MemoryLimiter) gc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.window)
	for k, e := range m.entries {
		if e.lastSeen.Before(cutoff) {
			delete(m.entries, k)
		}
	}
}

func (m *MemoryLimiter) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}
