package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter tracks request counts per client key over a fixed-length window.
// Allow reports whether the request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// entry holds the per-key counter state
type entry struct {
	count       int
	windowStart time.Time
}

// MemoryLimiter is an in-process approximate sliding-window limiter.
// A key's counter resets once the elapsed time since its window start
// exceeds the window length, so bursts straddling a window boundary can
// reach up to twice the nominal rate. That is the accepted cost of O(1)
// bookkeeping per request.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	window  time.Duration
	max     int
	maxKeys int
	now     func() time.Time
}

// MemoryLimiterOptions configures a MemoryLimiter
type MemoryLimiterOptions struct {
	// Window is the length of one counting window
	Window time.Duration
	// Max is the number of requests allowed per key per window
	Max int
	// MaxKeys bounds the number of tracked keys; the entry with the
	// oldest window is evicted when the bound is hit
	MaxKeys int
	// SweepInterval is how often expired entries are dropped (0 disables the sweeper)
	SweepInterval time.Duration
}

// DefaultMemoryLimiterOptions returns the admission defaults
func DefaultMemoryLimiterOptions() MemoryLimiterOptions {
	return MemoryLimiterOptions{
		Window:        60 * time.Second,
		Max:           20,
		MaxKeys:       10000,
		SweepInterval: time.Minute,
	}
}

// NewMemoryLimiter creates a new in-memory limiter
func NewMemoryLimiter(options ...MemoryLimiterOptions) *MemoryLimiter {
	opts := DefaultMemoryLimiterOptions()
	if len(options) > 0 {
		opts = options[0]
	}

	l := &MemoryLimiter{
		entries: make(map[string]*entry),
		window:  opts.Window,
		max:     opts.Max,
		maxKeys: opts.MaxKeys,
		now:     time.Now,
	}

	if opts.SweepInterval > 0 {
		go l.sweep(opts.SweepInterval)
	}

	return l
}

// Allow implements Limiter. The read-check-increment sequence runs under a
// single lock so concurrent bursts from one key cannot undercount.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.entries[key]
	if !exists || now.Sub(e.windowStart) > l.window {
		if !exists && l.maxKeys > 0 && len(l.entries) >= l.maxKeys {
			l.evictOldestLocked()
		}
		l.entries[key] = &entry{count: 1, windowStart: now}
		return true, nil
	}

	e.count++
	if e.count > l.max {
		return false, nil
	}
	return true, nil
}

// evictOldestLocked drops the entry with the oldest window. Caller holds the lock.
func (l *MemoryLimiter) evictOldestLocked() {
	var oldestKey string
	var oldestStart time.Time

	first := true
	for k, e := range l.entries {
		if first || e.windowStart.Before(oldestStart) {
			oldestKey = k
			oldestStart = e.windowStart
			first = false
		}
	}

	if oldestKey != "" {
		delete(l.entries, oldestKey)
	}
}

// sweep periodically removes entries whose window has long expired
func (l *MemoryLimiter) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		now := l.now()

		l.mu.Lock()
		for k, e := range l.entries {
			if now.Sub(e.windowStart) > l.window {
				delete(l.entries, k)
			}
		}
		l.mu.Unlock()
	}
}

// Len returns the number of tracked keys
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
