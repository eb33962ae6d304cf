// Package ratelimit guards the admin login endpoint against brute force.
// The limiter sits behind a Store interface: the in-memory implementation is
// only correct within a single warm instance (cold starts and horizontal
// replicas reset or fragment the counters), so it is best-effort; the
// redis-backed implementation shares state across instances.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Config defines the window policy. The window is fixed, anchored at the
// first attempt: it resets WindowDuration after the first hit, not per-attempt.
type Config struct {
	// Limit is the number of attempts evaluated normally inside one window.
	Limit int
	// WindowDuration is the length of the window measured from the first attempt.
	WindowDuration time.Duration
}

// DefaultConfig returns the admin-login policy: 5 attempts per 15 minutes.
func DefaultConfig() Config {
	return Config{
		Limit:          5,
		WindowDuration: 15 * time.Minute,
	}
}

// Result describes the outcome of one Hit.
type Result struct {
	// Allowed is false when the attempt exceeds the limit; callers must
	// reject without evaluating credentials.
	Allowed bool
	// Remaining attempts inside the current window.
	Remaining int
	// RetryAfter is how long until the window resets (only meaningful when
	// Allowed is false).
	RetryAfter time.Duration
}

// Store counts attempts per key (the submitted email).
type Store interface {
	// Hit records one attempt and reports whether it may proceed.
	Hit(ctx context.Context, key string) (Result, error)
	// Reset clears the counter for a key (tests, admin tooling).
	Reset(ctx context.Context, key string) error
}

type window struct {
	count int
	start time.Time
}

// MemoryStore is the single-instance map-based store.
type MemoryStore struct {
	config  Config
	mu      sync.Mutex
	windows map[string]*window
	// now is swappable for tests.
	now func() time.Time
}

// NewMemoryStore creates an in-memory limiter store.
func NewMemoryStore(config Config) *MemoryStore {
	if config.Limit <= 0 {
		config = DefaultConfig()
	}
	return &MemoryStore{
		config:  config,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Hit implements Store.
func (s *MemoryStore) Hit(_ context.Context, key string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || now.Sub(w.start) >= s.config.WindowDuration {
		// New window, anchored at this attempt.
		s.windows[key] = &window{count: 1, start: now}
		return Result{Allowed: true, Remaining: s.config.Limit - 1}, nil
	}

	w.count++
	if w.count > s.config.Limit {
		return Result{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: s.config.WindowDuration - now.Sub(w.start),
		}, nil
	}
	return Result{Allowed: true, Remaining: s.config.Limit - w.count}, nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

// Cleanup drops windows that ended before now; call it opportunistically to
// keep the map from growing on long-lived instances.
func (s *MemoryStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, w := range s.windows {
		if now.Sub(w.start) >= s.config.WindowDuration {
			delete(s.windows, key)
		}
	}
}
