// Package ratelimit admits or denies inbound messages per user.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultLimit is the message budget per window per user.
	DefaultLimit = 10

	// DefaultWindow is the fixed admission window.
	DefaultWindow = 10 * time.Second
)

type window struct {
	start time.Time
	count int
}

// Limiter grants a fixed budget of admissions per fixed time window per
// user. TryAcquire is non-blocking and safe for concurrent callers on the
// same or different users.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	windows map[string]window
}

// NewLimiter creates a limiter with the given budget and window. Zero or
// negative inputs fall back to the defaults.
func NewLimiter(limit int, windowSize time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if windowSize <= 0 {
		windowSize = DefaultWindow
	}
	return &Limiter{
		limit:   limit,
		window:  windowSize,
		now:     time.Now,
		windows: make(map[string]window),
	}
}

// SetClock replaces the time source. Test hook.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// TryAcquire reports whether one message from username is admitted. A
// denial mutates nothing beyond the window bookkeeping.
func (l *Limiter) TryAcquire(username string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[username]
	if !ok || now.Sub(w.start) >= l.window {
		w = window{start: now}
	}
	if w.count >= l.limit {
		l.windows[username] = w
		return false
	}
	w.count++
	l.windows[username] = w
	return true
}

// Forget drops the window state for username. Called on disconnect so the
// map does not grow with departed users.
func (l *Limiter) Forget(username string) {
	l.mu.Lock()
	delete(l.windows, username)
	l.mu.Unlock()
}
