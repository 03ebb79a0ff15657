// Package ratelimit implements the fixed-window message throttle applied to
// each live connection.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultWindow is the length of one counting window.
	DefaultWindow = time.Second
	// DefaultMaxPerWindow is how many calls a connection may make per window.
	DefaultMaxPerWindow = 5
)

type entry struct {
	windowStart time.Time
	count       int
}

// Limiter is a fixed-window counter keyed by connection id.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	window  time.Duration
	max     int
}

// Option is a function that configures a Limiter.
type Option func(*Limiter)

// WithWindow sets the window length.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithMaxPerWindow sets how many calls are accepted per window.
func WithMaxPerWindow(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.max = n
		}
	}
}

// New creates a Limiter with a 1s window and 5 calls per window unless
// overridden.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		entries: make(map[string]*entry),
		window:  DefaultWindow,
		max:     DefaultMaxPerWindow,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records a call for connID at now and reports whether it fits in the
// current window. A call arriving more than one window after the window
// start opens a new window and is always accepted.
func (l *Limiter) Allow(connID string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[connID]
	if !ok || now.Sub(e.windowStart) > l.window {
		l.entries[connID] = &entry{windowStart: now, count: 1}
		return true
	}
	e.count++
	return e.count <= l.max
}

// Remove drops the entry for connID.
func (l *Limiter) Remove(connID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, connID)
}

// Len returns the number of tracked connections.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
