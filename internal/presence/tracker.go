// Package presence records the last time each live connection was heard from
// and reports connections that have gone idle.
package presence

import (
	"sort"
	"sync"
	"time"
)

// DefaultIdleTimeout is how long a connection may stay silent before the idle
// sweep reports it.
const DefaultIdleTimeout = 30 * time.Minute

// Presence is the activity record of one connection.
type Presence struct {
	ConnectionID string    `json:"connection_id"`
	LastSeen     time.Time `json:"last_seen"`
}

// Tracker holds one Presence per connection id.
type Tracker struct {
	mu          sync.RWMutex
	presences   map[string]Presence
	idleTimeout time.Duration
}

// Option is a function that configures a Tracker.
type Option func(*Tracker)

// WithIdleTimeout sets the timeout used when SweepStale is called without one.
func WithIdleTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.idleTimeout = d
		}
	}
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		presences:   make(map[string]Presence),
		idleTimeout: DefaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// IdleTimeout returns the configured idle timeout.
func (t *Tracker) IdleTimeout() time.Duration { return t.idleTimeout }

// Touch records activity for connID at now. Timestamps never move backwards.
func (t *Tracker) Touch(connID string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.presences[connID]
	if ok && p.LastSeen.After(now) {
		return
	}
	t.presences[connID] = Presence{ConnectionID: connID, LastSeen: now}
}

// LastSeen returns the last recorded activity of connID.
func (t *Tracker) LastSeen(connID string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.presences[connID]
	return p.LastSeen, ok
}

// IsStale reports whether connID is tracked and has been silent for longer
// than idleTimeout at now. A timeout of zero or less uses the tracker's own.
func (t *Tracker) IsStale(connID string, now time.Time, idleTimeout time.Duration) bool {
	if idleTimeout <= 0 {
		idleTimeout = t.idleTimeout
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.presences[connID]
	return ok && p.LastSeen.Before(now.Add(-idleTimeout))
}

// SweepStale returns, sorted, the connections whose last activity predates
// now - idleTimeout. Entries are not removed: closing the connection drives
// the normal disconnect path, which calls Remove.
func (t *Tracker) SweepStale(now time.Time, idleTimeout time.Duration) []string {
	if idleTimeout <= 0 {
		idleTimeout = t.idleTimeout
	}
	threshold := now.Add(-idleTimeout)

	t.mu.RLock()
	defer t.mu.RUnlock()

	var stale []string
	for id, p := range t.presences {
		if p.LastSeen.Before(threshold) {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)
	return stale
}

// Remove forgets connID.
func (t *Tracker) Remove(connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.presences, connID)
}

// Len returns the number of tracked connections.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.presences)
}
