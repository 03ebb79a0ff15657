package websocket

import (
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/nfrund/chatroom/internal/session"
)

var (
	// ErrEventAlreadyExists is returned when trying to add a duplicate event
	ErrEventAlreadyExists = errors.New("event already exists in whitelist")
	// ErrInvalidEvent is returned when an empty event name is provided
	ErrInvalidEvent = errors.New("event cannot be empty")
)

// eventWhitelist is the set of event names clients are allowed to send.
type eventWhitelist struct {
	mu            sync.RWMutex
	allowedEvents []string
}

// NewEventWhitelist creates a whitelist with the given event names.
func NewEventWhitelist(events ...string) *eventWhitelist {
	valid := make([]string, 0, len(events))
	for _, event := range events {
		if event != "" {
			valid = append(valid, event)
		}
	}
	return &eventWhitelist{allowedEvents: valid}
}

// IsAllowed reports whether clients may send event.
func (w *eventWhitelist) IsAllowed(event string) bool {
	if event == "" {
		return false
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Contains(w.allowedEvents, event)
}

// AddEvent allows one more event name.
func (w *eventWhitelist) AddEvent(event string) error {
	if event == "" {
		return ErrInvalidEvent
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if slices.Contains(w.allowedEvents, event) {
		return ErrEventAlreadyExists
	}
	w.allowedEvents = append(w.allowedEvents, event)
	slog.Debug("Added event to whitelist", "event", event)
	return nil
}

// DefaultEventWhitelist allows every inbound session event.
func DefaultEventWhitelist() *eventWhitelist {
	return NewEventWhitelist(
		session.EventJoin,
		session.EventMessage,
		session.EventReaction,
		session.EventTyping,
		session.EventStopTyping,
		session.EventUserActivity,
		session.EventDisconnect,
	)
}
