// Package history keeps the bounded, per-room message backlog that is
// replayed to late joiners.
//
// A Store is not safe for concurrent use on its own; the session coordinator
// serializes every call under its lock.
package history

import (
	"github.com/nfrund/chatroom/internal/domain"
)

// DefaultCapacity is how many messages a room keeps.
const DefaultCapacity = 100

type roomBuffer struct {
	messages []domain.Message
	index    map[string]int // message id -> position in messages
}

// Store holds one FIFO buffer per room key.
type Store struct {
	capacity int
	rooms    map[string]*roomBuffer
}

// New returns an empty Store. Capacity values below 1 fall back to
// DefaultCapacity.
func New(capacity int) *Store {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		rooms:    make(map[string]*roomBuffer),
	}
}

// Capacity returns the per-room bound.
func (s *Store) Capacity() int { return s.capacity }

// Create makes an empty buffer for roomKey if none exists.
func (s *Store) Create(roomKey string) {
	if _, ok := s.rooms[roomKey]; !ok {
		s.rooms[roomKey] = &roomBuffer{index: make(map[string]int)}
	}
}

// Exists reports whether roomKey has a buffer, empty or not.
func (s *Store) Exists(roomKey string) bool {
	_, ok := s.rooms[roomKey]
	return ok
}

// Append adds msg at the tail of the room's buffer, dropping the oldest entry
// first when the buffer is full.
func (s *Store) Append(roomKey string, msg domain.Message) {
	s.Create(roomKey)
	buf := s.rooms[roomKey]

	if msg.Reactions == nil {
		msg.Reactions = domain.Reactions{}
	}

	if len(buf.messages) >= s.capacity {
		oldest := buf.messages[0]
		delete(buf.index, oldest.ID)
		buf.messages = append(buf.messages[:0], buf.messages[1:]...)
		for id, pos := range buf.index {
			buf.index[id] = pos - 1
		}
	}
	buf.index[msg.ID] = len(buf.messages)
	buf.messages = append(buf.messages, msg)
}

// Get returns a copy of the room's messages in insertion order. The result is
// empty, never nil, when the room has no history.
func (s *Store) Get(roomKey string) []domain.Message {
	buf, ok := s.rooms[roomKey]
	if !ok {
		return []domain.Message{}
	}
	out := make([]domain.Message, len(buf.messages))
	for i, m := range buf.messages {
		out[i] = m.Clone()
	}
	return out
}

// Len returns the number of buffered messages for roomKey.
func (s *Store) Len(roomKey string) int {
	buf, ok := s.rooms[roomKey]
	if !ok {
		return 0
	}
	return len(buf.messages)
}

// ToggleReaction flips username's emoji reaction on the message with
// messageID and returns a copy of the message's full reaction map.
// domain.ErrNotFound is returned when the room or message is unknown, which
// is normal when the message was evicted before the reaction arrived.
func (s *Store) ToggleReaction(roomKey, messageID, emoji, username string) (domain.Reactions, error) {
	buf, ok := s.rooms[roomKey]
	if !ok {
		return nil, domain.ErrNotFound
	}
	pos, ok := buf.index[messageID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	msg := &buf.messages[pos]
	if msg.Reactions == nil {
		msg.Reactions = domain.Reactions{}
	}
	msg.Reactions.Toggle(emoji, username)
	return msg.Reactions.Clone(), nil
}

// Evict drops the whole buffer for roomKey.
func (s *Store) Evict(roomKey string) {
	delete(s.rooms, roomKey)
}
