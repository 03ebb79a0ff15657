package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nfrund/chatroom/internal/domain"
)

// Inbound event names.
const (
	EventJoin         = "join"
	EventMessage      = "message"
	EventReaction     = "reaction"
	EventTyping       = "typing"
	EventStopTyping   = "stop_typing"
	EventUserActivity = "user_activity"
	EventDisconnect   = "disconnect"
)

// Outbound event names. EventMessage and EventStopTyping are used in both
// directions.
const (
	EventMessageHistory = "message_history"
	EventJoinSuccess    = "join_success"
	EventUserJoined     = "user_joined"
	EventUserLeft       = "user_left"
	EventMessageSent    = "message_sent"
	EventReactionUpdate = "reaction_update"
	EventUserTyping     = "user_typing"
	EventError          = "error"
)

// Inbound is one event received from a connection.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewInbound builds an Inbound with payload encoded as its data.
func NewInbound(event string, payload any) (Inbound, error) {
	if payload == nil {
		return Inbound{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Inbound{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return Inbound{Event: event, Data: data}, nil
}

func (in Inbound) decode(v any) error {
	if len(in.Data) == 0 || string(in.Data) == "null" {
		return nil
	}
	return json.Unmarshal(in.Data, v)
}

// MessageRequest is the payload of an inbound message event.
type MessageRequest struct {
	Content domain.Content `json:"content"`
	Type    string         `json:"type,omitempty"`
}

// ReactionRequest is the payload of an inbound reaction event.
type ReactionRequest struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

// DisconnectRequest is the payload of a disconnect event.
type DisconnectRequest struct {
	Reason string `json:"reason"`
}

// Target says who a delivery is addressed to, relative to the connection
// whose event produced it.
type Target int

const (
	// ToSender is a unicast to the originating connection.
	ToSender Target = iota
	// ToOthers is a broadcast to the room except the originating connection.
	ToOthers
	// ToRoom is a broadcast to the room including the originating connection.
	ToRoom
	// ToConnection is a unicast to some other connection.
	ToConnection
)

func (t Target) String() string {
	switch t {
	case ToSender:
		return "sender"
	case ToOthers:
		return "others"
	case ToRoom:
		return "room"
	case ToConnection:
		return "connection"
	default:
		return "unknown"
	}
}

// Delivery is one outbound event with its recipients already resolved.
type Delivery struct {
	Event      string
	Data       any
	Target     Target
	Recipients []string
}

// Envelope is the wire form of a delivery.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Envelope returns the wire form of d.
func (d Delivery) Envelope() Envelope {
	return Envelope{Event: d.Event, Data: d.Data}
}

// JoinSuccess is sent to a connection that joined a room.
type JoinSuccess struct {
	Members []domain.MemberView `json:"members"`
	Room    string              `json:"room"`
}

// PresenceChange is broadcast when a user joins or leaves a room.
type PresenceChange struct {
	Username  string              `json:"username"`
	Members   []domain.MemberView `json:"members"`
	Timestamp time.Time           `json:"timestamp"`
}

// MessageSent acknowledges a stored message to its sender.
type MessageSent struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ReactionUpdate carries the full reaction map of a message after a toggle.
type ReactionUpdate struct {
	MessageID string           `json:"messageId"`
	Reactions domain.Reactions `json:"reactions"`
	Username  string           `json:"username"`
	Emoji     string           `json:"emoji"`
}

// TypingIndicator is broadcast for typing and stop_typing. Timestamp is only
// set for user_typing.
type TypingIndicator struct {
	Username  string     `json:"username"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// ErrorPayload is the body of an error delivery.
type ErrorPayload struct {
	Message string `json:"message"`
}
