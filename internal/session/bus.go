package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/nfrund/chatroom/internal/pubsub"
)

// RoomEvent describes a room lifecycle change. Room is a fingerprint of the
// secret key, never the key itself.
type RoomEvent struct {
	Room      string    `json:"room"`
	Timestamp time.Time `json:"timestamp"`
}

// MembershipEvent describes a user entering or leaving a room.
type MembershipEvent struct {
	Room         string    `json:"room"`
	Username     string    `json:"username"`
	ConnectionID string    `json:"connection_id"`
	Members      int       `json:"members"`
	Reconnect    bool      `json:"reconnect,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// StaleConnectionEvent names a connection the idle sweep found silent for
// longer than the idle timeout. The transport closes it.
type StaleConnectionEvent struct {
	ConnectionID string    `json:"connection_id"`
	LastSeen     time.Time `json:"last_seen"`
	Timestamp    time.Time `json:"timestamp"`
}

// Bus topics published by the coordinator.
var (
	TopicRoomCreated     = pubsub.NewEvent[RoomEvent]("session.room.created", "A room was created by its first join")
	TopicRoomEvicted     = pubsub.NewEvent[RoomEvent]("session.room.evicted", "An empty room was deleted after its grace period")
	TopicUserJoined      = pubsub.NewEvent[MembershipEvent]("session.user.joined", "A user joined a room")
	TopicUserLeft        = pubsub.NewEvent[MembershipEvent]("session.user.left", "A user left a room")
	TopicConnectionStale = pubsub.NewEvent[StaleConnectionEvent]("session.connection.stale", "A connection went idle and should be closed")
)

// busEvent is a publish deferred until the coordinator lock is released.
type busEvent func(ctx context.Context, p pubsub.Publisher) error

func publishLater[T any](event pubsub.Event[T], payload T) busEvent {
	return func(ctx context.Context, p pubsub.Publisher) error {
		return pubsub.Publish(ctx, p, event, payload)
	}
}

// Fingerprint returns a short stable identifier for a room key that is safe
// to log and publish.
func Fingerprint(roomKey string) string {
	sum := sha256.Sum256([]byte(roomKey))
	return hex.EncodeToString(sum[:6])
}

// TopicInfo describes one bus topic.
type TopicInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Topics lists every topic the coordinator publishes on.
func Topics() []TopicInfo {
	return []TopicInfo{
		{TopicRoomCreated.Name(), TopicRoomCreated.Description()},
		{TopicRoomEvicted.Name(), TopicRoomEvicted.Description()},
		{TopicUserJoined.Name(), TopicUserJoined.Description()},
		{TopicUserLeft.Name(), TopicUserLeft.Description()},
		{TopicConnectionStale.Name(), TopicConnectionStale.Description()},
	}
}
