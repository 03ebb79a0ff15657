package session

import (
	"context"
	"log/slog"

	"github.com/nfrund/chatroom/internal/pubsub"
)

// AuditSubscriber logs room lifecycle events published on the bus.
type AuditSubscriber struct {
	sub    pubsub.Subscriber
	logger *slog.Logger
}

// NewAuditSubscriber creates an audit subscriber reading from sub.
func NewAuditSubscriber(sub pubsub.Subscriber) *AuditSubscriber {
	return &AuditSubscriber{
		sub:    sub,
		logger: slog.Default().With("component", "audit"),
	}
}

// Start subscribes to the room and membership topics.
func (a *AuditSubscriber) Start(ctx context.Context) error {
	rooms := map[pubsub.Event[RoomEvent]]string{
		TopicRoomCreated: "Room created",
		TopicRoomEvicted: "Room evicted",
	}
	for event, msg := range rooms {
		if err := pubsub.Subscribe(ctx, a.sub, event, func(ctx context.Context, ev RoomEvent) error {
			a.logger.Info(msg, "topic", event.Name(), "room", ev.Room, "at", ev.Timestamp)
			return nil
		}); err != nil {
			return err
		}
	}

	members := map[pubsub.Event[MembershipEvent]]string{
		TopicUserJoined: "Member joined",
		TopicUserLeft:   "Member left",
	}
	for event, msg := range members {
		if err := pubsub.Subscribe(ctx, a.sub, event, func(ctx context.Context, ev MembershipEvent) error {
			a.logger.Info(msg,
				"topic", event.Name(),
				"room", ev.Room,
				"username", ev.Username,
				"members", ev.Members,
				"reconnect", ev.Reconnect,
				"reason", ev.Reason)
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}
