package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/nfrund/chatroom/internal/domain"
)

// displacedMessage is sent to a connection whose membership was taken over by
// a newer join with the same username.
const displacedMessage = "You joined this room from another connection."

type outcome struct {
	deliveries []Delivery
	events     []busEvent
}

func (o *outcome) merge(other outcome) {
	o.deliveries = append(o.deliveries, other.deliveries...)
	o.events = append(o.events, other.events...)
}

func (o *outcome) add(d Delivery) {
	o.deliveries = append(o.deliveries, d)
}

// route dispatches in to its handler. Every handler finishes its fallible
// work (decoding, validation, id generation) before it mutates any state.
func (c *Coordinator) route(connID string, in Inbound, now time.Time) (outcome, error) {
	if in.Event == EventDisconnect {
		var req DisconnectRequest
		_ = in.decode(&req)
		return c.disconnect(connID, req.Reason, now), nil
	}

	// Only Connect creates records. An event from an id that never connected,
	// or already disconnected, must not resurrect it.
	conn, ok := c.conns[connID]
	if !ok {
		return outcome{}, fmt.Errorf("connection %s: %w", connID, domain.ErrNotFound)
	}
	c.presence.Touch(connID, now)

	switch in.Event {
	case EventJoin:
		return c.join(conn, in, now)
	case EventMessage:
		return c.message(conn, in, now)
	case EventReaction:
		return c.reaction(conn, in)
	case EventTyping:
		return c.typing(conn, now, true)
	case EventStopTyping:
		return c.typing(conn, now, false)
	case EventUserActivity:
		return outcome{}, nil
	default:
		return outcome{}, domain.NewValidationError(fmt.Sprintf("Unknown event %q", in.Event))
	}
}

// failure maps a handler error to what the originating connection sees.
func (c *Coordinator) failure(connID, event string, err error) []Delivery {
	switch {
	case errors.Is(err, domain.ErrNotJoined), errors.Is(err, domain.ErrNotFound):
		c.logger.Debug("Dropped event", "event", event, "connection_id", connID, "reason", err)
		return nil
	case errors.Is(err, domain.ErrValidation):
		return []Delivery{errorDelivery(connID, err)}
	case errors.Is(err, domain.ErrRateLimited):
		c.metrics.RateLimited()
		return []Delivery{errorDelivery(connID, err)}
	default:
		c.logger.Error("Failed to handle event", "event", event, "connection_id", connID, "error", err)
		c.metrics.HandlerFailed()
		return []Delivery{errorDelivery(connID, domain.NewInternalError())}
	}
}

func (c *Coordinator) join(conn *Connection, in Inbound, now time.Time) (outcome, error) {
	var req domain.JoinRequest
	if err := in.decode(&req); err != nil {
		return outcome{}, domain.NewValidationError("Invalid join request")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return outcome{}, err
	}

	var res outcome
	if conn.joined() {
		res.merge(c.leave(conn, "rejoin", now))
	}

	key := req.SecretKey
	jr := c.rooms.Join(key, req.Username, conn.ID, now)
	if !c.history.Exists(key) {
		c.history.Create(key)
	}
	conn.Username = req.Username
	conn.RoomKey = key
	conn.JoinedAt = now

	if jr.Displaced != "" {
		if old, ok := c.conns[jr.Displaced]; ok {
			old.RoomKey = ""
			old.Username = ""
		}
		res.add(Delivery{
			Event:      EventError,
			Data:       ErrorPayload{Message: displacedMessage},
			Target:     ToConnection,
			Recipients: []string{jr.Displaced},
		})
	}

	if msgs := c.history.Get(key); len(msgs) > 0 {
		res.add(toSender(conn, EventMessageHistory, msgs))
	}
	res.add(c.toOthers(conn, EventUserJoined, PresenceChange{
		Username:  conn.Username,
		Members:   jr.Members,
		Timestamp: now.UTC(),
	}))
	res.add(toSender(conn, EventJoinSuccess, JoinSuccess{Members: jr.Members, Room: key}))

	room := Fingerprint(key)
	if jr.Created {
		res.events = append(res.events, publishLater(TopicRoomCreated, RoomEvent{Room: room, Timestamp: now.UTC()}))
	}
	res.events = append(res.events, publishLater(TopicUserJoined, MembershipEvent{
		Room:         room,
		Username:     conn.Username,
		ConnectionID: conn.ID,
		Members:      len(jr.Members),
		Reconnect:    jr.Reconnect,
		Timestamp:    now.UTC(),
	}))

	c.metrics.Joined(jr.Reconnect)
	c.logger.Info("User joined room",
		"username", conn.Username,
		"room", room,
		"members", len(jr.Members),
		"reconnect", jr.Reconnect)
	return res, nil
}

func (c *Coordinator) message(conn *Connection, in Inbound, now time.Time) (outcome, error) {
	if !conn.joined() {
		return outcome{}, domain.ErrNotJoined
	}

	var req MessageRequest
	if err := in.decode(&req); err != nil {
		return outcome{}, domain.NewValidationError("Invalid message payload")
	}
	// The type is a client tag stored as sent.
	msgType := req.Type
	if msgType == "" {
		msgType = domain.MessageTypeText
	}

	empty := req.Content.IsEmpty()
	var id string
	if !empty {
		var err error
		if id, err = c.newID(); err != nil {
			return outcome{}, fmt.Errorf("generate message id: %w", err)
		}
	}

	// Empty messages count against the window too.
	if !c.limiter.Allow(conn.ID, now) {
		return outcome{}, domain.NewRateLimitError()
	}
	if empty {
		return outcome{}, nil
	}

	msg := domain.Message{
		ID:        id,
		Username:  conn.Username,
		Content:   req.Content,
		Type:      msgType,
		Timestamp: now.UTC(),
		Reactions: domain.Reactions{},
		Status:    domain.StatusSent,
	}
	c.history.Append(conn.RoomKey, msg)
	c.metrics.MessageStored()

	var res outcome
	res.add(c.toOthers(conn, EventMessage, msg.Clone()))
	res.add(toSender(conn, EventMessageSent, MessageSent{ID: id, Status: domain.StatusDelivered}))
	return res, nil
}

func (c *Coordinator) reaction(conn *Connection, in Inbound) (outcome, error) {
	if !conn.joined() {
		return outcome{}, domain.ErrNotJoined
	}
	var req ReactionRequest
	if err := in.decode(&req); err != nil || req.MessageID == "" || req.Emoji == "" {
		return outcome{}, nil
	}

	reactions, err := c.history.ToggleReaction(conn.RoomKey, req.MessageID, req.Emoji, conn.Username)
	if err != nil {
		return outcome{}, err
	}
	c.metrics.ReactionToggled()

	var res outcome
	res.add(Delivery{
		Event: EventReactionUpdate,
		Data: ReactionUpdate{
			MessageID: req.MessageID,
			Reactions: reactions,
			Username:  conn.Username,
			Emoji:     req.Emoji,
		},
		Target:     ToRoom,
		Recipients: c.rooms.Recipients(conn.RoomKey, ""),
	})
	return res, nil
}

func (c *Coordinator) typing(conn *Connection, now time.Time, started bool) (outcome, error) {
	if !conn.joined() {
		return outcome{}, domain.ErrNotJoined
	}

	var res outcome
	if started {
		ts := now.UTC()
		res.add(c.toOthers(conn, EventUserTyping, TypingIndicator{Username: conn.Username, Timestamp: &ts}))
	} else {
		res.add(c.toOthers(conn, EventStopTyping, TypingIndicator{Username: conn.Username}))
	}
	return res, nil
}

// disconnect forgets connID entirely. Calling it again is a no-op.
func (c *Coordinator) disconnect(connID, reason string, now time.Time) outcome {
	c.presence.Remove(connID)
	c.limiter.Remove(connID)

	conn, ok := c.conns[connID]
	if !ok {
		return outcome{}
	}
	delete(c.conns, connID)

	if !conn.joined() {
		return outcome{}
	}
	return c.leave(conn, reason, now)
}

// leave removes conn from its room, tells the remaining members, and unbinds
// the connection.
func (c *Coordinator) leave(conn *Connection, reason string, now time.Time) outcome {
	username := conn.Username
	conn.RoomKey = ""
	conn.Username = ""

	lr, err := c.rooms.Leave(conn.ID, now)
	if err != nil {
		return outcome{}
	}

	var res outcome
	res.add(Delivery{
		Event: EventUserLeft,
		Data: PresenceChange{
			Username:  lr.Username,
			Members:   lr.Members,
			Timestamp: now.UTC(),
		},
		Target:     ToOthers,
		Recipients: c.rooms.Recipients(lr.RoomKey, conn.ID),
	})

	room := Fingerprint(lr.RoomKey)
	res.events = append(res.events, publishLater(TopicUserLeft, MembershipEvent{
		Room:         room,
		Username:     lr.Username,
		ConnectionID: conn.ID,
		Members:      len(lr.Members),
		Reason:       reason,
		Timestamp:    now.UTC(),
	}))

	c.logger.Info("User disconnected",
		"username", username,
		"room", room,
		"reason", reason,
		"members", len(lr.Members),
		"pending_eviction", lr.Empty)
	return res
}

func toSender(conn *Connection, event string, data any) Delivery {
	return Delivery{Event: event, Data: data, Target: ToSender, Recipients: []string{conn.ID}}
}

func (c *Coordinator) toOthers(conn *Connection, event string, data any) Delivery {
	return Delivery{
		Event:      event,
		Data:       data,
		Target:     ToOthers,
		Recipients: c.rooms.Recipients(conn.RoomKey, conn.ID),
	}
}

func errorDelivery(connID string, err error) Delivery {
	return Delivery{
		Event:      EventError,
		Data:       ErrorPayload{Message: domain.ClientMessage(err)},
		Target:     ToSender,
		Recipients: []string{connID},
	}
}
