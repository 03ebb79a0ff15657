package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nfrund/chatroom/internal/domain"
	"github.com/nfrund/chatroom/internal/pubsub"
	"github.com/nfrund/chatroom/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockPublisher implements pubsub.Publisher for testing
type mockPublisher struct {
	messages []pubsub.Message
	mu       sync.Mutex
}

func (m *mockPublisher) Publish(ctx context.Context, msg pubsub.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockPublisher) Close() error {
	return nil
}

func (m *mockPublisher) topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.messages))
	for i, msg := range m.messages {
		out[i] = msg.Topic
	}
	return out
}

func (m *mockPublisher) last(topic string) (pubsub.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].Topic == topic {
			return m.messages[i], true
		}
	}
	return pubsub.Message{}, false
}

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time          { return f.now }
func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

// recorder collects dispatched deliveries per connection.
type recorder struct {
	mu  sync.Mutex
	got map[string][]Envelope
}

func newRecorder() *recorder {
	return &recorder{got: make(map[string][]Envelope)}
}

func (r *recorder) Dispatch(d Delivery) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range d.Recipients {
		r.got[id] = append(r.got[id], d.Envelope())
	}
}

func (r *recorder) take(connID string) []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.got[connID]
	delete(r.got, connID)
	return out
}

func (r *recorder) events(connID string) []string {
	envs := r.take(connID)
	out := make([]string, len(envs))
	for i, e := range envs {
		out[i] = e.Event
	}
	return out
}

type harness struct {
	coord *Coordinator
	clock *fakeClock
	out   *recorder
	pub   *mockPublisher
	ids   int
	seen  map[string]bool
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		clock: &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
		out:   newRecorder(),
		pub:   &mockPublisher{},
		seen:  make(map[string]bool),
	}
	base := []Option{
		WithClock(h.clock.Now),
		WithDispatcher(h.out),
		WithPublisher(h.pub),
		WithIDGenerator(func() (string, error) {
			h.ids++
			return fmt.Sprintf("msg-%d", h.ids), nil
		}),
	}
	h.coord = NewCoordinator(append(base, opts...)...)
	return h
}

// send connects connID the first time it is used, the way the gateway does
// before any frame is read.
func (h *harness) send(t *testing.T, connID, event string, payload any) []Delivery {
	t.Helper()
	if !h.seen[connID] {
		h.seen[connID] = true
		h.coord.Connect(connID)
	}
	in, err := NewInbound(event, payload)
	require.NoError(t, err)
	return h.coord.Handle(context.Background(), connID, in)
}

func (h *harness) join(t *testing.T, connID, username, key string) []Delivery {
	t.Helper()
	return h.send(t, connID, EventJoin, domain.JoinRequest{Username: username, SecretKey: key})
}

func find(t *testing.T, envs []Envelope, event string) Envelope {
	t.Helper()
	for _, e := range envs {
		if e.Event == event {
			return e
		}
	}
	t.Fatalf("no %q delivery in %v", event, envs)
	return Envelope{}
}

// wire encodes v the way the gateway does and decodes it into a generic map.
func wire(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func online(names ...string) []domain.MemberView {
	out := make([]domain.MemberView, len(names))
	for i, n := range names {
		out[i] = domain.MemberView{Username: n, Status: domain.MemberStatusOnline}
	}
	return out
}

func TestCoordinator_EndToEnd(t *testing.T) {
	h := newHarness(t)

	// A joins R1 as alice.
	h.join(t, "A", "alice", "R1")
	a := h.out.take("A")
	require.Len(t, a, 1)
	assert.Equal(t, EventJoinSuccess, a[0].Event)
	assert.Equal(t, JoinSuccess{Members: online("alice"), Room: "R1"}, a[0].Data)

	// B joins R1 as bob.
	h.join(t, "B", "bob", "R1")
	a = h.out.take("A")
	require.Len(t, a, 1)
	assert.Equal(t, EventUserJoined, a[0].Event)
	joined := a[0].Data.(PresenceChange)
	assert.Equal(t, "bob", joined.Username)
	assert.Equal(t, online("alice", "bob"), joined.Members)

	b := h.out.take("B")
	require.Len(t, b, 1, "no history replay for an empty room")
	assert.Equal(t, EventJoinSuccess, b[0].Event)
	assert.Equal(t, online("alice", "bob"), b[0].Data.(JoinSuccess).Members)

	// A says hi.
	h.send(t, "A", EventMessage, MessageRequest{Content: domain.TextContent("hi")})
	b = h.out.take("B")
	require.Len(t, b, 1)
	assert.Equal(t, EventMessage, b[0].Event)
	msg := b[0].Data.(domain.Message)
	assert.Equal(t, "alice", msg.Username)
	assert.Equal(t, "hi", msg.Content.Text)
	assert.Equal(t, domain.MessageTypeText, msg.Type)
	assert.Equal(t, domain.StatusSent, msg.Status)

	a = h.out.take("A")
	require.Len(t, a, 1)
	assert.Equal(t, EventMessageSent, a[0].Event)
	assert.Equal(t, MessageSent{ID: msg.ID, Status: domain.StatusDelivered}, a[0].Data)

	// B reacts; both see the update.
	h.send(t, "B", EventReaction, ReactionRequest{MessageID: msg.ID, Emoji: "👍"})
	for _, conn := range []string{"A", "B"} {
		envs := h.out.take(conn)
		require.Len(t, envs, 1, conn)
		assert.Equal(t, EventReactionUpdate, envs[0].Event)
		assert.Equal(t, map[string]any{
			"messageId": msg.ID,
			"reactions": map[string]any{"👍": []any{"bob"}},
			"username":  "bob",
			"emoji":     "👍",
		}, wire(t, envs[0].Data))
	}

	// B disconnects.
	h.send(t, "B", EventDisconnect, DisconnectRequest{Reason: "transport close"})
	a = h.out.take("A")
	require.Len(t, a, 1)
	assert.Equal(t, EventUserLeft, a[0].Event)
	left := a[0].Data.(PresenceChange)
	assert.Equal(t, "bob", left.Username)
	assert.Equal(t, online("alice"), left.Members)
	assert.Empty(t, h.out.take("B"))

	assert.Equal(t, []string{
		TopicRoomCreated.Name(),
		TopicUserJoined.Name(),
		TopicUserJoined.Name(),
		TopicUserLeft.Name(),
	}, h.pub.topics())
}

func TestCoordinator_JoinValidation(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    string
	}{
		{"missing username", domain.JoinRequest{SecretKey: "R1"}, "Username is required"},
		{"whitespace username", domain.JoinRequest{Username: "   ", SecretKey: "R1"}, "Username is required"},
		{"missing key", domain.JoinRequest{Username: "alice"}, "Secret key is required"},
		{"long username", domain.JoinRequest{Username: strings.Repeat("a", 21), SecretKey: "R1"}, "Username must be 20 characters or fewer"},
		{"malformed payload", map[string]any{"username": 42}, "Invalid join request"},
		{"no payload", nil, "Username is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.send(t, "A", EventJoin, tt.payload)

			envs := h.out.take("A")
			require.Len(t, envs, 1)
			assert.Equal(t, EventError, envs[0].Event)
			assert.Equal(t, ErrorPayload{Message: tt.want}, envs[0].Data)
			assert.Equal(t, Stats{Rooms: 0, Connections: 1}, h.coord.Stats())
			assert.Empty(t, h.pub.topics())
		})
	}

	t.Run("twenty multi-byte characters are accepted", func(t *testing.T) {
		h := newHarness(t)
		h.join(t, "A", strings.Repeat("é", 20), "R1")
		assert.Equal(t, []string{EventJoinSuccess}, h.out.events("A"))
	})
}

func TestCoordinator_HistoryReplay(t *testing.T) {
	h := newHarness(t)
	h.join(t, "A", "alice", "R1")
	h.send(t, "A", EventMessage, MessageRequest{Content: domain.TextContent("one")})
	h.send(t, "A", EventMessage, MessageRequest{Content: domain.TextContent("two")})
	h.out.take("A")

	h.join(t, "B", "bob", "R1")
	b := h.out.take("B")
	require.Len(t, b, 2)
	assert.Equal(t, EventMessageHistory, b[0].Event)
	msgs := b[0].Data.([]domain.Message)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Content.Text)
	assert.Equal(t, "two", msgs[1].Content.Text)
	assert.Equal(t, EventJoinSuccess, b[1].Event)
}

func TestCoordinator_Reconnect(t *testing.T) {
	h := newHarness(t)
	h.join(t, "A1", "alice", "R1")
	h.join(t, "B", "bob", "R1")
	h.out.take("A1")
	h.out.take("B")
	before := len(h.coord.Members("R1"))

	h.join(t, "A2", "alice", "R1")
	assert.Equal(t, []string{EventUserJoined}, h.out.events("B"))

	assert.Len(t, h.coord.Members("R1"), before, "reconnect keeps the member count")
	assert.Equal(t, online("bob", "alice"), h.coord.Members("R1"))

	a1 := h.out.take("A1")
	require.Len(t, a1, 1)
	assert.Equal(t, EventError, a1[0].Event)
	assert.Equal(t, ErrorPayload{Message: displacedMessage}, a1[0].Data)

	// The displaced connection no longer speaks for the room.
	h.send(t, "A1", EventMessage, MessageRequest{Content: domain.TextContent("ghost")})
	assert.Empty(t, h.out.take("B"))
	assert.Empty(t, h.out.take("A1"))

	// And its eventual disconnect does not depopulate the room.
	h.coord.Disconnect(context.Background(), "A1", "tab closed")
	assert.Equal(t, online("bob", "alice"), h.coord.Members("R1"))
	assert.Empty(t, h.out.take("B"))

	joined, ok := h.pub.last(TopicUserJoined.Name())
	require.True(t, ok)
	assert.Contains(t, string(joined.Payload), `"reconnect":true`)
}

func TestCoordinator_RejoinDifferentRoom(t *testing.T) {
	h := newHarness(t)
	h.join(t, "A", "alice", "R1")
	h.join(t, "B", "bob", "R1")
	h.out.take("A")
	h.out.take("B")

	h.join(t, "B", "bob", "R2")

	assert.Equal(t, online("alice"), h.coord.Members("R1"))
	assert.Equal(t, online("bob"), h.coord.Members("R2"))
	assert.Equal(t, []string{EventUserLeft}, h.out.events("A"))
	assert.Equal(t, []string{EventJoinSuccess}, h.out.events("B"))
}

func TestCoordinator_Message(t *testing.T) {
	t.Run("not joined is dropped silently", func(t *testing.T) {
		h := newHarness(t)
		out := h.send(t, "A", EventMessage, MessageRequest{Content: domain.TextContent("hi")})
		assert.Empty(t, out)
	})

	t.Run("whitespace content is ignored", func(t *testing.T) {
		h := newHarness(t)
		h.join(t, "A", "alice", "R1")
		h.out.take("A")

		out := h.send(t, "A", EventMessage, MessageRequest{Content: domain.TextContent("  \n\t ")})
		assert.Empty(t, out)
		assert.Empty(t, h.coord.History("R1"))
	})

	t.Run("media content is stored with its type", func(t *testing.T) {
		h := newHarness(t)
		h.join(t, "A", "alice", "R1")
		media := &domain.Media{URL: "/uploads/cat.png", Name: "cat.png", MimeType: "image/png", Size: 12}

		h.send(t, "A", EventMessage, MessageRequest{Content: domain.Content{Media: media}, Type: domain.MessageTypeImage})

		hist := h.coord.History("R1")
		require.Len(t, hist, 1)
		assert.Equal(t, domain.MessageTypeImage, hist[0].Type)
		assert.Equal(t, "/uploads/cat.png", hist[0].Content.Media.URL)
	})

	t.Run("custom type is stored as sent", func(t *testing.T) {
		h := newHarness(t)
		h.join(t, "A", "alice", "R1")
		h.join(t, "B", "bob", "R1")
		h.out.take("A")
		h.out.take("B")

		h.send(t, "A", EventMessage, MessageRequest{Content: domain.TextContent("hi"), Type: "emoji"})
		assert.Equal(t, []string{EventMessageSent}, h.out.events("A"))
		assert.Equal(t, []string{EventMessage}, h.out.events("B"))

		hist := h.coord.History("R1")
		require.Len(t, hist, 1)
		assert.Equal(t, "emoji", hist[0].Type)
	})

	t.Run("whitespace content with a custom type is ignored", func(t *testing.T) {
		h := newHarness(t)
		h.join(t, "A", "alice", "R1")
		h.out.take("A")

		out := h.send(t, "A", EventMessage, MessageRequest{Content: domain.TextContent("   "), Type: "video"})
		assert.Empty(t, out)
		assert.Empty(t, h.coord.History("R1"))
	})

	t.Run("sixth message in a window is rate limited", func(t *testing.T) {
		h := newHarness(t)
		h.join(t, "A", "alice", "R1")
		h.join(t, "B", "bob", "R1")
		h.out.take("A")
		h.out.take("B")

		for i := 0; i < 5; i++ {
			h.send(t, "A", EventMessage, MessageRequest{Content: domain.TextContent(fmt.Sprintf("m%d", i))})
		}
		assert.Len(t, h.out.take("B"), 5)
		h.out.take("A")

		h.send(t, "A", EventMessage, MessageRequest{Content: domain.TextContent("too many")})
		a := h.out.take("A")
		require.Len(t, a, 1)
		assert.Equal(t, ErrorPayload{Message: domain.NewRateLimitError().Message}, a[0].Data)
		assert.Empty(t, h.out.take("B"))
		assert.Equal(t, online("alice", "bob"), h.coord.Members("R1"), "still joined")

		h.clock.Advance(1001 * time.Millisecond)
		h.send(t, "A", EventMessage, MessageRequest{Content: domain.TextContent("again")})
		assert.Equal(t, []string{EventMessage}, h.out.events("B"))
	})

	t.Run("id generation failure leaves state untouched", func(t *testing.T) {
		h := newHarness(t, WithIDGenerator(func() (string, error) {
			return "", errors.New("entropy exhausted")
		}))
		h.join(t, "A", "alice", "R1")
		h.join(t, "B", "bob", "R1")
		h.out.take("A")
		h.out.take("B")

		h.send(t, "A", EventMessage, MessageRequest{Content: domain.TextContent("hi")})

		a := h.out.take("A")
		require.Len(t, a, 1)
		assert.Equal(t, ErrorPayload{Message: domain.NewInternalError().Message}, a[0].Data)
		assert.Empty(t, h.out.take("B"))
		assert.Empty(t, h.coord.History("R1"))
	})

	t.Run("id generation failure does not use up the rate limit", func(t *testing.T) {
		failing := true
		h := newHarness(t, WithIDGenerator(func() (string, error) {
			if failing {
				return "", errors.New("entropy exhausted")
			}
			return "msg-ok", nil
		}))
		h.join(t, "A", "alice", "R1")
		h.join(t, "B", "bob", "R1")
		h.out.take("A")
		h.out.take("B")

		for i := 0; i < ratelimit.DefaultMaxPerWindow; i++ {
			h.send(t, "A", EventMessage, MessageRequest{Content: domain.TextContent("hi")})
		}
		h.out.take("A")

		failing = false
		h.send(t, "A", EventMessage, MessageRequest{Content: domain.TextContent("now")})
		assert.Equal(t, []string{EventMessageSent}, h.out.events("A"))
		assert.Equal(t, []string{EventMessage}, h.out.events("B"))
	})

	t.Run("a panic is reported to the sender only", func(t *testing.T) {
		h := newHarness(t, WithIDGenerator(func() (string, error) {
			panic("boom")
		}))
		h.join(t, "A", "alice", "R1")
		h.join(t, "B", "bob", "R1")
		h.out.take("A")
		h.out.take("B")

		assert.NotPanics(t, func() {
			h.send(t, "A", EventMessage, MessageRequest{Content: domain.TextContent("hi")})
		})
		assert.Equal(t, []string{EventError}, h.out.events("A"))
		assert.Empty(t, h.out.take("B"))

		// Other events keep working.
		h.send(t, "B", EventTyping, nil)
		assert.Equal(t, []string{EventUserTyping}, h.out.events("A"))
	})
}

func TestCoordinator_Reaction(t *testing.T) {
	h := newHarness(t)
	h.join(t, "A", "alice", "R1")
	h.join(t, "B", "bob", "R1")
	h.send(t, "A", EventMessage, MessageRequest{Content: domain.TextContent("hi")})
	id := h.coord.History("R1")[0].ID
	h.out.take("A")
	h.out.take("B")

	t.Run("unknown message is dropped", func(t *testing.T) {
		out := h.send(t, "B", EventReaction, ReactionRequest{MessageID: "nope", Emoji: "👍"})
		assert.Empty(t, out)
	})

	t.Run("missing fields are ignored", func(t *testing.T) {
		assert.Empty(t, h.send(t, "B", EventReaction, ReactionRequest{MessageID: id}))
		assert.Empty(t, h.send(t, "B", EventReaction, ReactionRequest{Emoji: "👍"}))
	})

	t.Run("not joined is ignored", func(t *testing.T) {
		assert.Empty(t, h.send(t, "C", EventReaction, ReactionRequest{MessageID: id, Emoji: "👍"}))
	})

	t.Run("toggle twice restores the map", func(t *testing.T) {
		h.send(t, "B", EventReaction, ReactionRequest{MessageID: id, Emoji: "🎉"})
		up := find(t, h.out.take("A"), EventReactionUpdate).Data.(ReactionUpdate)
		assert.Equal(t, map[string][]string{"🎉": {"bob"}}, up.Reactions.Snapshot())
		h.out.take("B")

		h.send(t, "B", EventReaction, ReactionRequest{MessageID: id, Emoji: "🎉"})
		up = find(t, h.out.take("B"), EventReactionUpdate).Data.(ReactionUpdate)
		assert.Empty(t, up.Reactions)
		assert.Equal(t, map[string]any{}, wire(t, up)["reactions"])
	})
}

func TestCoordinator_Typing(t *testing.T) {
	h := newHarness(t)
	assert.Empty(t, h.send(t, "A", EventTyping, nil), "not joined")

	h.join(t, "A", "alice", "R1")
	h.join(t, "B", "bob", "R1")
	h.out.take("A")
	h.out.take("B")

	h.send(t, "A", EventTyping, nil)
	b := h.out.take("B")
	require.Len(t, b, 1)
	assert.Equal(t, EventUserTyping, b[0].Event)
	assert.Equal(t, "alice", wire(t, b[0].Data)["username"])
	assert.Contains(t, wire(t, b[0].Data), "timestamp")
	assert.Empty(t, h.out.take("A"))

	h.send(t, "A", EventStopTyping, nil)
	b = h.out.take("B")
	require.Len(t, b, 1)
	assert.Equal(t, EventStopTyping, b[0].Event)
	assert.Equal(t, map[string]any{"username": "alice"}, wire(t, b[0].Data))
}

func TestCoordinator_UnknownEvent(t *testing.T) {
	h := newHarness(t)
	h.send(t, "A", "shout", nil)
	a := h.out.take("A")
	require.Len(t, a, 1)
	assert.Equal(t, EventError, a[0].Event)
}

func TestCoordinator_DisconnectIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.join(t, "A", "alice", "R1")
	h.join(t, "B", "bob", "R1")
	h.out.take("A")

	h.coord.Disconnect(context.Background(), "B", "closed")
	assert.Equal(t, []string{EventUserLeft}, h.out.events("A"))

	out := h.coord.Disconnect(context.Background(), "B", "closed")
	assert.Empty(t, out)
	assert.Empty(t, h.out.take("A"))
	assert.Equal(t, Stats{Rooms: 1, Connections: 1}, h.coord.Stats())

	// Never joined and never seen: still safe.
	assert.Empty(t, h.coord.Disconnect(context.Background(), "ghost", ""))
}

func TestCoordinator_IgnoresUnknownConnections(t *testing.T) {
	h := newHarness(t, WithIdleTimeout(time.Minute))
	h.join(t, "A", "alice", "R1")
	h.out.take("A")

	h.coord.Disconnect(context.Background(), "Z", "closed")
	for _, event := range []string{EventUserActivity, EventTyping, EventJoin} {
		in, err := NewInbound(event, domain.JoinRequest{Username: "zed", SecretKey: "R1"})
		require.NoError(t, err)
		assert.Empty(t, h.coord.Handle(context.Background(), "Z", in))
	}

	assert.Equal(t, Stats{Rooms: 1, Connections: 1}, h.coord.Stats())
	assert.Equal(t, 1, h.coord.presence.Len())
	assert.Equal(t, online("alice"), h.coord.Members("R1"))
	assert.Empty(t, h.out.take("A"))

	h.clock.Advance(2 * time.Minute)
	assert.Equal(t, []string{"A"}, h.coord.Tick(context.Background(), h.clock.Now()).StaleConnections)
}

func TestCoordinator_GraceWindow(t *testing.T) {
	t.Run("rejoin within the window keeps history", func(t *testing.T) {
		h := newHarness(t)
		h.join(t, "A", "alice", "R1")
		h.send(t, "A", EventMessage, MessageRequest{Content: domain.TextContent("remember me")})
		h.coord.Disconnect(context.Background(), "A", "blip")

		h.clock.Advance(10 * time.Second)
		h.join(t, "A2", "alice", "R1")
		h.out.take("A2")

		h.clock.Advance(2 * time.Minute)
		res := h.coord.Tick(context.Background(), h.clock.Now())
		assert.Empty(t, res.EvictedRooms)
		assert.Len(t, h.coord.History("R1"), 1)
	})

	t.Run("empty room and its history are deleted after the window", func(t *testing.T) {
		h := newHarness(t)
		h.join(t, "A", "alice", "R1")
		h.send(t, "A", EventMessage, MessageRequest{Content: domain.TextContent("bye")})
		h.coord.Disconnect(context.Background(), "A", "closed")

		due, ok := h.coord.NextDue()
		require.True(t, ok)
		assert.Equal(t, h.clock.Now().Add(60*time.Second), due)

		h.clock.Advance(59 * time.Second)
		assert.Empty(t, h.coord.Tick(context.Background(), h.clock.Now()).EvictedRooms)
		assert.Len(t, h.coord.History("R1"), 1)

		h.clock.Advance(time.Second)
		res := h.coord.Tick(context.Background(), h.clock.Now())
		assert.Equal(t, []string{"R1"}, res.EvictedRooms)
		assert.Empty(t, h.coord.History("R1"))
		assert.Equal(t, 0, h.coord.Stats().Rooms)

		evicted, ok := h.pub.last(TopicRoomEvicted.Name())
		require.True(t, ok)
		assert.Contains(t, string(evicted.Payload), Fingerprint("R1"))
		assert.NotContains(t, string(evicted.Payload), `"R1"`)

		// A later join starts from scratch.
		h.join(t, "B", "bob", "R1")
		assert.Equal(t, []string{EventJoinSuccess}, h.out.events("B"))
	})

	t.Run("custom grace period", func(t *testing.T) {
		h := newHarness(t, WithGracePeriod(5*time.Second))
		h.join(t, "A", "alice", "R1")
		h.coord.Disconnect(context.Background(), "A", "closed")

		h.clock.Advance(5 * time.Second)
		assert.Equal(t, []string{"R1"}, h.coord.Tick(context.Background(), h.clock.Now()).EvictedRooms)
	})
}

func TestCoordinator_IdleSweep(t *testing.T) {
	h := newHarness(t, WithIdleTimeout(time.Minute))
	h.coord.Connect("quiet")
	h.join(t, "A", "alice", "R1")

	h.clock.Advance(45 * time.Second)
	h.send(t, "A", EventUserActivity, nil)

	h.clock.Advance(30 * time.Second)
	res := h.coord.Tick(context.Background(), h.clock.Now())
	assert.Equal(t, []string{"quiet"}, res.StaleConnections)
	assert.True(t, h.coord.IsIdle("quiet"))
	assert.False(t, h.coord.IsIdle("A"))

	stale, ok := h.pub.last(TopicConnectionStale.Name())
	require.True(t, ok)
	var ev StaleConnectionEvent
	require.NoError(t, json.Unmarshal(stale.Payload, &ev))
	assert.Equal(t, "quiet", ev.ConnectionID)

	// The sweep only reports; the transport's close drives the disconnect.
	assert.Equal(t, 2, h.coord.Stats().Connections)
	h.coord.Disconnect(context.Background(), "quiet", "idle timeout")
	assert.Empty(t, h.coord.Tick(context.Background(), h.clock.Now()).StaleConnections)
	assert.False(t, h.coord.IsIdle("quiet"))
}

func TestFingerprint(t *testing.T) {
	assert.Len(t, Fingerprint("R1"), 12)
	assert.Equal(t, Fingerprint("R1"), Fingerprint("R1"))
	assert.NotEqual(t, Fingerprint("R1"), Fingerprint("R2"))
}
