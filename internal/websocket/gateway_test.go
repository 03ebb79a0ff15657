package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatroom/internal/domain"
	"github.com/nfrund/chatroom/internal/pubsub"
	"github.com/nfrund/chatroom/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type testServer struct {
	url   string
	coord *session.Coordinator
	gw    *Gateway
	bus   *pubsub.WatermillBridge
}

func newTestServer(t *testing.T, coordOpts ...session.Option) *testServer {
	t.Helper()

	bus := pubsub.NewWatermillBridge()
	clients := NewClientManager()
	coord := session.NewCoordinator(append([]session.Option{
		session.WithDispatcher(clients),
		session.WithPublisher(bus),
	}, coordOpts...)...)
	gw := NewGateway(clients, coord)

	e := echo.New()
	e.GET("/ws", gw.Handler())
	srv := httptest.NewServer(e)

	t.Cleanup(func() {
		gw.Close()
		srv.Close()
		bus.Close()
	})

	return &testServer{
		url:   "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		coord: coord,
		gw:    gw,
		bus:   bus,
	}
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, s.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{"event": event, "data": data}))
}

// expect reads frames until one with the given event arrives.
func expect(t *testing.T, conn *websocket.Conn, event string) wireEnvelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for {
		var env wireEnvelope
		err := wsjson.Read(ctx, conn, &env)
		require.NoError(t, err, "waiting for %s", event)
		if env.Event == event {
			return env
		}
	}
}

func TestGateway_JoinAndMessage(t *testing.T) {
	s := newTestServer(t)
	alice := s.dial(t)
	bob := s.dial(t)

	send(t, alice, session.EventJoin, map[string]string{"username": "alice", "secretKey": "R1"})
	expect(t, alice, session.EventJoinSuccess)

	send(t, bob, session.EventJoin, map[string]string{"username": "bob", "secretKey": "R1"})
	joined := expect(t, alice, session.EventUserJoined)
	assert.Contains(t, string(joined.Data), `"username":"bob"`)
	expect(t, bob, session.EventJoinSuccess)

	send(t, alice, session.EventMessage, map[string]string{"content": "hi"})
	env := expect(t, bob, session.EventMessage)
	var msg domain.Message
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, "alice", msg.Username)
	assert.Equal(t, "hi", msg.Content.Text)

	ack := expect(t, alice, session.EventMessageSent)
	assert.Contains(t, string(ack.Data), `"status":"delivered"`)
	assert.Contains(t, string(ack.Data), msg.ID)

	assert.Equal(t, 2, s.gw.Count())
}

func TestGateway_RejectsBadFrames(t *testing.T) {
	s := newTestServer(t)
	conn := s.dial(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("not json")))
	env := expect(t, conn, session.EventError)
	assert.Contains(t, string(env.Data), "Malformed event")

	send(t, conn, session.EventJoinSuccess, map[string]string{"room": "R1"})
	env = expect(t, conn, session.EventError)
	assert.Contains(t, string(env.Data), "Unknown event")

	require.NoError(t, conn.Write(ctx, websocket.MessageBinary, []byte{1, 2, 3}))
	env = expect(t, conn, session.EventError)
	assert.Contains(t, string(env.Data), "Only text frames")
}

func TestGateway_DisconnectNotifiesRoom(t *testing.T) {
	s := newTestServer(t)
	alice := s.dial(t)
	bob := s.dial(t)

	send(t, alice, session.EventJoin, map[string]string{"username": "alice", "secretKey": "R1"})
	expect(t, alice, session.EventJoinSuccess)
	send(t, bob, session.EventJoin, map[string]string{"username": "bob", "secretKey": "R1"})
	expect(t, bob, session.EventJoinSuccess)

	t.Run("client sends disconnect", func(t *testing.T) {
		send(t, bob, session.EventDisconnect, map[string]string{"reason": "leaving"})
		// Keep reading so the close handshake can complete.
		bob.CloseRead(context.Background())
		left := expect(t, alice, session.EventUserLeft)
		assert.Contains(t, string(left.Data), `"username":"bob"`)
	})

	t.Run("socket closes", func(t *testing.T) {
		carol := s.dial(t)
		send(t, carol, session.EventJoin, map[string]string{"username": "carol", "secretKey": "R1"})
		expect(t, carol, session.EventJoinSuccess)
		expect(t, alice, session.EventUserJoined)

		require.NoError(t, carol.Close(websocket.StatusNormalClosure, "bye"))
		left := expect(t, alice, session.EventUserLeft)
		assert.Contains(t, string(left.Data), `"username":"carol"`)
	})

	assert.Eventually(t, func() bool {
		return s.coord.Stats().Connections == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGateway_ClosesIdleConnections(t *testing.T) {
	s := newTestServer(t, session.WithIdleTimeout(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.gw.WatchStale(ctx, s.bus))

	idle := s.dial(t)
	require.Eventually(t, func() bool { return s.gw.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	time.Sleep(40 * time.Millisecond)
	res := s.coord.Tick(ctx, s.coord.Now())
	require.Len(t, res.StaleConnections, 1)

	readCtx, readCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer readCancel()
	_, _, err := idle.Read(readCtx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))

	assert.Eventually(t, func() bool {
		return s.coord.Stats().Connections == 0 && s.gw.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGateway_CloseShutsDownClients(t *testing.T) {
	s := newTestServer(t)
	conn := s.dial(t)
	require.Eventually(t, func() bool { return s.gw.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	go s.gw.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

func TestWithAllowedOrigins(t *testing.T) {
	g := NewGateway(NewClientManager(), nil, WithAllowedOrigins([]string{"https://chat.example.com", " ", "localhost:3000"}))
	assert.False(t, g.skipVerify)
	assert.Equal(t, []string{"chat.example.com", "localhost:3000"}, g.originPatterns)

	g = NewGateway(NewClientManager(), nil, WithAllowedOrigins([]string{"*"}))
	assert.True(t, g.skipVerify)
	assert.Empty(t, g.originPatterns)
}
