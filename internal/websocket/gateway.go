// Package websocket is the transport in front of the session coordinator. It
// accepts WebSocket connections, decodes inbound event envelopes, and writes
// out the deliveries the coordinator dispatches.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatroom/internal/pubsub"
	"github.com/nfrund/chatroom/internal/session"
)

const (
	// DefaultPingInterval is how often the server pings each client.
	DefaultPingInterval = 54 * time.Second
	// DefaultReadLimit caps the size of one inbound frame.
	DefaultReadLimit = 64 << 10
	// DefaultSendBuffer is how many outbound frames may queue per client.
	DefaultSendBuffer = 256

	writeTimeout = 10 * time.Second
)

// Close reasons reported to the coordinator.
const (
	ReasonClientClosed = "client closed"
	ReasonIdleTimeout  = "idle timeout"
	ReasonShutdown     = "server shutdown"
	ReasonWriteFailed  = "write failed"
)

// SessionHandler is the part of the session coordinator the gateway drives.
type SessionHandler interface {
	Connect(connID string)
	Handle(ctx context.Context, connID string, in session.Inbound) []session.Delivery
	Disconnect(ctx context.Context, connID, reason string) []session.Delivery
	IsIdle(connID string) bool
}

// Gateway owns the live WebSocket connections.
type Gateway struct {
	clients  *ClientManager
	sessions SessionHandler
	allowed  *eventWhitelist
	logger   *slog.Logger

	originPatterns []string
	skipVerify     bool
	readLimit      int64
	sendBuffer     int
	pingInterval   time.Duration
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithAllowedOrigins restricts which browser origins may connect. A single
// "*" (the default) accepts any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(g *Gateway) {
		g.originPatterns = nil
		g.skipVerify = false
		for _, o := range origins {
			o = strings.TrimSpace(o)
			if o == "" {
				continue
			}
			if o == "*" {
				g.skipVerify = true
				continue
			}
			if u, err := url.Parse(o); err == nil && u.Host != "" {
				o = u.Host
			}
			g.originPatterns = append(g.originPatterns, o)
		}
	}
}

// WithReadLimit caps the size of inbound frames.
func WithReadLimit(n int64) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.readLimit = n
		}
	}
}

// WithSendBuffer sets the per-client outbound queue length.
func WithSendBuffer(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.sendBuffer = n
		}
	}
}

// WithPingInterval sets how often clients are pinged.
func WithPingInterval(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.pingInterval = d
		}
	}
}

// WithWhitelist replaces the set of events clients may send.
func WithWhitelist(w *eventWhitelist) Option {
	return func(g *Gateway) {
		g.allowed = w
	}
}

// NewGateway creates a gateway that feeds sessions and writes to the clients
// registered in clients. clients must also be the coordinator's dispatcher.
func NewGateway(clients *ClientManager, sessions SessionHandler, opts ...Option) *Gateway {
	g := &Gateway{
		clients:      clients,
		sessions:     sessions,
		allowed:      DefaultEventWhitelist(),
		logger:       slog.Default().With("component", "gateway"),
		skipVerify:   true,
		readLimit:    DefaultReadLimit,
		sendBuffer:   DefaultSendBuffer,
		pingInterval: DefaultPingInterval,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Handler returns an echo.HandlerFunc that upgrades the request and serves the
// connection until it closes.
func (g *Gateway) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
			InsecureSkipVerify: g.skipVerify,
			OriginPatterns:     g.originPatterns,
		})
		if err != nil {
			g.logger.Warn("Failed to upgrade connection to WebSocket", "error", err)
			// Accept has already written the HTTP error response.
			return nil
		}
		conn.SetReadLimit(g.readLimit)

		client := newClient(uuid.NewString(), conn, g.sendBuffer)
		g.clients.Add(client)
		g.sessions.Connect(client.ID)
		g.logger.Debug("Client connected", "connection_id", client.ID, "remote_addr", c.RealIP())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go g.writePump(ctx, client)
		reason := g.readPump(ctx, client)

		// This is the only place a connection is reported as gone.
		g.clients.Remove(client.ID)
		g.sessions.Disconnect(context.Background(), client.ID, reason)
		client.Close(websocket.StatusNormalClosure, reason)
		g.logger.Debug("Client disconnected", "connection_id", client.ID, "reason", reason)
		return nil
	}
}

// readPump decodes inbound envelopes until the connection fails and returns
// the disconnect reason.
func (g *Gateway) readPump(ctx context.Context, client *Client) string {
	for {
		typ, data, err := client.conn.Read(ctx)
		if err != nil {
			if reason := client.CloseReason(); reason != "" {
				return reason
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return ReasonClientClosed
			}
			if !errors.Is(err, context.Canceled) {
				g.logger.Debug("WebSocket read ended", "connection_id", client.ID, "error", err)
			}
			return "transport error"
		}
		if typ != websocket.MessageText {
			g.reject(client, "Only text frames are supported")
			continue
		}

		var in session.Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			g.reject(client, "Malformed event")
			continue
		}
		if !g.allowed.IsAllowed(in.Event) {
			g.reject(client, "Unknown event")
			continue
		}
		if in.Event == session.EventDisconnect {
			// A client-initiated disconnect ends the connection; the
			// coordinator hears about it once, when the read loop exits.
			var req session.DisconnectRequest
			_ = json.Unmarshal(in.Data, &req)
			reason := req.Reason
			if reason == "" {
				reason = ReasonClientClosed
			}
			client.Close(websocket.StatusNormalClosure, reason)
			return reason
		}

		g.sessions.Handle(ctx, client.ID, in)
	}
}

// writePump writes queued frames and pings until the send channel closes.
func (g *Gateway) writePump(ctx context.Context, client *Client) {
	ticker := time.NewTicker(g.pingInterval)
	defer ticker.Stop()

	client.mu.RLock()
	send := client.send
	client.mu.RUnlock()

	for {
		select {
		case msg, ok := <-send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := client.conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				g.logger.Debug("WebSocket write error", "connection_id", client.ID, "error", err)
				client.Close(websocket.StatusInternalError, ReasonWriteFailed)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := client.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				client.Close(websocket.StatusGoingAway, "ping failed")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) reject(client *Client, message string) {
	payload, err := json.Marshal(session.Envelope{
		Event: session.EventError,
		Data:  session.ErrorPayload{Message: message},
	})
	if err == nil {
		client.SendMessage(payload)
	}
}

// WatchStale closes connections named by the idle sweep. Each connection is
// re-checked first since it may have spoken since the sweep ran.
func (g *Gateway) WatchStale(ctx context.Context, sub pubsub.Subscriber) error {
	return pubsub.Subscribe(ctx, sub, session.TopicConnectionStale, func(ctx context.Context, ev session.StaleConnectionEvent) error {
		client, ok := g.clients.Get(ev.ConnectionID)
		if !ok {
			return nil
		}
		if !g.sessions.IsIdle(ev.ConnectionID) {
			g.logger.Debug("Connection active again, not closing", "connection_id", ev.ConnectionID)
			return nil
		}
		g.logger.Info("Closing idle connection", "connection_id", ev.ConnectionID, "last_seen", ev.LastSeen)
		client.Close(websocket.StatusPolicyViolation, ReasonIdleTimeout)
		return nil
	})
}

// Count returns the number of open connections.
func (g *Gateway) Count() int { return g.clients.Count() }

// Close closes every open connection. Their handlers report the disconnects.
func (g *Gateway) Close() {
	for _, client := range g.clients.GetAll() {
		client.Close(websocket.StatusGoingAway, ReasonShutdown)
	}
}
