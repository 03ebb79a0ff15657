package websocket

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Client represents a single connected WebSocket client.
type Client struct {
	// ID is the connection id handed to the session coordinator.
	ID   string
	conn *websocket.Conn
	send chan []byte

	mu          sync.RWMutex
	closeReason string
	closeOnce   sync.Once
}

func newClient(id string, conn *websocket.Conn, buffer int) *Client {
	return &Client{
		ID:   id,
		conn: conn,
		send: make(chan []byte, buffer),
	}
}

// SendMessage queues msg for the write pump without blocking.
// It uses a read lock to ensure the channel is not closed concurrently.
func (c *Client) SendMessage(msg []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// If the channel is nil, it means the client is disconnected.
	if c.send == nil {
		return false
	}

	select {
	case c.send <- msg:
		return true
	default:
		slog.Warn("Client send channel full, dropping message", "connection_id", c.ID)
		return false
	}
}

// Close records why the connection is ending and closes the socket, which
// unblocks the read pump. Only the first reason is kept.
func (c *Client) Close(status websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeReason = reason
		c.mu.Unlock()
		if c.conn != nil {
			_ = c.conn.Close(status, reason)
		}
	})
}

// CloseReason returns the reason passed to the first Close call.
func (c *Client) CloseReason() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closeReason
}

// stopSending closes the send channel so the write pump exits.
func (c *Client) stopSending() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.send != nil {
		close(c.send)
		c.send = nil
	}
}
