package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/nfrund/chatroom/internal/session"
)

// ClientManager tracks live clients by connection id and delivers session
// output to them. It implements session.Dispatcher.
type ClientManager struct {
	clients map[string]*Client
	mu      sync.RWMutex
}

// NewClientManager creates a new ClientManager.
func NewClientManager() *ClientManager {
	return &ClientManager{
		clients: make(map[string]*Client),
	}
}

// Add registers a new client.
func (m *ClientManager) Add(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[client.ID] = client
}

// Remove unregisters a client and stops its write pump.
func (m *ClientManager) Remove(clientID string) {
	m.mu.Lock()
	client, ok := m.clients[clientID]
	delete(m.clients, clientID)
	m.mu.Unlock()

	if ok {
		client.stopSending()
	}
}

// Get returns the client with the given connection id.
func (m *ClientManager) Get(clientID string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, ok := m.clients[clientID]
	return client, ok
}

// GetAll returns all currently connected clients.
func (m *ClientManager) GetAll() []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()

	allClients := make([]*Client, 0, len(m.clients))
	for _, client := range m.clients {
		allClients = append(allClients, client)
	}
	return allClients
}

// Count returns the number of connected clients.
func (m *ClientManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Dispatch encodes d once and queues it for every recipient that is still
// connected. It never blocks.
func (m *ClientManager) Dispatch(d session.Delivery) {
	payload, err := json.Marshal(d.Envelope())
	if err != nil {
		slog.Error("Failed to encode delivery", "event", d.Event, "error", err)
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range d.Recipients {
		if client, ok := m.clients[id]; ok {
			client.SendMessage(payload)
		}
	}
}
