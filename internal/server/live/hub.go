// Package live fans saved incident locations out to WebSocket watchers.
package live

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Message types.
const (
	MsgSnapshot = "snapshot"
	MsgLocation = "location"
	MsgStopped  = "stopped"
)

// Message is the envelope written to watchers.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

const sendQueue = 64

// Client is one connected watcher.
type Client struct {
	conn       *websocket.Conn
	incidentID string
	send       chan []byte
}

func newClient(conn *websocket.Conn, incidentID string) *Client {
	c := &Client{
		conn:       conn,
		incidentID: incidentID,
		send:       make(chan []byte, sendQueue),
	}
	go c.writePump()
	return c
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Hub tracks watchers per incident.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*Client]bool)}
}

// Subscribe registers conn as a watcher of incidentID and queues initial as
// its first message.
func (h *Hub) Subscribe(conn *websocket.Conn, incidentID string, initial Message) *Client {
	c := newClient(conn, incidentID)

	data, err := json.Marshal(initial)
	if err != nil {
		slog.Error("live marshal", "err", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[incidentID] == nil {
		h.clients[incidentID] = make(map[*Client]bool)
	}
	h.clients[incidentID][c] = true
	if data != nil {
		// The queue is empty, so this never blocks. Queuing under the lock
		// orders the initial message before any Publish.
		c.send <- data
	}
	return c
}

// Unsubscribe removes c and closes its connection. It is safe to call more
// than once.
func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	watchers := h.clients[c.incidentID]
	if _, ok := watchers[c]; !ok {
		return
	}
	delete(watchers, c)
	if len(watchers) == 0 {
		delete(h.clients, c.incidentID)
	}
	close(c.send)
}

// Publish sends msg to every watcher of incidentID. Watchers that cannot
// keep up are disconnected.
func (h *Hub) Publish(incidentID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("live marshal", "err", err)
		return
	}

	// Sends happen under the read lock so Unsubscribe cannot close a queue
	// mid-send.
	var slow []*Client
	h.mu.RLock()
	for c := range h.clients[incidentID] {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("live watcher too slow, disconnecting", "incident_id", incidentID)
		h.Unsubscribe(c)
	}
}

// Watchers returns the number of watchers of incidentID.
func (h *Hub) Watchers(incidentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[incidentID])
}
