package services

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocketMessage is sent to dashboard viewers
type WebSocketMessage struct {
	Type      string      `json:"type"` // "frame", "snapshot", "status", "pong", "error"
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// ClientConnection represents a connected viewer
type ClientConnection struct {
	ID     string
	Viewer string
	Conn   *websocket.Conn
	Send   chan WebSocketMessage
	Close  chan bool
}

// NewClientConnection wraps an upgraded viewer connection
func NewClientConnection(conn *websocket.Conn, viewer string) *ClientConnection {
	return &ClientConnection{
		ID:     uuid.NewString(),
		Viewer: viewer,
		Conn:   conn,
		Send:   make(chan WebSocketMessage, 256),
		Close:  make(chan bool),
	}
}

// ViewerHub fans chart frames and snapshots out to dashboard viewers
type ViewerHub struct {
	clients    map[string]*ClientConnection
	broadcast  chan WebSocketMessage
	register   chan *ClientConnection
	unregister chan string
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	welcome    func() []WebSocketMessage
	telemetry  *Telemetry
}

// NewViewerHub creates and starts a hub. welcome returns the messages a
// new viewer receives before live updates.
func NewViewerHub(welcome func() []WebSocketMessage, telemetry *Telemetry) *ViewerHub {
	h := &ViewerHub{
		clients:    make(map[string]*ClientConnection),
		broadcast:  make(chan WebSocketMessage, 256),
		register:   make(chan *ClientConnection),
		unregister: make(chan string),
		done:       make(chan struct{}),
		welcome:    welcome,
		telemetry:  telemetry,
	}
	go h.run()
	return h
}

// run manages the hub's event loop
func (h *ViewerHub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.Send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			n := len(h.clients)
			h.mu.Unlock()
			h.telemetry.SetViewers(n)
			log.Printf("[HUB] Viewer connected: %s (%s, total: %d)", client.ID, client.Viewer, n)

			if h.welcome != nil {
				for _, msg := range h.welcome() {
					select {
					case client.Send <- msg:
					default:
					}
				}
			}

		case clientID := <-h.unregister:
			h.mu.Lock()
			if client, exists := h.clients[clientID]; exists {
				delete(h.clients, clientID)
				close(client.Send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.telemetry.SetViewers(n)
			log.Printf("[HUB] Viewer disconnected: %s (total: %d)", clientID, n)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.clients {
				select {
				case client.Send <- msg:
				default:
					// Viewer is too slow, it will catch up on the next frame
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a viewer
func (h *ViewerHub) Register(client *ClientConnection) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

// Unregister removes a viewer
func (h *ViewerHub) Unregister(clientID string) {
	select {
	case h.unregister <- clientID:
	case <-h.done:
	}
}

// Broadcast queues msg for every viewer without blocking
func (h *ViewerHub) Broadcast(msg WebSocketMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- msg:
	default:
		log.Printf("[HUB] Broadcast queue full, dropping %s", msg.Type)
	}
}

// Count returns the number of connected viewers
func (h *ViewerHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop disconnects all viewers and ends the loop
func (h *ViewerHub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}
