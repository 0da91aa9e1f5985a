package events

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	clientBuffer   = 64
	broadcastQueue = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from arbitrary origins in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub broadcasts events to all connected websocket dashboard clients.
// It implements Publisher; slow clients are dropped rather than allowed to
// stall the broadcast loop.
type Hub struct {
	logger    *zap.Logger
	broadcast chan Event

	mu      sync.Mutex
	clients map[*client]bool
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan Event
}

// NewHub creates a Hub and starts its broadcast loop.
func NewHub(logger *zap.Logger) *Hub {
	h := &Hub{
		logger:    logger,
		broadcast: make(chan Event, broadcastQueue),
		clients:   make(map[*client]bool),
	}
	go h.run()
	return h
}

// Publish queues an event for broadcast. If the queue is full, or the hub is
// already closed, the event is dropped; the dashboard stream is best-effort
// by contract.
func (h *Hub) Publish(eventType string, payload interface{}) {
	ev := Event{Type: eventType, Time: time.Now().UTC(), Payload: payload}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn("events: broadcast queue full, dropping event", zap.String("event_type", eventType))
	}
}

// ServeWS upgrades an HTTP request into a hub subscription.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("events: websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan Event, clientBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = true
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

// Close disconnects all clients and stops the broadcast loop.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()
	close(h.broadcast)
}

func (h *Hub) run() {
	for ev := range h.broadcast {
		h.mu.Lock()
		for c := range h.clients {
			select {
			case c.send <- ev:
			default:
				// Client is not keeping up; drop it.
				close(c.send)
				delete(h.clients, c)
			}
		}
		h.mu.Unlock()
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for ev := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(ev); err != nil {
			h.drop(c)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readPump discards inbound frames; the stream is one-way. Its real job is
// detecting closed connections so the client can be unregistered.
func (h *Hub) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		close(c.send)
		delete(h.clients, c)
	}
	c.conn.Close()
}
