package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/headrun/internal/log"
)

// Message types broadcast on /api/events.
const (
	MessageGesture           = "gesture"
	MessageStats             = "stats"
	MessageCalibrated        = "calibrated"
	MessageCalibrationFailed = "calibration_failed"
	MessageDegraded          = "degraded"
)

const (
	sendBuffer   = 32
	writeTimeout = time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Message is the envelope written to every websocket client.
type Message struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// client queues events and the latest stats frame separately, so a flood of
// stats never crowds out a gesture.
type client struct {
	conn  *websocket.Conn
	send  chan []byte
	stats chan []byte
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		stats: make(chan []byte, 1),
	}
}

// Hub fans pipeline events out to connected websocket clients. Each client
// has its own buffered writer that drains events before stats. Only the
// newest stats frame is kept; an event is dropped only when a client's event
// buffer is full.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// ServeHTTP upgrades the request and registers the connection until the
// client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(conn)
	if !h.register(c) {
		conn.Close()
		return
	}
	log.Debug("websocket client connected", "remote", r.RemoteAddr)

	go c.writeLoop()

	// Inbound messages are ignored; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.unregister(c)
	log.Debug("websocket client disconnected", "remote", r.RemoteAddr)
}

func (c *client) writeLoop() {
	defer c.conn.Close()
	for {
		msg, ok := c.next()
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// next blocks for the next message, preferring queued events over stats.
// It returns false once send is closed.
func (c *client) next() ([]byte, bool) {
	select {
	case msg, ok := <-c.send:
		return msg, ok
	default:
	}
	select {
	case msg, ok := <-c.send:
		return msg, ok
	case msg := <-c.stats:
		return msg, true
	}
}

// offer queues msg without blocking. Stats replace an unsent stats frame.
func (c *client) offer(msgType string, msg []byte) bool {
	if msgType == MessageStats {
		select {
		case <-c.stats:
		default:
		}
		select {
		case c.stats <- msg:
		default:
		}
		return true
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Broadcast sends a message of msgType carrying data to every client.
func (h *Hub) Broadcast(msgType string, data any) error {
	msg, err := json.Marshal(Message{Type: msgType, At: time.Now().UTC(), Data: data})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.offer(msgType, msg) {
			log.Warn("websocket client too slow, dropping message", "type", msgType)
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
