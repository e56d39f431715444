package events

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second // time allowed to read the next pong
	pingPeriod = 30 * time.Second // must be < pongWait
	writeWait  = 10 * time.Second // time allowed to write a frame
	sendBuffer = 256              // per-client outbound buffer
)

// The observer feed is public; any origin may connect.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub streams live world events to websocket observers. The feed is strictly
// one-way: client frames are read only to service pings and detect closes.
type Hub struct {
	bus *Bus

	mu      sync.Mutex
	clients map[*wsClient]bool
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewHub creates a hub and starts pumping bus events to clients.
func NewHub(bus *Bus) *Hub {
	h := &Hub{bus: bus, clients: make(map[*wsClient]bool)}
	go h.run()
	return h
}

func (h *Hub) run() {
	ch := h.bus.Subscribe()
	for env := range ch {
		payload, err := env.JSON()
		if err != nil {
			slog.Warn("event envelope marshal failed", "event_id", env.ID, "error", err)
			continue
		}
		h.mu.Lock()
		for c := range h.clients {
			select {
			case c.send <- payload:
			default:
				// Slow observer; drop the frame rather than block the feed.
			}
		}
		h.mu.Unlock()
	}
}

// ServeWS upgrades the request and attaches the client to the live feed.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &wsClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()
	slog.Info("observer connected", "observers", count)

	// writePump owns all writes, readPump owns all reads.
	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected observers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.hub.mu.Lock()
		delete(c.hub.clients, c)
		c.hub.mu.Unlock()
		c.conn.Close()
		slog.Info("observer disconnected")
	})
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsClient) readPump() {
	defer c.close()
	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		// Frames from observers are discarded; the feed is one-way.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
