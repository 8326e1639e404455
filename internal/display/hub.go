package display

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vaidashi/bakery-production/internal/notify"
	"github.com/vaidashi/bakery-production/internal/production"
	"github.com/vaidashi/bakery-production/internal/timer"
	"github.com/vaidashi/bakery-production/pkg/logger"
)

// Message types pushed to kitchen screens
const (
	MessageBoard        = "board"
	MessageNotification = "notification"
	MessageTimers       = "timers"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4 * 1024
	sendBuffer     = 256
)

// Envelope is every message sent over the socket
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// displays are served from other origins on the kitchen network
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub pushes board snapshots, countdowns and toasts to every connected
// display. It is a board subscriber and a notification sink.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	last    []byte
	logger  logger.Logger
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewHub creates an empty hub
func NewHub(logger logger.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger,
	}
}

// ServeWS upgrades the request and registers the display. A new display
// gets the latest board straight away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)

	if err != nil {
		h.logger.Warn("Failed to upgrade display connection", "error", err)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	last := h.last
	h.mu.Unlock()

	if last != nil {
		c.send <- last
	}

	h.logger.Info("Display connected", "remote", r.RemoteAddr, "clients", h.ClientCount())

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected displays
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// BoardChanged sends the new board to every display
func (h *Hub) BoardChanged(view production.BoardView) {
	data, ok := h.encode(MessageBoard, view)

	if !ok {
		return
	}

	h.mu.Lock()
	h.last = data
	h.mu.Unlock()

	h.broadcast(data)
}

// TimersTicked sends the live countdowns to every display
func (h *Hub) TimersTicked(timers []timer.Status) {
	if data, ok := h.encode(MessageTimers, timers); ok {
		h.broadcast(data)
	}
}

// Notify shows n as a toast on every display
func (h *Hub) Notify(ctx context.Context, n notify.Notification) {
	if data, ok := h.encode(MessageNotification, n); ok {
		h.broadcast(data)
	}
}

// Close disconnects every display
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
}

func (h *Hub) encode(kind string, data interface{}) ([]byte, bool) {
	payload, err := json.Marshal(Envelope{Type: kind, Data: data})

	if err != nil {
		h.logger.Error("Failed to encode display message", "type", kind, "error", err)
		return nil, false
	}

	return payload, true
}

func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("Display buffer full, dropping message", "remote", c.conn.RemoteAddr().String())
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if ok {
		c.once.Do(func() { close(c.send) })
	}
}

// readPump only handles control frames; displays never send commands
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("Display connection error", "error", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
