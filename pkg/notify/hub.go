package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

type client struct {
	conn   *websocket.Conn
	roomID string
	send   chan []byte
}

// Hub fans room events out to the websocket connections of this process
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*client]bool
	logger *slog.Logger
}

// NewHub creates an empty hub
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{rooms: make(map[string]map[*client]bool), logger: logger}
}

// Publish encodes ev and broadcasts it to the room's connections
func (h *Hub) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.Broadcast(ev.RoomID, data)
	return nil
}

// Broadcast queues an encoded payload for every connection in the room.
// Connections whose queue is full are dropped.
func (h *Hub) Broadcast(roomID string, data []byte) {
	var slow []*client
	h.mu.RLock()
	for c := range h.rooms[roomID] {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client", "room", roomID)
		h.unregister(c)
	}
}

// Count returns the number of open connections for a room
func (h *Hub) Count(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Serve attaches an upgraded connection to a room and blocks until it closes
func (h *Hub) Serve(conn *websocket.Conn, roomID string) {
	c := &client{conn: conn, roomID: roomID, send: make(chan []byte, sendBuffer)}
	h.register(c)
	go h.writePump(c)
	h.readPump(c)
	h.unregister(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[c.roomID] == nil {
		h.rooms[c.roomID] = make(map[*client]bool)
	}
	h.rooms[c.roomID][c] = true
}

// unregister removes c once; closing send stops its write pump
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.rooms[c.roomID]
	if !ok || !clients[c] {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.rooms, c.roomID)
	}
	close(c.send)
}

// readPump only keeps the connection alive; clients never send commands
func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket closed", "room", c.roomID, "error", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
