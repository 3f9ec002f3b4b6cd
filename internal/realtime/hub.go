package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"scanhub/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

type Event struct {
	Type         string              `json:"type"`
	Notification NotificationPayload `json:"notification"`
}

type NotificationPayload struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Type      string          `json:"type"`
	Read      bool            `json:"read"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans notifications out to every open connection of a user.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[string]*client
	log     zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[string]*client),
		log:     log,
	}
}

func (h *Hub) Push(userID string, n models.Notification) {
	payload, err := json.Marshal(Event{
		Type: "notification",
		Notification: NotificationPayload{
			ID:        n.ID,
			Title:     n.Title,
			Type:      string(n.Type),
			Read:      n.Read,
			Metadata:  n.Metadata,
			CreatedAt: n.CreatedAt,
		},
	})
	if err != nil {
		h.log.Error().Err(err).Msg("encode notification")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients[userID] {
		select {
		case c.send <- payload:
		default:
			h.log.Warn().Str("user_id", userID).Str("conn_id", c.id).Msg("slow websocket client, dropping notification")
		}
	}
}

// Serve owns conn until the peer goes away. It blocks.
func (h *Hub) Serve(conn *websocket.Conn, userID string) {
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(userID, c)

	done := make(chan struct{})
	go func() {
		h.writePump(c)
		close(done)
	}()

	h.readPump(c)
	h.unregister(userID, c)
	<-done
}

func (h *Hub) Count(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Close drops every connection. Closing send makes each writePump send a
// close frame and return right away.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, conns := range h.clients {
		for _, c := range conns {
			close(c.send)
		}
		delete(h.clients, userID)
	}
}

func (h *Hub) register(userID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[userID]
	if !ok {
		conns = make(map[string]*client)
		h.clients[userID] = conns
	}
	conns[c.id] = c
}

func (h *Hub) unregister(userID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[userID]; ok {
		if _, ok := conns[c.id]; ok {
			delete(conns, c.id)
			close(c.send)
		}
		if len(conns) == 0 {
			delete(h.clients, userID)
		}
	}
}

// readPump only consumes control frames; clients never send data.
func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("conn_id", c.id).Msg("websocket closed")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
