package realtime

import (
	"log"
	"sync"
	"time"
)

// defaultWriteTimeout bounds a single frame write so a stalled socket cannot hold up the
// caller of Send.
const defaultWriteTimeout = 5 * time.Second

// Conn is the write side of a live client connection. *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Registry maps users to their live connections. Entries are advisory: losing one only
// degrades real-time delivery, persisted notifications stay the source of truth.
type Registry interface {
	Register(userID uint64, c Conn)
	// Unregister removes c only; a newer connection of the same user is kept.
	Unregister(userID uint64, c Conn)
	// Send reports whether the event reached at least one connection.
	Send(userID uint64, event string, payload any) bool
}

// Envelope is the frame written to clients.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type client struct {
	conn Conn
	mu   sync.Mutex
}

func (c *client) write(v any, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// Hub is the in-process Registry.
type Hub struct {
	mu           sync.RWMutex
	clients      map[uint64]map[Conn]*client
	writeTimeout time.Duration
}

var _ Registry = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		clients:      make(map[uint64]map[Conn]*client),
		writeTimeout: defaultWriteTimeout,
	}
}

func (h *Hub) Register(userID uint64, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[Conn]*client)
	}
	h.clients[userID][c] = &client{conn: c}
}

func (h *Hub) Unregister(userID uint64, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(userID, c)
}

// remove expects h.mu to be held.
func (h *Hub) remove(userID uint64, c Conn) bool {
	conns, ok := h.clients[userID]
	if !ok {
		return false
	}
	if _, ok := conns[c]; !ok {
		return false
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.clients, userID)
	}
	return true
}

func (h *Hub) Send(userID uint64, event string, payload any) bool {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[userID]))
	for _, cl := range h.clients[userID] {
		targets = append(targets, cl)
	}
	h.mu.RUnlock()

	frame := Envelope{Event: event, Data: payload}
	delivered := false
	for _, cl := range targets {
		if err := cl.write(frame, h.writeTimeout); err != nil {
			log.Printf("ws write to user %d failed: %v", userID, err)
			h.mu.Lock()
			dropped := h.remove(userID, cl.conn)
			h.mu.Unlock()
			if dropped {
				cl.conn.Close()
			}
			continue
		}
		delivered = true
	}
	return delivered
}

// Online reports whether the user has at least one registered connection.
func (h *Hub) Online(userID uint64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}
