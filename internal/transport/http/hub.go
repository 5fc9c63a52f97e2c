package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// Hub tracks live websocket clients and their room membership. It delivers
// events without blocking: a client whose send buffer is full is closed.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]struct{}
	log     *slog.Logger
	evicted atomic.Int64
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]struct{}),
		log:     log,
	}
}

// HubStats is a point-in-time view of the hub.
type HubStats struct {
	Connections int   `json:"connections"`
	Rooms       int   `json:"rooms"`
	Evicted     int64 `json:"evicted"`
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

func (h *Hub) Broadcast(roomCode, event string, payload any) {
	data, ok := h.encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[roomCode]))
	for id := range h.rooms[roomCode] {
		if c, ok := h.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(c, data)
	}
}

func (h *Hub) Send(connID, event string, payload any) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	data, ok := h.encode(event, payload)
	if !ok {
		return
	}
	h.deliver(c, data)
}

func (h *Hub) Join(roomCode, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[roomCode] == nil {
		h.rooms[roomCode] = make(map[string]struct{})
	}
	h.rooms[roomCode][connID] = struct{}{}
}

func (h *Hub) Leave(roomCode, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(roomCode, connID)
}

// Remove forgets the client and returns the rooms it was a member of.
func (h *Hub) Remove(connID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, connID)
	var codes []string
	for code, members := range h.rooms {
		if _, ok := members[connID]; ok {
			codes = append(codes, code)
			h.leaveLocked(code, connID)
		}
	}
	return codes
}

func (h *Hub) leaveLocked(roomCode, connID string) {
	members, ok := h.rooms[roomCode]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, roomCode)
	}
}

func (h *Hub) Members(roomCode string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomCode])
}

func (h *Hub) Connected(connID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[connID]
	return ok && !c.isClosed()
}

func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HubStats{
		Connections: len(h.clients),
		Rooms:       len(h.rooms),
		Evicted:     h.evicted.Load(),
	}
}

func (h *Hub) encode(event string, payload any) ([]byte, bool) {
	data, err := json.Marshal(outboundMessage[any]{Type: event, Payload: payload})
	if err != nil {
		h.log.Error("encode event", "event", event, "err", err)
		return nil, false
	}
	return data, true
}

func (h *Hub) deliver(c *Client, data []byte) {
	if c.enqueue(data) {
		return
	}
	if c.isClosed() {
		return
	}
	h.evicted.Add(1)
	h.log.Warn("send buffer full, closing slow client", "conn", c.id)
	c.close()
}
