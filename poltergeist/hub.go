package poltergeist

import (
	"encoding/json"
	"sync"
)

// =============================================================================
// BASE HUB - Room bookkeeping shared by hubs
// =============================================================================

// BaseHub tracks which clients are in which rooms
type BaseHub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{} // room -> set of client IDs
}

func newBaseHub() *BaseHub {
	return &BaseHub{
		rooms: make(map[string]map[string]struct{}),
	}
}

func (h *BaseHub) addToRoom(clientID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]struct{})
	}
	h.rooms[room][clientID] = struct{}{}
}

func (h *BaseHub) removeFromRoom(clientID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.rooms[room]; ok {
		delete(clients, clientID)
		if len(clients) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *BaseHub) removeFromAllRooms(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room, clients := range h.rooms {
		delete(clients, clientID)
		if len(clients) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *BaseHub) roomClientIDs(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		ids = append(ids, id)
	}
	return ids
}

// RoomCount returns the number of clients in a room
func (h *BaseHub) RoomCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// =============================================================================
// WEBSOCKET HUB
// =============================================================================

// WSHub keeps track of live WebSocket connections
type WSHub struct {
	*BaseHub
	connMu sync.RWMutex
	conns  map[string]*WSConn
}

// NewWSHub creates an empty hub
func NewWSHub() *WSHub {
	return &WSHub{
		BaseHub: newBaseHub(),
		conns:   make(map[string]*WSConn),
	}
}

func (h *WSHub) register(conn *WSConn) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.conns[conn.ID] = conn
}

func (h *WSHub) unregister(conn *WSConn) {
	h.connMu.Lock()
	delete(h.conns, conn.ID)
	h.connMu.Unlock()
	h.removeFromAllRooms(conn.ID)
}

// Count returns the number of live connections
func (h *WSHub) Count() int {
	h.connMu.RLock()
	defer h.connMu.RUnlock()
	return len(h.conns)
}

// Get returns a live connection by ID
func (h *WSHub) Get(id string) (*WSConn, bool) {
	h.connMu.RLock()
	defer h.connMu.RUnlock()
	conn, ok := h.conns[id]
	return conn, ok
}

// JoinRoom adds a connection to a room
func (h *WSHub) JoinRoom(clientID, room string) {
	h.addToRoom(clientID, room)
}

// LeaveRoom removes a connection from a room
func (h *WSHub) LeaveRoom(clientID, room string) {
	h.removeFromRoom(clientID, room)
}

// Broadcast sends data to every connection. Connections whose send buffer
// is full are skipped.
func (h *WSHub) Broadcast(data []byte) {
	h.connMu.RLock()
	targets := make([]*WSConn, 0, len(h.conns))
	for _, conn := range h.conns {
		targets = append(targets, conn)
	}
	h.connMu.RUnlock()

	for _, conn := range targets {
		_ = conn.Send(data)
	}
}

// BroadcastJSON encodes v once and broadcasts it
func (h *WSHub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// BroadcastToRoom sends data to every connection in a room
func (h *WSHub) BroadcastToRoom(room string, data []byte) {
	for _, id := range h.roomClientIDs(room) {
		if conn, ok := h.Get(id); ok {
			_ = conn.Send(data)
		}
	}
}
