package realtime

import (
	"log/slog"
	"sort"
	"sync"

	domain "github.com/XuanSon0704/Reels-Chat/domain/realtime"
)

// member is one live connection plus the rooms it belongs to. Owned by
// the hub from Add until Remove.
type member struct {
	conn     domain.Connection
	identity domain.Identity
	rooms    map[string]struct{}
}

// Hub is the room registry: it tracks which connections belong to which
// rooms and fans encoded frames out to them. Rooms exist only while they
// have members; room keys are opaque strings here.
type Hub struct {
	mu      sync.RWMutex
	members map[string]*member            // connection id -> member
	rooms   map[string]map[string]*member // room -> connection id -> member
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		members: make(map[string]*member),
		rooms:   make(map[string]map[string]*member),
	}
}

// Add registers an authenticated connection and joins it to its personal
// room. The personal room membership lasts for the connection's lifetime.
func (h *Hub) Add(conn domain.Connection, identity domain.Identity) {
	h.mu.Lock()
	m := &member{
		conn:     conn,
		identity: identity,
		rooms:    make(map[string]struct{}),
	}
	h.members[conn.ID()] = m
	h.joinLocked(m, conn.ID(), domain.UserRoom(identity.UserID))
	h.mu.Unlock()

	slog.Info("connection registered", "connId", conn.ID(), "userId", identity.UserID)
}

// Remove evicts the connection from every room it belongs to in one
// sweep and forgets it. Returns the bound identity so the caller can
// broadcast the offline transition. Removing an unknown connection is a
// no-op.
func (h *Hub) Remove(connID string) (domain.Identity, bool) {
	h.mu.Lock()
	m, ok := h.members[connID]
	if !ok {
		h.mu.Unlock()
		return domain.Identity{}, false
	}
	for room := range m.rooms {
		h.leaveLocked(connID, room)
	}
	delete(h.members, connID)
	h.mu.Unlock()

	slog.Info("connection removed", "connId", connID, "userId", m.identity.UserID)
	return m.identity, true
}

// Identity returns the identity bound to a connection.
func (h *Hub) Identity(connID string) (domain.Identity, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.members[connID]
	if !ok {
		return domain.Identity{}, false
	}
	return m.identity, true
}

// Join adds the connection to a room. Idempotent; joining a room you are
// already in changes nothing. Joining from an evicted connection is a
// no-op.
func (h *Hub) Join(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.members[connID]
	if !ok {
		return
	}
	h.joinLocked(m, connID, room)
}

func (h *Hub) joinLocked(m *member, connID, room string) {
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*member)
	}
	h.rooms[room][connID] = m
	m.rooms[room] = struct{}{}
}

// Leave removes the connection from a room. Idempotent; leaving a room
// you are not in is a no-op. Empty rooms are garbage-collected.
func (h *Hub) Leave(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.members[connID]
	if !ok {
		return
	}
	delete(m.rooms, room)
	h.leaveLocked(connID, room)
}

func (h *Hub) leaveLocked(connID, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// InRoom reports whether the connection is currently a member of the room.
func (h *Hub) InRoom(connID, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members, ok := h.rooms[room]
	if !ok {
		return false
	}
	_, ok = members[connID]
	return ok
}

// Members returns the ids of the connections currently in the room,
// sorted for deterministic iteration in tests.
func (h *Hub) Members(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Broadcast sends an encoded frame to every member of the room except
// exceptID (pass "" to include everyone). Broadcasting to a missing room
// or to an already-evicted connection is a safe no-op.
func (h *Hub) Broadcast(room string, data []byte, exceptID string) {
	h.mu.RLock()
	targets := make([]*member, 0, len(h.rooms[room]))
	for id, m := range h.rooms[room] {
		if id == exceptID {
			continue
		}
		targets = append(targets, m)
	}
	h.mu.RUnlock()

	for _, m := range targets {
		if err := m.conn.Send(data); err != nil {
			// The read loop notices the dead transport and evicts it.
			slog.Warn("failed to send to connection", "connId", m.conn.ID(), "error", err)
		}
	}
}

// Send delivers an encoded frame to a single connection. No-op when the
// connection is already gone.
func (h *Hub) Send(connID string, data []byte) {
	h.mu.RLock()
	m, ok := h.members[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if err := m.conn.Send(data); err != nil {
		slog.Warn("failed to send to connection", "connId", connID, "error", err)
	}
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

// RoomCount returns the number of rooms with at least one member.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// CloseAll closes every live connection. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, m := range h.members {
		_ = m.conn.Close()
	}
	h.members = make(map[string]*member)
	h.rooms = make(map[string]map[string]*member)
}
