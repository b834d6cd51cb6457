package relay

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Manager tracks which connections are in which rooms. A room exists only
// while it has members: the first subscriber creates it, the last one leaving
// tears it down so the poller stops querying for it.
type Manager struct {
	mu    sync.RWMutex
	rooms map[RoomKey]map[*Connection]bool
	// reverse index for fast disconnect cleanup
	memberships map[*Connection]map[RoomKey]bool
}

func NewManager() *Manager {
	return &Manager{
		rooms:       make(map[RoomKey]map[*Connection]bool),
		memberships: make(map[*Connection]map[RoomKey]bool),
	}
}

// Subscribe adds the connection to the room, creating the room on first join.
// Returns true when this subscription created the room.
func (m *Manager) Subscribe(conn *Connection, key RoomKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	created := false
	if m.rooms[key] == nil {
		m.rooms[key] = make(map[*Connection]bool)
		created = true
	}
	m.rooms[key][conn] = true

	if m.memberships[conn] == nil {
		m.memberships[conn] = make(map[RoomKey]bool)
	}
	m.memberships[conn][key] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("kind", string(key.Kind)).
		Str("room_id", key.ID.String()).
		Int("members", len(m.rooms[key])).
		Msg("connection subscribed")
	return created
}

// Unsubscribe removes the connection from the room. Returns true when the
// room emptied and was deregistered.
func (m *Manager) Unsubscribe(conn *Connection, key RoomKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(conn, key)
}

// DropConnection removes the connection from every room it joined and
// returns the keys of rooms that emptied as a result.
func (m *Manager) DropConnection(conn *Connection) []RoomKey {
	m.mu.Lock()
	defer m.mu.Unlock()

	var emptied []RoomKey
	for key := range m.memberships[conn] {
		if m.removeLocked(conn, key) {
			emptied = append(emptied, key)
		}
	}
	delete(m.memberships, conn)
	return emptied
}

func (m *Manager) removeLocked(conn *Connection, key RoomKey) bool {
	members, exists := m.rooms[key]
	if !exists || !members[conn] {
		return false
	}
	delete(members, conn)
	if set := m.memberships[conn]; set != nil {
		delete(set, key)
	}
	if len(members) > 0 {
		return false
	}
	delete(m.rooms, key)
	log.Debug().
		Str("kind", string(key.Kind)).
		Str("room_id", key.ID.String()).
		Msg("room deregistered")
	return true
}

// ActiveRooms lists the session IDs that currently have at least one
// subscriber for the given kind. The poller only polls these.
func (m *Manager) ActiveRooms(kind RoomKind) []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []uuid.UUID
	for key := range m.rooms {
		if key.Kind == kind {
			ids = append(ids, key.ID)
		}
	}
	return ids
}

// Broadcast fans one pre-marshaled frame out to every member of the room.
// Slow connections get their send buffer dropped rather than blocking the
// rest of the room.
func (m *Manager) Broadcast(key RoomKey, message []byte) {
	m.mu.RLock()
	members := make([]*Connection, 0, len(m.rooms[key]))
	for conn := range m.rooms[key] {
		members = append(members, conn)
	}
	m.mu.RUnlock()

	for _, conn := range members {
		if !conn.enqueue(message) {
			log.Warn().
				Str("connection_id", conn.ID).
				Str("kind", string(key.Kind)).
				Msg("connection send buffer full, closing connection")
			m.DropConnection(conn)
			conn.shutdownSend()
			if conn.Conn != nil {
				conn.Conn.Close()
			}
		}
	}
}

// Stats reports active room and connection counts per kind.
func (m *Manager) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totalConnections := len(m.memberships)
	roomCounts := make(map[string]int)
	for key, members := range m.rooms {
		roomCounts[string(key.Kind)+":"+key.ID.String()] = len(members)
	}

	return map[string]interface{}{
		"total_connections": totalConnections,
		"active_rooms":      len(m.rooms),
		"room_members":      roomCounts,
	}
}
