package server

import (
	"net"
	"sync"
	"sync/atomic"
)

// Hub is the process-wide connection registry. It maps connection IDs to
// Connections and, once a connection authenticates, maintains a
// bidirectional connection-id <-> username association so handlers can
// look a session up either way.
type Hub struct {
	mu          sync.RWMutex
	connections map[uint64]*Connection
	usersByConn map[uint64]string
	connsByUser map[string]uint64

	nextID atomic.Uint64
}

// NewHub constructs an empty Hub. Connection IDs start at 1 so the zero
// value is never a valid ID.
func NewHub() *Hub {
	h := &Hub{
		connections: make(map[uint64]*Connection),
		usersByConn: make(map[uint64]string),
		connsByUser: make(map[string]uint64),
	}
	h.nextID.Store(0)
	return h
}

// Register assigns conn a fresh ID, wraps it in a Connection, and adds it
// to the registry.
func (h *Hub) Register(conn net.Conn) *Connection {
	id := h.nextID.Add(1)
	c := newConnection(id, conn)

	h.mu.Lock()
	h.connections[id] = c
	h.mu.Unlock()

	return c
}

// Unregister removes c and any username association it holds.
func (h *Hub) Unregister(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, c.ID)
	if username, ok := h.usersByConn[c.ID]; ok {
		delete(h.usersByConn, c.ID)
		if h.connsByUser[username] == c.ID {
			delete(h.connsByUser, username)
		}
	}
}

// AssociateUsername binds c to username. If another connection already
// holds that username, it is evicted: disconnected and dissociated,
// preserving the invariant that a username maps to at most one live
// connection.
func (h *Hub) AssociateUsername(c *Connection, username string) {
	h.mu.Lock()
	var evicted *Connection
	if prevID, ok := h.connsByUser[username]; ok && prevID != c.ID {
		evicted = h.connections[prevID]
		delete(h.usersByConn, prevID)
	}

	if prevUsername, ok := h.usersByConn[c.ID]; ok {
		delete(h.connsByUser, prevUsername)
	}

	h.usersByConn[c.ID] = username
	h.connsByUser[username] = c.ID
	h.mu.Unlock()

	if evicted != nil {
		evicted.Disconnect()
	}
}

// Dissociate removes any username association held by c, leaving the
// connection registered but logged out.
func (h *Hub) Dissociate(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if username, ok := h.usersByConn[c.ID]; ok {
		delete(h.usersByConn, c.ID)
		if h.connsByUser[username] == c.ID {
			delete(h.connsByUser, username)
		}
	}
}

// GetUsername returns the username associated with connID, if any.
func (h *Hub) GetUsername(connID uint64) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	username, ok := h.usersByConn[connID]
	return username, ok
}

// GetConnectionByUsername returns the live connection associated with
// username, if any.
func (h *Hub) GetConnectionByUsername(username string) (*Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	id, ok := h.connsByUser[username]
	if !ok {
		return nil, false
	}
	c, ok := h.connections[id]
	return c, ok
}

// Get returns the connection with the given ID, if registered.
func (h *Hub) Get(id uint64) (*Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.connections[id]
	return c, ok
}

// Enumerate returns a snapshot of all registered connections.
func (h *Hub) Enumerate() []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Connection, 0, len(h.connections))
	for _, c := range h.connections {
		out = append(out, c)
	}
	return out
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}
