package websocket

import (
	"sync"

	"pollroom/pkg/interfaces"
)

// Registry manages live WebSocket connections by connection ID
// ARCHITECTURAL DISCOVERY: Pure connection management without session logic
// maintains clean separation between connection tracking and participant state
type Registry struct {
	mu          sync.RWMutex // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy delivery lookups
	connections map[string]*Connection
	peak        int
	total       int
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
	}
}

// Register adds conn under its ID
func (r *Registry) Register(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.ID()]; exists {
		return ErrDuplicateConnection
	}
	r.connections[conn.ID()] = conn
	r.total++
	if len(r.connections) > r.peak {
		r.peak = len(r.connections)
	}
	return nil
}

// Unregister removes conn. Idempotent; only the registered instance is removed.
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if registered, exists := r.connections[conn.ID()]; exists && registered == conn {
		delete(r.connections, conn.ID())
	}
}

// Get returns the connection registered under connID
func (r *Registry) Get(connID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[connID]
	return conn, exists
}

// Lookup implements interfaces.ConnectionLookup
func (r *Registry) Lookup(connID string) (interfaces.Connection, bool) {
	conn, exists := r.Get(connID)
	if !exists {
		return nil, false
	}
	return conn, true
}

// Count returns the number of live connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// CloseAll closes every live connection, used during shutdown
func (r *Registry) CloseAll() {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

// GetStats returns registry statistics for monitoring
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.connections),
		"peak_connections":  r.peak,
		"accepted_total":    r.total,
	}
}

var _ interfaces.ConnectionLookup = (*Registry)(nil)
