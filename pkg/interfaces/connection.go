package interfaces

import "pollroom/pkg/types"

// Connection represents one transport-level client connection
// ARCHITECTURAL DISCOVERY: Pure abstraction keeps the session engine unaware
// of websocket framing and write deadlines
type Connection interface {
	// ID returns the stable connection identifier assigned at upgrade time
	ID() string

	// Send queues an envelope for delivery (thread-safe, must not block)
	// FUNCTIONAL DISCOVERY: The dispatcher calls Send while the session lock
	// is held, so implementations enqueue and return immediately
	Send(envelope *types.Envelope) error

	// Close closes the connection and cleans up resources
	Close() error
}

// ConnectionLookup resolves connection IDs to live connections
type ConnectionLookup interface {
	Lookup(connID string) (Connection, bool)
}
