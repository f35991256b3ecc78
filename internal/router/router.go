package router

import (
	"log"
	"sync/atomic"

	"pollroom/pkg/interfaces"
	"pollroom/pkg/types"
)

// Router delivers session notifications to live connections
// ARCHITECTURAL DISCOVERY: Pure delivery logic without session state. The
// session decides the audience; the router only resolves connection IDs and
// hands envelopes to each connection's write buffer.
type Router struct {
	connections interfaces.ConnectionLookup

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// Stats counts deliveries since the router was created
type Stats struct {
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

// NewRouter creates a router over the connection registry
// FUNCTIONAL DISCOVERY: Dependency injection enables testing with mock connections
func NewRouter(connections interfaces.ConnectionLookup) *Router {
	return &Router{connections: connections}
}

// ToOne replies directly to a single connection
func (r *Router) ToOne(connID string, envelope *types.Envelope) {
	if connID == "" {
		return
	}
	r.deliver(connID, envelope)
}

// ToTeacher delivers to the designated teacher, if any
func (r *Router) ToTeacher(teacherID string, envelope *types.Envelope) {
	r.ToOne(teacherID, envelope)
}

// ToEveryone delivers to the teacher and every participant
// FUNCTIONAL DISCOVERY: Continue delivery to other recipients even if one fails
func (r *Router) ToEveryone(teacherID string, participantIDs []string, envelope *types.Envelope) {
	r.ToTeacher(teacherID, envelope)
	for _, id := range participantIDs {
		if id == teacherID {
			continue
		}
		r.deliver(id, envelope)
	}
}

// Stats returns delivery counters
func (r *Router) Stats() Stats {
	return Stats{
		Delivered: r.delivered.Load(),
		Dropped:   r.dropped.Load(),
	}
}

// deliver never blocks: Send only enqueues on the connection's buffer.
// TECHNICAL DISCOVERY: Callers hold the session lock, so a slow client must
// cost a dropped frame rather than a stalled room.
func (r *Router) deliver(connID string, envelope *types.Envelope) {
	conn, ok := r.connections.Lookup(connID)
	if !ok {
		r.dropped.Add(1)
		log.Printf("Dropping %s for %s: %v", envelope.Type, connID, ErrRecipientNotConnected)
		return
	}

	if err := conn.Send(envelope); err != nil {
		r.dropped.Add(1)
		log.Printf("Failed to deliver %s to %s: %v", envelope.Type, connID, err)
		return
	}
	r.delivered.Add(1)
}

var _ interfaces.Dispatcher = (*Router)(nil)
