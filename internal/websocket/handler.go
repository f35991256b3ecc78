package websocket

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"pollroom/pkg/interfaces"
	"pollroom/pkg/types"
)

// HandlerConfig carries transport timings and limits
type HandlerConfig struct {
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	BufferSize     int
	MaxFrameBytes  int64
	AllowedOrigins []string
}

// DefaultHandlerConfig returns classroom-tested defaults
// TECHNICAL DISCOVERY: 60-second read deadline with 30-second ping interval
// provides reliable connection health monitoring on classroom Wi-Fi
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		PingInterval:  30 * time.Second,
		ReadTimeout:   60 * time.Second,
		WriteTimeout:  defaultWriteTimeout,
		BufferSize:    defaultBufferSize,
		MaxFrameBytes: 64 * 1024,
	}
}

// Handler upgrades requests and pumps frames between sockets and the event sink
// ARCHITECTURAL DISCOVERY: Clean separation of WebSocket handling from session logic.
// Roles are claimed in-band with register_* events, so the upgrade takes no parameters.
type Handler struct {
	registry *Registry
	sink     interfaces.EventSink
	cfg      HandlerConfig
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler with dependency injection
func NewHandler(registry *Registry, sink interfaces.EventSink, cfg HandlerConfig) *Handler {
	h := &Handler{
		registry: registry,
		sink:     sink,
		cfg:      cfg,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

// checkOrigin allows every origin when none are configured
func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// HandleWebSocket upgrades, registers and greets a new connection
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, h.cfg.BufferSize, h.cfg.WriteTimeout)

	if err := h.registry.Register(wsConn); err != nil {
		log.Printf("Failed to register connection: %v", err)
		_ = wsConn.Close()
		return
	}

	// FUNCTIONAL DISCOVERY: Clients learn their own ID up front so a teacher can
	// target remove_participant and a student can recognise itself in rosters
	if err := wsConn.Send(types.NewEnvelope(types.EventConnected, types.ConnectedPayload{
		ConnectionID: wsConn.ID(),
	})); err != nil {
		log.Printf("Failed to greet %s: %v", wsConn.ID(), err)
	}

	log.Printf("Connection opened: conn=%s remote=%s", wsConn.ID(), r.RemoteAddr)
	go h.handleConnection(wsConn)
}

// handleConnection runs the read pump and heartbeat until the socket closes
// ARCHITECTURAL DISCOVERY: Deferred cleanup reports the departure to the session
// exactly once, whether the client left, timed out or was ejected
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.registry.Unregister(conn)
		if err := h.sink.Disconnect(conn.ID()); err != nil {
			log.Printf("Failed to report disconnect for %s: %v", conn.ID(), err)
		}
		_ = conn.Close()
		log.Printf("Connection closed: conn=%s", conn.ID())
	}()

	if h.cfg.MaxFrameBytes > 0 {
		conn.conn.SetReadLimit(h.cfg.MaxFrameBytes)
	}
	if h.cfg.ReadTimeout > 0 {
		if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
			log.Printf("Failed to set read deadline: %v", err)
			return
		}
		conn.conn.SetPongHandler(func(string) error {
			return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
		})
	}

	go h.heartbeat(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error on %s: %v", conn.ID(), err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}
		if err := h.sink.Submit(conn.ID(), data); err != nil {
			log.Printf("Dropping frame from %s: %v", conn.ID(), err)
		}
	}
}

// heartbeat pings on its own ticker, independent of read traffic
func (h *Handler) heartbeat(conn *Connection) {
	if h.cfg.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}
