package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"pollroom/internal/metrics"
	"pollroom/pkg/interfaces"
	"pollroom/pkg/types"
)

// Hub serializes inbound frames from every connection into the session
// ARCHITECTURAL DISCOVERY: Central coordination point for all inbound flow.
// One channel carries both frames and disconnects so a connection's frames
// are always handled before its own departure.
type Hub struct {
	// TECHNICAL DISCOVERY: 1000 buffer handles classroom answer bursts when a poll opens
	events          chan *inboundEvent
	shutdownChannel chan struct{}
	done            chan struct{}

	// ARCHITECTURAL DISCOVERY: Dependency injection enables clean testing with mocks
	session interfaces.PollSession
	replies interfaces.Dispatcher
	limiter *RateLimiter
	metrics *metrics.Metrics

	defaultTimeLimit int

	running bool
	mu      sync.RWMutex
}

type eventKind int

const (
	kindFrame eventKind = iota
	kindDisconnect
)

// inboundEvent wraps a raw frame with its sender
type inboundEvent struct {
	kind     eventKind
	connID   string
	data     []byte
	received time.Time
}

// Option configures a Hub
type Option func(*Hub)

// WithRateLimit caps inbound events per connection per minute (0 disables)
func WithRateLimit(perMinute int) Option {
	return func(h *Hub) { h.limiter = NewRateLimiter(perMinute, time.Minute) }
}

// WithDefaultTimeLimit sets the time limit used when create_poll omits one
func WithDefaultTimeLimit(seconds int) Option {
	return func(h *Hub) { h.defaultTimeLimit = seconds }
}

// WithMetrics enables inbound event counters
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// NewHub creates a hub feeding session and replying with errors via replies
func NewHub(session interfaces.PollSession, replies interfaces.Dispatcher, opts ...Option) *Hub {
	h := &Hub{
		events:           make(chan *inboundEvent, 1000),
		shutdownChannel:  make(chan struct{}),
		done:             make(chan struct{}),
		session:          session,
		replies:          replies,
		limiter:          NewRateLimiter(0, time.Minute),
		defaultTimeLimit: 60,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start begins hub processing
// FUNCTIONAL DISCOVERY: Single hub goroutine keeps arrival order per connection
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true

	log.Println("Starting event hub...")
	go h.run(ctx)

	return nil
}

// Stop shuts the hub down and waits for the processing loop to exit
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	log.Println("Stopping event hub...")
	close(h.shutdownChannel)
	h.mu.Unlock()

	<-h.done
	return nil
}

// Submit queues one inbound frame from connID
// TECHNICAL DISCOVERY: Non-blocking send so a flooded hub cannot stall read pumps
func (h *Hub) Submit(connID string, data []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.running {
		return ErrHubNotRunning
	}

	select {
	case h.events <- &inboundEvent{kind: kindFrame, connID: connID, data: data, received: time.Now()}:
		return nil
	default:
		return ErrEventChannelFull
	}
}

// Disconnect queues connID's departure behind any frames it already sent.
// Unlike Submit it waits for buffer space, since a lost disconnect would
// leave a ghost participant in the roster.
func (h *Hub) Disconnect(connID string) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	shutdown := h.shutdownChannel
	h.mu.RUnlock()

	select {
	case h.events <- &inboundEvent{kind: kindDisconnect, connID: connID, received: time.Now()}:
		return nil
	case <-shutdown:
		return ErrHubNotRunning
	}
}

// run is the main hub processing loop
func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	defer log.Println("Hub processing stopped")

	cleanup := time.NewTicker(5 * time.Minute)
	defer cleanup.Stop()

	for {
		select {
		case ev := <-h.events:
			h.handle(ev)

		case <-cleanup.C:
			h.limiter.Cleanup()

		case <-h.shutdownChannel:
			log.Println("Hub shutdown requested")
			return

		case <-ctx.Done():
			log.Println("Hub context cancelled")
			return
		}
	}
}

func (h *Hub) handle(ev *inboundEvent) {
	if ev.kind == kindDisconnect {
		h.session.Disconnect(ev.connID)
		h.limiter.Forget(ev.connID)
		return
	}

	if !h.limiter.Allow(ev.connID) {
		h.metrics.RateLimited()
		h.replyError(ev.connID, msgRateLimited, CodeRateLimited)
		return
	}

	var frame types.Inbound
	if err := json.Unmarshal(ev.data, &frame); err != nil {
		h.replyError(ev.connID, msgMalformed, CodeMalformed)
		return
	}
	h.metrics.InboundEvent(metricLabel(frame.Type))

	if err := h.dispatch(ev.connID, &frame); err != nil {
		// TECHNICAL DISCOVERY: Session errors go back to the caller only,
		// never to the rest of the room
		h.replyErrorFor(ev.connID, frame.Type, err)
	}
}

// dispatch decodes the payload for frame.Type and calls the session
func (h *Hub) dispatch(connID string, frame *types.Inbound) error {
	switch frame.Type {
	case types.EventRegisterTeacher:
		h.session.RegisterTeacher(connID)
		return nil

	case types.EventRegisterStudent:
		var req types.RegisterStudentRequest
		if err := decodePayload(frame.Payload, &req); err != nil {
			return err
		}
		_, err := h.session.RegisterStudent(connID, req.Name)
		return err

	case types.EventCreatePoll:
		var req types.CreatePollRequest
		if err := decodePayload(frame.Payload, &req); err != nil {
			return err
		}
		limit := h.defaultTimeLimit
		if req.TimeLimitSeconds != nil {
			limit = *req.TimeLimitSeconds
		}
		_, err := h.session.CreatePoll(connID, req.Question, req.Options, req.CorrectAnswers, limit)
		return err

	case types.EventSubmitAnswer:
		var req types.SubmitAnswerRequest
		if err := decodePayload(frame.Payload, &req); err != nil {
			return err
		}
		if req.OptionIndex == nil {
			return types.NewError(types.KindValidation, "Invalid option")
		}
		_, err := h.session.SubmitAnswer(connID, *req.OptionIndex)
		return err

	case types.EventRemoveParticipant:
		var req types.RemoveParticipantRequest
		if err := decodePayload(frame.Payload, &req); err != nil {
			return err
		}
		return h.session.RemoveParticipant(connID, req.TargetID)

	case types.EventClearPoll:
		return h.session.ClearPoll(connID)

	case types.EventGetHistory:
		_, err := h.session.GetHistory(connID)
		return err

	default:
		return ErrUnknownEvent
	}
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return ErrMalformedFrame
	}
	return nil
}

func (h *Hub) replyErrorFor(connID, eventType string, err error) {
	code, message := string(types.KindOf(err)), err.Error()
	switch {
	case errors.Is(err, ErrMalformedFrame):
		code, message = CodeMalformed, msgMalformed
	case errors.Is(err, ErrUnknownEvent):
		code, message = CodeUnknown, msgUnknown
	}

	log.Printf("Rejected %s from %s: %v", eventType, connID, err)
	h.replyError(connID, message, code)
}

func (h *Hub) replyError(connID, message, code string) {
	h.replies.ToOne(connID, types.NewEnvelope(types.EventError, types.ErrorPayload{
		Message: message,
		Code:    code,
	}))
}

// metricLabel keeps the label set closed against arbitrary client input
func metricLabel(eventType string) string {
	switch eventType {
	case types.EventRegisterTeacher, types.EventRegisterStudent, types.EventCreatePoll,
		types.EventSubmitAnswer, types.EventRemoveParticipant, types.EventClearPoll,
		types.EventGetHistory:
		return eventType
	default:
		return "unknown"
	}
}

var _ interfaces.EventSink = (*Hub)(nil)
