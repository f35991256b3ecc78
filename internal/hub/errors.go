package hub

import "errors"

var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrEventChannelFull  = errors.New("event channel is full")
	ErrMalformedFrame    = errors.New("malformed frame")
	ErrUnknownEvent      = errors.New("unknown event type")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// Error codes for failures detected before an event reaches the session
const (
	CodeMalformed   = "malformed"
	CodeUnknown     = "unknown_event"
	CodeRateLimited = "rate_limited"
)

// Client-facing text for the codes above
const (
	msgMalformed   = "Malformed message"
	msgUnknown     = "Unknown event type"
	msgRateLimited = "Rate limit exceeded"
)
