package types

import (
	"encoding/json"
	"time"
)

// Inbound event types consumed by the session engine.
// The transport layer delivers one event per websocket frame.
const (
	EventRegisterTeacher   = "register_teacher"
	EventRegisterStudent   = "register_student"
	EventCreatePoll        = "create_poll"
	EventSubmitAnswer      = "submit_answer"
	EventRemoveParticipant = "remove_participant"
	EventClearPoll         = "clear_poll"
	EventGetHistory        = "get_history"
)

// Outbound notification types produced by the session engine
const (
	EventConnected       = "connected"
	EventTeacherJoined   = "teacher_joined"
	EventStudentJoined   = "student_joined"
	EventPollCreated     = "poll_created"
	EventTimerTick       = "timer_tick"
	EventAnswerAccepted  = "answer_accepted"
	EventResultsUpdated  = "results_updated"
	EventPollEnded       = "poll_ended"
	EventPollCleared     = "poll_cleared"
	EventRosterUpdated   = "roster_updated"
	EventHistorySnapshot = "history_snapshot"
	EventEjected         = "ejected"
	EventError           = "error"
)

// PollState is the lifecycle state of the session's current poll
type PollState string

const (
	StateWaiting PollState = "waiting"
	StateActive  PollState = "active"
	StateEnded   PollState = "ended"
)

// Poll is immutable once created; a new poll replaces it wholesale.
// CorrectAnswers is never serialized so answer keys cannot leak through
// poll_created or student snapshots.
type Poll struct {
	Question         string    `json:"question"`
	Options          []string  `json:"options"`
	CorrectAnswers   []bool    `json:"-"`
	TimeLimitSeconds int       `json:"timeLimitSeconds"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Participant is one connected student keyed by connection ID
type Participant struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	HasAnswered    bool      `json:"hasAnswered"`
	SelectedOption *int      `json:"selectedOption,omitempty"`
	JoinedAt       time.Time `json:"joinedAt"`
}

// ResultEntry is the derived per-option view of a tally.
// IsCorrect is only set when results are revealed as final.
type ResultEntry struct {
	Option     string `json:"option"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
	IsCorrect  *bool  `json:"isCorrect,omitempty"`
}

// HistoryEntry is the snapshot of a poll taken when its timer expired
type HistoryEntry struct {
	ID                string        `json:"id"`
	Question          string        `json:"question"`
	Options           []string      `json:"options"`
	Results           []ResultEntry `json:"results"`
	CompletedAt       time.Time     `json:"completedAt"`
	TotalParticipants int           `json:"totalParticipants"`
}

// Envelope is the outbound wire frame
type Envelope struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Terminal reports whether the recipient connection should be closed
// once the envelope has been written.
func (e *Envelope) Terminal() bool {
	return e.Type == EventEjected
}

// NewEnvelope stamps a payload with its type and the current time
func NewEnvelope(eventType string, payload any) *Envelope {
	return &Envelope{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Inbound is the inbound wire frame; Payload is decoded per Type
type Inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound payloads

type RegisterStudentRequest struct {
	Name string `json:"name"`
}

type CreatePollRequest struct {
	Question         string   `json:"question"`
	Options          []string `json:"options"`
	CorrectAnswers   []bool   `json:"correctAnswers"`
	TimeLimitSeconds *int     `json:"timeLimitSeconds,omitempty"`
}

type SubmitAnswerRequest struct {
	OptionIndex *int `json:"optionIndex"`
}

type RemoveParticipantRequest struct {
	TargetID string `json:"targetId"`
}

// Outbound payloads

type ConnectedPayload struct {
	ConnectionID string `json:"connectionId"`
}

// TeacherSnapshot is the full session state delivered on register_teacher
type TeacherSnapshot struct {
	CurrentPoll      *Poll          `json:"currentPoll"`
	CorrectAnswers   []bool         `json:"correctAnswers,omitempty"`
	State            PollState      `json:"state"`
	Participants     []Participant  `json:"participants"`
	Results          []ResultEntry  `json:"results"`
	SecondsRemaining int            `json:"secondsRemaining"`
	History          []HistoryEntry `json:"history"`
}

// StudentSnapshot is the state delivered to a student on a successful join.
// Results are live while active, final once ended and empty while waiting.
type StudentSnapshot struct {
	ParticipantID     string        `json:"participantId"`
	Name              string        `json:"name"`
	CurrentPoll       *Poll         `json:"currentPoll"`
	State             PollState     `json:"state"`
	IsActive          bool          `json:"isActive"`
	HasAnswered       bool          `json:"hasAnswered"`
	SecondsRemaining  int           `json:"secondsRemaining"`
	Results           []ResultEntry `json:"results,omitempty"`
	TotalParticipants int           `json:"totalParticipants"`
}

type PollCreatedPayload struct {
	Poll             Poll          `json:"poll"`
	SecondsRemaining int           `json:"secondsRemaining"`
	Results          []ResultEntry `json:"results"`
}

type TimerTickPayload struct {
	SecondsRemaining int `json:"secondsRemaining"`
}

type AnswerAcceptedPayload struct {
	OptionIndex int           `json:"optionIndex"`
	IsCorrect   bool          `json:"isCorrect"`
	Results     []ResultEntry `json:"results"`
}

type ResultsUpdatedPayload struct {
	Entries           []ResultEntry `json:"entries"`
	TotalParticipants int           `json:"totalParticipants"`
	AnsweredCount     int           `json:"answeredCount"`
}

type PollEndedPayload struct {
	FinalEntries      []ResultEntry `json:"finalEntries"`
	TotalParticipants int           `json:"totalParticipants"`
}

type RosterUpdatedPayload struct {
	Participants []Participant `json:"participants"`
}

type HistorySnapshotPayload struct {
	Entries []HistoryEntry `json:"entries"`
}

type EjectedPayload struct {
	Reason string `json:"reason"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// SessionStatus is a read-only summary used by health reporting
type SessionStatus struct {
	State            PollState `json:"state"`
	HasTeacher       bool      `json:"hasTeacher"`
	Participants     int       `json:"participants"`
	Answered         int       `json:"answered"`
	SecondsRemaining int       `json:"secondsRemaining"`
	HistoryEntries   int       `json:"historyEntries"`
}
