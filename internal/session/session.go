package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"pollroom/internal/countdown"
	"pollroom/internal/metrics"
	"pollroom/internal/roster"
	"pollroom/internal/tally"
	"pollroom/pkg/interfaces"
	"pollroom/pkg/types"
)

// Countdown is the timer the session drives for the active poll
type Countdown interface {
	Start(seconds int, fire func(countdown.Tick)) uint64
	Stop()
}

// Session owns the single poll room: current poll, roster, tally, teacher
// designation, countdown and history log.
// ARCHITECTURAL DISCOVERY: One mutex guards every operation, including timer
// ticks, and no operation blocks on I/O while holding it. Outbound delivery
// is non-blocking so notifications can be issued under the lock, which keeps
// every recipient's view ordered consistently with state changes.
type Session struct {
	mu sync.Mutex

	dispatcher   interfaces.Dispatcher
	timer        Countdown
	archive      interfaces.HistoryArchive
	metrics      *metrics.Metrics
	now          func() time.Time
	newID        func() string
	maxTimeLimit int
	archiveWait  sync.WaitGroup

	archiveTimeout time.Duration
	closed         bool

	state     types.PollState
	poll      *types.Poll
	counts    tally.Tally
	roster    *roster.Roster
	teacherID string
	remaining int
	timerGen  uint64
	history   []types.HistoryEntry
}

const defaultArchiveTimeout = 30 * time.Second

// Option configures a Session
type Option func(*Session)

// WithCountdown replaces the default one-second countdown timer
func WithCountdown(c Countdown) Option {
	return func(s *Session) { s.timer = c }
}

// WithArchive hands every completed poll to a write-behind archive
func WithArchive(a interfaces.HistoryArchive) Option {
	return func(s *Session) { s.archive = a }
}

// WithArchiveTimeout bounds each archive write; non-positive values keep the default
func WithArchiveTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.archiveTimeout = d
		}
	}
}

// WithMetrics enables Prometheus collection
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithIDGenerator replaces the history entry ID generator
func WithIDGenerator(gen func() string) Option {
	return func(s *Session) { s.newID = gen }
}

// WithMaxTimeLimit caps timeLimitSeconds on new polls (0 disables the cap)
func WithMaxTimeLimit(seconds int) Option {
	return func(s *Session) { s.maxTimeLimit = seconds }
}

// New creates a session in the waiting state
func New(dispatcher interfaces.Dispatcher, opts ...Option) *Session {
	s := &Session{
		dispatcher:     dispatcher,
		now:            time.Now,
		newID:          func() string { return uuid.New().String() },
		archiveTimeout: defaultArchiveTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.timer == nil {
		s.timer = countdown.New(time.Second)
	}
	s.resetLocked()
	return s
}

// Reset discards all state, including history, and stops the timer
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timer.Stop()
	s.resetLocked()
	log.Printf("Session reset")
}

func (s *Session) resetLocked() {
	s.state = types.StateWaiting
	s.poll = nil
	s.counts = nil
	s.roster = roster.New()
	s.teacherID = ""
	s.remaining = 0
	s.timerGen = 0
	s.history = nil
	s.metrics.SetParticipants(0)
	s.metrics.SetSecondsRemaining(0)
}

// RegisterTeacher designates connID as the sole teacher, silently
// superseding any previous teacher, and delivers the full state snapshot.
func (s *Session) RegisterTeacher(connID string) types.TeacherSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.teacherID != "" && s.teacherID != connID {
		log.Printf("Teacher superseded: old=%s new=%s", s.teacherID, connID)
	}
	s.teacherID = connID

	snapshot := s.teacherSnapshotLocked()
	s.dispatcher.ToOne(connID, types.NewEnvelope(types.EventTeacherJoined, snapshot))

	log.Printf("Teacher joined: conn=%s", connID)
	return snapshot
}

// RegisterStudent adds connID to the roster under a unique display name
func (s *Session) RegisterStudent(connID, rawName string) (types.StudentSnapshot, error) {
	name, err := types.NormalizeName(rawName)
	if err != nil {
		return types.StudentSnapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.roster.Add(connID, name, s.now())
	if err != nil {
		return types.StudentSnapshot{}, err
	}

	snapshot := s.studentSnapshotLocked(p)
	s.dispatcher.ToOne(connID, types.NewEnvelope(types.EventStudentJoined, snapshot))
	s.broadcastRosterLocked()
	if s.state == types.StateActive {
		// a late joiner changes totalParticipants
		s.broadcastResultsLocked()
	}

	s.metrics.StudentJoined()
	s.metrics.SetParticipants(s.roster.Len())
	log.Printf("Student joined: conn=%s name=%s participants=%d", connID, name, s.roster.Len())
	return snapshot, nil
}

// CreatePoll installs a new poll and starts its countdown. A poll may be
// created when none exists, when the current one has ended, or when the
// current one is active but every participant has already answered.
func (s *Session) CreatePoll(requesterID, question string, options []string, correctAnswers []bool, timeLimitSeconds int) (types.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isTeacherLocked(requesterID) {
		return types.Poll{}, types.ErrAuthorization
	}

	poll, err := types.NewPoll(question, options, correctAnswers, timeLimitSeconds, s.maxTimeLimit, s.now())
	if err != nil {
		return types.Poll{}, err
	}

	if s.state == types.StateActive && !s.roster.AllAnswered() {
		return types.Poll{}, types.NewError(types.KindConflict, "A poll is already in progress")
	}
	if s.state == types.StateActive {
		s.metrics.PollEnded("superseded")
	}

	s.timer.Stop()
	s.poll = poll
	s.counts = tally.New(len(poll.Options))
	s.roster.ResetAnswers()
	s.state = types.StateActive
	s.remaining = poll.TimeLimitSeconds
	s.timerGen = s.timer.Start(poll.TimeLimitSeconds, s.HandleTimer)

	s.dispatcher.ToEveryone(s.teacherID, s.roster.IDs(), types.NewEnvelope(types.EventPollCreated, types.PollCreatedPayload{
		Poll:             *poll,
		SecondsRemaining: s.remaining,
		Results:          s.resultsLocked(false),
	}))

	s.metrics.PollCreated()
	s.metrics.SetSecondsRemaining(s.remaining)
	log.Printf("Poll created: question=%q options=%d time_limit=%ds", poll.Question, len(poll.Options), poll.TimeLimitSeconds)
	return *poll, nil
}

// SubmitAnswer records connID's single answer for the active poll
func (s *Session) SubmitAnswer(connID string, optionIndex int) (types.AnswerAcceptedPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reply, err := s.submitAnswerLocked(connID, optionIndex)
	if err != nil {
		s.metrics.AnswerRejected(string(types.KindOf(err)))
		return types.AnswerAcceptedPayload{}, err
	}
	return reply, nil
}

func (s *Session) submitAnswerLocked(connID string, optionIndex int) (types.AnswerAcceptedPayload, error) {
	p, ok := s.roster.Get(connID)
	if !ok {
		return types.AnswerAcceptedPayload{}, types.ErrNotFound
	}
	if s.state != types.StateActive {
		return types.AnswerAcceptedPayload{}, types.ErrNoActivePoll
	}
	if p.HasAnswered {
		return types.AnswerAcceptedPayload{}, types.ErrAlreadyAnswered
	}
	if optionIndex < 0 || optionIndex >= len(s.poll.Options) {
		return types.AnswerAcceptedPayload{}, types.NewError(types.KindValidation, "Invalid option")
	}

	if err := s.roster.MarkAnswered(connID, optionIndex); err != nil {
		return types.AnswerAcceptedPayload{}, err
	}
	s.counts.Increment(optionIndex)

	reply := types.AnswerAcceptedPayload{
		OptionIndex: optionIndex,
		IsCorrect:   s.poll.CorrectAnswers[optionIndex],
		Results:     s.resultsLocked(false),
	}
	s.dispatcher.ToOne(connID, types.NewEnvelope(types.EventAnswerAccepted, reply))
	s.broadcastResultsLocked()

	s.metrics.AnswerAccepted()
	log.Printf("Answer submitted: name=%s option=%d answered=%d/%d", p.Name, optionIndex, s.roster.AnsweredCount(), s.roster.Len())
	return reply, nil
}

// RemoveParticipant ejects targetID. Unknown targets are ignored.
func (s *Session) RemoveParticipant(requesterID, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isTeacherLocked(requesterID) {
		return types.ErrAuthorization
	}

	p, ok := s.roster.Remove(targetID)
	if !ok {
		return nil
	}

	s.dispatcher.ToOne(targetID, types.NewEnvelope(types.EventEjected, types.EjectedPayload{
		Reason: "Removed by teacher",
	}))
	s.afterParticipantLeftLocked()

	s.metrics.ParticipantRemoved("ejected")
	log.Printf("Student removed: conn=%s name=%s", targetID, p.Name)
	return nil
}

// Disconnect cleans up after a transport connection has gone away
func (s *Session) Disconnect(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if connID == s.teacherID {
		s.teacherID = ""
		log.Printf("Teacher disconnected: conn=%s", connID)
	}

	p, ok := s.roster.Remove(connID)
	if !ok {
		return
	}
	s.afterParticipantLeftLocked()

	s.metrics.ParticipantRemoved("disconnected")
	log.Printf("Student disconnected: conn=%s name=%s", connID, p.Name)
}

// ClearPoll discards the current poll without writing history
func (s *Session) ClearPoll(requesterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isTeacherLocked(requesterID) {
		return types.ErrAuthorization
	}

	if s.state == types.StateActive {
		s.metrics.PollEnded("cleared")
	}

	s.timer.Stop()
	s.timerGen = 0
	s.poll = nil
	s.counts = nil
	s.roster.ResetAnswers()
	s.state = types.StateWaiting
	s.remaining = 0

	s.dispatcher.ToEveryone(s.teacherID, s.roster.IDs(), types.NewEnvelope(types.EventPollCleared, nil))

	s.metrics.SetSecondsRemaining(0)
	log.Printf("Poll cleared")
	return nil
}

// GetHistory returns completed polls, most recent first
func (s *Session) GetHistory(requesterID string) ([]types.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isTeacherLocked(requesterID) {
		return nil, types.ErrAuthorization
	}

	history := s.historyLocked()
	s.dispatcher.ToOne(requesterID, types.NewEnvelope(types.EventHistorySnapshot, types.HistorySnapshotPayload{
		Entries: history,
	}))
	return history, nil
}

// HandleTimer is the single entry point for countdown events. Ticks from a
// stopped run, or arriving after the poll left the active state, are ignored.
func (s *Session) HandleTimer(tick countdown.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tick.Generation != s.timerGen || s.state != types.StateActive {
		return
	}

	s.remaining = tick.Remaining
	s.dispatcher.ToEveryone(s.teacherID, s.roster.IDs(), types.NewEnvelope(types.EventTimerTick, types.TimerTickPayload{
		SecondsRemaining: s.remaining,
	}))
	s.metrics.SetSecondsRemaining(s.remaining)

	if tick.Final {
		s.expirePollLocked()
	}
}

// expirePoll ends the active poll; a no-op in any other state
func (s *Session) expirePoll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expirePollLocked()
}

func (s *Session) expirePollLocked() bool {
	if s.state != types.StateActive {
		return false
	}

	s.timer.Stop()
	s.timerGen = 0

	final := s.resultsLocked(true)
	entry := types.HistoryEntry{
		ID:                s.newID(),
		Question:          s.poll.Question,
		Options:           append([]string(nil), s.poll.Options...),
		Results:           final,
		CompletedAt:       s.now(),
		TotalParticipants: s.roster.Len(),
	}
	s.history = append([]types.HistoryEntry{entry}, s.history...)

	s.roster.ResetAnswers()
	s.state = types.StateEnded
	s.remaining = 0

	s.dispatcher.ToEveryone(s.teacherID, s.roster.IDs(), types.NewEnvelope(types.EventPollEnded, types.PollEndedPayload{
		FinalEntries:      final,
		TotalParticipants: entry.TotalParticipants,
	}))
	s.archiveAsync(entry)

	s.metrics.PollEnded("expired")
	s.metrics.SetSecondsRemaining(0)
	log.Printf("Poll ended: question=%q participants=%d history=%d", entry.Question, entry.TotalParticipants, len(s.history))
	return true
}

// archiveAsync stores entry off the session lock
func (s *Session) archiveAsync(entry types.HistoryEntry) {
	if s.archive == nil {
		return
	}
	if s.closed {
		log.Printf("Session closed, not archiving poll %s", entry.ID)
		return
	}

	s.archiveWait.Add(1)
	go func() {
		defer s.archiveWait.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.archiveTimeout)
		defer cancel()
		if err := s.archive.StoreHistoryEntry(ctx, &entry); err != nil {
			log.Printf("Failed to archive poll %s: %v", entry.ID, err)
		}
	}()
}

// Flush waits for pending archive writes
func (s *Session) Flush() {
	s.archiveWait.Wait()
}

// Close stops the countdown and refuses further archive writes.
// An active poll is left unfinished and is not written to history.
// Call Flush afterwards to drain writes already in flight.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.timer.Stop()
	s.timerGen = 0
	log.Printf("Session closed: state=%s history=%d", s.state, len(s.history))
}

// Status summarizes the session for health reporting
func (s *Session) Status() types.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return types.SessionStatus{
		State:            s.state,
		HasTeacher:       s.teacherID != "",
		Participants:     s.roster.Len(),
		Answered:         s.roster.AnsweredCount(),
		SecondsRemaining: s.remaining,
		HistoryEntries:   len(s.history),
	}
}

func (s *Session) isTeacherLocked(connID string) bool {
	return s.teacherID != "" && connID == s.teacherID
}

// afterParticipantLeftLocked refreshes everyone whose view depends on the roster
func (s *Session) afterParticipantLeftLocked() {
	s.broadcastRosterLocked()
	if s.state == types.StateActive {
		s.broadcastResultsLocked()
	}
	s.metrics.SetParticipants(s.roster.Len())
}

func (s *Session) broadcastRosterLocked() {
	s.dispatcher.ToTeacher(s.teacherID, types.NewEnvelope(types.EventRosterUpdated, types.RosterUpdatedPayload{
		Participants: s.roster.List(),
	}))
}

func (s *Session) broadcastResultsLocked() {
	s.dispatcher.ToEveryone(s.teacherID, s.roster.IDs(), types.NewEnvelope(types.EventResultsUpdated, types.ResultsUpdatedPayload{
		Entries:           s.resultsLocked(false),
		TotalParticipants: s.roster.Len(),
		AnsweredCount:     s.roster.AnsweredCount(),
	}))
}

// resultsLocked aggregates the current tally; nil when there is no poll
func (s *Session) resultsLocked(reveal bool) []types.ResultEntry {
	if s.poll == nil {
		return nil
	}
	return tally.Aggregate(s.poll.Options, s.counts, s.poll.CorrectAnswers, reveal)
}

func (s *Session) historyLocked() []types.HistoryEntry {
	history := make([]types.HistoryEntry, len(s.history))
	copy(history, s.history)
	return history
}

func (s *Session) currentPollLocked() *types.Poll {
	if s.poll == nil {
		return nil
	}
	p := *s.poll
	return &p
}

func (s *Session) teacherSnapshotLocked() types.TeacherSnapshot {
	snapshot := types.TeacherSnapshot{
		CurrentPoll:      s.currentPollLocked(),
		State:            s.state,
		Participants:     s.roster.List(),
		Results:          s.resultsLocked(s.state == types.StateEnded),
		SecondsRemaining: s.remaining,
		History:          s.historyLocked(),
	}
	if s.poll != nil {
		snapshot.CorrectAnswers = append([]bool(nil), s.poll.CorrectAnswers...)
	}
	return snapshot
}

func (s *Session) studentSnapshotLocked(p types.Participant) types.StudentSnapshot {
	snapshot := types.StudentSnapshot{
		ParticipantID:     p.ID,
		Name:              p.Name,
		CurrentPoll:       s.currentPollLocked(),
		State:             s.state,
		IsActive:          s.state == types.StateActive,
		HasAnswered:       p.HasAnswered,
		SecondsRemaining:  s.remaining,
		TotalParticipants: s.roster.Len(),
	}
	switch s.state {
	case types.StateActive:
		snapshot.Results = s.resultsLocked(false)
	case types.StateEnded:
		snapshot.Results = s.resultsLocked(true)
	}
	return snapshot
}
