package interfaces

import "pollroom/pkg/types"

// PollSession is the narrow event interface the transport layer calls into.
// Every method runs to completion atomically with respect to the others.
type PollSession interface {
	RegisterTeacher(connID string) types.TeacherSnapshot
	RegisterStudent(connID, rawName string) (types.StudentSnapshot, error)
	CreatePoll(requesterID, question string, options []string, correctAnswers []bool, timeLimitSeconds int) (types.Poll, error)
	SubmitAnswer(connID string, optionIndex int) (types.AnswerAcceptedPayload, error)
	RemoveParticipant(requesterID, targetID string) error
	ClearPoll(requesterID string) error
	GetHistory(requesterID string) ([]types.HistoryEntry, error)
	Disconnect(connID string)
	Status() types.SessionStatus
}

// EventSink accepts raw inbound frames from the transport layer
type EventSink interface {
	// Submit queues one inbound frame from connID
	Submit(connID string, data []byte) error

	// Disconnect reports that connID's transport has gone away
	Disconnect(connID string) error
}
