package interfaces

import "pollroom/pkg/types"

// Dispatcher delivers notifications in the three audience modes.
// The session never addresses connections outside these modes.
type Dispatcher interface {
	// ToOne replies directly to a single connection
	ToOne(connID string, envelope *types.Envelope)

	// ToTeacher delivers to the designated teacher; no-op when teacherID is empty
	ToTeacher(teacherID string, envelope *types.Envelope)

	// ToEveryone delivers to the teacher (if any) and every participant
	ToEveryone(teacherID string, participantIDs []string, envelope *types.Envelope)
}
