package types

import "errors"

// ErrorKind classifies a rejected session action.
// Every kind is reported to the originating connection only.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindAuthorization   ErrorKind = "authorization"
	KindNameConflict    ErrorKind = "name_conflict"
	KindConflict        ErrorKind = "conflict"
	KindAlreadyAnswered ErrorKind = "already_answered"
	KindNotFound        ErrorKind = "not_found"
	KindState           ErrorKind = "state"
)

// Error is a rejected action. Two errors match under errors.Is when their
// kinds match, so callers compare against the Err* sentinels below.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrValidation      = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrAuthorization   = &Error{Kind: KindAuthorization, Message: "Unauthorized"}
	ErrNameConflict    = &Error{Kind: KindNameConflict, Message: "Name already taken"}
	ErrConflict        = &Error{Kind: KindConflict, Message: "A poll is already in progress"}
	ErrAlreadyAnswered = &Error{Kind: KindAlreadyAnswered, Message: "Already answered"}
	ErrNotFound        = &Error{Kind: KindNotFound, Message: "Student not found"}
	ErrNoActivePoll    = &Error{Kind: KindState, Message: "No active poll"}
)

// NewError builds an error of the given kind with a caller-facing message
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// KindOf returns the kind of a session error, or "" for anything else
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
