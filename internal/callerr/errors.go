package callerr

import (
	"errors"
	"fmt"
)

var (
	// CapacityError
	ErrRoomFull = errors.New("room is full")

	// MediaAcquisitionError
	ErrMediaUnavailable = errors.New("local media unavailable")

	// StateGuardViolation
	ErrNoPendingOffer       = errors.New("no pending local offer")
	ErrAnswerAlreadyCreated = errors.New("answer already created")
	ErrToggleNotAllowed     = errors.New("toggle not allowed in current state")

	// TargetUnreachable
	ErrTargetUnreachable = errors.New("target not reachable")

	ErrNotInRoom       = errors.New("not in a room")
	ErrPeerLeft        = errors.New("peer left the room")
	ErrSignalingClosed = errors.New("signaling connection closed")
	ErrSessionClosed   = errors.New("peer session closed")
)

type Error struct {
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func Wrap(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}

// IsBenign reports whether err comes from a duplicate or late message and
// should be absorbed instead of surfaced.
func IsBenign(err error) bool {
	return errors.Is(err, ErrNoPendingOffer) ||
		errors.Is(err, ErrAnswerAlreadyCreated) ||
		errors.Is(err, ErrToggleNotAllowed) ||
		errors.Is(err, ErrTargetUnreachable) ||
		errors.Is(err, ErrNotInRoom)
}
