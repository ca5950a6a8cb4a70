package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionBusy is returned when a handshake call is already in flight.
	ErrSessionBusy = errors.New("session busy: a handshake call is already in progress")
	// ErrEmptyToken is returned when an accept call gets no token.
	ErrEmptyToken = errors.New("no token provided")
	// ErrNotEditable is returned when endpoints are changed outside the disconnected state.
	ErrNotEditable = errors.New("endpoints can only be changed while disconnected")
	// ErrCancelled means the user picked no file or destination. It is not a failure.
	ErrCancelled = errors.New("cancelled by user")
	// ErrStale is returned when a handshake result arrives after the session
	// view that started it was torn down. The result is discarded.
	ErrStale = errors.New("session detached before the result arrived")
	ErrClosed = errors.New("session closed")
)

// BackendError wraps a failed handshake capability call.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Message is the backend's own text, shown to the user verbatim.
func (e *BackendError) Message() string {
	if e.Err == nil {
		return e.Op + " failed"
	}
	return e.Err.Error()
}

// IoError wraps a failed export, import or clipboard operation. It never
// affects handshake status.
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }
