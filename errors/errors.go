package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrConnectionFailed = fmt.Errorf("connection failed")
	ErrNotConnected     = fmt.Errorf("not connected")
	ErrTransport        = fmt.Errorf("transport error")
	ErrSlowConsumer     = fmt.Errorf("subscriber queue full")
	ErrChannelRequired  = fmt.Errorf("channel id is required")
	ErrIdentityRequired = fmt.Errorf("identity token is required")
	ErrInvalidIdentity  = fmt.Errorf("identity token is invalid")
	ErrInvalidMessage   = fmt.Errorf("invalid message")
	ErrUnknownSession   = fmt.Errorf("session is not connected to this channel")
	ErrMissingTransport = fmt.Errorf("no transport or transport factory provided")
	ErrWorkerPanic      = fmt.Errorf("worker panic")
)

// failure carries a human readable message while still matching its kind with Is.
type failure struct {
	kind    error
	message string
}

func (f failure) Error() string { return f.message }
func (f failure) Unwrap() error { return f.kind }

// Failure returns an error whose text is message and which matches kind.
func Failure(kind error, message string) error {
	return failure{kind: kind, message: message}
}

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }
