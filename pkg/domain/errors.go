package domain

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a session or transfer id is unknown.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned for duplicate session names, occupied role slots,
	// and a second transfer on a source session that already has one in flight.
	ErrConflict = errors.New("conflict")

	// ErrInvalidState is returned when a transition is attempted from the wrong state.
	ErrInvalidState = errors.New("invalid state")

	// ErrClosed is returned for operations on a closed session.
	ErrClosed = errors.New("session closed")

	// ErrGateway wraps failures of external collaborators (summarizer, media, telephony).
	ErrGateway = errors.New("gateway error")

	// ErrTimeout is returned when an external call exceeds its bound.
	ErrTimeout = errors.New("timeout")

	// ErrInvalidArgument is returned for malformed input (empty names, unknown roles).
	ErrInvalidArgument = errors.New("invalid argument")
)

// Kind is the stable, transport-facing name of an error category.
type Kind string

const (
	KindNotFound        Kind = "NotFound"
	KindConflict        Kind = "Conflict"
	KindInvalidState    Kind = "InvalidState"
	KindClosed          Kind = "Closed"
	KindGateway         Kind = "GatewayError"
	KindTimeout         Kind = "Timeout"
	KindInvalidArgument Kind = "InvalidArgument"
	KindInternal        Kind = "Internal"
)

// KindOf classifies err. Timeouts are checked before gateway errors so that a
// wrapped deadline is reported as Timeout.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrClosed):
		return KindClosed
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrGateway):
		return KindGateway
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	default:
		return KindInternal
	}
}
