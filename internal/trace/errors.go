package trace

import (
	"errors"
	"fmt"
)

// FailureMessage is the user-facing text shown when a trace fails.
const FailureMessage = "Failed to trace URL. Please check the URL and your network connection."

var (
	// ErrInvalidInput is returned for an empty or unparseable start URL.
	// No hop is recorded in that case.
	ErrInvalidInput = errors.New("invalid start URL")
	// ErrTraceFailed matches any error that aborted a trace mid-way.
	ErrTraceFailed = errors.New("trace failed")
	// ErrTraceCanceled matches a trace stopped by its caller or superseded
	// by a newer trace.
	ErrTraceCanceled = errors.New("trace canceled")
	// ErrBadLocation is wrapped when a Location header cannot be parsed.
	ErrBadLocation = errors.New("bad Location header")
	// ErrUnsupportedScheme is wrapped when a redirect leaves http(s).
	ErrUnsupportedScheme = errors.New("unsupported redirect scheme")
)

// Error describes the hop at which a trace was aborted.
type Error struct {
	Hop      int
	URL      string
	Err      error
	canceled bool
}

func (e *Error) Error() string {
	kind := "trace failed"
	if e.canceled {
		kind = "trace canceled"
	}
	return fmt.Sprintf("%s at hop %d (%s): %v", kind, e.Hop, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrTraceFailed or ErrTraceCanceled.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTraceFailed:
		return !e.canceled
	case ErrTraceCanceled:
		return e.canceled
	}
	return false
}
