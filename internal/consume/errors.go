package consume

import (
	"errors"
	"fmt"
)

var (
	// ErrRead wraps stream I/O failures. The cause is preserved.
	ErrRead = errors.New("body read failed")
	// ErrConversion wraps malformed JSON or form data.
	ErrConversion = errors.New("body conversion failed")
	// ErrAborted is returned for explicit aborts, owner teardown and freeze.
	ErrAborted = errors.New("body consumption aborted")
	// ErrAlreadyStarted is returned by a second Start on the same Consumer.
	ErrAlreadyStarted = errors.New("body consumption already started")
	// ErrInvalidRequest is returned when a Consumer cannot be built.
	ErrInvalidRequest = errors.New("invalid consume request")

	ErrNoStream      = errors.New("no body stream")
	ErrOwnerTornDown = errors.New("owner torn down")
	ErrLoopClosed    = errors.New("event loop closed")
)

func readError(cause error) error {
	return fmt.Errorf("%w: %w", ErrRead, cause)
}

func conversionError(t Type, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrConversion, t, cause)
}

func abortError(reason error) error {
	switch {
	case reason == nil:
		return ErrAborted
	case errors.Is(reason, ErrAborted):
		return reason
	default:
		return fmt.Errorf("%w: %w", ErrAborted, reason)
	}
}
