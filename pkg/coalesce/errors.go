package coalesce

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies why a Tuple's sink failed.
type ErrorKind int

const (
	// CallbackFailed means the user callback returned an error (or
	// panicked). Every member of that batch fails with this kind,
	// sharing the cause.
	CallbackFailed ErrorKind = iota
	// ArityMismatch means the callback returned a result slice of the
	// wrong length. Every member of that batch fails with this kind.
	ArityMismatch
	// Cancelled means a Future or Mono submission was cancelled before
	// completion.
	Cancelled
	// Timeout means a Future.GetTimeout waiter gave up; it does not
	// affect the tuple's underlying completion.
	Timeout
	// Interrupted means a blocking Execute waiter's context was
	// cancelled; it does not affect the tuple's underlying completion.
	Interrupted
	// BackpressureFull is reserved for a non-blocking submit variant.
	// The default, always-blocking Put never produces it.
	BackpressureFull
)

func (k ErrorKind) String() string {
	switch k {
	case CallbackFailed:
		return "CallbackFailed"
	case ArityMismatch:
		return "ArityMismatch"
	case Cancelled:
		return "Cancelled"
	case Timeout:
		return "Timeout"
	case Interrupted:
		return "Interrupted"
	case BackpressureFull:
		return "BackpressureFull"
	default:
		return "Unknown"
	}
}

// CoalesceError is the error type returned through every sink. Kind
// identifies the failure mode; Cause, when non-nil, is the underlying
// error (the callback's error for CallbackFailed, a context error for
// Interrupted).
type CoalesceError struct {
	Kind  ErrorKind
	Cause error
}

func (e *CoalesceError) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
}

// Unwrap exposes Cause for errors.Is/errors.As.
func (e *CoalesceError) Unwrap() error { return e.Cause }

func newCallbackFailed(cause error) *CoalesceError {
	return &CoalesceError{Kind: CallbackFailed, Cause: errors.Wrap(cause, "coalesce: callback failed")}
}

func newArityMismatch(expected, actual int) *CoalesceError {
	return &CoalesceError{
		Kind:  ArityMismatch,
		Cause: errors.Errorf("coalesce: expected %d results, got %d", expected, actual),
	}
}

func newCancelled() *CoalesceError {
	return &CoalesceError{Kind: Cancelled, Cause: errors.New("coalesce: cancelled")}
}

func newTimeout() *CoalesceError {
	return &CoalesceError{Kind: Timeout, Cause: errors.New("coalesce: timed out waiting for result")}
}

func newInterrupted(cause error) *CoalesceError {
	return &CoalesceError{Kind: Interrupted, Cause: errors.Wrap(cause, "coalesce: interrupted")}
}
