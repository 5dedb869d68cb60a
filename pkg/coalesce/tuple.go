package coalesce

import (
	"sync/atomic"
	"time"

	"github.com/huynhanx03/coalesce/pkg/coalesce/internal/hashkey"
)

const (
	tupleStatePending = int32(iota)
	tupleStateDispatched
	tupleStateCancelled
)

// tuple is the per-submission record: the caller's argument tuple, its
// delivery sink, an optional dedup identity, and a small state machine
// that arbitrates the one race the spec calls out explicitly — a
// best-effort Cancel racing the Batcher handing the tuple to the
// Dispatcher. Whichever side wins the CAS decides the outcome; the
// loser's action is a no-op.
type tuple[R any] struct {
	args        []any
	identity    hashkey.Key
	sink        sink[R]
	submittedAt time.Time

	state atomic.Int32
}

func newTuple[R any](args []any, identity hashkey.Key, s sink[R], now time.Time) *tuple[R] {
	return &tuple[R]{
		args:        args,
		identity:    identity,
		sink:        s,
		submittedAt: now,
	}
}

// tryDispatch transitions the tuple from pending to dispatched. It is
// called exactly once per tuple, at the moment the Batcher decides to
// include it in a closing batch. False means a concurrent Cancel won
// the race first; the tuple must not be added to the batch.
func (t *tuple[R]) tryDispatch() bool {
	return t.state.CompareAndSwap(tupleStatePending, tupleStateDispatched)
}

// tryCancel transitions the tuple from pending to cancelled and, on
// success, completes its sink with ErrorKind.Cancelled immediately —
// the tuple will never reach a batch. False means the tuple was already
// handed to the Dispatcher (or already cancelled); per spec, cancelling
// after dispatch has begun is a no-op and the tuple completes normally
// with its real result.
func (t *tuple[R]) tryCancel() bool {
	if !t.state.CompareAndSwap(tupleStatePending, tupleStateCancelled) {
		return false
	}
	var zero R
	t.sink.complete(result[R]{value: zero, err: newCancelled()})
	return true
}

func (t *tuple[R]) isCancelled() bool {
	return t.state.Load() == tupleStateCancelled
}

func (t *tuple[R]) complete(res result[R]) {
	t.sink.complete(res)
}
