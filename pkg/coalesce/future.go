package coalesce

import (
	"context"
	"time"
)

// Future is the handle returned by Coordinator.ExecuteAsFuture. It
// supports blocking retrieval with or without a timeout, a best-effort
// Cancel, and non-blocking status checks.
type Future[R any] struct {
	*completion[R]
	t *tuple[R]
}

func newFuture[R any]() *Future[R] {
	return &Future[R]{completion: newCompletion[R]()}
}

// Get blocks until the result is available.
func (f *Future[R]) Get(ctx context.Context) (R, error) {
	return f.await(ctx)
}

// GetTimeout blocks until the result is available or timeout elapses.
// A timeout is local to this call — it does not affect the underlying
// tuple, which keeps running toward its own completion.
func (f *Future[R]) GetTimeout(timeout time.Duration) (R, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	v, err := f.await(ctx)
	if ctxErr, ok := err.(*CoalesceError); ok && ctxErr.Kind == Interrupted {
		var zero R
		return zero, newTimeout()
	}
	return v, err
}

// IsDone reports whether the result is available.
func (f *Future[R]) IsDone() bool { return f.isDone() }

// IsCancelled reports whether Cancel successfully cancelled this tuple
// before it was handed to the Dispatcher.
func (f *Future[R]) IsCancelled() bool { return f.t.isCancelled() }

// Cancel attempts to remove the tuple before it reaches the Dispatcher.
// It returns true if the cancellation took effect (the tuple will never
// run and Get now returns ErrorKind.Cancelled), false if the tuple had
// already been handed to the Dispatcher (or was already resolved), in
// which case Cancel is a no-op and the tuple completes normally.
func (f *Future[R]) Cancel() bool {
	return f.t.tryCancel()
}
