package coalesce

import (
	"context"
	"sync"
)

// result is the outcome delivered to a sink: either a value or an error.
type result[R any] struct {
	value R
	err   error
}

// completion is the single-assignment primitive shared by all three
// delivery modalities. complete is safe to call concurrently and from
// any goroutine; only the first call has any effect, matching the
// Tuple invariant that a sink resolves exactly once and a second
// completion attempt is silently ignored.
type completion[R any] struct {
	once sync.Once
	done chan struct{}
	res  result[R]
}

func newCompletion[R any]() *completion[R] {
	return &completion[R]{done: make(chan struct{})}
}

func (c *completion[R]) complete(res result[R]) {
	c.once.Do(func() {
		c.res = res
		close(c.done)
	})
}

func (c *completion[R]) isDone() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// await blocks until the completion resolves or ctx is cancelled. A
// context cancellation is local to this waiter: it does not affect the
// tuple's own completion, which proceeds independently.
func (c *completion[R]) await(ctx context.Context) (R, error) {
	select {
	case <-c.done:
		return c.res.value, c.res.err
	case <-ctx.Done():
		var zero R
		return zero, newInterrupted(ctx.Err())
	}
}

// sink is the interface the Dispatcher completes. Every concrete sink
// embeds a *completion[R] and exposes it here.
type sink[R any] interface {
	complete(result[R])
}

// blockingSink backs Coordinator.Execute: the caller blocks on await
// until the Dispatcher resolves it.
type blockingSink[R any] struct {
	*completion[R]
}

func newBlockingSink[R any]() *blockingSink[R] {
	return &blockingSink[R]{completion: newCompletion[R]()}
}
