package coalesce

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/huynhanx03/coalesce/pkg/coalesce/internal/ring"
)

// stopContext adapts a plain close-to-signal channel into a
// context.Context so it can be passed straight into Ring.PollBatch,
// letting the Idle wait wake up on shutdown as well as on arrival or
// retirement.
type stopContext struct {
	stop <-chan struct{}
}

func (c stopContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (c stopContext) Done() <-chan struct{}       { return c.stop }
func (c stopContext) Err() error {
	select {
	case <-c.stop:
		return context.Canceled
	default:
		return nil
	}
}
func (c stopContext) Value(key any) any { return nil }

// batcher is the coordinator's single logical consumer. It cycles
// Idle -> Filling -> Closing, draining ringSource into bounded batches and
// handing each one to a workerPool job that invokes the dispatcher.
//
// Unlike the teacher's StripedBatcher (pkg/mq/batcher), which is lossy and
// flushes purely on size, batcher closes on the first of size or elapsed
// window and never drops an admitted tuple.
type batcher[R any] struct {
	ringSource   func() *ring.Ring[*tuple[R]]
	configSource func() *Config[R]
	logger       *zap.Logger

	// callbackCtx is the coordinator's lifetime context, passed to every
	// batch's callback invocation. It is independent of stop: stop wakes
	// the Idle/Filling polls so a final batch can still be formed and
	// dispatched during shutdown, and that final dispatch must still run
	// with a live (not-yet-cancelled) callbackCtx.
	callbackCtx context.Context

	stop chan struct{}
	done chan struct{}

	// inflight counts batches handed to cfg.WorkerPool.Submit that
	// haven't finished invoke() yet. shutdown waits on it so Close can't
	// cancel callbackCtx out from under a batch that closed normally
	// (size or window) just before stop was signalled.
	inflight sync.WaitGroup
}

func newBatcher[R any](ringSource func() *ring.Ring[*tuple[R]], configSource func() *Config[R], logger *zap.Logger, callbackCtx context.Context) *batcher[R] {
	return &batcher[R]{
		ringSource:   ringSource,
		configSource: configSource,
		logger:       logger,
		callbackCtx:  callbackCtx,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// run is the driver loop. It exits once stop is closed and the current
// ring reports no further arrivals (PollBatch returning empty because
// ctx is already done covers the shutdown drain).
func (b *batcher[R]) run() {
	defer close(b.done)

	for {
		select {
		case <-b.stop:
			b.drainFinal()
			return
		default:
		}

		r := b.ringSource()

		// Idle: block for the first arrival, waking early on a config/ring
		// swap (ring retirement) or on shutdown.
		first := r.PollBatch(stopContext{stop: b.stop}, 1, tupleIsLive[R])
		if len(first) == 0 {
			// Woke because the ring was retired (config swap) or stop
			// was requested with nothing pending. Either way, loop and
			// re-read the current ring/config/stop state.
			continue
		}

		t0 := time.Now()
		members := first

		// The config snapshot is read once the batch has opened, so an
		// UpdateConfig made while Idle already applies to this batch.
		cfg := b.configSource()

		// Filling: keep draining under a deadline anchored to t0, up to
		// the remaining size budget, re-checking the *same* ring and
		// config snapshot the batch was opened under.
		deadline := t0.Add(cfg.Window)
		for len(members) < cfg.MaxSize {
			ctx, cancel := context.WithDeadline(stopContext{stop: b.stop}, deadline)
			remaining := cfg.MaxSize - len(members)
			more := r.PollBatch(ctx, remaining, tupleIsLive[R])
			cancel()

			members = append(members, more...)

			if time.Now().After(deadline) || len(more) == 0 {
				break
			}
		}

		// Closing.
		bt := &batch[R]{members: members, createdAt: t0, cfg: cfg, ctx: b.callbackCtx}
		bt.buildUniqueArgs()

		b.inflight.Add(1)
		cfg.WorkerPool.Submit(func() {
			defer b.inflight.Done()
			invoke(bt, b.logger)
		})
	}
}

// drainFinal forms and dispatches the last batches (each of at most
// MaxSize members) from whatever is already queued, without waiting for
// the window, so a Close doesn't strand admitted tuples mid-buffer.
func (b *batcher[R]) drainFinal() {
	r := b.ringSource()
	cfg := b.configSource()

	members := r.DrainAll()
	live := members[:0]
	for _, m := range members {
		if tupleIsLive[R](m) {
			live = append(live, m)
		}
	}
	for len(live) > 0 {
		n := min(len(live), cfg.MaxSize)
		bt := &batch[R]{members: live[:n], createdAt: time.Now(), cfg: cfg, ctx: b.callbackCtx}
		bt.buildUniqueArgs()
		invoke(bt, b.logger)
		live = live[n:]
	}
}

// shutdown waits for run's final drain to return, then for every batch
// already handed to the WorkerPool to finish invoke() — so by the time
// shutdown returns, Close can safely cancel callbackCtx without cutting
// off a batch that was dispatched just before stop was signalled.
func (b *batcher[R]) shutdown() {
	close(b.stop)
	<-b.done
	b.inflight.Wait()
}

// tupleIsLive is passed to Ring.PollBatch as the keep predicate: tuples
// cancelled while still queued are dropped here instead of being handed
// to a Batch, per the spec's "dropped at drain time" cancellation rule.
func tupleIsLive[R any](t *tuple[R]) bool {
	if t.isCancelled() {
		return false
	}
	return t.tryDispatch()
}
