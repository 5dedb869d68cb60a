// Package ring provides the coordinator's bounded, blocking,
// multi-producer/single-consumer queue. The slot layout and CAS claim
// loop are adapted from the teacher's lock-free MPMC queue
// (pkg/datastructs/queue/mpmc.go); a counting semaphore is layered on top
// so Put blocks the producer instead of returning false when the ring is
// full, which is the contract the Batcher's RingBuffer needs.
package ring

import (
	"context"
	"math/bits"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/huynhanx03/coalesce/pkg/coalesce/internal/xruntime"
	"github.com/huynhanx03/coalesce/pkg/utils"
)

const cacheLineSize = 64

type slot[T any] struct {
	turn atomic.Uint64
	data T
	_    [cacheLineSize - 16]byte // padding to prevent false sharing
}

// Ring is a bounded queue of T with blocking Put and a single logical
// consumer. Multiple producers may call Put concurrently; PollBatch/DrainAll
// are meant to be called from one consumer goroutine at a time (the
// Batcher), though the underlying slot claim loop tolerates concurrent
// consumers too.
type Ring[T any] struct {
	capacity     uint64
	mask         uint64
	capacityLog2 uint64
	slots        []slot[T]

	head atomic.Uint64
	tail atomic.Uint64

	tokens  *semaphore.Weighted // admission gate: one token per free slot
	arrived chan struct{}       // non-blocking "something is here" signal
	retired chan struct{}       // closed by Retire to wake a stale waiter
}

// New creates a Ring with the given capacity, rounded up to a power of
// two (capacity 0 means "unsized", rounded to the minimum of 2).
func New[T any](capacity int) *Ring[T] {
	if capacity < 2 {
		capacity = 2
	}
	capacity = utils.CeilToPowerOfTwo(capacity)

	r := &Ring[T]{
		capacity:     uint64(capacity),
		mask:         uint64(capacity - 1),
		capacityLog2: uint64(bits.TrailingZeros64(uint64(capacity))),
		slots:        make([]slot[T], capacity),
		tokens:       semaphore.NewWeighted(int64(capacity)),
		arrived:      make(chan struct{}, 1),
		retired:      make(chan struct{}),
	}
	return r
}

// Retire wakes any consumer currently blocked in PollBatch waiting for
// this ring to gain a new item. Called once, after UpdateConfig has
// drained a ring's remaining items into its replacement, so the
// Batcher's stale reference to the retired ring doesn't wait forever for
// an arrival that will never come (all future Puts now target the
// replacement).
func (r *Ring[T]) Retire() {
	close(r.retired)
}

func (r *Ring[T]) idx(pos uint64) uint64  { return pos & r.mask }
func (r *Ring[T]) turn(pos uint64) uint64 { return pos >> r.capacityLog2 }

// Capacity returns the ring's rounded capacity.
func (r *Ring[T]) Capacity() int { return int(r.capacity) }

// Put blocks until a slot is free (or ctx is done) and then enqueues
// item. Returns ctx.Err() if ctx is cancelled before a slot is acquired.
func (r *Ring[T]) Put(ctx context.Context, item T) error {
	if err := r.tokens.Acquire(ctx, 1); err != nil {
		return err
	}
	r.enqueue(item)
	r.notify()
	return nil
}

// enqueue claims the next slot via the teacher's CAS/turn-counter loop
// and writes item into it. The semaphore guarantees a free slot exists,
// so this loop always terminates.
func (r *Ring[T]) enqueue(item T) {
	for attempt := 0; ; attempt++ {
		head := r.head.Load()
		idx := r.idx(head)
		expectedTurn := r.turn(head) * 2

		if r.slots[idx].turn.Load() == expectedTurn {
			if r.head.CompareAndSwap(head, head+1) {
				r.slots[idx].data = item
				r.slots[idx].turn.Store(expectedTurn + 1)
				return
			}
		}
		xruntime.Backoff(attempt)
	}
}

// dequeue removes and returns one item, reporting false if the ring
// currently has nothing claimed (the caller must already know, via the
// semaphore's inverse bookkeeping or a successful arrival signal, that an
// item is expected; dequeue itself just walks the slot ring).
func (r *Ring[T]) dequeue() (T, bool) {
	var zero T
	for attempt := 0; ; attempt++ {
		tail := r.tail.Load()
		idx := r.idx(tail)
		expectedTurn := r.turn(tail)*2 + 1

		if r.slots[idx].turn.Load() == expectedTurn {
			if r.tail.CompareAndSwap(tail, tail+1) {
				data := r.slots[idx].data
				r.slots[idx].data = zero
				r.slots[idx].turn.Store(expectedTurn + 1)
				return data, true
			}
		} else if tail == r.tail.Load() {
			return zero, false
		}
		xruntime.Backoff(attempt)
	}
}

func (r *Ring[T]) notify() {
	select {
	case r.arrived <- struct{}{}:
	default:
	}
}

// Size returns the approximate number of items currently queued.
func (r *Ring[T]) Size() int64 {
	return int64(r.head.Load()) - int64(r.tail.Load())
}

// DrainAll synchronously removes and returns every item currently in the
// ring, releasing their slots. Used by Resize to migrate pending items
// into a freshly sized ring; the caller is responsible for pausing
// producers around the call.
func (r *Ring[T]) DrainAll() []T {
	var out []T
	for {
		item, ok := r.dequeue()
		if !ok {
			return out
		}
		r.tokens.Release(1)
		out = append(out, item)
	}
}

// PollBatch waits for at least one item, then drains up to max items
// (including the one it waited for), stopping early if ctx is done. It
// never blocks past the earlier of ctx's deadline or an item becoming
// available once at least one item has been collected; keep is called
// for every dequeued item and only items for which it returns true are
// appended to the result (used by the Batcher to drop cancelled tuples
// at drain time per spec).
func (r *Ring[T]) PollBatch(ctx context.Context, max int, keep func(T) bool) []T {
	out := make([]T, 0, max)

	for len(out) < max {
		item, ok := r.dequeue()
		if ok {
			r.tokens.Release(1)
			if keep(item) {
				out = append(out, item)
			}
			continue
		}
		if len(out) > 0 {
			// Already have something to close with; don't wait further
			// for the ring to refill beyond what ctx's deadline allows.
			select {
			case <-ctx.Done():
				return out
			default:
			}
		}
		select {
		case <-r.arrived:
			continue
		case <-r.retired:
			return out
		case <-ctx.Done():
			return out
		}
	}
	return out
}

// Resize drains every item currently queued in r (in order) into a new
// Ring, then retires r so a consumer still blocked on r's old reference
// wakes up and switches over. The new ring's capacity is the requested
// capacity, widened if needed so every drained item fits without
// blocking — UpdateConfig can shrink bufferCapacity at any time, but it
// must never lose a tuple doing so.
func Resize[T any](r *Ring[T], capacity int) *Ring[T] {
	pending := r.DrainAll()
	if capacity < len(pending) {
		capacity = len(pending)
	}
	next := New[T](capacity)
	for _, item := range pending {
		// next was sized to hold every pending item, so this never blocks.
		_ = next.Put(context.Background(), item)
	}
	r.Retire()
	return next
}
