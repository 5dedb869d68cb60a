package coalesce

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// Callback is the user-supplied batch function: given the ordered,
// deduplicated argument tuples of a closed batch, it returns exactly one
// result per input, in the same order.
type Callback[R any] func(ctx context.Context, args [][]any) ([]R, error)

// WorkerPool accepts a closure to run; it may run concurrently with
// other submitted jobs. No particular scheduling policy is required —
// a fixed goroutine pool, a work-stealing runtime, or a coroutine
// scheduler all satisfy the contract equally.
type WorkerPool interface {
	Submit(job func())
}

// Config is the coordinator's atomically-swapped configuration
// snapshot. Every in-flight batch keeps the snapshot captured at its
// own creation, so UpdateConfig never perturbs work already underway.
type Config[R any] struct {
	// Window bounds how long a batch may stay open after its first
	// member arrives.
	Window time.Duration `validate:"required,gt=0"`
	// MaxSize bounds how many members a batch may hold.
	MaxSize int `validate:"required,gte=1"`
	// BufferCapacity is the RingBuffer's capacity. Must be at least
	// MaxSize so a single full batch can always be drained in one pass.
	BufferCapacity int `validate:"required,gte=1"`
	// WorkerPool runs each closed batch's Dispatcher invocation.
	WorkerPool WorkerPool `validate:"required"`
	// RemoveDuplicates collapses structurally equal argument tuples
	// before invoking Callback.
	RemoveDuplicates bool
	// Callback processes one batch's unique argument tuples.
	Callback Callback[R] `validate:"required"`
}

var configValidator = validator.New()

func (c Config[R]) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return errors.Wrap(err, "coalesce: invalid config")
	}
	if c.BufferCapacity < c.MaxSize {
		return errors.Errorf("coalesce: invalid config: bufferCapacity (%d) must be >= maxSize (%d)", c.BufferCapacity, c.MaxSize)
	}
	return nil
}

// DefaultConfig returns the spec's default configuration for callback:
// a 4-worker fixed pool, an 8192-item buffer, and dedup enabled. Window
// and MaxSize still need setting by the caller; they have no sane
// defaults.
func DefaultConfig[R any](window time.Duration, maxSize int, callback Callback[R]) Config[R] {
	return Config[R]{
		Window:           window,
		MaxSize:          maxSize,
		BufferCapacity:   8192,
		WorkerPool:       NewFixedWorkerPool(4),
		RemoveDuplicates: true,
		Callback:         callback,
	}
}
