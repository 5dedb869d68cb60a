package coalesce

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/huynhanx03/coalesce/pkg/coalesce/internal/hashkey"
	"github.com/huynhanx03/coalesce/pkg/coalesce/internal/ring"
)

// Coordinator is one configured instance of the coalescing primitive.
// Coordinators are independent of one another; construct one per
// distinct backend operation being coalesced.
type Coordinator[R any] struct {
	ringPtr atomic.Pointer[ring.Ring[*tuple[R]]]
	config  atomic.Pointer[Config[R]]

	logger *zap.Logger

	// admitMu is held for reading by every admit() call and for writing
	// by UpdateConfig's resize, so a producer can never observe a ring
	// pointer that UpdateConfig is in the middle of retiring: Load and
	// Put happen under the same read-lock section, and the resize's
	// DrainAll+Retire+swap happens under the write lock, so the two can
	// never interleave.
	admitMu sync.RWMutex

	batcher *batcher[R]

	callbackCtx     context.Context
	cancelCallbacks context.CancelFunc

	closeOnce sync.Once
}

// Option customizes a Coordinator at construction time.
type Option[R any] func(*Coordinator[R])

// WithLogger attaches a caller-owned zap.Logger. Without this option a
// Coordinator logs nowhere.
func WithLogger[R any](logger *zap.Logger) Option[R] {
	return func(c *Coordinator[R]) { c.logger = logger }
}

// WithLogFile attaches a rotating file logger built from cfg, in place
// of WithLogger.
func WithLogFile[R any](cfg LogFileConfig) Option[R] {
	return func(c *Coordinator[R]) { c.logger = newFileLogger(cfg) }
}

// NewCoordinator constructs a Coordinator from cfg and starts its
// Batcher goroutine.
func NewCoordinator[R any](cfg Config[R], opts ...Option[R]) (*Coordinator[R], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Coordinator[R]{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}

	c.config.Store(&cfg)
	c.ringPtr.Store(ring.New[*tuple[R]](cfg.BufferCapacity))
	c.callbackCtx, c.cancelCallbacks = context.WithCancel(context.Background())

	c.batcher = newBatcher[R](
		func() *ring.Ring[*tuple[R]] { return c.ringPtr.Load() },
		func() *Config[R] { return c.config.Load() },
		c.logger,
		c.callbackCtx,
	)
	go c.batcher.run()

	c.logger.Info("coalesce: coordinator started",
		zap.Duration("window", cfg.Window),
		zap.Int("max_size", cfg.MaxSize),
		zap.Int("buffer_capacity", cfg.BufferCapacity),
		zap.Bool("remove_duplicates", cfg.RemoveDuplicates),
	)

	return c, nil
}

// admit takes admitMu for reading across both the ring load and the Put,
// so a producer can never land a tuple in a ring that UpdateConfig has
// already drained and retired: UpdateConfig takes admitMu for writing
// around its resize, and the write lock cannot be acquired while any
// admit is still inside Put, blocked or not.
func (c *Coordinator[R]) admit(ctx context.Context, args []any, s sink[R]) (*tuple[R], error) {
	var id hashkey.Key
	if c.config.Load().RemoveDuplicates {
		id = hashkey.Of(args)
	}
	t := newTuple[R](args, id, s, time.Now())

	c.admitMu.RLock()
	defer c.admitMu.RUnlock()

	r := c.ringPtr.Load()
	if err := r.Put(ctx, t); err != nil {
		return nil, newInterrupted(err)
	}
	return t, nil
}

// Execute submits args and blocks until the batch containing them has
// been dispatched, returning its result or the batch's shared failure.
// Blocking is interrupted (ErrorKind.Interrupted) if ctx is cancelled
// first; the tuple itself keeps running toward completion regardless.
func (c *Coordinator[R]) Execute(ctx context.Context, args ...any) (R, error) {
	s := newBlockingSink[R]()
	if _, err := c.admit(ctx, args, s); err != nil {
		var zero R
		return zero, err
	}
	return s.await(ctx)
}

// ExecuteAsFuture submits args and returns a handle immediately, without
// waiting for the batch to close.
func (c *Coordinator[R]) ExecuteAsFuture(ctx context.Context, args ...any) (*Future[R], error) {
	f := newFuture[R]()
	t, err := c.admit(ctx, args, f)
	if err != nil {
		return nil, err
	}
	f.t = t
	return f, nil
}

// ExecuteAsMono returns a cold publisher: args are not submitted until
// Subscribe is called. Subscribing more than once submits more than
// once, each an independent tuple.
func (c *Coordinator[R]) ExecuteAsMono(args ...any) *Mono[R] {
	return newMono[R](func() *tuple[R] {
		s := newMonoSink[R]()
		// Mono.Subscribe has no caller context to honor for admission
		// blocking; it waits on the buffer exactly as Execute does, with
		// no deadline of its own.
		t, err := c.admit(context.Background(), args, s)
		if err != nil {
			// context.Background() never cancels, so admit only fails here
			// if Put itself returns a non-context error; surface it as-is.
			s.complete(result[R]{err: err})
			return newTuple[R](args, hashkey.Key{}, s, time.Now())
		}
		return t
	})
}

// UpdateConfig atomically replaces the configuration snapshot. Batches
// already formed keep the snapshot captured at their own creation. If
// BufferCapacity changed, pending tuples are migrated into a freshly
// sized ring. UpdateConfig takes admitMu for writing around the resize,
// which both serializes UpdateConfig calls against one another and
// blocks until every admit currently inside Put has finished landing its
// tuple in the old ring, so DrainAll+Retire never races a producer's
// Load+Put and no tuple is stranded on the retired ring.
func (c *Coordinator[R]) UpdateConfig(cfg Config[R]) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	c.admitMu.Lock()
	defer c.admitMu.Unlock()

	old := c.ringPtr.Load()
	if old.Capacity() != roundedCapacity(cfg.BufferCapacity) {
		next := ring.Resize[*tuple[R]](old, cfg.BufferCapacity)
		c.ringPtr.Store(next)
	}
	c.config.Store(&cfg)

	c.logger.Info("coalesce: config updated",
		zap.Duration("window", cfg.Window),
		zap.Int("max_size", cfg.MaxSize),
		zap.Int("buffer_capacity", cfg.BufferCapacity),
	)
	return nil
}

func roundedCapacity(requested int) int {
	return ring.New[struct{}](requested).Capacity()
}

// Close stops the Batcher after flushing whatever is currently queued,
// then waits for that final drain to finish. A Coordinator must not be
// used after Close.
func (c *Coordinator[R]) Close() {
	c.closeOnce.Do(func() {
		c.batcher.shutdown()
		c.cancelCallbacks()
		c.logger.Info("coalesce: coordinator closed")
	})
}
