package coalesce

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// invoke runs a batch's callback and fans the result (or failure) back
// into every member's sink. It runs on a workerPool goroutine, so
// several invoke calls may be in flight concurrently across batches.
func invoke[R any](b *batch[R], logger *zap.Logger) {
	results, err := callCallback(b.ctx, b.cfg.Callback, b.uniqueArgs)
	if err != nil {
		logger.Warn("coalesce: callback failed",
			zap.Int("batch_size", len(b.members)),
			zap.Int("unique_args", len(b.uniqueArgs)),
			zap.Error(err),
		)
		failAll(b.members, newCallbackFailed(err))
		return
	}

	if len(results) != len(b.uniqueArgs) {
		logger.Warn("coalesce: callback arity mismatch",
			zap.Int("expected", len(b.uniqueArgs)),
			zap.Int("actual", len(results)),
		)
		failAll(b.members, newArityMismatch(len(b.uniqueArgs), len(results)))
		return
	}

	for i, m := range b.members {
		m.complete(result[R]{value: results[b.indexMap[i]]})
	}
}

// callCallback recovers a panicking callback into an error, since a
// panic in one caller's user code must not take down the shared
// worker-pool goroutine or leave the rest of the batch's members
// permanently unresolved. ctx is the coordinator's lifetime context, not
// any one submitter's — no single caller's cancellation should abort a
// batch shared with other callers — so the callback can still honor a
// coordinator-wide shutdown or a deadline it derives from ctx itself.
func callCallback[R any](ctx context.Context, cb Callback[R], uniqueArgs [][]any) (results []R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return cb(ctx, uniqueArgs)
}

func failAll[R any](members []*tuple[R], failure *CoalesceError) {
	var zero R
	for _, m := range members {
		m.complete(result[R]{value: zero, err: failure})
	}
}
