// Package coalesce implements a coalescing coordinator: a concurrency
// primitive that batches concurrent single-call requests sharing the
// same callback into one invocation, closing each batch on the first of
// a bounded time window or a bounded size, and fanning results back to
// each caller through a blocking, deferred, or reactive delivery
// modality.
//
// A Coordinator is constructed once per distinct backend operation:
//
//	coord, err := coalesce.NewCoordinator(coalesce.DefaultConfig(
//		50*time.Millisecond, 100,
//		func(ctx context.Context, args [][]any) ([]int, error) {
//			ids := make([]int, len(args))
//			for i, a := range args {
//				ids[i] = a[0].(int)
//			}
//			return fetchByIDs(ctx, ids)
//		},
//	))
//
// Callers on independent goroutines then share the coordinator:
//
//	v, err := coord.Execute(ctx, userID)
package coalesce
