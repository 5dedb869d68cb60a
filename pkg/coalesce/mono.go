package coalesce

import (
	"sync"
	"time"
)

// Mono is a cold, single-value publisher: nothing is submitted to the
// coordinator until Subscribe is called. Subscribing twice triggers two
// independent submissions, each coalesced into whatever batch is open at
// the time.
//
// The reactive publisher library itself is out of scope (spec.md §1
// treats it as an abstract single-value asynchronous sink); Mono is
// that abstraction's minimal concrete shape, not a Reactor/RxGo
// adapter — Subscribe/onNext/onError is the contract any such library's
// adapter would be built on. There is no separate onComplete signal:
// onNext is the terminal, single-value delivery.
type Mono[R any] struct {
	trigger func() *tuple[R]

	mu   sync.Mutex
	subs int
}

func newMono[R any](trigger func() *tuple[R]) *Mono[R] {
	return &Mono[R]{trigger: trigger}
}

// Subscription is returned by Subscribe. Cancel behaves like
// Future.Cancel: best-effort, a no-op once the tuple has reached the
// Dispatcher.
type Subscription[R any] struct {
	t *tuple[R]
}

// Cancel attempts to cancel the underlying submission.
func (s *Subscription[R]) Cancel() bool { return s.t.tryCancel() }

// Subscribe triggers submission (on the calling goroutine — Put may
// block here exactly as Execute's does) and delivers exactly one onNext,
// or one onError, from a dedicated goroutine once the Dispatcher resolves
// the tuple; no completion callback follows onNext. Either callback may
// be nil.
func (m *Mono[R]) Subscribe(onNext func(R), onError func(error)) *Subscription[R] {
	m.mu.Lock()
	m.subs++
	m.mu.Unlock()

	t := m.trigger()
	sink := t.sink.(*monoSink[R])

	go func() {
		v, err := sink.completion.await(noCancelContext{})
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		if onNext != nil {
			onNext(v)
		}
	}()

	return &Subscription[R]{t: t}
}

// monoSink is the sink implementation backing a Mono submission.
type monoSink[R any] struct {
	*completion[R]
}

func newMonoSink[R any]() *monoSink[R] {
	return &monoSink[R]{completion: newCompletion[R]()}
}

// noCancelContext is a context.Context that never finishes, used for the
// goroutine awaiting a Mono subscription's result — cancellation of that
// wait is through Subscription.Cancel (which races the Dispatcher, per
// Cancel's documented semantics), not context cancellation.
type noCancelContext struct{}

func (noCancelContext) Deadline() (deadline time.Time, ok bool) { return time.Time{}, false }
func (noCancelContext) Done() <-chan struct{}                   { return nil }
func (noCancelContext) Err() error                              { return nil }
func (noCancelContext) Value(key any) any                       { return nil }
