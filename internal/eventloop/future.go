package eventloop

import (
	"context"
	"sync"
)

// Future is the eventual result of an asynchronous operation. It is resolved
// on the loop after the operation's state changes have been applied, so a
// caller observing Done sees consistent controller state.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error

	mu        sync.Mutex
	callbacks []func(T, error)
}

// NewFuture returns an unresolved future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future that is already complete.
func Resolved[T any](value T, err error) *Future[T] {
	f := NewFuture[T]()
	f.Resolve(value, err)
	return f
}

// Resolve completes the future. Later calls are ignored.
func (f *Future[T]) Resolve(value T, err error) {
	f.once.Do(func() {
		f.mu.Lock()
		f.value = value
		f.err = err
		close(f.done)
		cbs := f.callbacks
		f.callbacks = nil
		f.mu.Unlock()

		for _, cb := range cbs {
			cb(value, err)
		}
	})
}

// OnResolve runs fn with the result once f resolves, on the goroutine that
// resolves it; if f is already resolved fn runs immediately.
func (f *Future[T]) OnResolve(fn func(T, error)) {
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		fn(f.value, f.err)
		return
	default:
	}
	f.callbacks = append(f.callbacks, fn)
	f.mu.Unlock()
}

// Done is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the resolved value. It must only be called after Done.
func (f *Future[T]) Result() (T, error) {
	return f.value, f.err
}

// All resolves once every future in fs has resolved, with the first error seen.
func All[T any](fs ...*Future[T]) *Future[struct{}] {
	out := NewFuture[struct{}]()
	if len(fs) == 0 {
		out.Resolve(struct{}{}, nil)
		return out
	}

	var mu sync.Mutex
	remaining := len(fs)
	var firstErr error
	for _, f := range fs {
		f.OnResolve(func(_ T, err error) {
			mu.Lock()
			if err != nil && firstErr == nil {
				firstErr = err
			}
			remaining--
			last := remaining == 0
			e := firstErr
			mu.Unlock()
			if last {
				out.Resolve(struct{}{}, e)
			}
		})
	}
	return out
}

// Await drives l on the calling goroutine until f resolves or ctx ends.
// It is for callers that are not themselves running on the loop, such as a
// CLI command or a test; the loop must not be drained elsewhere meanwhile.
func Await[T any](ctx context.Context, l *Loop, f *Future[T]) (T, error) {
	for {
		l.RunPending()
		select {
		case <-f.done:
			return f.value, f.err
		default:
		}

		select {
		case <-f.done:
			return f.value, f.err
		case <-l.wake:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}
