package core

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

const (
	futurePending int32 = iota
	futureRunning
	futureDone
	futureCancelled
)

// Future is the result handle of a submitted task. The task's error, or its
// panic wrapped in a *PanicError, is stored and returned by Get; it never
// reaches the worker that ran the task.
type Future[T any] struct {
	state atomic.Int32
	done  chan struct{}
	value T
	err   error

	mu        sync.Mutex
	interrupt context.CancelFunc
	withdraw  func() bool
}

// NewFuture creates a pending Future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// OnCancel registers fn to withdraw the task from wherever it is queued when
// the Future is cancelled before it starts.
func (f *Future[T]) OnCancel(fn func() bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.withdraw = fn
}

// Run executes fn unless the Future was cancelled or already ran.
// It reports whether fn was executed.
func (f *Future[T]) Run(ctx context.Context, fn Callable[T]) bool {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	f.mu.Lock()
	f.interrupt = cancel
	f.mu.Unlock()

	if !f.state.CompareAndSwap(futurePending, futureRunning) {
		return false
	}

	value, err := invoke(runCtx, fn)
	if f.state.CompareAndSwap(futureRunning, futureDone) {
		f.value, f.err = value, err
		close(f.done)
	}
	return true
}

func invoke[T any](ctx context.Context, fn Callable[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx)
}

// Cancel cancels the Future. A pending task is withdrawn and never runs; a
// running task has its context cancelled. It reports whether the Future was
// cancelled by this call.
func (f *Future[T]) Cancel() bool {
	if f.state.CompareAndSwap(futurePending, futureCancelled) {
		f.err = ErrCancelled
		close(f.done)

		f.mu.Lock()
		withdraw := f.withdraw
		f.mu.Unlock()
		if withdraw != nil {
			withdraw()
		}
		return true
	}

	if f.state.CompareAndSwap(futureRunning, futureCancelled) {
		f.err = ErrCancelled
		close(f.done)

		f.mu.Lock()
		interrupt := f.interrupt
		f.mu.Unlock()
		if interrupt != nil {
			interrupt()
		}
		return true
	}
	return false
}

// Get waits for the result.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, interrupted(ctx.Err())
	}
}

// Done is closed once the Future completes or is cancelled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the Future completed or was cancelled.
func (f *Future[T]) IsDone() bool {
	s := f.state.Load()
	return s == futureDone || s == futureCancelled
}

// IsCancelled reports whether the Future was cancelled.
func (f *Future[T]) IsCancelled() bool {
	return f.state.Load() == futureCancelled
}
