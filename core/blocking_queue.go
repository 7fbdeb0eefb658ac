package core

import (
	"context"
	"sync"
	"time"
)

// BlockingQueue turns any Queue into a queue safe for concurrent use with
// blocking retrieval. A single mutex guards the wrapped queue; waiters block on
// one broadcast condition that every successful mutation signals.
//
// The condition is a channel closed and replaced on every signal, which lets a
// waiter also give up on a timeout or a cancelled context.
type BlockingQueue[E comparable] struct {
	mu     sync.Mutex
	notify chan struct{}
	q      Queue[E]
	closed bool

	capacity   int
	readyDelay func(e E) time.Duration
}

// BlockingQueueOption configures a BlockingQueue.
type BlockingQueueOption[E comparable] func(*BlockingQueue[E])

// WithCapacity bounds the queue to n elements. Zero or less means unbounded.
func WithCapacity[E comparable](n int) BlockingQueueOption[E] {
	return func(b *BlockingQueue[E]) {
		b.capacity = n
	}
}

// WithReadyDelay installs a readiness gate: the head of the queue is only handed
// out once fn reports a non-positive delay for it. Blocked takers wait exactly
// the reported delay, or until the next signal.
func WithReadyDelay[E comparable](fn func(e E) time.Duration) BlockingQueueOption[E] {
	return func(b *BlockingQueue[E]) {
		b.readyDelay = fn
	}
}

// NewBlockingQueue wraps q. The BlockingQueue takes ownership of q; q must not
// be used directly afterwards.
func NewBlockingQueue[E comparable](q Queue[E], opts ...BlockingQueueOption[E]) *BlockingQueue[E] {
	b := &BlockingQueue[E]{
		notify: make(chan struct{}),
		q:      q,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Offer inserts e without blocking.
func (b *BlockingQueue[E]) Offer(e E) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrQueueClosed
	}
	if b.fullLocked() {
		return ErrQueueFull
	}
	if err := b.q.Offer(e); err != nil {
		return err
	}
	b.signalLocked()
	return nil
}

// Put inserts e, waiting for space if the queue is bounded.
func (b *BlockingQueue[E]) Put(ctx context.Context, e E) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for !b.closed && b.fullLocked() {
		if err := b.waitLocked(ctx, 0); err != nil {
			return err
		}
	}
	if b.closed {
		return ErrQueueClosed
	}
	if err := b.q.Offer(e); err != nil {
		return err
	}
	b.signalLocked()
	return nil
}

// Poll removes and returns the head if it is ready.
func (b *BlockingQueue[E]) Poll() (E, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, wait, ok := b.headLocked()
	if !ok || wait > 0 {
		var zero E
		return zero, false
	}
	return b.popLocked(), true
}

// Peek returns the head without removing it, if it is ready.
func (b *BlockingQueue[E]) Peek() (E, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, wait, ok := b.headLocked()
	if !ok || wait > 0 {
		var zero E
		return zero, false
	}
	return e, true
}

// Take removes and returns the head, waiting until one is ready.
// It returns an error wrapping ErrInterrupted when ctx ends first, and
// ErrQueueClosed once the queue is closed and empty.
func (b *BlockingQueue[E]) Take(ctx context.Context) (E, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		_, wait, ok := b.headLocked()
		if ok && wait <= 0 {
			return b.popLocked(), nil
		}
		if !ok && b.closed && b.q.Len() == 0 {
			var zero E
			return zero, ErrQueueClosed
		}
		if err := b.waitLocked(ctx, wait); err != nil {
			var zero E
			return zero, err
		}
	}
}

// PollTimeout removes and returns the head, waiting at most timeout for one to
// become ready. The boolean is false when the timeout elapsed.
func (b *BlockingQueue[E]) PollTimeout(ctx context.Context, timeout time.Duration) (E, bool, error) {
	var zero E
	deadline := time.Now().Add(timeout)

	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		_, wait, ok := b.headLocked()
		if ok && wait <= 0 {
			return b.popLocked(), true, nil
		}
		if !ok && b.closed && b.q.Len() == 0 {
			return zero, false, ErrQueueClosed
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return zero, false, nil
		}
		if wait <= 0 || wait > remaining {
			wait = remaining
		}
		if err := b.waitLocked(ctx, wait); err != nil {
			return zero, false, err
		}
	}
}

// DrainTo removes up to limit ready elements (all of them when limit <= 0) and
// returns them in queue order.
func (b *BlockingQueue[E]) DrainTo(limit int) []E {
	b.mu.Lock()
	defer b.mu.Unlock()

	var drained []E
	for limit <= 0 || len(drained) < limit {
		_, wait, ok := b.headLocked()
		if !ok || wait > 0 {
			break
		}
		e, _ := b.q.Poll()
		drained = append(drained, e)
	}
	if len(drained) > 0 {
		b.signalLocked()
	}
	return drained
}

// Remove deletes e from the queue, ready or not.
func (b *BlockingQueue[E]) Remove(e E) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.q.Remove(e) {
		return false
	}
	b.signalLocked()
	return true
}

// Contains reports whether e is queued.
func (b *BlockingQueue[E]) Contains(e E) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	found := false
	b.q.Each(func(x E) bool {
		found = x == e
		return !found
	})
	return found
}

// Snapshot returns every queued element, ready or not.
func (b *BlockingQueue[E]) Snapshot() []E {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := make([]E, 0, b.q.Len())
	b.q.Each(func(e E) bool {
		items = append(items, e)
		return true
	})
	return items
}

// Len returns the number of queued elements, ready or not.
func (b *BlockingQueue[E]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.q.Len()
}

// RemainingCapacity returns how many elements can be offered before the queue
// is full, or -1 if it is unbounded.
func (b *BlockingQueue[E]) RemainingCapacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.capacity <= 0 {
		return -1
	}
	return max(b.capacity-b.q.Len(), 0)
}

// Clear removes every element.
func (b *BlockingQueue[E]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.q.Clear()
	b.signalLocked()
}

// Signal wakes all waiters so they re-check the head. Call it when readiness
// changes without the queue being touched, e.g. when a predecessor finishes.
func (b *BlockingQueue[E]) Signal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signalLocked()
}

// Close rejects further offers. Queued elements can still be consumed.
func (b *BlockingQueue[E]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.signalLocked()
}

// IsClosed reports whether Close has been called.
func (b *BlockingQueue[E]) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *BlockingQueue[E]) fullLocked() bool {
	return b.capacity > 0 && b.q.Len() >= b.capacity
}

// headLocked returns the head and how long until it is ready.
func (b *BlockingQueue[E]) headLocked() (E, time.Duration, bool) {
	e, ok := b.q.Peek()
	if !ok {
		return e, 0, false
	}
	if b.readyDelay == nil {
		return e, 0, true
	}
	return e, b.readyDelay(e), true
}

func (b *BlockingQueue[E]) popLocked() E {
	e, _ := b.q.Poll()
	b.signalLocked()
	return e
}

func (b *BlockingQueue[E]) signalLocked() {
	close(b.notify)
	b.notify = make(chan struct{})
}

// waitLocked releases the lock until the next signal, the timeout (if positive)
// or the end of ctx, then reacquires it.
func (b *BlockingQueue[E]) waitLocked(ctx context.Context, timeout time.Duration) error {
	ch := b.notify
	b.mu.Unlock()
	defer b.mu.Lock()

	if timeout <= 0 {
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return interrupted(ctx.Err())
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return nil
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return interrupted(ctx.Err())
	}
}
