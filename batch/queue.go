package batch

import (
	"slices"

	"github.com/Swind/go-executors/core"
)

// Queue is a FIFO of top-level tasks that hands out only leaves: batches are
// walked depth-first, left to right, when their turn comes. Nothing is
// flattened up front; Len is kept from a leaf count taken when a task is
// offered.
//
// Queued trees must only be modified through an Iterator. Queue is not safe
// for concurrent use; wrap it with NewBlockingQueue.
type Queue[T any] struct {
	pending []*Task[T]
	cur     drain[T]
	size    int
}

var _ core.Queue[*Task[int]] = (*Queue[int])(nil)

// NewQueue creates an empty Queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{}
}

// NewBlockingQueue creates an empty Queue safe for concurrent use.
func NewBlockingQueue[T any](opts ...core.BlockingQueueOption[*Task[T]]) *core.BlockingQueue[*Task[T]] {
	return core.NewBlockingQueue[*Task[T]](NewQueue[T](), opts...)
}

// Offer appends t. The whole tree under t is walked first to count its leaves;
// a nil task or a batch containing itself is rejected and the queue is left
// unchanged.
func (q *Queue[T]) Offer(t *Task[T]) error {
	if t == nil {
		return ErrNilTask
	}
	n, err := CountLeaves(t)
	if err != nil {
		return err
	}
	q.pending = append(q.pending, t)
	q.size += n
	return nil
}

// Peek returns the next leaf without removing it.
func (q *Queue[T]) Peek() (*Task[T], bool) {
	t := q.head()
	return t, t != nil
}

// Poll removes and returns the next leaf.
func (q *Queue[T]) Poll() (*Task[T], bool) {
	t := q.head()
	if t == nil {
		return nil, false
	}
	// A cycle introduced after Offer ends the current entry early.
	_ = q.cur.step()
	q.size = max(q.size-1, 0)
	return t, true
}

// head positions the current drain on the next leaf, moving on to the next
// top-level entry whenever the current one is exhausted.
func (q *Queue[T]) head() *Task[T] {
	for q.cur.next == nil {
		if len(q.pending) == 0 {
			return nil
		}
		entry := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		_ = q.cur.start(entry)
	}
	return q.cur.next
}

// Remove removes leaf e from the batch holding it.
func (q *Queue[T]) Remove(e *Task[T]) bool {
	it := q.Iterator()
	for it.Next() {
		if it.Task() == e {
			return it.Remove()
		}
	}
	return false
}

// Len returns the number of leaves left.
func (q *Queue[T]) Len() int {
	return q.size
}

func (q *Queue[T]) Clear() {
	q.pending = nil
	q.cur = drain[T]{}
	q.size = 0
}

// Each visits the remaining leaves in the order Poll would return them.
func (q *Queue[T]) Each(fn func(e *Task[T]) bool) {
	it := q.Iterator()
	for it.Next() {
		if !fn(it.Task()) {
			return
		}
	}
}

// Iterator returns an iterator over the remaining leaves.
func (q *Queue[T]) Iterator() *Iterator[T] {
	return &Iterator[T]{q: q}
}

// CountLeaves walks t and returns the number of leaves under it, or ErrCycle
// if a batch is reached again while it is being walked.
func CountLeaves[T any](t *Task[T]) (int, error) {
	var d drain[T]
	if err := d.start(t); err != nil {
		return 0, err
	}
	n := 0
	for d.next != nil {
		n++
		if err := d.step(); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// Leaves returns every leaf under t in depth-first order.
func Leaves[T any](t *Task[T]) ([]*Task[T], error) {
	q := NewQueue[T]()
	if err := q.Offer(t); err != nil {
		return nil, err
	}
	leaves := make([]*Task[T], 0, q.Len())
	for {
		leaf, ok := q.Poll()
		if !ok {
			return leaves, nil
		}
		leaves = append(leaves, leaf)
	}
}

// =============================================================================
// drain: iterative depth-first walk over one top-level entry
// =============================================================================

type frame[T any] struct {
	batch *Task[T]
	next  int // index of the next child to visit
}

type drain[T any] struct {
	stack []frame[T]
	next  *Task[T] // leaf to hand out next, nil when exhausted
}

func (d *drain[T]) clone() drain[T] {
	return drain[T]{stack: slices.Clone(d.stack), next: d.next}
}

func (d *drain[T]) start(root *Task[T]) error {
	d.stack = d.stack[:0]
	d.next = nil
	return d.settle(root)
}

// step moves past the current leaf.
func (d *drain[T]) step() error {
	return d.settle(d.following())
}

// settle positions next on the first leaf at or after t.
func (d *drain[T]) settle(t *Task[T]) error {
	for t != nil {
		if !t.isBatch {
			d.next = t
			return nil
		}
		if d.onStack(t) {
			d.stack = d.stack[:0]
			d.next = nil
			return ErrCycle
		}
		d.stack = append(d.stack, frame[T]{batch: t})
		t = d.following()
	}
	d.next = nil
	return nil
}

// following pops exhausted frames and returns the next child to visit.
func (d *drain[T]) following() *Task[T] {
	for len(d.stack) > 0 {
		top := &d.stack[len(d.stack)-1]
		if top.next < len(top.batch.children) {
			c := top.batch.children[top.next]
			top.next++
			return c
		}
		d.stack = d.stack[:len(d.stack)-1]
	}
	return nil
}

func (d *drain[T]) onStack(b *Task[T]) bool {
	for _, f := range d.stack {
		if f.batch == b {
			return true
		}
	}
	return false
}

// parent returns the batch the current leaf was taken from.
func (d *drain[T]) parent() (*Task[T], int) {
	if len(d.stack) == 0 {
		return nil, -1
	}
	top := d.stack[len(d.stack)-1]
	return top.batch, top.next - 1
}

// childRemoved shifts positions after child idx of b was removed.
func (d *drain[T]) childRemoved(b *Task[T], idx int, leaf *Task[T]) {
	wasNext := false
	if p, i := d.parent(); d.next == leaf && p == b && i == idx {
		wasNext = true
	}
	for i := range d.stack {
		if f := &d.stack[i]; f.batch == b && f.next > idx {
			f.next--
		}
	}
	if wasNext {
		_ = d.step()
	}
}

// =============================================================================
// Iterator
// =============================================================================

// Iterator walks the remaining leaves of a Queue without consuming them.
//
//	it := q.Iterator()
//	for it.Next() {
//		leaf, parent := it.Task(), it.Parent()
//	}
type Iterator[T any] struct {
	q       *Queue[T]
	d       drain[T]
	started bool

	inCurrent bool // walking the queue's current entry
	entry     int  // index in q.pending of the entry being walked
	nextEntry int

	leaf    *Task[T]
	removed bool
}

// Next advances to the next leaf and reports whether there is one.
func (it *Iterator[T]) Next() bool {
	if !it.started {
		it.started = true
		it.d = it.q.cur.clone()
		it.inCurrent = true
	} else if it.d.next != nil {
		_ = it.d.step()
	}
	for it.d.next == nil {
		if it.nextEntry >= len(it.q.pending) {
			it.leaf = nil
			return false
		}
		it.entry = it.nextEntry
		it.nextEntry++
		it.inCurrent = false
		_ = it.d.start(it.q.pending[it.entry])
	}
	it.leaf = it.d.next
	it.removed = false
	return true
}

// Task returns the current leaf.
func (it *Iterator[T]) Task() *Task[T] {
	return it.leaf
}

// Parent returns the batch directly enclosing the current leaf, nil for a
// top-level leaf.
func (it *Iterator[T]) Parent() *Task[T] {
	if it.leaf == nil {
		return nil
	}
	p, _ := it.d.parent()
	return p
}

// Remove removes the current leaf from the batch enclosing it, or from the
// queue itself for a top-level leaf. It reports false if there is no current
// leaf or it was already removed.
func (it *Iterator[T]) Remove() bool {
	if it.leaf == nil || it.removed {
		return false
	}
	leaf := it.leaf
	q := it.q

	if parent, idx := it.d.parent(); parent != nil {
		parent.removeAt(idx)
		it.d.stack[len(it.d.stack)-1].next--
		q.cur.childRemoved(parent, idx, leaf)
	} else if it.inCurrent {
		q.cur = drain[T]{}
	} else {
		q.pending = slices.Delete(q.pending, it.entry, it.entry+1)
		it.nextEntry--
	}

	q.size = max(q.size-1, 0)
	it.removed = true
	return true
}
