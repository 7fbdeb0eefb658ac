package ordering

import (
	"cmp"
	"slices"
	"sort"

	"github.com/Swind/go-executors/core"
)

// Element is the element type of a Queue.
type Element interface {
	comparable
	OrderedTask
}

// Queue implements core.Queue for ordered tasks. Entries are kept sorted by
// the comparator, entries comparing equal in insertion order. Peek and Poll
// return the first entry that has not finished and whose predecessors all
// have; finished entries are skipped.
//
// Queue is not safe for concurrent use; wrap it with NewBlockingQueue.
type Queue[E Element] struct {
	items []E
	cmp   func(a, b E) int
}

var _ core.Queue[*Task] = (*Queue[*Task])(nil)

// Option configures a Queue.
type Option[E Element] func(*Queue[E])

// WithComparator replaces the default depth order.
func WithComparator[E Element](cmp func(a, b E) int) Option[E] {
	return func(q *Queue[E]) {
		q.cmp = cmp
	}
}

// ByDepth orders shallower tasks first.
func ByDepth[E Element](a, b E) int {
	return cmp.Compare(a.Depth(), b.Depth())
}

// NewQueue creates an empty Queue.
func NewQueue[E Element](opts ...Option[E]) *Queue[E] {
	q := &Queue[E]{cmp: ByDepth[E]}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue[E]) Offer(e E) error {
	i := sort.Search(len(q.items), func(i int) bool {
		return q.cmp(q.items[i], e) > 0
	})
	q.items = slices.Insert(q.items, i, e)
	return nil
}

func (q *Queue[E]) Peek() (E, bool) {
	i := q.firstAvailable()
	if i < 0 {
		var zero E
		return zero, false
	}
	return q.items[i], true
}

func (q *Queue[E]) Poll() (E, bool) {
	i := q.firstAvailable()
	if i < 0 {
		var zero E
		return zero, false
	}
	e := q.items[i]
	q.items = slices.Delete(q.items, i, i+1)
	return e, true
}

func (q *Queue[E]) firstAvailable() int {
	for i, e := range q.items {
		if Ready(e) {
			return i
		}
	}
	return -1
}

func (q *Queue[E]) Remove(e E) bool {
	i := slices.Index(q.items, e)
	if i < 0 {
		return false
	}
	q.items = slices.Delete(q.items, i, i+1)
	return true
}

// Len counts every entry, including ones that are not ready or finished.
func (q *Queue[E]) Len() int {
	return len(q.items)
}

func (q *Queue[E]) Clear() {
	q.items = nil
}

// Each visits the entries in sorted order.
func (q *Queue[E]) Each(fn func(e E) bool) {
	for _, e := range q.items {
		if !fn(e) {
			return
		}
	}
}
