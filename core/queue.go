package core

import (
	"container/heap"
	"slices"
)

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// Queue is a plain, non-thread-safe queue. BlockingQueue adds locking and
// blocking retrieval on top of any implementation.
//
// Peek and Poll only return elements that are ready; an implementation may hold
// elements that are not ready to be consumed yet, so Len can be non-zero while
// Peek reports nothing.
type Queue[E comparable] interface {
	Offer(e E) error
	Poll() (E, bool)
	Peek() (E, bool)
	Remove(e E) bool
	Len() int
	Clear()

	// Each visits the elements until fn returns false.
	Each(fn func(e E) bool)
}

// =============================================================================
// FIFOQueue: slice-backed FIFO queue
// =============================================================================

type FIFOQueue[E comparable] struct {
	items []E
}

func NewFIFOQueue[E comparable]() *FIFOQueue[E] {
	return &FIFOQueue[E]{
		items: make([]E, 0, defaultQueueCap),
	}
}

func (q *FIFOQueue[E]) Offer(e E) error {
	q.items = append(q.items, e)
	return nil
}

func (q *FIFOQueue[E]) Poll() (E, bool) {
	var zero E
	if len(q.items) == 0 {
		return zero, false
	}

	item := q.items[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.items[0] = zero
	q.items = q.items[1:]
	q.maybeCompact()

	return item, true
}

func (q *FIFOQueue[E]) Peek() (E, bool) {
	if len(q.items) == 0 {
		var zero E
		return zero, false
	}
	return q.items[0], true
}

func (q *FIFOQueue[E]) Remove(e E) bool {
	i := slices.Index(q.items, e)
	if i < 0 {
		return false
	}
	q.items = slices.Delete(q.items, i, i+1)
	return true
}

func (q *FIFOQueue[E]) Len() int {
	return len(q.items)
}

// Clear removes all elements and releases references
func (q *FIFOQueue[E]) Clear() {
	q.items = make([]E, 0, defaultQueueCap)
}

func (q *FIFOQueue[E]) Each(fn func(e E) bool) {
	for _, e := range q.items {
		if !fn(e) {
			return
		}
	}
}

func (q *FIFOQueue[E]) maybeCompact() {
	n := len(q.items)
	c := cap(q.items)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.items = make([]E, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]E, n, newCap)
	copy(newSlice, q.items)
	q.items = newSlice
}

// =============================================================================
// PriorityQueue: Min-Heap based queue with Stability (FIFO for equal elements)
// =============================================================================

type priorityItem[E any] struct {
	value    E
	sequence uint64 // For stability
	index    int    // For heap
}

// priorityHeap implements heap.Interface
type priorityHeap[E any] struct {
	items []*priorityItem[E]
	cmp   func(a, b E) int
}

func (h *priorityHeap[E]) Len() int { return len(h.items) }

// Less orders by cmp, then by smaller sequence first (FIFO)
func (h *priorityHeap[E]) Less(i, j int) bool {
	if c := h.cmp(h.items[i].value, h.items[j].value); c != 0 {
		return c < 0
	}
	return h.items[i].sequence < h.items[j].sequence
}

func (h *priorityHeap[E]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *priorityHeap[E]) Push(x any) {
	item := x.(*priorityItem[E])
	item.index = len(h.items)
	h.items = append(h.items, item)
}

func (h *priorityHeap[E]) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // Avoid memory leak
	item.index = -1
	h.items = old[0 : n-1]
	return item
}

// PriorityQueue keeps the smallest element according to cmp at its head.
// Elements comparing equal leave in insertion order.
type PriorityQueue[E comparable] struct {
	pq           priorityHeap[E]
	nextSequence uint64
}

func NewPriorityQueue[E comparable](cmp func(a, b E) int) *PriorityQueue[E] {
	return &PriorityQueue[E]{
		pq: priorityHeap[E]{
			items: make([]*priorityItem[E], 0, defaultQueueCap),
			cmp:   cmp,
		},
	}
}

func (q *PriorityQueue[E]) Offer(e E) error {
	item := &priorityItem[E]{
		value:    e,
		sequence: q.nextSequence,
	}
	q.nextSequence++

	heap.Push(&q.pq, item)
	return nil
}

func (q *PriorityQueue[E]) Poll() (E, bool) {
	if q.pq.Len() == 0 {
		var zero E
		return zero, false
	}
	item := heap.Pop(&q.pq).(*priorityItem[E])
	return item.value, true
}

func (q *PriorityQueue[E]) Peek() (E, bool) {
	if q.pq.Len() == 0 {
		var zero E
		return zero, false
	}
	return q.pq.items[0].value, true
}

func (q *PriorityQueue[E]) Remove(e E) bool {
	for _, item := range q.pq.items {
		if item.value == e {
			heap.Remove(&q.pq, item.index)
			return true
		}
	}
	return false
}

func (q *PriorityQueue[E]) Len() int {
	return q.pq.Len()
}

// Clear removes all elements and releases references
func (q *PriorityQueue[E]) Clear() {
	q.pq.items = make([]*priorityItem[E], 0, defaultQueueCap)
	q.nextSequence = 0
}

// Each visits the elements in heap order, which is not sorted order.
func (q *PriorityQueue[E]) Each(fn func(e E) bool) {
	for _, item := range q.pq.items {
		if !fn(item.value) {
			return
		}
	}
}
