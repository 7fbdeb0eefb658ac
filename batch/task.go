package batch

import (
	"errors"
	"slices"
)

var (
	// ErrNilTask is returned when a nil task is offered or added to a batch.
	ErrNilTask = errors.New("batch: nil task")

	// ErrCycle is returned when a batch contains itself at any depth.
	ErrCycle = errors.New("batch: batch contains itself")

	// ErrNotBatch is returned when adding constituents to a leaf.
	ErrNotBatch = errors.New("batch: task is a leaf")
)

// Task is either a leaf carrying a payload or a batch of tasks. An empty batch
// is still a batch and contributes no leaves.
//
// A Task records the batch that most recently took it in through Add; Parent
// reports it. Trees are not safe for concurrent modification.
type Task[T any] struct {
	payload  T
	isBatch  bool
	children []*Task[T]
	parent   *Task[T]
}

// Leaf creates a leaf task.
func Leaf[T any](payload T) *Task[T] {
	return &Task[T]{payload: payload}
}

// NewBatch creates a batch holding children in order. Nil children are dropped.
func NewBatch[T any](children ...*Task[T]) *Task[T] {
	b := &Task[T]{isBatch: true}
	for _, c := range children {
		if c != nil {
			b.adopt(c)
		}
	}
	return b
}

// IsBatch reports whether t is a batch.
func (t *Task[T]) IsBatch() bool { return t.isBatch }

// Payload returns the payload of a leaf, the zero value for a batch.
func (t *Task[T]) Payload() T { return t.payload }

// Parent returns the batch currently owning t, nil for a top-level task.
func (t *Task[T]) Parent() *Task[T] { return t.parent }

// Tasks returns a copy of the constituents, nil for a leaf.
func (t *Task[T]) Tasks() []*Task[T] {
	if !t.isBatch {
		return nil
	}
	return slices.Clone(t.children)
}

// Len returns the number of direct constituents.
func (t *Task[T]) Len() int { return len(t.children) }

// Add appends constituents to the batch and makes it their parent.
// Cycles are not checked here; Queue.Offer rejects them.
func (t *Task[T]) Add(children ...*Task[T]) error {
	if !t.isBatch {
		return ErrNotBatch
	}
	if slices.Contains(children, nil) {
		return ErrNilTask
	}
	for _, c := range children {
		t.adopt(c)
	}
	return nil
}

// Remove removes the first occurrence of child and reports whether it was found.
func (t *Task[T]) Remove(child *Task[T]) bool {
	i := slices.Index(t.children, child)
	if i < 0 {
		return false
	}
	t.removeAt(i)
	return true
}

func (t *Task[T]) adopt(c *Task[T]) {
	t.children = append(t.children, c)
	c.parent = t
}

func (t *Task[T]) removeAt(i int) {
	c := t.children[i]
	t.children = slices.Delete(t.children, i, i+1)
	if c.parent == t {
		c.parent = nil
	}
}
