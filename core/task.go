package core

import (
	"context"
	"slices"
	"sync"
)

// Runnable is anything a pool worker can execute.
type Runnable interface {
	Run(ctx context.Context)
}

// Task is the unit of work (Closure)
type Task func(ctx context.Context)

// Run executes the closure.
func (t Task) Run(ctx context.Context) { t(ctx) }

// Callable is a unit of work that produces a result.
type Callable[T any] func(ctx context.Context) (T, error)

// Runnable adapts the callable to a fire-and-forget task discarding its result.
func (c Callable[T]) Runnable() Task {
	return func(ctx context.Context) { _, _ = c(ctx) }
}

// =============================================================================
// TaskSource: live task collections for repeating batches
// =============================================================================

// TaskSource supplies the tasks of a repeating batch.
// Tasks is called once per round, so changes made between rounds are picked up
// by the next round.
type TaskSource interface {
	Tasks() []Runnable
}

// TaskSlice is a fixed task collection.
type TaskSlice []Runnable

// Tasks returns a copy of the slice.
func (s TaskSlice) Tasks() []Runnable { return slices.Clone(s) }

// TaskList is a task collection that may be modified while a repeating batch
// uses it.
type TaskList struct {
	mu    sync.Mutex
	items []Runnable
}

// NewTaskList creates a TaskList holding tasks.
func NewTaskList(tasks ...Runnable) *TaskList {
	return &TaskList{items: slices.Clone(tasks)}
}

// Add appends tasks to the list.
func (l *TaskList) Add(tasks ...Runnable) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, tasks...)
}

// RemoveAt removes the task at index i and reports whether it existed.
func (l *TaskList) RemoveAt(i int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < 0 || i >= len(l.items) {
		return false
	}
	l.items = slices.Delete(l.items, i, i+1)
	return true
}

// Len returns the number of tasks in the list.
func (l *TaskList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Tasks returns a snapshot of the list.
func (l *TaskList) Tasks() []Runnable {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.items)
}
