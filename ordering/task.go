// Package ordering provides tasks with declared predecessors and a queue that
// holds each task back until all of its predecessors have finished.
package ordering

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/Swind/go-executors/core"
)

// OrderedTask is a task that may only start once every predecessor finished.
//
// Depth is 0 for a task without predecessors, otherwise one more than the
// deepest predecessor. It is fixed when the task is created.
type OrderedTask interface {
	Predecessors() []OrderedTask
	Depth() int
	IsFinished() bool
	SetFinished(finished bool)
}

// Depth computes the depth of a task having the given predecessors.
func Depth(predecessors []OrderedTask) int {
	if len(predecessors) == 0 {
		return 0
	}
	deepest := 0
	for _, p := range predecessors {
		deepest = max(deepest, p.Depth())
	}
	return deepest + 1
}

// Ready reports whether t has not finished yet and all its predecessors have.
func Ready(t OrderedTask) bool {
	if t.IsFinished() {
		return false
	}
	for _, p := range t.Predecessors() {
		if !p.IsFinished() {
			return false
		}
	}
	return true
}

// ResetFinished clears the finished flag of every task that is an OrderedTask.
// Repeating batches call it before each round.
func ResetFinished(tasks []core.Runnable) {
	for _, t := range tasks {
		if ot, ok := t.(OrderedTask); ok {
			ot.SetFinished(false)
		}
	}
}

// Task runs a closure and marks itself finished when the closure returns or
// panics.
type Task struct {
	fn           core.Task
	predecessors []OrderedTask
	depth        int
	finished     atomic.Bool
}

var (
	_ OrderedTask   = (*Task)(nil)
	_ core.Runnable = (*Task)(nil)
)

// NewTask creates a task running fn after every predecessor finished.
// Duplicate predecessors are ignored. The predecessor tasks must be fully
// constructed, since the depth is computed here.
func NewTask(fn core.Task, predecessors ...OrderedTask) *Task {
	unique := make([]OrderedTask, 0, len(predecessors))
	for _, p := range predecessors {
		if p != nil && !slices.Contains(unique, p) {
			unique = append(unique, p)
		}
	}
	return &Task{
		fn:           fn,
		predecessors: unique,
		depth:        Depth(unique),
	}
}

// Run executes the closure.
func (t *Task) Run(ctx context.Context) {
	defer t.finished.Store(true)
	t.fn(ctx)
}

func (t *Task) Predecessors() []OrderedTask { return slices.Clone(t.predecessors) }
func (t *Task) Depth() int                  { return t.depth }
func (t *Task) IsFinished() bool            { return t.finished.Load() }
func (t *Task) SetFinished(finished bool)   { t.finished.Store(finished) }
