package executors

import (
	"github.com/Swind/go-executors/batch"
	"github.com/Swind/go-executors/core"
	"github.com/Swind/go-executors/ordering"
	"github.com/Swind/go-executors/throttling"
)

// Re-export commonly used types for convenience.
// This allows users to import only the executors package for most use cases.

// Runnable is anything a pool can run.
type Runnable = core.Runnable

// Task is the unit of work (Closure)
type Task = core.Task

// TaskSource yields the tasks of each round of a repeating batch
type TaskSource = core.TaskSource

// TaskSlice is a fixed TaskSource
type TaskSlice = core.TaskSlice

// TaskList is a TaskSource safe to modify while it repeats
type TaskList = core.TaskList

// PoolConfig configures the pool behind every executor
type PoolConfig = core.PoolConfig

// BatchExecutor spreads batches of tasks over a preferred duration
type BatchExecutor = batch.Executor

// RepeatingHandle controls the lifecycle of a repeating batch
type RepeatingHandle = batch.RepeatingHandle

// ThrottlingExecutor runs single tasks under a CPU ceiling
type ThrottlingExecutor = throttling.Executor

// OrderedTask is a task with predecessors
type OrderedTask = ordering.OrderedTask

// Rejection policies
const (
	RejectAbort         = core.RejectAbort
	RejectCallerRuns    = core.RejectCallerRuns
	RejectDiscard       = core.RejectDiscard
	RejectDiscardOldest = core.RejectDiscardOldest
)

// Constructors re-exported for callers that only import this package.
var (
	DefaultPoolConfig = core.DefaultPoolConfig
	NewTaskList       = core.NewTaskList

	NewBatchExecutor                = batch.NewExecutor
	NewCPUThrottlingExecutor        = batch.NewCPUThrottlingExecutor
	NewOrderedCPUThrottlingExecutor = batch.NewOrderedCPUThrottlingExecutor
	NewThrottlingExecutor           = throttling.NewExecutor
	NewCoordinator                  = throttling.NewCoordinator
)

// NewOrderedTask creates a task that starts only after every predecessor
// finished.
func NewOrderedTask(fn Task, predecessors ...OrderedTask) *ordering.Task {
	return ordering.NewTask(fn, predecessors...)
}
