package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics during execution.
// This allows custom panic handling, logging, and recovery strategies.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context the panicked task ran with
	// - runnerName: The name of the task runner where the panic occurred
	// - workerID: The ID of the worker slot, -1 when the task ran outside a worker (caller-runs)
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, runnerName string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler provides a basic panic handler that logs to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, runnerName string, workerID int, panicInfo any, stackTrace []byte) {
	if workerID >= 0 {
		fmt.Printf("[Worker %d @ %s] Panic: %v\nStack trace:\n%s",
			workerID, runnerName, panicInfo, stackTrace)
	} else {
		fmt.Printf("[Runner %s] Panic: %v\nStack trace:\n%s",
			runnerName, panicInfo, stackTrace)
	}
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting executor metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution performance.
type Metrics interface {
	// RecordTaskDuration records how long a task took to execute.
	RecordTaskDuration(runnerName string, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(runnerName string, panicInfo any)

	// RecordQueueDepth records the current queue depth.
	RecordQueueDepth(runnerName string, depth int)

	// RecordTaskRejected records that a task was rejected (e.g., during shutdown).
	RecordTaskRejected(runnerName string, reason string)

	// RecordThrottleDelay records a corrective sleep imposed on a worker to keep
	// the pool under its CPU ceiling.
	RecordThrottleDelay(runnerName string, delay time.Duration)

	// RecordBatchCompleted records the completion of a batch round.
	//
	// Parameters:
	// - size: Number of tasks in the round
	// - lateness: Completion time minus the round's target finish time; negative when early
	RecordBatchCompleted(runnerName string, size int, lateness time.Duration)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(runnerName string, duration time.Duration) {}
func (m *NilMetrics) RecordTaskPanic(runnerName string, panicInfo any)             {}
func (m *NilMetrics) RecordQueueDepth(runnerName string, depth int)                {}
func (m *NilMetrics) RecordTaskRejected(runnerName string, reason string)          {}
func (m *NilMetrics) RecordThrottleDelay(runnerName string, delay time.Duration)   {}

func (m *NilMetrics) RecordBatchCompleted(runnerName string, size int, lateness time.Duration) {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when a pool rejects a task.
// This can happen when:
// - The pool is shutting down
// - A bounded queue is full and the pool already runs MaxWorkers workers
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	// HandleRejectedTask is called when a task is rejected.
	//
	// Parameters:
	// - runnerName: The name of the task runner
	// - reason: Why the task was rejected (e.g., "shutdown", "saturated")
	HandleRejectedTask(runnerName string, reason string)
}

// DefaultRejectedTaskHandler provides a basic handler that logs rejected tasks.
type DefaultRejectedTaskHandler struct{}

// HandleRejectedTask logs the rejected task.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(runnerName string, reason string) {
	fmt.Printf("[Runner %s] Task rejected: %s\n", runnerName, reason)
}

// =============================================================================
// ExecutionHooks: Interface for observing task execution on a worker
// =============================================================================

// ExecutionHooks run on the worker goroutine around every task a pool executes.
// AfterExecute may block; the worker picks up its next task only after it returns.
type ExecutionHooks interface {
	// BeforeExecute is called right before task runs on worker w.
	BeforeExecute(ctx context.Context, w *Worker, task Runnable)

	// AfterExecute is called after task returned or panicked.
	// recovered is the panic value, nil if the task returned normally.
	AfterExecute(ctx context.Context, w *Worker, task Runnable, recovered any)
}
