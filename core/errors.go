package core

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is returned when offering to a bounded queue at capacity.
	ErrQueueFull = errors.New("core: queue full")

	// ErrQueueClosed is returned when offering to a closed queue, or when taking
	// from a closed queue that has been drained.
	ErrQueueClosed = errors.New("core: queue closed")

	// ErrInterrupted wraps the context error of an interrupted blocking wait.
	ErrInterrupted = errors.New("core: wait interrupted")

	// ErrRejected is returned by pools using the Abort rejection policy.
	ErrRejected = errors.New("core: task rejected")

	// ErrCancelled is the result of a cancelled Future.
	ErrCancelled = errors.New("core: task cancelled")
)

// PanicError carries a panic recovered while running a task through a Future.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("core: task panicked: %v", e.Value)
}

func interrupted(cause error) error {
	return fmt.Errorf("%w: %w", ErrInterrupted, cause)
}
