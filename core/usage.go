package core

import "time"

// AverageComputation is a running average of a sampled value.
type AverageComputation interface {
	Update(value float64)
	Average() float64
}

// AverageComputationFactory creates the averages kept in a ThreadUsageRecord.
type AverageComputationFactory interface {
	NewCPUUsageAverage() AverageComputation
	NewDurationAverage() AverageComputation
}

// ThreadUsageRecord is the CPU bookkeeping of one worker. It lives in the
// worker's slot and is only touched by that worker, so it needs no locking.
type ThreadUsageRecord struct {
	// StartCPU is the thread CPU time at the start of the current task.
	StartCPU time.Duration
	// StartWall is the Nanotime at the start of the current task, 0 when no
	// measurement is in progress.
	StartWall int64

	// LastCPU and LastWall describe the most recently measured task.
	LastCPU  time.Duration
	LastWall time.Duration

	// CPUUsage averages the CPU-time to wall-time ratio of measured tasks.
	CPUUsage AverageComputation
	// Duration averages the wall duration of measured tasks, in nanoseconds.
	Duration AverageComputation
}

// Worker is the pool's slot for one worker goroutine.
type Worker struct {
	ID    int
	Usage ThreadUsageRecord
}
