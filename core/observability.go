package core

// PoolStats represents runtime observability state for a thread pool.
type PoolStats struct {
	ID        string
	Workers   int
	Largest   int
	Queued    int
	Active    int
	Completed int64
	Rejected  int64
	Running   bool
}

// BatchStats represents runtime observability state for a batch executor.
type BatchStats struct {
	Pool PoolStats

	// BatchesSubmitted counts submitted batch rounds, repetitions included.
	BatchesSubmitted int64
	// BatchesCompleted counts rounds whose every task has completed.
	BatchesCompleted int64
	// RepeatingActive is the number of repeating batches not yet stopped.
	RepeatingActive int
	// MaximumCPUUsage is the CPU ceiling, 0 when the executor is not throttled.
	MaximumCPUUsage float64
}
