package batch

import "github.com/Swind/go-executors/core"

// NewCPUThrottlingExecutor creates an executor spreading batches over their
// preferred duration while keeping the pool under maxCPU cores.
//
// The throttling delay is applied after each task, independently of the batch
// schedule; both may hold a worker back at the same time.
func NewCPUThrottlingExecutor(cfg core.PoolConfig, maxCPU float64, opts ...Option) *Executor {
	return NewExecutor(cfg, append([]Option{WithCPUThrottling(maxCPU)}, opts...)...)
}

// NewOrderedCPUThrottlingExecutor is NewCPUThrottlingExecutor where tasks
// implementing ordering.OrderedTask start only after all their predecessors
// finished. Tasks are started by DAG depth, then by their place in the batch
// schedule.
func NewOrderedCPUThrottlingExecutor(cfg core.PoolConfig, maxCPU float64, opts ...Option) *Executor {
	return NewExecutor(cfg, append([]Option{WithCPUThrottling(maxCPU), WithOrdering()}, opts...)...)
}
