package throttling

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/Swind/go-executors/core"
)

// ErrNilTask is returned when a nil task or callable is submitted.
var ErrNilTask = errors.New("throttling: nil task")

// job is the pool task. cancel is the Future's Cancel, nil for tasks executed
// without one.
type job struct {
	fn     func(ctx context.Context)
	cancel func() bool
}

func (j *job) Run(ctx context.Context) { j.fn(ctx) }

// abandon cancels the Future of a job that will never run.
func (j *job) abandon() {
	if j.cancel != nil {
		j.cancel()
	}
}

// Executor is a FIFO worker pool whose aggregate CPU usage is kept under a
// ceiling by a Strategy.
type Executor struct {
	pool     *core.ThreadPool[*job]
	strategy *Strategy
}

// NewExecutor creates an executor capped at maxCPU cores. Options configure the
// strategy; its name, metrics and logger default to those of cfg.
func NewExecutor(cfg core.PoolConfig, maxCPU float64, opts ...Option) *Executor {
	e := &Executor{}
	e.strategy = NewStrategy(maxCPU, func() int { return e.pool.PoolSize() },
		append(poolOptions(cfg), opts...)...)
	cfg.Hooks = append(slices.Clone(cfg.Hooks), e.strategy)
	e.pool = core.NewThreadPool(core.NewBlockingQueue[*job](core.NewFIFOQueue[*job]()), cfg)
	e.pool.OnDiscard((*job).abandon)
	return e
}

func poolOptions(cfg core.PoolConfig) []Option {
	opts := []Option{WithName(cfg.Name)}
	if cfg.Metrics != nil {
		opts = append(opts, WithMetrics(cfg.Metrics))
	}
	if cfg.Logger != nil {
		opts = append(opts, WithLogger(cfg.Logger))
	}
	return opts
}

// Start starts the core workers.
func (e *Executor) Start(ctx context.Context) {
	e.pool.Start(ctx)
}

// Execute queues task for execution.
func (e *Executor) Execute(task core.Runnable) error {
	if task == nil {
		return ErrNilTask
	}
	return e.pool.Execute(&job{fn: task.Run})
}

// Submit queues task and returns a Future completing once it ran.
func (e *Executor) Submit(task core.Runnable) (*core.Future[struct{}], error) {
	if task == nil {
		return nil, ErrNilTask
	}
	return SubmitCallable(e, func(ctx context.Context) (struct{}, error) {
		task.Run(ctx)
		return struct{}{}, nil
	})
}

// SubmitCallable queues fn and returns a Future of its result.
func SubmitCallable[T any](e *Executor, fn core.Callable[T]) (*core.Future[T], error) {
	if fn == nil {
		return nil, ErrNilTask
	}
	f := core.NewFuture[T]()
	j := &job{fn: func(ctx context.Context) { f.Run(ctx, fn) }, cancel: f.Cancel}
	f.OnCancel(func() bool { return e.pool.Queue().Remove(j) })
	if err := e.pool.Execute(j); err != nil {
		return nil, err
	}
	return f, nil
}

// MaximumCPUUsage returns the CPU ceiling in cores.
func (e *Executor) MaximumCPUUsage() float64 {
	return e.strategy.MaximumCPUUsage()
}

// SetMaximumCPUUsage changes the CPU ceiling.
func (e *Executor) SetMaximumCPUUsage(maxCPU float64) {
	e.strategy.SetMaximumCPUUsage(maxCPU)
}

// Shutdown stops accepting tasks; queued tasks still run.
func (e *Executor) Shutdown() {
	e.pool.Shutdown()
}

// Stop cancels running tasks and returns how many queued tasks were dropped.
// The Futures of dropped tasks are cancelled.
func (e *Executor) Stop() int {
	dropped := e.pool.Stop()
	for _, j := range dropped {
		j.abandon()
	}
	return len(dropped)
}

// StopGraceful waits up to timeout for queued tasks to complete.
func (e *Executor) StopGraceful(timeout time.Duration) error {
	return e.pool.StopGraceful(timeout)
}

// AwaitTermination blocks until every worker exited after a shutdown.
func (e *Executor) AwaitTermination(ctx context.Context) error {
	return e.pool.AwaitTermination(ctx)
}

func (e *Executor) Name() string          { return e.pool.Name() }
func (e *Executor) PoolSize() int         { return e.pool.PoolSize() }
func (e *Executor) Stats() core.PoolStats { return e.pool.Stats() }
