// Package batch provides batches of tasks and executors running batches spread
// evenly over a target duration.
//
// A batch round shares one record between its tasks. Each completion feeds the
// observed execution time and concurrency back into the record, which decides
// when the next task of the round may start. The executor's queue withholds
// tasks until then, so the pool itself never sleeps on a schedule.
//
// The executor can additionally keep the pool under a CPU ceiling
// (WithCPUThrottling) and run tasks implementing ordering.OrderedTask only
// after their predecessors finished (WithOrdering).
package batch

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Swind/go-executors/core"
	"github.com/Swind/go-executors/ordering"
	"github.com/Swind/go-executors/throttling"
)

type options struct {
	throttled    bool
	maxCPU       float64
	strategyOpts []throttling.Option
	ordered      bool
	capacity     int
}

// Option configures an Executor.
type Option func(*options)

// WithCPUThrottling caps the pool at maxCPU cores.
func WithCPUThrottling(maxCPU float64, opts ...throttling.Option) Option {
	return func(o *options) {
		o.throttled = true
		o.maxCPU = maxCPU
		o.strategyOpts = append(o.strategyOpts, opts...)
	}
}

// WithOrdering makes tasks implementing ordering.OrderedTask wait for their
// predecessors. Tasks are then started by DAG depth first.
func WithOrdering() Option {
	return func(o *options) {
		o.ordered = true
	}
}

// WithQueueCapacity bounds the task queue. Once it is full the pool grows up
// to MaxWorkers, then applies its rejection policy.
func WithQueueCapacity(n int) Option {
	return func(o *options) {
		o.capacity = n
	}
}

// Executor is a worker pool spreading batches of tasks over a preferred
// duration. Tasks submitted on their own run as soon as a worker is free.
type Executor struct {
	name     string
	pool     *core.ThreadPool[*envelope]
	queue    *core.BlockingQueue[*envelope]
	strategy *throttling.Strategy
	ordered  bool

	logger  core.Logger
	metrics core.Metrics
	delays  *core.DelayManager

	seq       atomic.Int64
	submitted atomic.Int64
	completed atomic.Int64

	mu        sync.Mutex
	repeating map[*RepeatingHandle]struct{}
}

// NewExecutor creates an executor. Workers start on Start.
func NewExecutor(cfg core.PoolConfig, opts ...Option) *Executor {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.Name == "" {
		cfg.Name = "batch"
	}
	if cfg.Logger == nil {
		cfg.Logger = core.NewNoOpLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &core.NilMetrics{}
	}

	x := &Executor{
		name:      cfg.Name,
		ordered:   o.ordered,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		delays:    core.NewDelayManager(),
		repeating: make(map[*RepeatingHandle]struct{}),
	}

	qopts := []core.BlockingQueueOption[*envelope]{core.WithReadyDelay(readyDelay)}
	if o.capacity > 0 {
		qopts = append(qopts, core.WithCapacity[*envelope](o.capacity))
	}
	var q core.Queue[*envelope]
	if o.ordered {
		q = ordering.NewQueue(ordering.WithComparator(byDepth))
	} else {
		q = core.NewPriorityQueue(byIdealFinish)
	}
	x.queue = core.NewBlockingQueue(q, qopts...)

	if o.throttled {
		sopts := append([]throttling.Option{
			throttling.WithName(cfg.Name),
			throttling.WithMetrics(cfg.Metrics),
			throttling.WithLogger(cfg.Logger),
		}, o.strategyOpts...)
		x.strategy = throttling.NewStrategy(o.maxCPU, func() int { return x.pool.PoolSize() }, sopts...)
		cfg.Hooks = append(slices.Clone(cfg.Hooks), x.strategy)
	}

	x.pool = core.NewThreadPool(x.queue, cfg)
	x.pool.OnDiscard(x.discard)
	return x
}

// Start starts the core workers. Tasks submitted earlier stay queued until then.
func (x *Executor) Start(ctx context.Context) {
	x.pool.Start(ctx)
}

// Execute runs task as soon as a worker is free.
func (x *Executor) Execute(task core.Runnable) error {
	_, err := x.Submit(task)
	return err
}

// Submit runs task as soon as a worker is free and returns its Future.
func (x *Executor) Submit(task core.Runnable) (*core.Future[struct{}], error) {
	if task == nil {
		return nil, ErrNilTask
	}
	return submit(x, callable(task), nil, core.Nanotime(), x.orderOf(task))
}

// SubmitCallable runs fn on x as soon as a worker is free.
func SubmitCallable[T any](x *Executor, fn core.Callable[T]) (*core.Future[T], error) {
	if fn == nil {
		return nil, ErrNilTask
	}
	return submit(x, fn, nil, core.Nanotime(), nil)
}

// ExecuteAllWithin runs tasks spread over d and returns their Futures.
// A rejection stops the submission; the Futures of the tasks already queued
// are returned with the error.
func (x *Executor) ExecuteAllWithin(tasks []core.Runnable, d time.Duration) ([]*core.Future[struct{}], error) {
	if slices.Contains(tasks, nil) {
		return nil, ErrNilTask
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	r := x.newRound(len(tasks), d, 0, nil)
	return submitRound(x, r, callables(tasks), x.ordersOf(tasks))
}

// SubmitWithPreferredDuration runs tasks spread over d without tracking them.
func (x *Executor) SubmitWithPreferredDuration(tasks []core.Runnable, d time.Duration) error {
	_, err := x.ExecuteAllWithin(tasks, d)
	return err
}

// InvokeAllWithin runs fns spread over d on x and returns their Futures.
func InvokeAllWithin[T any](x *Executor, fns []core.Callable[T], d time.Duration) ([]*core.Future[T], error) {
	if slices.ContainsFunc(fns, func(fn core.Callable[T]) bool { return fn == nil }) {
		return nil, ErrNilTask
	}
	if len(fns) == 0 {
		return nil, nil
	}
	r := x.newRound(len(fns), d, 0, nil)
	return submitRound(x, r, fns, nil)
}

// ExecuteBatchWithin runs the leaves of tree, depth-first, spread over d.
// Empty batches are skipped; a tree containing itself is rejected with ErrCycle.
func (x *Executor) ExecuteBatchWithin(tree *Task[core.Runnable], d time.Duration) ([]*core.Future[struct{}], error) {
	leaves, err := Leaves(tree)
	if err != nil {
		return nil, err
	}
	tasks := make([]core.Runnable, len(leaves))
	for i, l := range leaves {
		tasks[i] = l.Payload()
	}
	return x.ExecuteAllWithin(tasks, d)
}

// SubmitWithPreferredDurationAndFixedDelay runs the tasks of source spread over
// duration, first after initialDelay and then again delay after each round
// completed. Every round takes a fresh snapshot of source, and resets the
// finished flag of ordered tasks, so changes made between rounds are picked up.
func (x *Executor) SubmitWithPreferredDurationAndFixedDelay(source core.TaskSource, initialDelay, duration, delay time.Duration) (*RepeatingHandle, error) {
	if source == nil {
		return nil, ErrNilTask
	}
	h := newRepeatingHandle(x, source, duration, delay)
	x.mu.Lock()
	x.repeating[h] = struct{}{}
	x.mu.Unlock()

	if err := x.submitRepetition(h, initialDelay); err != nil {
		h.Stop()
		return nil, err
	}
	return h, nil
}

func (x *Executor) newRound(n int, d, initialDelay time.Duration, h *RepeatingHandle) *record {
	r := newRecord(n, d, initialDelay)
	r.repeat = h
	x.submitted.Add(1)
	x.logger.Debug("batch submitted",
		core.F("executor", x.name),
		core.F("batch", r.id.String()),
		core.F("size", n),
		core.F("duration", d),
		core.F("initialDelay", initialDelay))
	return r
}

func submitRound[T any](x *Executor, r *record, fns []core.Callable[T], orders []ordering.OrderedTask) ([]*core.Future[T], error) {
	ideal := r.begin
	inc := r.increment()
	futures := make([]*core.Future[T], 0, len(fns))
	for i, fn := range fns {
		var order ordering.OrderedTask
		if orders != nil {
			order = orders[i]
		}
		f, err := submit(x, fn, r, ideal, order)
		if err != nil {
			return futures, fmt.Errorf("batch: executor %s: batch %s: %w", x.name, r.id, err)
		}
		futures = append(futures, f)
		ideal += inc
	}
	return futures, nil
}

func submit[T any](x *Executor, fn core.Callable[T], r *record, idealFinish int64, order ordering.OrderedTask) (*core.Future[T], error) {
	f := core.NewFuture[T]()
	e := &envelope{
		exec:        x,
		run:         func(ctx context.Context) { f.Run(ctx, fn) },
		cancel:      f.Cancel,
		record:      r,
		idealFinish: idealFinish,
		seq:         x.seq.Add(1),
		order:       order,
	}
	f.OnCancel(func() bool { return x.withdraw(e) })
	if err := x.pool.Execute(e); err != nil {
		return nil, err
	}
	return f, nil
}

// withdraw removes a cancelled envelope from the queue. It counts as a task
// completing instantly, and as finished for its successors.
func (x *Executor) withdraw(e *envelope) bool {
	if !x.queue.Remove(e) {
		return false
	}
	x.settle(e)
	return true
}

// discard handles an envelope the pool dropped under its rejection policy.
// Its Future is cancelled and it settles like a withdrawn envelope, so the
// round still completes.
func (x *Executor) discard(e *envelope) {
	e.cancel()
	x.settle(e)
}

// settle books an envelope that will never run.
func (x *Executor) settle(e *envelope) {
	if x.ordered {
		e.SetFinished(true)
	}
	if e.record != nil {
		x.complete(e, 0, e.record.running.Add(1))
	}
	x.queue.Signal()
}

// complete books a finished task of a round and recomputes the round's next
// start.
func (x *Executor) complete(e *envelope, duration, running int64) {
	r := e.record
	execTime := r.cumulative.Add(duration)
	ran := r.ran.Add(1)
	r.nextStart.Store(r.nextIdealStart(running, execTime, ran))
	r.running.Add(-1)

	if r.running.Load() != 0 || r.ran.Load() < r.n || !r.done.CompareAndSwap(false, true) {
		return
	}

	lateness := time.Duration(core.Nanotime() - r.finish)
	x.completed.Add(1)
	x.metrics.RecordBatchCompleted(x.name, int(r.n), lateness)
	x.logger.Debug("batch completed",
		core.F("executor", x.name),
		core.F("batch", r.id.String()),
		core.F("size", r.n),
		core.F("lateness", lateness))

	if r.repeat != nil {
		// Resubmit from the delay goroutine: a round whose tasks were all
		// discarded completes inside Execute.
		h := r.repeat
		x.delays.Schedule(func() { x.reschedule(h, h.delay) }, 0)
	}
}

func (x *Executor) reschedule(h *RepeatingHandle, initialDelay time.Duration) {
	if err := x.submitRepetition(h, initialDelay); err != nil {
		x.logger.Warn("repeating batch stopped",
			core.F("executor", x.name),
			core.F("repeating", h.id.String()),
			core.F("error", err))
		h.Stop()
	}
}

func (x *Executor) submitRepetition(h *RepeatingHandle, initialDelay time.Duration) error {
	if h.IsStopped() {
		return nil
	}
	if h.rounds.Load() > 0 && x.pool.IsShutdown() {
		h.Stop()
		return nil
	}

	tasks := h.source.Tasks()
	if slices.Contains(tasks, nil) {
		return ErrNilTask
	}
	ordering.ResetFinished(tasks)
	h.rounds.Add(1)

	if len(tasks) == 0 {
		// Nothing to run this round; look again later.
		wait := max(initialDelay, h.delay, time.Millisecond)
		x.delays.Schedule(func() { x.reschedule(h, 0) }, wait)
		return nil
	}

	r := x.newRound(len(tasks), h.duration, initialDelay, h)
	_, err := submitRound(x, r, callables(tasks), x.ordersOf(tasks))
	return err
}

func (x *Executor) orderOf(task core.Runnable) ordering.OrderedTask {
	if !x.ordered {
		return nil
	}
	ot, _ := task.(ordering.OrderedTask)
	return ot
}

func (x *Executor) ordersOf(tasks []core.Runnable) []ordering.OrderedTask {
	if !x.ordered {
		return nil
	}
	orders := make([]ordering.OrderedTask, len(tasks))
	for i, t := range tasks {
		orders[i] = x.orderOf(t)
	}
	return orders
}

func callable(task core.Runnable) core.Callable[struct{}] {
	return func(ctx context.Context) (struct{}, error) {
		task.Run(ctx)
		return struct{}{}, nil
	}
}

func callables(tasks []core.Runnable) []core.Callable[struct{}] {
	fns := make([]core.Callable[struct{}], len(tasks))
	for i, t := range tasks {
		fns[i] = callable(t)
	}
	return fns
}

// =============================================================================
// Lifecycle
// =============================================================================

// Shutdown stops repetitions and new submissions. Queued tasks still run.
func (x *Executor) Shutdown() {
	x.stopRepeating()
	x.pool.Shutdown()
	x.delays.Stop()
}

// Stop shuts the executor down immediately. Running tasks have their context
// cancelled; queued tasks are dropped and their Futures cancelled. It returns
// the number of dropped tasks.
func (x *Executor) Stop() int {
	x.stopRepeating()
	x.delays.Stop()
	dropped := x.pool.Stop()
	for _, e := range dropped {
		e.cancel()
	}
	return len(dropped)
}

// StopGraceful shuts down and waits up to timeout for queued tasks to complete,
// then stops as with Stop.
func (x *Executor) StopGraceful(timeout time.Duration) error {
	x.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := x.pool.AwaitTermination(ctx); err != nil {
		dropped := x.Stop()
		return fmt.Errorf("batch: executor %s: graceful stop abandoned %d queued tasks: %w", x.name, dropped, err)
	}
	return nil
}

// AwaitTermination blocks until every worker exited after a shutdown.
func (x *Executor) AwaitTermination(ctx context.Context) error {
	return x.pool.AwaitTermination(ctx)
}

func (x *Executor) stopRepeating() {
	x.mu.Lock()
	handles := make([]*RepeatingHandle, 0, len(x.repeating))
	for h := range x.repeating {
		handles = append(handles, h)
	}
	x.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
}

func (x *Executor) forget(h *RepeatingHandle) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.repeating, h)
}

// =============================================================================
// Introspection
// =============================================================================

func (x *Executor) Name() string { return x.name }

// PoolSize returns the number of live workers.
func (x *Executor) PoolSize() int {
	return x.pool.PoolSize()
}

// QueuedCount returns the number of queued tasks, ready or not.
func (x *Executor) QueuedCount() int {
	return x.queue.Len()
}

// MaximumCPUUsage returns the CPU ceiling, 0 when the executor is not throttled.
func (x *Executor) MaximumCPUUsage() float64 {
	if x.strategy == nil {
		return 0
	}
	return x.strategy.MaximumCPUUsage()
}

// SetMaximumCPUUsage changes the CPU ceiling of a throttled executor. It has
// no effect on other executors.
func (x *Executor) SetMaximumCPUUsage(maxCPU float64) {
	if x.strategy != nil {
		x.strategy.SetMaximumCPUUsage(maxCPU)
	}
}

// Stats returns a snapshot of the executor state.
func (x *Executor) Stats() core.BatchStats {
	x.mu.Lock()
	repeating := len(x.repeating)
	x.mu.Unlock()

	return core.BatchStats{
		Pool:             x.pool.Stats(),
		BatchesSubmitted: x.submitted.Load(),
		BatchesCompleted: x.completed.Load(),
		RepeatingActive:  repeating,
		MaximumCPUUsage:  x.MaximumCPUUsage(),
	}
}
