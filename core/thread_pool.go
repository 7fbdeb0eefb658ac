package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// RejectionPolicy: what a pool does with a task it cannot accept
// =============================================================================

type RejectionPolicy int

const (
	// RejectAbort returns an error wrapping ErrRejected to the submitter.
	RejectAbort RejectionPolicy = iota

	// RejectCallerRuns runs the task on the submitting goroutine, unless the
	// pool is shut down, in which case the task is discarded.
	RejectCallerRuns

	// RejectDiscard drops the task. The submitter is not told; the pool's
	// OnDiscard callback is.
	RejectDiscard

	// RejectDiscardOldest drops the oldest ready task and retries once. The
	// dropped task goes to OnDiscard.
	RejectDiscardOldest
)

func (p RejectionPolicy) String() string {
	switch p {
	case RejectAbort:
		return "abort"
	case RejectCallerRuns:
		return "caller-runs"
	case RejectDiscard:
		return "discard"
	case RejectDiscardOldest:
		return "discard-oldest"
	default:
		return fmt.Sprintf("RejectionPolicy(%d)", int(p))
	}
}

// ParseRejectionPolicy parses the String form of a policy.
func ParseRejectionPolicy(s string) (RejectionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "abort":
		return RejectAbort, nil
	case "caller-runs", "caller_runs", "callerruns":
		return RejectCallerRuns, nil
	case "discard":
		return RejectDiscard, nil
	case "discard-oldest", "discard_oldest", "discardoldest":
		return RejectDiscardOldest, nil
	default:
		return RejectAbort, fmt.Errorf("core: unknown rejection policy %q", s)
	}
}

// =============================================================================
// PoolConfig: Configuration for ThreadPool
// =============================================================================

// PoolConfig holds configuration options for ThreadPool.
// All handlers are optional; if not provided, default implementations will be used.
type PoolConfig struct {
	// Name labels logs and metrics.
	Name string

	// CoreWorkers are started by Start and kept alive while idle.
	CoreWorkers int

	// MaxWorkers bounds the workers added when a bounded queue is full.
	// Values below CoreWorkers are raised to CoreWorkers.
	MaxWorkers int

	// KeepAlive is how long a worker above CoreWorkers may stay idle.
	KeepAlive time.Duration

	// ThreadFactory creates worker threads. Defaults to NewThreadFactory(Name).
	ThreadFactory ThreadFactory

	// Rejection selects what happens to tasks the pool cannot accept.
	Rejection RejectionPolicy

	// Hooks run around every task, in order before and in order after.
	Hooks []ExecutionHooks

	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record task execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when a task is rejected. Defaults to DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler

	// Logger defaults to NoOpLogger.
	Logger Logger
}

// DefaultPoolConfig returns a config with default handlers.
func DefaultPoolConfig(name string, workers int) PoolConfig {
	return PoolConfig{
		Name:                name,
		CoreWorkers:         workers,
		MaxWorkers:          workers,
		KeepAlive:           time.Minute,
		PanicHandler:        &DefaultPanicHandler{},
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: &DefaultRejectedTaskHandler{},
		Logger:              NewNoOpLogger(),
	}
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.Name == "" {
		c.Name = "pool"
	}
	if c.CoreWorkers < 0 {
		c.CoreWorkers = 0
	}
	if c.MaxWorkers < c.CoreWorkers {
		c.MaxWorkers = c.CoreWorkers
	}
	if c.MaxWorkers == 0 {
		c.MaxWorkers = 1
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = time.Minute
	}
	if c.ThreadFactory == nil {
		c.ThreadFactory = NewThreadFactory(c.Name)
	}
	if c.PanicHandler == nil {
		c.PanicHandler = &DefaultPanicHandler{}
	}
	if c.Metrics == nil {
		c.Metrics = &NilMetrics{}
	}
	if c.RejectedTaskHandler == nil {
		c.RejectedTaskHandler = &DefaultRejectedTaskHandler{}
	}
	if c.Logger == nil {
		c.Logger = NewNoOpLogger()
	}
	return c
}

// =============================================================================
// ThreadPool
// =============================================================================

// PoolTask is the element type a ThreadPool queues.
type PoolTask interface {
	comparable
	Runnable
}

type poolState int32

const (
	poolNew poolState = iota
	poolRunning
	poolShutdown
	poolStopped
)

// ThreadPool runs tasks taken from a BlockingQueue on a set of workers.
// The queue decides the order and the moment tasks become available; the pool
// only moves them to workers.
type ThreadPool[E PoolTask] struct {
	cfg       PoolConfig
	queue     *BlockingQueue[E]
	onDiscard func(task E)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	state        poolState
	workers      map[int]*Worker
	nextWorkerID int
	largest      int

	active    atomic.Int32
	completed atomic.Int64
	rejected  atomic.Int64

	terminated chan struct{}
	termOnce   sync.Once
}

// NewThreadPool creates a pool over queue. Workers start on Start.
func NewThreadPool[E PoolTask](queue *BlockingQueue[E], cfg PoolConfig) *ThreadPool[E] {
	return &ThreadPool[E]{
		cfg:        cfg.withDefaults(),
		queue:      queue,
		workers:    make(map[int]*Worker),
		terminated: make(chan struct{}),
	}
}

// Start starts the core workers. Tasks executed before Start stay queued.
func (p *ThreadPool[E]) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != poolNew {
		return // Already started
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.state = poolRunning

	for i := 0; i < p.cfg.CoreWorkers; i++ {
		p.addWorkerLocked(nil)
	}
	if p.cfg.CoreWorkers == 0 && p.queue.Len() > 0 {
		p.addWorkerLocked(nil)
	}
}

// Execute queues task for execution.
func (p *ThreadPool[E]) Execute(task E) error {
	return p.execute(task, true)
}

func (p *ThreadPool[E]) execute(task E, retry bool) error {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()
	if state >= poolShutdown {
		return p.reject(task, "shutdown", false)
	}

	err := p.queue.Offer(task)
	switch {
	case err == nil:
		p.cfg.Metrics.RecordQueueDepth(p.cfg.Name, p.queue.Len())
		p.ensureWorker()
		return nil
	case errors.Is(err, ErrQueueFull):
		p.mu.Lock()
		added := p.state == poolRunning && len(p.workers) < p.cfg.MaxWorkers
		if added {
			p.addWorkerLocked(&task)
		}
		p.mu.Unlock()
		if added {
			return nil
		}
		return p.reject(task, "saturated", retry)
	case errors.Is(err, ErrQueueClosed):
		return p.reject(task, "shutdown", false)
	default:
		return err
	}
}

// ensureWorker starts a worker when the pool runs none, which can only happen
// with zero core workers.
func (p *ThreadPool[E]) ensureWorker() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == poolRunning && len(p.workers) == 0 {
		p.addWorkerLocked(nil)
	}
}

func (p *ThreadPool[E]) reject(task E, reason string, retry bool) error {
	p.rejected.Add(1)
	p.cfg.Metrics.RecordTaskRejected(p.cfg.Name, reason)
	p.cfg.RejectedTaskHandler.HandleRejectedTask(p.cfg.Name, reason)
	p.cfg.Logger.Warn("task rejected",
		F("pool", p.cfg.Name),
		F("reason", reason),
		F("policy", p.cfg.Rejection.String()))

	shutdown := reason == "shutdown"
	switch p.cfg.Rejection {
	case RejectCallerRuns:
		if shutdown {
			p.discard(task)
			return nil
		}
		p.runTask(context.Background(), nil, task)
		return nil
	case RejectDiscard:
		p.discard(task)
		return nil
	case RejectDiscardOldest:
		if !shutdown && retry {
			if oldest, ok := p.queue.Poll(); ok {
				p.discard(oldest)
			}
			return p.execute(task, false)
		}
		p.discard(task)
		return nil
	default:
		return fmt.Errorf("%w: pool %s: %s", ErrRejected, p.cfg.Name, reason)
	}
}

// OnDiscard registers fn to receive every task the rejection policy drops
// without running it. It must be called before the first Execute.
func (p *ThreadPool[E]) OnDiscard(fn func(task E)) {
	p.onDiscard = fn
}

func (p *ThreadPool[E]) discard(task E) {
	if p.onDiscard != nil {
		p.onDiscard(task)
	}
}

func (p *ThreadPool[E]) addWorkerLocked(first *E) {
	w := &Worker{ID: p.nextWorkerID}
	p.nextWorkerID++
	p.workers[w.ID] = w
	p.largest = max(p.largest, len(p.workers))

	p.wg.Add(1)
	p.cfg.ThreadFactory.NewThread(func() {
		p.workerLoop(w, first)
	}).Start()
}

// workerLoop is the main loop for each worker
func (p *ThreadPool[E]) workerLoop(w *Worker, first *E) {
	defer p.workerExit(w)

	if first != nil {
		p.runTask(p.ctx, w, *first)
	}
	for {
		task, ok := p.getTask(w)
		if !ok {
			return
		}
		p.runTask(p.ctx, w, task)
	}
}

func (p *ThreadPool[E]) getTask(w *Worker) (E, bool) {
	for {
		p.mu.Lock()
		timed := len(p.workers) > p.cfg.CoreWorkers
		p.mu.Unlock()

		if !timed {
			task, err := p.queue.Take(p.ctx)
			if err != nil {
				var zero E
				return zero, false
			}
			return task, true
		}

		task, ok, err := p.queue.PollTimeout(p.ctx, p.cfg.KeepAlive)
		if err != nil {
			return task, false
		}
		if ok {
			return task, true
		}

		// Idle past keep-alive: retire if still above core size.
		p.mu.Lock()
		if len(p.workers) > p.cfg.CoreWorkers {
			delete(p.workers, w.ID)
			p.mu.Unlock()
			var zero E
			return zero, false
		}
		p.mu.Unlock()
	}
}

func (p *ThreadPool[E]) runTask(ctx context.Context, w *Worker, task E) {
	p.active.Add(1)
	defer p.active.Add(-1)

	if w != nil {
		for _, h := range p.cfg.Hooks {
			h.BeforeExecute(ctx, w, task)
		}
	}

	start := time.Now()
	var recovered any
	func() {
		defer func() {
			if r := recover(); r != nil {
				recovered = r
				workerID := -1
				if w != nil {
					workerID = w.ID
				}
				p.cfg.Metrics.RecordTaskPanic(p.cfg.Name, r)
				p.cfg.PanicHandler.HandlePanic(ctx, p.cfg.Name, workerID, r, debug.Stack())
			}
		}()
		task.Run(ctx)
	}()
	p.cfg.Metrics.RecordTaskDuration(p.cfg.Name, time.Since(start))
	p.completed.Add(1)

	if w != nil {
		for _, h := range p.cfg.Hooks {
			h.AfterExecute(ctx, w, task, recovered)
		}
	}
}

func (p *ThreadPool[E]) workerExit(w *Worker) {
	p.mu.Lock()
	delete(p.workers, w.ID)
	last := len(p.workers) == 0 && p.state >= poolShutdown
	p.mu.Unlock()

	p.wg.Done()
	if last {
		p.terminate()
	}
}

func (p *ThreadPool[E]) terminate() {
	p.termOnce.Do(func() {
		p.mu.Lock()
		p.state = poolStopped
		p.mu.Unlock()
		close(p.terminated)
	})
}

// Shutdown stops accepting tasks; queued tasks still run. It does not wait.
func (p *ThreadPool[E]) Shutdown() {
	p.mu.Lock()
	if p.state >= poolShutdown {
		p.mu.Unlock()
		return
	}
	started := p.state == poolRunning
	p.state = poolShutdown
	idle := len(p.workers) == 0
	p.mu.Unlock()

	p.queue.Close()
	if !started || idle {
		p.terminate()
	}
}

// Stop shuts the pool down immediately: running tasks have their context
// cancelled and the tasks still queued are returned without being run.
func (p *ThreadPool[E]) Stop() []E {
	p.Shutdown()

	pending := p.queue.Snapshot()
	p.queue.Clear()

	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.Join()
	p.terminate()
	return pending
}

// StopGraceful shuts the pool down and waits for queued tasks to complete.
// On timeout the remaining work is abandoned as with Stop and an error is returned.
func (p *ThreadPool[E]) StopGraceful(timeout time.Duration) error {
	p.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := p.AwaitTermination(ctx); err != nil {
		pending := p.Stop()
		return fmt.Errorf("core: pool %s: graceful stop abandoned %d queued tasks: %w", p.cfg.Name, len(pending), err)
	}
	return nil
}

// AwaitTermination blocks until every worker has exited after a shutdown.
func (p *ThreadPool[E]) AwaitTermination(ctx context.Context) error {
	select {
	case <-p.terminated:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join waits for all worker goroutines to finish
func (p *ThreadPool[E]) Join() {
	p.wg.Wait()
}

// Name returns the pool name.
func (p *ThreadPool[E]) Name() string {
	return p.cfg.Name
}

// Queue returns the queue the pool takes tasks from.
func (p *ThreadPool[E]) Queue() *BlockingQueue[E] {
	return p.queue
}

// PoolSize returns the number of live workers.
func (p *ThreadPool[E]) PoolSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// IsRunning reports whether the pool has been started and not shut down.
func (p *ThreadPool[E]) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == poolRunning
}

// IsShutdown reports whether Shutdown or Stop has been called.
func (p *ThreadPool[E]) IsShutdown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state >= poolShutdown
}

func (p *ThreadPool[E]) ActiveCount() int {
	return int(p.active.Load())
}

func (p *ThreadPool[E]) QueuedCount() int {
	return p.queue.Len()
}

func (p *ThreadPool[E]) CompletedCount() int64 {
	return p.completed.Load()
}

// Stats returns a snapshot of the pool state.
func (p *ThreadPool[E]) Stats() PoolStats {
	p.mu.Lock()
	workers := len(p.workers)
	largest := p.largest
	running := p.state == poolRunning
	p.mu.Unlock()

	return PoolStats{
		ID:        p.cfg.Name,
		Workers:   workers,
		Largest:   largest,
		Queued:    p.queue.Len(),
		Active:    p.ActiveCount(),
		Completed: p.completed.Load(),
		Rejected:  p.rejected.Load(),
		Running:   running,
	}
}
