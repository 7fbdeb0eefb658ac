package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type poolJob struct {
	fn func(ctx context.Context)
}

func (j *poolJob) Run(ctx context.Context) { j.fn(ctx) }

func job(fn func(ctx context.Context)) *poolJob { return &poolJob{fn: fn} }

type recordingPanicHandler struct {
	mu     sync.Mutex
	values []any
}

func (h *recordingPanicHandler) HandlePanic(ctx context.Context, runnerName string, workerID int, panicInfo any, stackTrace []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.values = append(h.values, panicInfo)
}

type recordingHooks struct {
	mu        sync.Mutex
	before    int
	recovered []any
}

func (h *recordingHooks) BeforeExecute(ctx context.Context, w *Worker, task Runnable) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.before++
}

func (h *recordingHooks) AfterExecute(ctx context.Context, w *Worker, task Runnable, recovered any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recovered = append(h.recovered, recovered)
}

type silentRejections struct{ count atomic.Int32 }

func (s *silentRejections) HandleRejectedTask(runnerName string, reason string) { s.count.Add(1) }

func newTestPool(t *testing.T, cfg PoolConfig, capacity int) *ThreadPool[*poolJob] {
	t.Helper()
	if cfg.RejectedTaskHandler == nil {
		cfg.RejectedTaskHandler = &silentRejections{}
	}
	q := NewBlockingQueue[*poolJob](NewFIFOQueue[*poolJob](), WithCapacity[*poolJob](capacity))
	p := NewThreadPool(q, cfg)
	p.Start(context.Background())
	t.Cleanup(func() { p.Stop() })
	return p
}

// blockWorker occupies one worker until the returned func is called.
func blockWorker(t *testing.T, p *ThreadPool[*poolJob]) func() {
	t.Helper()
	started := make(chan struct{})
	release := make(chan struct{})
	if err := p.Execute(job(func(ctx context.Context) {
		close(started)
		<-release
	})); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	<-started
	var once sync.Once
	return func() { once.Do(func() { close(release) }) }
}

// =============================================================================
// Execution
// =============================================================================

// TestThreadPool_ExecutesAll verifies every task runs once
func TestThreadPool_ExecutesAll(t *testing.T) {
	// Arrange
	p := newTestPool(t, DefaultPoolConfig("exec", 4), 0)
	var count atomic.Int32
	var wg sync.WaitGroup
	wg.Add(100)

	// Act
	for range 100 {
		_ = p.Execute(job(func(ctx context.Context) {
			defer wg.Done()
			count.Add(1)
		}))
	}
	wg.Wait()

	// Assert
	if count.Load() != 100 {
		t.Errorf("count = %d, want 100", count.Load())
	}
	if !eventuallyPool(func() bool { return p.CompletedCount() == 100 }) {
		t.Errorf("CompletedCount() = %d, want 100", p.CompletedCount())
	}
	if got := p.PoolSize(); got != 4 {
		t.Errorf("PoolSize() = %d, want 4", got)
	}
}

// TestThreadPool_ZeroCoreWorkers verifies a task still runs without core workers
func TestThreadPool_ZeroCoreWorkers(t *testing.T) {
	cfg := DefaultPoolConfig("zero", 0)
	cfg.MaxWorkers = 1
	cfg.KeepAlive = 10 * time.Millisecond
	p := newTestPool(t, cfg, 0)
	done := make(chan struct{})

	_ = p.Execute(job(func(ctx context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
	if !eventuallyPool(func() bool { return p.PoolSize() == 0 }) {
		t.Errorf("idle worker should retire, PoolSize() = %d", p.PoolSize())
	}
}

// TestThreadPool_PanicHandledAndReported verifies panics reach the handler and hooks
// Given: A pool with a panic handler and execution hooks
// When: A task panics
// Then: The worker survives, the handler and AfterExecute see the panic value
func TestThreadPool_PanicHandledAndReported(t *testing.T) {
	// Arrange
	handler := &recordingPanicHandler{}
	hooks := &recordingHooks{}
	cfg := DefaultPoolConfig("panics", 1)
	cfg.PanicHandler = handler
	cfg.Hooks = []ExecutionHooks{hooks}
	p := newTestPool(t, cfg, 0)
	done := make(chan struct{})

	// Act
	_ = p.Execute(job(func(ctx context.Context) { panic("oops") }))
	_ = p.Execute(job(func(ctx context.Context) { close(done) }))

	// Assert
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive the panic")
	}
	ok := eventuallyPool(func() bool {
		hooks.mu.Lock()
		defer hooks.mu.Unlock()
		return len(hooks.recovered) == 2
	})
	if !ok {
		t.Fatal("AfterExecute was not called for both tasks")
	}
	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	if hooks.before != 2 || hooks.recovered[0] != "oops" || hooks.recovered[1] != nil {
		t.Errorf("hooks saw before=%d recovered=%v, want 2 and [oops <nil>]", hooks.before, hooks.recovered)
	}
	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.values) != 1 || handler.values[0] != "oops" {
		t.Errorf("panic handler values = %v, want [oops]", handler.values)
	}
}

// =============================================================================
// Saturation
// =============================================================================

// TestThreadPool_GrowsToMaxWorkers verifies a full queue adds workers
// Given: One core worker, two max workers, a one-element queue already full
// When: Another task is executed
// Then: A second worker runs it, and retires after the keep-alive
func TestThreadPool_GrowsToMaxWorkers(t *testing.T) {
	// Arrange
	cfg := DefaultPoolConfig("grow", 1)
	cfg.MaxWorkers = 2
	cfg.KeepAlive = 20 * time.Millisecond
	p := newTestPool(t, cfg, 1)
	release := blockWorker(t, p)
	defer release()
	_ = p.Execute(job(func(ctx context.Context) {}))

	// Act
	ran := make(chan struct{})
	err := p.Execute(job(func(ctx context.Context) { close(ran) }))

	// Assert
	if err != nil {
		t.Fatalf("Execute on a growable pool failed: %v", err)
	}
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("the extra worker did not run the task")
	}
	if largest := p.Stats().Largest; largest != 2 {
		t.Errorf("Largest = %d, want 2", largest)
	}
	release()
	if !eventuallyPool(func() bool { return p.PoolSize() == 1 }) {
		t.Errorf("PoolSize() = %d, want 1 after keep-alive", p.PoolSize())
	}
}

// TestThreadPool_RejectionPolicies verifies each policy on a saturated pool
func TestThreadPool_RejectionPolicies(t *testing.T) {
	tests := []struct {
		name   string
		policy RejectionPolicy
		check  func(t *testing.T, err error, callerRan bool, queued []*poolJob, oldest, newest *poolJob)
	}{
		{
			name:   "abort",
			policy: RejectAbort,
			check: func(t *testing.T, err error, callerRan bool, queued []*poolJob, oldest, newest *poolJob) {
				if !errors.Is(err, ErrRejected) {
					t.Errorf("error = %v, want ErrRejected", err)
				}
			},
		},
		{
			name:   "caller-runs",
			policy: RejectCallerRuns,
			check: func(t *testing.T, err error, callerRan bool, queued []*poolJob, oldest, newest *poolJob) {
				if err != nil || !callerRan {
					t.Errorf("error = %v, callerRan = %v, want nil, true", err, callerRan)
				}
			},
		},
		{
			name:   "discard",
			policy: RejectDiscard,
			check: func(t *testing.T, err error, callerRan bool, queued []*poolJob, oldest, newest *poolJob) {
				if err != nil || callerRan || len(queued) != 1 || queued[0] != oldest {
					t.Errorf("discard should drop the new task silently, queued = %v", queued)
				}
			},
		},
		{
			name:   "discard-oldest",
			policy: RejectDiscardOldest,
			check: func(t *testing.T, err error, callerRan bool, queued []*poolJob, oldest, newest *poolJob) {
				if err != nil || len(queued) != 1 || queued[0] != newest {
					t.Errorf("discard-oldest should replace the queued task, queued = %v", queued)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			cfg := DefaultPoolConfig(tt.name, 1)
			cfg.Rejection = tt.policy
			rejections := &silentRejections{}
			cfg.RejectedTaskHandler = rejections
			p := newTestPool(t, cfg, 1)
			release := blockWorker(t, p)
			defer release()
			oldest := job(func(ctx context.Context) {})
			_ = p.Execute(oldest)

			// Act
			callerRan := false
			newest := job(func(ctx context.Context) { callerRan = true })
			err := p.Execute(newest)

			// Assert
			tt.check(t, err, callerRan, p.Queue().Snapshot(), oldest, newest)
			if rejections.count.Load() != 1 || p.Stats().Rejected != 1 {
				t.Errorf("rejections = %d, Rejected = %d, want 1, 1", rejections.count.Load(), p.Stats().Rejected)
			}
		})
	}
}

// TestThreadPool_OnDiscardReceivesDroppedTasks verifies every task a policy
// drops without running reaches the discard callback
// Given: A saturated one-worker pool with a queue of one
// When: A task is rejected under each dropping policy
// Then: The callback gets the dropped task exactly once
func TestThreadPool_OnDiscardReceivesDroppedTasks(t *testing.T) {
	tests := []struct {
		name     string
		policy   RejectionPolicy
		shutdown bool
		dropped  func(oldest, newest *poolJob) *poolJob
	}{
		{"discard", RejectDiscard, false, func(oldest, newest *poolJob) *poolJob { return newest }},
		{"discard-oldest", RejectDiscardOldest, false, func(oldest, newest *poolJob) *poolJob { return oldest }},
		{"caller-runs after shutdown", RejectCallerRuns, true, func(oldest, newest *poolJob) *poolJob { return newest }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			cfg := DefaultPoolConfig(tt.name, 1)
			cfg.Rejection = tt.policy
			p := newTestPool(t, cfg, 1)
			var mu sync.Mutex
			var discarded []*poolJob
			p.OnDiscard(func(task *poolJob) {
				mu.Lock()
				defer mu.Unlock()
				discarded = append(discarded, task)
			})
			release := blockWorker(t, p)
			defer release()
			oldest := job(func(ctx context.Context) {})
			_ = p.Execute(oldest)
			if tt.shutdown {
				p.Shutdown()
			}

			// Act
			newest := job(func(ctx context.Context) {})
			err := p.Execute(newest)

			// Assert
			if err != nil {
				t.Fatalf("Execute() error = %v, want nil", err)
			}
			mu.Lock()
			defer mu.Unlock()
			want := tt.dropped(oldest, newest)
			if len(discarded) != 1 || discarded[0] != want {
				t.Errorf("discarded = %v, want [%p]", discarded, want)
			}
		})
	}
}

func TestParseRejectionPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    RejectionPolicy
		wantErr bool
	}{
		{"", RejectAbort, false},
		{"abort", RejectAbort, false},
		{"Caller-Runs", RejectCallerRuns, false},
		{"discard", RejectDiscard, false},
		{"discard_oldest", RejectDiscardOldest, false},
		{"retry", RejectAbort, true},
	}
	for _, tt := range tests {
		got, err := ParseRejectionPolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseRejectionPolicy(%q) = %v, %v, want %v, err=%v", tt.in, got, err, tt.want, tt.wantErr)
		}
		if err == nil && tt.in != "" {
			if round, _ := ParseRejectionPolicy(got.String()); round != got {
				t.Errorf("%v does not survive String/Parse", got)
			}
		}
	}
}

// =============================================================================
// Shutdown
// =============================================================================

// TestThreadPool_ShutdownRunsQueued verifies Shutdown drains the queue
// Given: A busy worker with queued tasks
// When: Shutdown is called
// Then: Queued tasks still run, new tasks are rejected, and the pool terminates
func TestThreadPool_ShutdownRunsQueued(t *testing.T) {
	// Arrange
	p := newTestPool(t, DefaultPoolConfig("shutdown", 1), 0)
	release := blockWorker(t, p)
	var ran atomic.Int32
	for range 3 {
		_ = p.Execute(job(func(ctx context.Context) { ran.Add(1) }))
	}

	// Act
	p.Shutdown()
	err := p.Execute(job(func(ctx context.Context) {}))
	release()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	awaitErr := p.AwaitTermination(ctx)

	// Assert
	if !errors.Is(err, ErrRejected) {
		t.Errorf("Execute after Shutdown error = %v, want ErrRejected", err)
	}
	if awaitErr != nil {
		t.Fatalf("AwaitTermination failed: %v", awaitErr)
	}
	if ran.Load() != 3 {
		t.Errorf("ran = %d, want 3 queued tasks", ran.Load())
	}
	if !p.IsShutdown() || p.IsRunning() {
		t.Error("pool should report shut down")
	}
}

// TestThreadPool_StopDropsQueued verifies Stop cancels running tasks and returns
// the queue
func TestThreadPool_StopDropsQueued(t *testing.T) {
	// Arrange
	q := NewBlockingQueue[*poolJob](NewFIFOQueue[*poolJob]())
	p := NewThreadPool(q, DefaultPoolConfig("stop", 1))
	p.Start(context.Background())
	started := make(chan struct{})
	var interrupted atomic.Bool
	_ = p.Execute(job(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		interrupted.Store(true)
	}))
	<-started
	_ = p.Execute(job(func(ctx context.Context) {}))
	_ = p.Execute(job(func(ctx context.Context) {}))

	// Act
	pending := p.Stop()

	// Assert
	if len(pending) != 2 {
		t.Errorf("Stop() returned %d tasks, want 2", len(pending))
	}
	if !interrupted.Load() {
		t.Error("running task should see its context cancelled")
	}
	if err := p.AwaitTermination(context.Background()); err != nil {
		t.Errorf("AwaitTermination failed: %v", err)
	}
}

func TestThreadPool_StopGracefulTimesOut(t *testing.T) {
	p := newTestPool(t, DefaultPoolConfig("graceful", 1), 0)
	release := blockWorker(t, p)
	defer release()
	_ = p.Execute(job(func(ctx context.Context) {}))

	go func() {
		time.Sleep(50 * time.Millisecond)
		release()
	}()
	err := p.StopGraceful(10 * time.Millisecond)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("StopGraceful() error = %v, want DeadlineExceeded", err)
	}
}

func eventuallyPool(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}
