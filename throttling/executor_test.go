package throttling

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Swind/go-executors/core"
)

func startExecutor(t *testing.T, workers int, maxCPU float64) *Executor {
	t.Helper()
	e := NewExecutor(core.DefaultPoolConfig("throttled", workers), maxCPU)
	e.Start(context.Background())
	t.Cleanup(func() { e.Stop() })
	return e
}

// TestExecutor_SubmitCallable verifies results and errors reach the Future
func TestExecutor_SubmitCallable(t *testing.T) {
	// Arrange
	e := startExecutor(t, 2, 0)
	boom := errors.New("boom")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Act
	ok, err := SubmitCallable(e, func(ctx context.Context) (int, error) { return 42, nil })
	if err != nil {
		t.Fatalf("SubmitCallable failed: %v", err)
	}
	failing, err := SubmitCallable(e, func(ctx context.Context) (int, error) { return 0, boom })
	if err != nil {
		t.Fatalf("SubmitCallable failed: %v", err)
	}

	// Assert
	if v, err := ok.Get(ctx); err != nil || v != 42 {
		t.Errorf("Get() = %d, %v, want 42, nil", v, err)
	}
	if _, err := failing.Get(ctx); !errors.Is(err, boom) {
		t.Errorf("Get() error = %v, want boom", err)
	}
}

// TestExecutor_PanicCapturedByFuture verifies a panicking task does not kill
// its worker
func TestExecutor_PanicCapturedByFuture(t *testing.T) {
	e := startExecutor(t, 1, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f, _ := e.Submit(core.Task(func(ctx context.Context) { panic("oops") }))
	_, err := f.Get(ctx)

	var pe *core.PanicError
	if !errors.As(err, &pe) || pe.Value != "oops" {
		t.Fatalf("Get() error = %v, want PanicError(oops)", err)
	}

	after, _ := e.Submit(core.Task(func(ctx context.Context) {}))
	if _, err := after.Get(ctx); err != nil {
		t.Errorf("worker should survive a panic, got %v", err)
	}
}

// TestExecutor_CancelQueued verifies a cancelled queued task never runs
// Given: A one-worker executor busy with a blocking task
// When: A second queued task is cancelled
// Then: It is removed from the queue and never runs
func TestExecutor_CancelQueued(t *testing.T) {
	// Arrange
	e := startExecutor(t, 1, 0)
	release := make(chan struct{})
	started := make(chan struct{})
	_ = e.Execute(core.Task(func(ctx context.Context) {
		close(started)
		<-release
	}))
	<-started

	var ran atomic.Bool
	f, _ := e.Submit(core.Task(func(ctx context.Context) { ran.Store(true) }))

	// Act
	cancelled := f.Cancel()
	close(release)

	// Assert
	if !cancelled {
		t.Fatal("Cancel should succeed on a queued task")
	}
	if e.Stats().Queued != 0 {
		t.Errorf("Queued = %d, want 0", e.Stats().Queued)
	}
	if _, err := f.Get(context.Background()); !errors.Is(err, core.ErrCancelled) {
		t.Errorf("Get() error = %v, want ErrCancelled", err)
	}
	if err := e.StopGraceful(5 * time.Second); err != nil {
		t.Fatalf("StopGraceful failed: %v", err)
	}
	if ran.Load() {
		t.Error("cancelled task should never run")
	}
}

func TestExecutor_RejectsAfterShutdown(t *testing.T) {
	e := startExecutor(t, 1, 0)
	e.Shutdown()

	err := e.Execute(core.Task(func(ctx context.Context) {}))

	if !errors.Is(err, core.ErrRejected) {
		t.Errorf("Execute after Shutdown error = %v, want ErrRejected", err)
	}
}

// TestExecutor_StopCancelsQueued verifies Futures of dropped tasks complete
// Given: An executor that was never started holding two submitted tasks
// When: It is stopped
// Then: Both Futures are cancelled and Get returns ErrCancelled
func TestExecutor_StopCancelsQueued(t *testing.T) {
	// Arrange
	e := NewExecutor(core.DefaultPoolConfig("not-started", 1), 0)
	first, err := e.Submit(core.Task(func(ctx context.Context) {}))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	second, err := SubmitCallable(e, func(ctx context.Context) (int, error) { return 1, nil })
	if err != nil {
		t.Fatalf("SubmitCallable failed: %v", err)
	}

	// Act
	dropped := e.Stop()

	// Assert
	if dropped != 2 {
		t.Errorf("Stop() dropped %d tasks, want 2", dropped)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := first.Get(ctx); !errors.Is(err, core.ErrCancelled) {
		t.Errorf("first Get() error = %v, want ErrCancelled", err)
	}
	if _, err := second.Get(ctx); !errors.Is(err, core.ErrCancelled) {
		t.Errorf("second Get() error = %v, want ErrCancelled", err)
	}
}

// TestExecutor_DiscardCancelsFuture verifies a task dropped by the rejection
// policy does not leave its Future pending
func TestExecutor_DiscardCancelsFuture(t *testing.T) {
	cfg := core.DefaultPoolConfig("discarding", 1)
	cfg.Rejection = core.RejectDiscardOldest
	e := NewExecutor(cfg, 0)
	e.Start(context.Background())
	e.Shutdown()

	f, err := e.Submit(core.Task(func(ctx context.Context) {}))

	if err != nil {
		t.Fatalf("Submit error = %v, want nil under discard-oldest", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := f.Get(ctx); !errors.Is(err, core.ErrCancelled) {
		t.Errorf("Get() error = %v, want ErrCancelled", err)
	}
}

func TestExecutor_RejectsNilTasks(t *testing.T) {
	e := startExecutor(t, 1, 0)

	if err := e.Execute(nil); !errors.Is(err, ErrNilTask) {
		t.Errorf("Execute(nil) error = %v, want ErrNilTask", err)
	}
	if _, err := e.Submit(nil); !errors.Is(err, ErrNilTask) {
		t.Errorf("Submit(nil) error = %v, want ErrNilTask", err)
	}
	if _, err := SubmitCallable[int](e, nil); !errors.Is(err, ErrNilTask) {
		t.Errorf("SubmitCallable(nil) error = %v, want ErrNilTask", err)
	}
}
