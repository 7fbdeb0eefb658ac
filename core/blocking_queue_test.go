package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// Blocking retrieval
// =============================================================================

// TestBlockingQueue_TakeWaitsForOffer verifies Take blocks until an element arrives
func TestBlockingQueue_TakeWaitsForOffer(t *testing.T) {
	// Arrange
	q := NewBlockingQueue[int](NewFIFOQueue[int]())
	got := make(chan int, 1)

	// Act
	go func() {
		v, err := q.Take(context.Background())
		if err == nil {
			got <- v
		}
	}()
	time.Sleep(10 * time.Millisecond)
	if err := q.Offer(7); err != nil {
		t.Fatalf("Offer failed: %v", err)
	}

	// Assert
	select {
	case v := <-got:
		if v != 7 {
			t.Errorf("Take() = %d, want 7", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Take did not return after Offer")
	}
}

// TestBlockingQueue_TakeInterrupted verifies a cancelled context ends the wait
func TestBlockingQueue_TakeInterrupted(t *testing.T) {
	q := NewBlockingQueue[int](NewFIFOQueue[int]())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Take(ctx)

	if !errors.Is(err, ErrInterrupted) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Take() error = %v, want ErrInterrupted wrapping DeadlineExceeded", err)
	}
}

func TestBlockingQueue_PollTimeout(t *testing.T) {
	q := NewBlockingQueue[int](NewFIFOQueue[int]())

	start := time.Now()
	_, ok, err := q.PollTimeout(context.Background(), 20*time.Millisecond)

	if ok || err != nil {
		t.Fatalf("PollTimeout() = %v, %v, want false, nil", ok, err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("PollTimeout returned after %v, want at least 20ms", elapsed)
	}
}

// TestBlockingQueue_CloseDrainsThenFails verifies closed queues still hand out
// their elements
func TestBlockingQueue_CloseDrainsThenFails(t *testing.T) {
	// Arrange
	q := NewBlockingQueue[int](NewFIFOQueue[int]())
	_ = q.Offer(1)

	// Act
	q.Close()

	// Assert
	if err := q.Offer(2); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Offer after Close error = %v, want ErrQueueClosed", err)
	}
	if v, err := q.Take(context.Background()); err != nil || v != 1 {
		t.Errorf("Take() = %d, %v, want 1, nil", v, err)
	}
	if _, err := q.Take(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Take on drained closed queue error = %v, want ErrQueueClosed", err)
	}
}

// =============================================================================
// Capacity
// =============================================================================

// TestBlockingQueue_Capacity verifies Offer fails and Put waits when full
// Given: A queue bounded to one element holding one element
// When: Offer and Put are called
// Then: Offer fails with ErrQueueFull and Put succeeds once space is made
func TestBlockingQueue_Capacity(t *testing.T) {
	// Arrange
	q := NewBlockingQueue[int](NewFIFOQueue[int](), WithCapacity[int](1))
	_ = q.Offer(1)

	// Act
	offerErr := q.Offer(2)
	putDone := make(chan error, 1)
	go func() { putDone <- q.Put(context.Background(), 3) }()
	time.Sleep(10 * time.Millisecond)
	remaining := q.RemainingCapacity()
	q.Poll()

	// Assert
	if !errors.Is(offerErr, ErrQueueFull) {
		t.Errorf("Offer on full queue error = %v, want ErrQueueFull", offerErr)
	}
	if remaining != 0 {
		t.Errorf("RemainingCapacity() = %d, want 0", remaining)
	}
	select {
	case err := <-putDone:
		if err != nil {
			t.Errorf("Put failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Put did not complete after space was made")
	}
	if v, _ := q.Poll(); v != 3 {
		t.Errorf("Poll() = %d, want 3", v)
	}
	if unbounded := NewBlockingQueue[int](NewFIFOQueue[int]()); unbounded.RemainingCapacity() != -1 {
		t.Error("an unbounded queue reports -1 remaining capacity")
	}
}

// =============================================================================
// Readiness
// =============================================================================

// TestBlockingQueue_ReadyDelayWithholdsHead verifies the readiness gate
// Given: A queue whose elements become ready at a given time
// When: The head is not ready yet
// Then: Poll reports nothing and Take waits until it is ready
func TestBlockingQueue_ReadyDelayWithholdsHead(t *testing.T) {
	// Arrange
	readyAt := time.Now().Add(30 * time.Millisecond)
	q := NewBlockingQueue[int](NewFIFOQueue[int](),
		WithReadyDelay(func(int) time.Duration { return time.Until(readyAt) }))
	_ = q.Offer(1)

	// Act
	_, polled := q.Poll()
	_, peeked := q.Peek()
	v, err := q.Take(context.Background())

	// Assert
	if polled || peeked {
		t.Error("Poll and Peek must not hand out an element that is not ready")
	}
	if err != nil || v != 1 {
		t.Fatalf("Take() = %d, %v, want 1, nil", v, err)
	}
	if time.Now().Before(readyAt) {
		t.Error("Take returned before the element was ready")
	}
}

// TestBlockingQueue_SignalReevaluates verifies Signal wakes waiters when
// readiness changes outside the queue
func TestBlockingQueue_SignalReevaluates(t *testing.T) {
	// Arrange
	var ready atomic.Bool
	q := NewBlockingQueue[int](NewFIFOQueue[int](),
		WithReadyDelay(func(int) time.Duration {
			if ready.Load() {
				return 0
			}
			return time.Hour
		}))
	_ = q.Offer(1)
	got := make(chan int, 1)
	go func() {
		v, err := q.Take(context.Background())
		if err == nil {
			got <- v
		}
	}()
	time.Sleep(10 * time.Millisecond)

	// Act
	ready.Store(true)
	q.Signal()

	// Assert
	select {
	case v := <-got:
		if v != 1 {
			t.Errorf("Take() = %d, want 1", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Signal did not wake the waiting taker")
	}
}

func TestBlockingQueue_DrainRemoveContains(t *testing.T) {
	q := NewBlockingQueue[int](NewFIFOQueue[int]())
	for v := range 5 {
		_ = q.Offer(v)
	}

	if !q.Contains(3) || q.Contains(9) {
		t.Error("Contains reports the wrong membership")
	}
	if !q.Remove(3) {
		t.Error("Remove(3) = false, want true")
	}
	if snap := q.Snapshot(); len(snap) != 4 {
		t.Errorf("Snapshot() has %d elements, want 4", len(snap))
	}

	drained := q.DrainTo(2)
	if len(drained) != 2 || drained[0] != 0 || drained[1] != 1 {
		t.Errorf("DrainTo(2) = %v, want [0 1]", drained)
	}
	if rest := q.DrainTo(0); len(rest) != 2 {
		t.Errorf("DrainTo(0) = %v, want the 2 remaining elements", rest)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}
