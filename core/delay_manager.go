package core

import (
	"container/heap"
	"sync"
	"time"
)

// scheduledFunc is a function due at a Nanotime instant.
type scheduledFunc struct {
	due int64
	seq int64
	fn  func()
}

// dueHeap orders scheduled functions by due time, then by scheduling order.
type dueHeap []*scheduledFunc

func (h dueHeap) Len() int { return len(h) }
func (h dueHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].seq < h[j].seq
}
func (h dueHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *dueHeap) Push(x any) { *h = append(*h, x.(*scheduledFunc)) }

func (h *dueHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	*h = old[:n-1]
	return item
}

// DelayManager runs functions after a delay on its own goroutine. Scheduled
// functions must be short; they run one after the other.
type DelayManager struct {
	mu      sync.Mutex
	pending dueHeap
	seq     int64
	stopped bool

	wakeup   chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

func NewDelayManager() *DelayManager {
	dm := &DelayManager{
		wakeup: make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
	go dm.loop()
	return dm
}

// Schedule arranges for fn to run once delay has elapsed. A delay of zero or
// less runs fn as soon as the manager's goroutine gets to it. Functions
// scheduled after Stop are dropped.
func (dm *DelayManager) Schedule(fn func(), delay time.Duration) {
	dm.mu.Lock()
	if dm.stopped {
		dm.mu.Unlock()
		return
	}
	dm.seq++
	item := &scheduledFunc{due: Nanotime() + int64(max(delay, 0)), seq: dm.seq, fn: fn}
	heap.Push(&dm.pending, item)
	head := dm.pending[0] == item
	dm.mu.Unlock()

	if head {
		select {
		case dm.wakeup <- struct{}{}:
		default:
		}
	}
}

func (dm *DelayManager) loop() {
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		wait, pending := dm.runDue()

		var fire <-chan time.Time
		if pending {
			timer.Reset(wait)
			fire = timer.C
		}

		select {
		case <-dm.stop:
			timer.Stop()
			return
		case <-fire:
		case <-dm.wakeup:
			// The head changed; recompute the wait.
			timer.Stop()
		}
	}
}

// runDue runs every function that is due, including the ones becoming due
// while earlier ones run. It returns how long until the next pending function,
// and false when nothing is pending.
func (dm *DelayManager) runDue() (time.Duration, bool) {
	for {
		due, wait, pending := dm.takeDue()
		if len(due) == 0 {
			return wait, pending
		}
		for _, item := range due {
			item.fn()
		}
	}
}

// takeDue pops the functions due now. Functions run outside the lock.
func (dm *DelayManager) takeDue() (due []*scheduledFunc, wait time.Duration, pending bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	now := Nanotime()
	for len(dm.pending) > 0 && dm.pending[0].due <= now {
		due = append(due, heap.Pop(&dm.pending).(*scheduledFunc))
	}
	if len(dm.pending) == 0 {
		return due, 0, false
	}
	return due, time.Duration(dm.pending[0].due - now), true
}

// Stop ends the manager. Pending functions are discarded.
func (dm *DelayManager) Stop() {
	dm.mu.Lock()
	dm.stopped = true
	dm.pending = nil
	dm.mu.Unlock()

	dm.stopOnce.Do(func() { close(dm.stop) })
}

func (dm *DelayManager) TaskCount() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.pending)
}
