package batch

import (
	"cmp"
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Swind/go-executors/core"
	"github.com/Swind/go-executors/ordering"
)

// record is the state shared by every task of one submitted batch round.
// Workers update it without locks as their tasks complete.
type record struct {
	id     uuid.UUID
	n      int64
	begin  int64 // core.Nanotime units
	finish int64

	ran        atomic.Int64
	running    atomic.Int64
	cumulative atomic.Int64
	nextStart  atomic.Int64
	done       atomic.Bool

	repeat *RepeatingHandle
}

// newRecord starts a round of n tasks spread over duration, beginning after
// initialDelay.
func newRecord(n int, duration, initialDelay time.Duration) *record {
	start := core.Nanotime() + int64(initialDelay)
	r := &record{
		id:     uuid.New(),
		n:      int64(n),
		begin:  start,
		finish: start + int64(duration),
	}
	r.nextStart.Store(start)
	return r
}

// increment spaces the ideal finish times of the tasks evenly.
func (r *record) increment() int64 {
	if r.n == 0 {
		return 0
	}
	return (r.finish - r.begin) / r.n
}

// nextIdealStart computes when the next task of the round should start, given
// how many tasks ran concurrently with the one that just completed, the total
// execution time so far and how many tasks completed.
//
// The gap left per remaining task is scaled by the concurrency, minus the
// average execution time. A late batch yields a start in the past, so the
// following tasks run without delay.
func (r *record) nextIdealStart(running, execTime, ran int64) int64 {
	now := core.Nanotime()
	left := r.n - ran
	if left <= 0 || ran <= 0 {
		return now
	}
	avg := float64(execTime) / float64(ran)
	ideal := float64(r.finish-now) / float64(left) * float64(running)
	return now + int64(ideal-avg)
}

// readyIn reports how long until the round's next task may start.
func (r *record) readyIn() time.Duration {
	return time.Duration(r.nextStart.Load() - core.Nanotime())
}

// envelope is the pool task wrapping one submitted task.
type envelope struct {
	exec        *Executor
	run         func(ctx context.Context)
	cancel      func() bool
	record      *record // nil for tasks submitted on their own
	idealFinish int64
	seq         int64

	order    ordering.OrderedTask
	finished atomic.Bool
}

var _ ordering.OrderedTask = (*envelope)(nil)

func (e *envelope) Run(ctx context.Context) {
	x := e.exec
	var (
		start   int64
		running int64
	)
	if e.record != nil {
		start = core.Nanotime()
		running = e.record.running.Add(1)
	}

	defer func() {
		if x.ordered {
			e.SetFinished(true)
		}
		if e.record != nil {
			x.complete(e, core.Nanotime()-start, running)
		}
		// Completion moves the round's next start and may unblock successors.
		x.queue.Signal()
	}()

	e.run(ctx)
}

func (e *envelope) Predecessors() []ordering.OrderedTask {
	if e.order == nil {
		return nil
	}
	return e.order.Predecessors()
}

func (e *envelope) Depth() int {
	if e.order == nil {
		return 0
	}
	return e.order.Depth()
}

// IsFinished tracks this submission only, so a task queued twice in a round
// runs twice instead of leaving its second envelope stuck.
func (e *envelope) IsFinished() bool {
	return e.finished.Load()
}

func (e *envelope) SetFinished(finished bool) {
	e.finished.Store(finished)
	if e.order != nil {
		e.order.SetFinished(finished)
	}
}

// byIdealFinish orders envelopes by ideal finish time, then submission.
func byIdealFinish(a, b *envelope) int {
	if c := cmp.Compare(a.idealFinish, b.idealFinish); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}

// byDepth orders envelopes by DAG depth, then like byIdealFinish.
func byDepth(a, b *envelope) int {
	if c := cmp.Compare(a.Depth(), b.Depth()); c != 0 {
		return c
	}
	return byIdealFinish(a, b)
}

func readyDelay(e *envelope) time.Duration {
	if e.record == nil {
		return 0
	}
	return e.record.readyIn()
}
