package batch

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Swind/go-executors/core"
)

// RepeatingHandle controls a batch submitted with
// SubmitWithPreferredDurationAndFixedDelay.
type RepeatingHandle struct {
	id       uuid.UUID
	exec     *Executor
	source   core.TaskSource
	duration time.Duration
	delay    time.Duration

	stopped atomic.Bool
	rounds  atomic.Int64
}

func newRepeatingHandle(x *Executor, source core.TaskSource, duration, delay time.Duration) *RepeatingHandle {
	return &RepeatingHandle{
		id:       uuid.New(),
		exec:     x,
		source:   source,
		duration: duration,
		delay:    delay,
	}
}

// ID identifies the repeating batch in logs.
func (h *RepeatingHandle) ID() uuid.UUID { return h.id }

// Stop ends the repetition. The round in progress still completes.
func (h *RepeatingHandle) Stop() {
	if h.stopped.CompareAndSwap(false, true) {
		h.exec.forget(h)
	}
}

// IsStopped reports whether Stop was called, explicitly or by the executor
// shutting down.
func (h *RepeatingHandle) IsStopped() bool {
	return h.stopped.Load()
}

// Rounds returns how many rounds have been started.
func (h *RepeatingHandle) Rounds() int64 {
	return h.rounds.Load()
}
