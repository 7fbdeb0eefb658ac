package ordering

import "github.com/Swind/go-executors/core"

// BlockingQueue is a Queue made safe for concurrent use. A taker blocks until
// some entry is ready, and re-checks on every signal since readiness depends
// on other tasks finishing rather than on the queue itself.
type BlockingQueue[E Element] struct {
	*core.BlockingQueue[E]
}

// NewBlockingQueue wraps q.
func NewBlockingQueue[E Element](q *Queue[E], opts ...core.BlockingQueueOption[E]) *BlockingQueue[E] {
	return &BlockingQueue[E]{BlockingQueue: core.NewBlockingQueue[E](q, opts...)}
}

// MarkFinished marks t finished and wakes waiters so successors of t can be
// taken.
func (b *BlockingQueue[E]) MarkFinished(t OrderedTask) {
	t.SetFinished(true)
	b.Signal()
}
