// Package throttling keeps the CPU usage of a worker pool under a ceiling by
// parking workers between tasks.
package throttling

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/Swind/go-executors/core"
	"github.com/Swind/go-executors/internal/cputime"
)

// CPUClock returns the CPU time consumed so far by the calling OS thread. The
// boolean is false when the platform cannot measure it.
type CPUClock func() (time.Duration, bool)

// Strategy is a core.ExecutionHooks measuring the CPU time every task uses on
// its worker and, after the task, sleeping the worker long enough for its CPU
// usage to converge to ceiling / pool size. The delay is computed from the
// worker's running averages of CPU usage and task duration.
//
// The allowance is split by pool size, not by the number of busy workers, so a
// partially idle pool is throttled less than the ceiling would allow.
type Strategy struct {
	name     string
	maxCPU   atomic.Uint64
	poolSize func() int

	clock    CPUClock
	averages core.AverageComputationFactory
	sleep    func(ctx context.Context, d time.Duration)
	metrics  core.Metrics
	logger   core.Logger
}

var _ core.ExecutionHooks = (*Strategy)(nil)

// Option configures a Strategy.
type Option func(*Strategy)

// WithName labels the strategy's metrics and logs.
func WithName(name string) Option {
	return func(s *Strategy) {
		s.name = name
	}
}

// WithCPUClock replaces the per-thread CPU clock.
func WithCPUClock(clock CPUClock) Option {
	return func(s *Strategy) {
		s.clock = clock
	}
}

// WithAverageFactory replaces the factory of the per-worker usage averages.
func WithAverageFactory(f core.AverageComputationFactory) Option {
	return func(s *Strategy) {
		s.averages = f
	}
}

// WithMetrics records every corrective delay.
func WithMetrics(m core.Metrics) Option {
	return func(s *Strategy) {
		s.metrics = m
	}
}

// WithLogger logs corrective delays at debug level.
func WithLogger(l core.Logger) Option {
	return func(s *Strategy) {
		s.logger = l
	}
}

// NewStrategy creates a strategy capping usage at maxCPU, expressed in cores
// (1.0 is one fully used core). poolSize reports the current worker count.
// A ceiling of zero or less disables throttling.
func NewStrategy(maxCPU float64, poolSize func() int, opts ...Option) *Strategy {
	s := &Strategy{
		name:     "throttling",
		poolSize: poolSize,
		clock:    cputime.Thread,
		averages: DefaultAverageFactory(),
		sleep:    sleepContext,
		metrics:  &core.NilMetrics{},
		logger:   core.NewNoOpLogger(),
	}
	s.SetMaximumCPUUsage(maxCPU)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaximumCPUUsage returns the current ceiling.
func (s *Strategy) MaximumCPUUsage() float64 {
	return math.Float64frombits(s.maxCPU.Load())
}

// SetMaximumCPUUsage changes the ceiling. Workers pick it up after their
// current task.
func (s *Strategy) SetMaximumCPUUsage(maxCPU float64) {
	s.maxCPU.Store(math.Float64bits(maxCPU))
}

// BeforeExecute starts a measurement on w unless one is still open because the
// previous sample was too small to measure.
func (s *Strategy) BeforeExecute(_ context.Context, w *core.Worker, _ core.Runnable) {
	u := &w.Usage
	if u.StartWall != 0 {
		return
	}
	cpu, ok := s.clock()
	if !ok {
		return
	}
	u.StartCPU = cpu
	u.StartWall = core.Nanotime()
}

// AfterExecute closes the measurement and parks the worker for the correction.
func (s *Strategy) AfterExecute(ctx context.Context, w *core.Worker, _ core.Runnable, _ any) {
	delay := s.measure(w)
	if delay <= 0 {
		return
	}
	s.metrics.RecordThrottleDelay(s.name, delay)
	s.logger.Debug("throttling worker",
		core.F("pool", s.name),
		core.F("worker", w.ID),
		core.F("delay", delay))
	s.sleep(ctx, delay)
}

// measure updates the usage record of w and returns the delay to impose.
func (s *Strategy) measure(w *core.Worker) time.Duration {
	u := &w.Usage
	if u.StartWall == 0 {
		return 0
	}
	cpu, ok := s.clock()
	if !ok {
		u.StartWall = 0
		return 0
	}
	c := cpu - u.StartCPU
	if c <= 0 {
		// Clock resolution too coarse; keep the window open.
		return 0
	}
	d := time.Duration(core.Nanotime() - u.StartWall)
	u.StartWall = 0
	u.LastCPU, u.LastWall = c, d

	if u.CPUUsage == nil {
		u.CPUUsage = s.averages.NewCPUUsageAverage()
	}
	if u.Duration == nil {
		u.Duration = s.averages.NewDurationAverage()
	}
	if d > 0 {
		u.CPUUsage.Update(float64(c) / float64(d))
	}
	u.Duration.Update(float64(d))

	maxCPU := s.MaximumCPUUsage()
	if maxCPU <= 0 {
		return 0
	}
	cAvg, dAvg := predicted(u, c, d)
	return Correction(cAvg, dAvg, maxCPU/float64(max(s.poolSize(), 1)))
}

// predicted returns the CPU time and wall time expected of the worker's next
// task: the averaged duration and its share of CPU. Until both averages report
// a value the last sample stands in for them.
func predicted(u *core.ThreadUsageRecord, c, d time.Duration) (time.Duration, time.Duration) {
	usage, duration := u.CPUUsage.Average(), u.Duration.Average()
	if usage <= 0 || duration <= 0 {
		return c, d
	}
	return time.Duration(usage * duration), time.Duration(duration)
}

// Correction returns how long a worker that used c CPU time over wall time d
// must stay idle for its usage to equal the allowance a: c/a - d, or zero when
// the task already ran under budget.
func Correction(c, d time.Duration, a float64) time.Duration {
	if c <= 0 || a <= 0 {
		return 0
	}
	delay := time.Duration(float64(c)/a) - d
	if delay < 0 {
		return 0
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
