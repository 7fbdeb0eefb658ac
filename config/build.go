package config

import (
	"context"
	"fmt"
	"time"

	"github.com/Swind/go-executors/batch"
	"github.com/Swind/go-executors/core"
	"github.com/Swind/go-executors/throttling"
)

// Runner is the part of the executor API shared by every kind.
type Runner interface {
	Start(ctx context.Context)
	Execute(task core.Runnable) error
	Shutdown()
	StopGraceful(timeout time.Duration) error
	Name() string
	MaximumCPUUsage() float64
	SetMaximumCPUUsage(maxCPU float64)
}

var (
	_ Runner = (*batch.Executor)(nil)
	_ Runner = (*throttling.Executor)(nil)
)

// Build creates the executor defined by e. logger and metrics may be nil.
// The executor is not started.
func Build(e Executor, logger core.Logger, metrics core.Metrics) (Runner, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	cfg := e.PoolConfig()
	if logger != nil {
		cfg.Logger = logger
	}
	if metrics != nil {
		cfg.Metrics = metrics
	}
	averages := throttling.WithAverageFactory(throttling.EWMAFactory{
		CPUUsageAge: e.EWMA.CPUUsageAge,
		DurationAge: e.EWMA.DurationAge,
	})

	var opts []batch.Option
	if e.QueueCapacity > 0 {
		opts = append(opts, batch.WithQueueCapacity(e.QueueCapacity))
	}

	switch e.Kind {
	case KindBatch:
		return batch.NewExecutor(cfg, opts...), nil
	case KindCPU:
		return batch.NewExecutor(cfg, append(opts, batch.WithCPUThrottling(e.MaxCPU, averages))...), nil
	case KindOrdered:
		return batch.NewExecutor(cfg, append(opts, batch.WithCPUThrottling(e.MaxCPU, averages), batch.WithOrdering())...), nil
	case KindThrottling:
		return throttling.NewExecutor(cfg, e.MaxCPU, averages), nil
	default:
		return nil, fmt.Errorf("%w: executor %s: unknown kind %q", ErrInvalid, e.Name, e.Kind)
	}
}
