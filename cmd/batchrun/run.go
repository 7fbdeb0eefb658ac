package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/Swind/go-executors/batch"
	"github.com/Swind/go-executors/config"
	"github.com/Swind/go-executors/core"
	obs "github.com/Swind/go-executors/observability/prometheus"
	"github.com/Swind/go-executors/observability/zaplog"
	"github.com/Swind/go-executors/ordering"
	"github.com/Swind/go-executors/throttling"
)

type runOptions struct {
	tasks     int
	duration  time.Duration
	work      time.Duration
	delay     time.Duration
	maxCPU    float64
	stopAfter time.Duration
	grace     time.Duration
}

func newRunCmd(configPath *string) *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a repeating synthetic workload on every configured executor",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadFile(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if opts.stopAfter > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.stopAfter)
				defer cancel()
			}
			return run(ctx, f, opts)
		},
	}
	fl := cmd.Flags()
	fl.IntVar(&opts.tasks, "tasks", 20, "tasks per batch round")
	fl.DurationVar(&opts.duration, "duration", 2*time.Second, "preferred duration of a round")
	fl.DurationVar(&opts.work, "work", 5*time.Millisecond, "CPU time burnt by each task")
	fl.DurationVar(&opts.delay, "delay", time.Second, "delay between rounds")
	fl.Float64Var(&opts.maxCPU, "max-cpu", 0, "ceiling in cores shared by the throttled executors by worker count; 0 keeps their own")
	fl.DurationVar(&opts.stopAfter, "stop-after", 0, "stop after this long; 0 runs until interrupted")
	fl.DurationVar(&opts.grace, "grace", 5*time.Second, "time given to queued tasks on shutdown")
	return cmd
}

func run(ctx context.Context, f *config.File, opts runOptions) (err error) {
	logger, err := zaplog.NewProduction(f.Log.Level, f.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	reg := prom.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	exporter, err := obs.NewMetricsExporter(f.Metrics.Namespace, reg, obs.ExporterOptions{})
	if err != nil {
		return err
	}
	poller, err := obs.NewSnapshotPoller(reg, f.Metrics.Namespace, f.Metrics.PollInterval)
	if err != nil {
		return err
	}

	var coordinator *throttling.Coordinator
	if opts.maxCPU > 0 {
		coordinator = throttling.NewCoordinator(opts.maxCPU)
	}

	runners := make([]config.Runner, 0, len(f.Executors))
	defer func() {
		for _, r := range runners {
			err = multierr.Append(err, r.StopGraceful(opts.grace))
		}
	}()

	for _, def := range f.Executors {
		r, err := config.Build(def, logger.Named(def.Name), exporter)
		if err != nil {
			return err
		}
		r.Start(ctx)
		runners = append(runners, r)

		if coordinator != nil && def.Kind != config.KindBatch {
			if err := coordinator.Add(r, max(def.CoreWorkers, 1)); err != nil {
				return err
			}
		}

		switch x := r.(type) {
		case *batch.Executor:
			poller.AddBatch(def.Name, x)
			tasks := workload(opts, def.Kind == config.KindOrdered)
			h, err := x.SubmitWithPreferredDurationAndFixedDelay(tasks, 0, opts.duration, opts.delay)
			if err != nil {
				return fmt.Errorf("executor %s: %w", def.Name, err)
			}
			logger.Info("repeating batch started",
				core.F("executor", def.Name),
				core.F("repeating", h.ID().String()),
				core.F("tasks", opts.tasks),
				core.F("maxCPU", x.MaximumCPUUsage()))
		case *throttling.Executor:
			poller.AddPool(def.Name, x)
			go feed(ctx, x, workload(opts, false), opts.delay)
			logger.Info("throttled feed started",
				core.F("executor", def.Name),
				core.F("maxCPU", x.MaximumCPUUsage()))
		}
	}

	poller.Start(ctx)
	defer poller.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	server := &http.Server{Addr: f.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe() }()
	logger.Info("metrics endpoint listening", core.F("addr", f.Metrics.Addr))

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics endpoint: %w", err)
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// workload returns n tasks burning opts.work of CPU each. Ordered workloads are
// a chain, every task depending on the one before.
func workload(opts runOptions, chained bool) core.TaskSlice {
	tasks := make(core.TaskSlice, opts.tasks)
	var prev *ordering.Task
	for i := range tasks {
		fn := core.Task(func(ctx context.Context) { burn(ctx, opts.work) })
		if !chained {
			tasks[i] = fn
			continue
		}
		if prev == nil {
			prev = ordering.NewTask(fn)
		} else {
			prev = ordering.NewTask(fn, prev)
		}
		tasks[i] = prev
	}
	return tasks
}

// feed executes the tasks on x every delay until ctx ends.
func feed(ctx context.Context, x *throttling.Executor, tasks core.TaskSlice, delay time.Duration) {
	ticker := time.NewTicker(max(delay, time.Millisecond))
	defer ticker.Stop()
	for {
		for _, t := range tasks {
			if err := x.Execute(t); err != nil {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func burn(ctx context.Context, d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) && ctx.Err() == nil {
	}
}
