package prometheus

import (
	"errors"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/Swind/go-executors/core"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
	// DelayBuckets are used by the throttle delay and batch lateness histograms.
	DelayBuckets []float64
}

// DefaultDelayBuckets span 100µs to about 6.5s.
var DefaultDelayBuckets = prom.ExponentialBuckets(0.0001, 4, 9)

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskDurationSeconds  *prom.HistogramVec
	taskPanicTotal       *prom.CounterVec
	taskRejectedTotal    *prom.CounterVec
	queueDepth           *prom.GaugeVec
	throttleDelaySeconds *prom.HistogramVec
	batchCompletedTotal  *prom.CounterVec
	batchTasksTotal      *prom.CounterVec
	batchLatenessSeconds *prom.HistogramVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "executors"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}
	delayBuckets := opts.DelayBuckets
	if len(delayBuckets) == 0 {
		delayBuckets = DefaultDelayBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"executor"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of task panics.",
	}, []string{"executor"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_rejected_total",
		Help:      "Total number of rejected tasks.",
	}, []string{"executor", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current queue depth.",
	}, []string{"executor"})
	throttleVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "throttle_delay_seconds",
		Help:      "Delay imposed on workers to stay under the CPU ceiling.",
		Buckets:   delayBuckets,
	}, []string{"executor"})
	batchVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "batch_completed_total",
		Help:      "Total number of completed batch rounds.",
	}, []string{"executor"})
	batchTasksVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "batch_tasks_total",
		Help:      "Total number of tasks in completed batch rounds.",
	}, []string{"executor"})
	latenessVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_lateness_seconds",
		Help:      "Time past the preferred duration at which batch rounds completed.",
		Buckets:   delayBuckets,
	}, []string{"executor"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if throttleVec, err = registerCollector(reg, throttleVec); err != nil {
		return nil, err
	}
	if batchVec, err = registerCollector(reg, batchVec); err != nil {
		return nil, err
	}
	if batchTasksVec, err = registerCollector(reg, batchTasksVec); err != nil {
		return nil, err
	}
	if latenessVec, err = registerCollector(reg, latenessVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds:  durationVec,
		taskPanicTotal:       panicVec,
		taskRejectedTotal:    rejectedVec,
		queueDepth:           queueDepthVec,
		throttleDelaySeconds: throttleVec,
		batchCompletedTotal:  batchVec,
		batchTasksTotal:      batchTasksVec,
		batchLatenessSeconds: latenessVec,
	}, nil
}

// RecordTaskDuration records task execution duration.
func (m *MetricsExporter) RecordTaskDuration(runnerName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(normalizeLabel(runnerName, "unknown")).Observe(duration.Seconds())
}

// RecordTaskPanic records task panic events.
func (m *MetricsExporter) RecordTaskPanic(runnerName string, panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(normalizeLabel(runnerName, "unknown")).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(runnerName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(runnerName, "unknown")).Set(float64(depth))
}

// RecordTaskRejected records task rejection events.
func (m *MetricsExporter) RecordTaskRejected(runnerName string, reason string) {
	if m == nil {
		return
	}
	m.taskRejectedTotal.WithLabelValues(normalizeLabel(runnerName, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordThrottleDelay records a worker sleep imposed by the CPU ceiling.
func (m *MetricsExporter) RecordThrottleDelay(runnerName string, delay time.Duration) {
	if m == nil {
		return
	}
	m.throttleDelaySeconds.WithLabelValues(normalizeLabel(runnerName, "unknown")).Observe(delay.Seconds())
}

// RecordBatchCompleted records a completed batch round. Early rounds count as
// zero lateness.
func (m *MetricsExporter) RecordBatchCompleted(runnerName string, size int, lateness time.Duration) {
	if m == nil {
		return
	}
	name := normalizeLabel(runnerName, "unknown")
	m.batchCompletedTotal.WithLabelValues(name).Inc()
	m.batchTasksTotal.WithLabelValues(name).Add(float64(size))
	m.batchLatenessSeconds.WithLabelValues(name).Observe(max(lateness, 0).Seconds())
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
