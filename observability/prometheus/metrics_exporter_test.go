package prometheus

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("executors", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordTaskDuration("batch-a", 250*time.Millisecond)
	exporter.RecordTaskPanic("batch-a", "panic")
	exporter.RecordQueueDepth("batch-a", 7)
	exporter.RecordTaskRejected("batch-a", "shutdown")

	panicTotal := testutil.ToFloat64(exporter.taskPanicTotal.WithLabelValues("batch-a"))
	if panicTotal != 1 {
		t.Fatalf("panic total = %v, want 1", panicTotal)
	}

	queueDepth := testutil.ToFloat64(exporter.queueDepth.WithLabelValues("batch-a"))
	if queueDepth != 7 {
		t.Fatalf("queue depth = %v, want 7", queueDepth)
	}

	rejected := testutil.ToFloat64(exporter.taskRejectedTotal.WithLabelValues("batch-a", "shutdown"))
	if rejected != 1 {
		t.Fatalf("rejected total = %v, want 1", rejected)
	}

	histCount, _, err := histogramSample(exporter.taskDurationSeconds.WithLabelValues("batch-a"))
	if err != nil {
		t.Fatalf("histogramSample failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("duration sample count = %d, want 1", histCount)
	}
}

// TestMetricsExporter_ThrottleAndBatch verifies the executor-specific series
// Given: An exporter
// When: A throttle delay and two batch completions, one early, are recorded
// Then: Counters and histograms reflect them, early rounds as zero lateness
func TestMetricsExporter_ThrottleAndBatch(t *testing.T) {
	// Arrange
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	// Act
	exporter.RecordThrottleDelay("cpu", 20*time.Millisecond)
	exporter.RecordBatchCompleted("cpu", 10, 50*time.Millisecond)
	exporter.RecordBatchCompleted("cpu", 5, -time.Second)

	// Assert
	count, sum, err := histogramSample(exporter.throttleDelaySeconds.WithLabelValues("cpu"))
	if err != nil || count != 1 || sum != 0.02 {
		t.Errorf("throttle delay histogram = %d samples, sum %v, err %v; want 1, 0.02", count, sum, err)
	}
	if got := testutil.ToFloat64(exporter.batchCompletedTotal.WithLabelValues("cpu")); got != 2 {
		t.Errorf("batch completed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(exporter.batchTasksTotal.WithLabelValues("cpu")); got != 15 {
		t.Errorf("batch tasks = %v, want 15", got)
	}
	count, sum, err = histogramSample(exporter.batchLatenessSeconds.WithLabelValues("cpu"))
	if err != nil || count != 2 || sum != 0.05 {
		t.Errorf("lateness histogram = %d samples, sum %v, err %v; want 2, 0.05", count, sum, err)
	}

	if n, err := testutil.GatherAndCount(reg, "executors_batch_completed_total"); err != nil || n != 1 {
		t.Errorf("GatherAndCount = %d, %v, want one series in the default namespace", n, err)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("executors", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("executors", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordTaskPanic("batch-a", nil)
	second.RecordTaskPanic("batch-a", nil)

	got := testutil.ToFloat64(first.taskPanicTotal.WithLabelValues("batch-a"))
	if got != 2 {
		t.Fatalf("shared panic counter = %v, want 2", got)
	}
}

func TestMetricsExporter_NilSafe(t *testing.T) {
	var exporter *MetricsExporter
	exporter.RecordTaskDuration("x", time.Second)
	exporter.RecordThrottleDelay("x", time.Second)
	exporter.RecordBatchCompleted("x", 1, time.Second)
}

func histogramSample(observer prom.Observer) (uint64, float64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), msg.Histogram.GetSampleSum(), nil
		}
	}
	return 0, 0, nil
}
