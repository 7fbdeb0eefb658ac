package prometheus

import (
	"context"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/Swind/go-executors/core"
)

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// BatchSnapshotProvider provides current batch executor stats snapshots.
type BatchSnapshotProvider interface {
	Stats() core.BatchStats
}

// SnapshotPoller periodically exports pool and batch executor Stats()
// snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	batchesMu sync.RWMutex
	batches   map[string]BatchSnapshotProvider

	poolQueued    *prom.GaugeVec
	poolActive    *prom.GaugeVec
	poolWorkers   *prom.GaugeVec
	poolLargest   *prom.GaugeVec
	poolCompleted *prom.GaugeVec
	poolRejected  *prom.GaugeVec
	poolRunning   *prom.GaugeVec

	batchSubmitted *prom.GaugeVec
	batchCompleted *prom.GaugeVec
	batchRepeating *prom.GaugeVec
	batchMaxCPU    *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, namespace string, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "executors"
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, []string{"executor"})
	}
	p := &SnapshotPoller{
		interval: interval,
		pools:    make(map[string]PoolSnapshotProvider),
		batches:  make(map[string]BatchSnapshotProvider),

		poolQueued:    gauge("pool_queued", "Queued tasks per executor, ready or not."),
		poolActive:    gauge("pool_active", "Running tasks per executor."),
		poolWorkers:   gauge("pool_workers", "Worker count per executor."),
		poolLargest:   gauge("pool_largest_workers", "Largest worker count seen per executor."),
		poolCompleted: gauge("pool_completed", "Completed task count snapshot."),
		poolRejected:  gauge("pool_rejected", "Rejected task count snapshot."),
		poolRunning:   gauge("pool_running", "Executor running state (1=running, 0=stopped)."),

		batchSubmitted: gauge("batch_submitted", "Submitted batch round count snapshot."),
		batchCompleted: gauge("batch_completed", "Completed batch round count snapshot."),
		batchRepeating: gauge("batch_repeating", "Repeating batches not yet stopped."),
		batchMaxCPU:    gauge("max_cpu_usage", "CPU ceiling in cores, 0 when not throttled."),
	}

	for _, g := range []**prom.GaugeVec{
		&p.poolQueued, &p.poolActive, &p.poolWorkers, &p.poolLargest,
		&p.poolCompleted, &p.poolRejected, &p.poolRunning,
		&p.batchSubmitted, &p.batchCompleted, &p.batchRepeating, &p.batchMaxCPU,
	} {
		registered, err := registerCollector(reg, *g)
		if err != nil {
			return nil, err
		}
		*g = registered
	}
	return p, nil
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	p.pools[name] = provider
	p.poolsMu.Unlock()
}

// AddBatch adds or replaces a batch executor snapshot provider by name. Its
// pool gauges are exported too.
func (p *SnapshotPoller) AddBatch(name string, provider BatchSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "batch")
	p.batchesMu.Lock()
	p.batches[name] = provider
	p.batchesMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.poolsMu.RLock()
	for name, provider := range p.pools {
		p.setPool(name, provider.Stats())
	}
	p.poolsMu.RUnlock()

	p.batchesMu.RLock()
	for name, provider := range p.batches {
		stats := provider.Stats()
		p.setPool(name, stats.Pool)
		p.batchSubmitted.WithLabelValues(name).Set(float64(stats.BatchesSubmitted))
		p.batchCompleted.WithLabelValues(name).Set(float64(stats.BatchesCompleted))
		p.batchRepeating.WithLabelValues(name).Set(float64(stats.RepeatingActive))
		p.batchMaxCPU.WithLabelValues(name).Set(stats.MaximumCPUUsage)
	}
	p.batchesMu.RUnlock()
}

func (p *SnapshotPoller) setPool(name string, stats core.PoolStats) {
	p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
	p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
	p.poolWorkers.WithLabelValues(name).Set(float64(stats.Workers))
	p.poolLargest.WithLabelValues(name).Set(float64(stats.Largest))
	p.poolCompleted.WithLabelValues(name).Set(float64(stats.Completed))
	p.poolRejected.WithLabelValues(name).Set(float64(stats.Rejected))
	if stats.Running {
		p.poolRunning.WithLabelValues(name).Set(1)
	} else {
		p.poolRunning.WithLabelValues(name).Set(0)
	}
}
