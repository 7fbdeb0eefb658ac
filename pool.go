package executors

import (
	"context"
	"sync"

	"github.com/Swind/go-executors/batch"
	"github.com/Swind/go-executors/core"
)

// =============================================================================
// Global Executor Helper (Singleton)
// =============================================================================

var (
	globalExecutor *batch.Executor
	globalMu       sync.Mutex
)

// InitGlobalExecutor initializes the global batch executor with the specified
// number of workers, throttled to maxCPU cores when maxCPU is positive.
// It starts the executor immediately.
func InitGlobalExecutor(workers int, maxCPU float64) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalExecutor != nil {
		return // Already initialized
	}

	cfg := core.DefaultPoolConfig("global-executor", workers)
	if maxCPU > 0 {
		globalExecutor = batch.NewCPUThrottlingExecutor(cfg, maxCPU)
	} else {
		globalExecutor = batch.NewExecutor(cfg)
	}
	globalExecutor.Start(context.Background())
}

// GetGlobalExecutor returns the global executor instance.
// It panics if InitGlobalExecutor has not been called.
func GetGlobalExecutor() *batch.Executor {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalExecutor == nil {
		panic("GlobalExecutor not initialized. Call InitGlobalExecutor() first.")
	}
	return globalExecutor
}

// ShutdownGlobalExecutor stops the global executor. Queued tasks are dropped.
func ShutdownGlobalExecutor() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalExecutor != nil {
		globalExecutor.Stop()
		globalExecutor = nil
	}
}
