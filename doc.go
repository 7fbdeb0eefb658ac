// Package executors provides worker pools that spread batches of tasks evenly
// over a preferred duration, optionally under a CPU ceiling and honouring task
// predecessors.
//
// Instead of running a batch as fast as the workers allow, a batch executor
// gives every task of a round an ideal finish time and withholds the next task
// until the round's feedback controller says it is due. Short bursts become a
// steady trickle, which keeps periodic background work from competing with
// latency-sensitive code.
//
// # Quick Start
//
// Initialize the global executor at application startup:
//
//	executors.InitGlobalExecutor(4, 1.5) // 4 workers, at most 1.5 cores
//	defer executors.ShutdownGlobalExecutor()
//
// Spread ten tasks over two seconds:
//
//	futures, err := executors.GetGlobalExecutor().ExecuteAllWithin(tasks, 2*time.Second)
//
// Repeat them, one second after each round completed, re-reading the task list
// before every round:
//
//	list := executors.NewTaskList(tasks...)
//	h, err := executors.GetGlobalExecutor().SubmitWithPreferredDurationAndFixedDelay(list, 0, 2*time.Second, time.Second)
//	defer h.Stop()
//
// # Key Concepts
//
// Batch executor (package batch): a pool whose queue hands out tasks at their
// ideal start times. batch.WithCPUThrottling and batch.WithOrdering add the
// CPU ceiling and predecessor ordering.
//
// Throttling strategy (package throttling): measures each worker's CPU time
// per task and sleeps the worker just long enough to keep the pool under its
// ceiling. A Coordinator shares one ceiling between several executors.
//
// Ordered tasks (package ordering): tasks declaring predecessors. They are
// started by depth and only once every predecessor finished.
//
// Batch trees (package batch): nested batches drained leaf by leaf.
//
// # Example
//
//	import (
//		"context"
//		"time"
//
//		executors "github.com/Swind/go-executors"
//	)
//
//	func main() {
//		x := executors.NewOrderedCPUThrottlingExecutor(executors.DefaultPoolConfig("etl", 4), 2)
//		x.Start(context.Background())
//		defer x.Shutdown()
//
//		extract := executors.NewOrderedTask(extractFn)
//		load := executors.NewOrderedTask(loadFn, extract)
//		_, _ = x.ExecuteAllWithin([]executors.Runnable{load, extract}, time.Minute)
//	}
//
// For more details, see https://github.com/Swind/go-executors
package executors
