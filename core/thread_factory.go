package core

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// Thread is a worker execution context created by a ThreadFactory.
type Thread interface {
	Start()
}

// ThreadFactory creates the threads pool workers run on.
type ThreadFactory interface {
	NewThread(run func()) Thread
}

// GoroutineThreadFactory starts each worker on its own goroutine. With
// LockOSThread set the goroutine is wired to one OS thread for its whole life,
// which is what per-thread CPU clocks need to measure a single worker.
type GoroutineThreadFactory struct {
	Prefix       string
	LockOSThread bool

	created atomic.Int64
}

// NewThreadFactory returns a factory of OS-thread-locked worker goroutines.
func NewThreadFactory(prefix string) *GoroutineThreadFactory {
	return &GoroutineThreadFactory{Prefix: prefix, LockOSThread: true}
}

// NewThread implements ThreadFactory.
func (f *GoroutineThreadFactory) NewThread(run func()) Thread {
	n := f.created.Add(1)
	return &goroutineThread{
		name: fmt.Sprintf("%s-%d", f.Prefix, n),
		lock: f.LockOSThread,
		run:  run,
	}
}

// Created returns how many threads the factory has created.
func (f *GoroutineThreadFactory) Created() int64 {
	return f.created.Load()
}

type goroutineThread struct {
	name string
	lock bool
	run  func()
}

func (t *goroutineThread) Start() {
	go func() {
		if t.lock {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
		}
		t.run()
	}()
}

func (t *goroutineThread) String() string {
	return t.name
}
