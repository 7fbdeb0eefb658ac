// Package cputime reads CPU-time clocks of the calling thread and of the process.
package cputime

import "time"

// Thread returns the CPU time consumed by the calling OS thread. The boolean is
// false when the platform has no per-thread CPU clock.
//
// The value is only meaningful for goroutines locked to their OS thread.
func Thread() (time.Duration, bool) {
	return threadCPUTime()
}

// Process returns the user plus system CPU time consumed by the whole process.
func Process() (time.Duration, bool) {
	return processCPUTime()
}
