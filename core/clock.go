package core

import "time"

// epoch is fixed at process start; every scheduling timestamp is relative to it.
var epoch = time.Now()

// Nanotime returns the nanoseconds elapsed on the monotonic clock since process start.
func Nanotime() int64 {
	return int64(time.Since(epoch))
}
