package internal

import "time"

// Clock returns the current monotonic time in nanoseconds. Injected so
// tests can drive the predictors deterministically.
type Clock func() int64

var processStart = time.Now()

// MonotonicNow is the default Clock: nanoseconds since process start,
// read from Go's monotonic clock. Never goes backwards, unaffected by
// wall-clock adjustments.
func MonotonicNow() int64 {
	return int64(time.Since(processStart))
}
