// Package cycles provides the monotonic tick clock the scheduler runs on.
//
// A tick is one nanosecond of the process monotonic clock. Keeping the unit
// fixed at nanosecond resolution leaves the top of the 64-bit range free for
// sentinel values (over 580 years of headroom) and makes the ns↔tick
// conversions trivial, while preserving the cycle-count interface the
// scheduler and the load estimator are written against.
package cycles

import "time"

// perSecond is the tick rate of the clock.
const perSecond = 1e9

var start = time.Now()

// Now returns the current tick count. Monotonic, starts near zero at
// process start.
func Now() uint64 {
	return uint64(time.Since(start))
}

// FromNanoseconds converts a nanosecond count to ticks.
func FromNanoseconds(ns int64) uint64 {
	return uint64(ns)
}

// FromDuration converts a duration to ticks.
func FromDuration(d time.Duration) uint64 {
	return uint64(d.Nanoseconds())
}

// ToNanoseconds converts a tick count to nanoseconds.
func ToNanoseconds(c uint64) int64 {
	return int64(c)
}

// PerSecond returns the number of ticks per second.
func PerSecond() uint64 {
	return perSecond
}
