//go:build linux

// Package cpuset pins the calling kernel thread to a CPU.
package cpuset

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// Pin restricts the calling thread to the given CPU. The caller must have
// locked itself to its kernel thread (runtime.LockOSThread) first, otherwise
// the affinity outlives the caller's tenancy of the thread.
func Pin(cpu int) error {
	if cpu < 0 || cpu >= runtime.NumCPU() {
		return unix.EINVAL
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}

// Release removes the restriction installed by Pin, allowing the thread to
// run on any CPU again.
func Release() error {
	var set unix.CPUSet
	set.Zero()
	for i := 0; i < runtime.NumCPU(); i++ {
		set.Set(i)
	}
	return unix.SchedSetaffinity(0, &set)
}
