//go:build !linux

package cpuset

// Pin is a no-op on platforms without thread affinity control.
func Pin(cpu int) error { return nil }

// Release is a no-op on platforms without thread affinity control.
func Release() error { return nil }
