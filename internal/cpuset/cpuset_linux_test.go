//go:build linux

package cpuset

import (
	"runtime"
	"testing"
)

func TestPinRejectsOutOfRangeCPU(t *testing.T) {
	if err := Pin(-1); err == nil {
		t.Error("Pin(-1) succeeded")
	}
	if err := Pin(runtime.NumCPU()); err == nil {
		t.Errorf("Pin(%d) succeeded with only %d CPUs", runtime.NumCPU(), runtime.NumCPU())
	}
}

func TestPinAndRelease(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := Pin(0); err != nil {
		t.Fatalf("Pin(0): %v", err)
	}
	if err := Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
}
