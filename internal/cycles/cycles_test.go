package cycles

import (
	"testing"
	"time"
)

func TestNowIsMonotonic(t *testing.T) {
	a := Now()
	time.Sleep(time.Millisecond)
	b := Now()
	if b <= a {
		t.Fatalf("clock went backwards: %d then %d", a, b)
	}
}

func TestConversionsRoundTrip(t *testing.T) {
	const ns = int64(1_500_000)
	if got := ToNanoseconds(FromNanoseconds(ns)); got != ns {
		t.Fatalf("round trip of %d ns returned %d", ns, got)
	}
	d := 250 * time.Millisecond
	if got := FromDuration(d); got != uint64(d.Nanoseconds()) {
		t.Fatalf("FromDuration(%v) = %d", d, got)
	}
}

func TestSleepSpansExpectedTicks(t *testing.T) {
	const d = 10 * time.Millisecond
	a := Now()
	time.Sleep(d)
	elapsed := Now() - a
	if elapsed < FromDuration(d) {
		t.Fatalf("elapsed %d ticks across a %v sleep, want at least %d", elapsed, d, FromDuration(d))
	}
	if elapsed > FromDuration(time.Second) {
		t.Fatalf("elapsed %d ticks across a %v sleep, implausibly large", elapsed, d)
	}
}

func TestPerSecondMatchesNanosecondUnit(t *testing.T) {
	if PerSecond() != uint64(time.Second.Nanoseconds()) {
		t.Fatalf("PerSecond = %d, want %d", PerSecond(), time.Second.Nanoseconds())
	}
}
