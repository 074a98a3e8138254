package loom

import (
	"reflect"
	"runtime"
	"testing"
)

func TestParseOptionsDefaults(t *testing.T) {
	argv := []string{"prog", "-v"}
	opts, err := parseOptions(&argv)
	if err != nil {
		t.Fatal(err)
	}
	if want := int32(runtime.NumCPU()); opts.numCores != want {
		t.Errorf("numCores = %d, want %d", opts.numCores, want)
	}
	if opts.maxNumCores != opts.numCores {
		t.Errorf("maxNumCores = %d, want numCores %d", opts.maxNumCores, opts.numCores)
	}
	if opts.stackSize != defaultStackSize {
		t.Errorf("stackSize = %d, want %d", opts.stackSize, defaultStackSize)
	}
	if !reflect.DeepEqual(argv, []string{"prog", "-v"}) {
		t.Errorf("argv mutated: %v", argv)
	}
}

func TestParseOptionsBothSpellings(t *testing.T) {
	argv := []string{"--numCores", "2", "--maxNumCores=4", "--stackSize=65536"}
	opts, err := parseOptions(&argv)
	if err != nil {
		t.Fatal(err)
	}
	if opts.numCores != 2 || opts.maxNumCores != 4 || opts.stackSize != 65536 {
		t.Errorf("parsed %+v, want {2 4 65536}", opts)
	}
	if len(argv) != 0 {
		t.Errorf("recognized flags left in argv: %v", argv)
	}
}

func TestParseOptionsLeavesUnrecognized(t *testing.T) {
	argv := []string{"prog", "--numCores", "1", "--color", "auto"}
	if _, err := parseOptions(&argv); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(argv, []string{"prog", "--color", "auto"}) {
		t.Errorf("argv = %v, want unrecognized flags preserved in order", argv)
	}
}

func TestParseOptionsMaxOnlyClampsDefault(t *testing.T) {
	argv := []string{"--maxNumCores", "1"}
	opts, err := parseOptions(&argv)
	if err != nil {
		t.Fatal(err)
	}
	if opts.numCores != 1 || opts.maxNumCores != 1 {
		t.Errorf("parsed %+v, want numCores clamped to max 1", opts)
	}
}

func TestParseOptionsErrors(t *testing.T) {
	for _, argv := range [][]string{
		{"--numCores"},
		{"--numCores", "zero"},
		{"--stackSize", "-1"},
		{"--numCores", "4", "--maxNumCores", "2"},
	} {
		in := append([]string(nil), argv...)
		if _, err := parseOptions(&in); err == nil {
			t.Errorf("parseOptions(%v) succeeded, want error", argv)
		}
	}
}
