package loom

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

const defaultStackSize = 1 << 20

type options struct {
	numCores    int32
	maxNumCores int32
	stackSize   int64
}

// parseOptions consumes the flags the runtime recognizes out of argv,
// leaving unrecognized arguments in place for the application's own parser.
// Both "--flag N" and "--flag=N" spellings are accepted.
func parseOptions(argv *[]string) (options, error) {
	opts := options{
		numCores:  int32(runtime.NumCPU()),
		stackSize: defaultStackSize,
	}
	var numSet, maxSet bool
	var rest []string
	args := *argv
	for i := 0; i < len(args); i++ {
		name, val, hasVal := strings.Cut(args[i], "=")
		switch name {
		case "--numCores", "--maxNumCores", "--stackSize":
		default:
			rest = append(rest, args[i])
			continue
		}
		if !hasVal {
			if i+1 >= len(args) {
				return options{}, fmt.Errorf("loom: flag %s requires a value", name)
			}
			i++
			val = args[i]
		}
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil || n <= 0 {
			return options{}, fmt.Errorf("loom: invalid value %q for %s", val, name)
		}
		switch name {
		case "--numCores":
			opts.numCores = int32(n)
			numSet = true
		case "--maxNumCores":
			opts.maxNumCores = int32(n)
			maxSet = true
		case "--stackSize":
			opts.stackSize = n
		}
	}
	if !maxSet {
		opts.maxNumCores = opts.numCores
	}
	if !numSet && opts.numCores > opts.maxNumCores {
		opts.numCores = opts.maxNumCores
	}
	if opts.maxNumCores < opts.numCores {
		return options{}, fmt.Errorf("loom: --maxNumCores %d is below --numCores %d",
			opts.maxNumCores, opts.numCores)
	}
	*argv = rest
	return opts, nil
}
