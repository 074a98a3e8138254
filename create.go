package loom

import "reflect"

// maxInvocationArgs bounds the argument record stored in place inside a
// thread context.
const maxInvocationArgs = 6

// A threadInvocation is the erased entry record of one thread: either a bare
// closure, which is the hot path, or a reflected function with its bound
// arguments. It lives in place inside the context; creation never allocates
// on the scheduler side.
type threadInvocation struct {
	fn      func()
	rfn     reflect.Value
	numArgs int
	args    [maxInvocationArgs]reflect.Value
}

func (inv *threadInvocation) invoke() {
	if inv.fn != nil {
		inv.fn()
		return
	}
	inv.rfn.Call(inv.args[:inv.numArgs])
}

// Create starts fn as a new thread on a core chosen by the placement policy.
func Create(fn func()) (ThreadID, error) {
	return createThread(-1, threadInvocation{fn: fn})
}

// CreateOnCore starts fn as a new thread on the given core. It fails with
// ErrOutOfSlots when that core is full, draining or not active; no fallback
// placement is attempted.
func CreateOnCore(coreID int, fn func()) (ThreadID, error) {
	return createThread(coreID, threadInvocation{fn: fn})
}

// CreateWithArgs starts fn with the given arguments bound at creation time.
// fn must be a function taking exactly len(args) parameters; a mismatch is a
// programming error and panics. More than maxInvocationArgs arguments do not
// fit the in-place record and fail with ErrInvocationTooLarge.
func CreateWithArgs(fn any, args ...any) (ThreadID, error) {
	rfn := reflect.ValueOf(fn)
	if rfn.Kind() != reflect.Func {
		panic("loom: CreateWithArgs called with a non-function")
	}
	if rfn.Type().NumIn() != len(args) {
		panic("loom: CreateWithArgs argument count does not match function arity")
	}
	if len(args) > maxInvocationArgs {
		return NullThreadID, ErrInvocationTooLarge
	}
	inv := threadInvocation{rfn: rfn, numArgs: len(args)}
	for i, a := range args {
		inv.args[i] = reflect.ValueOf(a)
	}
	return createThread(-1, inv)
}

// createThread reserves a slot, writes the invocation into it and publishes
// it as runnable. targetCore < 0 applies the round-robin placement policy;
// otherwise only the named core is tried.
//
// The invocation write completes before the zero store on the wakeup word;
// that store is the single release edge the target dispatcher's load
// synchronizes with, so the dispatcher never observes a half-written record.
func createThread(targetCore int, inv threadInvocation) (ThreadID, error) {
	if sched.initState.Load() != initialized {
		return NullThreadID, ErrNotInitialized
	}
	numCores := int(sched.numCores.Load())

	if targetCore >= 0 {
		if targetCore >= numCores {
			return NullThreadID, ErrOutOfSlots
		}
		c := sched.cores[targetCore]
		if c == nil || c.draining.Load() {
			return NullThreadID, ErrOutOfSlots
		}
		slot, ok := c.slots.reserve()
		if !ok {
			return NullThreadID, ErrOutOfSlots
		}
		return publishThread(c, slot, inv), nil
	}

	start := int(sched.nextPlacement.Add(1))
	for i := 0; i < numCores; i++ {
		c := sched.cores[(start+i)%numCores]
		if c == nil || c.draining.Load() {
			continue
		}
		if slot, ok := c.slots.reserve(); ok {
			return publishThread(c, slot, inv), nil
		}
	}
	return NullThreadID, ErrOutOfSlots
}

func publishThread(c *core, slot int, inv threadInvocation) ThreadID {
	ctx := c.contexts[slot]
	gen := ctx.generation.Load()
	ctx.invocation = inv
	sched.numThreadsCreated.Add(1)
	ctx.wakeupTimeInCycles.Store(0)
	return ThreadID{ctx: ctx, generation: gen}
}
