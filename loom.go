// Package loom is a user-space M:N threading runtime for latency-sensitive
// workloads that multiplex very short-lived tasks over a bounded pool of
// dedicated CPUs.
//
// The runtime owns a set of cores, each bound to one pinned kernel thread.
// A core hosts up to 56 thread slots; a per-core dispatcher round-robins the
// occupied slots and hands the core to one thread at a time. Scheduling is
// strictly cooperative: a thread holds its core until it calls Yield, Sleep,
// Block or Join, or returns from its entry function. Thread creation is
// lock-free and may be performed from any goroutine, including ones outside
// the runtime. An adaptive load estimator grows and shrinks the active core
// set between the configured initial count and maximum.
package loom

import (
	"runtime"
	"runtime/debug"
)

// Init parses the flags the runtime recognizes out of argv (removing them),
// then brings up the initial set of cores and the load estimator. Init is
// idempotent: concurrent and repeated calls after the first successful one
// return nil without re-initializing.
func Init(argv *[]string) error {
	if !sched.initState.CompareAndSwap(notInitialized, initializing) {
		for sched.initState.Load() == initializing {
			runtime.Gosched()
		}
		return nil
	}
	opts, err := parseOptions(argv)
	if err != nil {
		sched.initState.Store(notInitialized)
		return err
	}
	initRuntime(opts, true)
	return nil
}

// TestInit brings up a minimal single-core runtime without the estimator
// driver, for test harnesses that want deterministic core counts. Pair with
// TestDestroy.
func TestInit() {
	if !sched.initState.CompareAndSwap(notInitialized, initializing) {
		for sched.initState.Load() == initializing {
			runtime.Gosched()
		}
		return
	}
	initRuntime(options{numCores: 1, maxNumCores: 1, stackSize: defaultStackSize}, false)
}

// TestDestroy shuts the runtime down and waits for it to terminate.
func TestDestroy() {
	ShutDown()
	WaitForTermination()
}

func initRuntime(opts options, withEstimator bool) {
	sched.shutdown.Store(false)
	sched.stackSize = opts.stackSize
	debug.SetMaxStack(int(opts.stackSize))

	sched.maxNumCores = opts.maxNumCores
	sched.cores = make([]*core, opts.maxNumCores)
	sched.numCores.Store(0)
	sched.numCoresPrecursor.Store(opts.numCores)
	sched.drainInProgress.Store(false)
	sched.nextPlacement.Store(0)
	sched.numThreadsCreated.Store(0)
	sched.numThreadsFinished.Store(0)
	sched.estimator = newCoreLoadEstimator(int(opts.maxNumCores), collectStats)

	sched.kernelWG.Add(int(opts.numCores))
	for i := int32(0); i < opts.numCores; i++ {
		go joinKernelThreadPool()
	}
	for sched.numCores.Load() < opts.numCores {
		runtime.Gosched()
	}
	if withEstimator {
		startEstimatorDriver()
	}
	sched.initState.Store(initialized)
}

// ShutDown raises the shutdown flag. Dispatchers observe it at their next
// scan wrap, so shutdown propagates once running threads reach a suspension
// point or return. Callable from any goroutine; repeated calls are no-ops.
func ShutDown() {
	sched.shutdown.Store(true)
}

// WaitForTermination blocks until every kernel dispatch thread and driver
// has exited after ShutDown, then releases the runtime's state so Init can
// be called again.
func WaitForTermination() {
	sched.driverWG.Wait()
	sched.kernelWG.Wait()

	sched.coreChangeMutex.lock()
	sched.cores = nil
	sched.numCores.Store(0)
	sched.numCoresPrecursor.Store(0)
	sched.coreChangeMutex.unlock()
	sched.drainInProgress.Store(false)
	sched.estimator = nil
	sched.initState.Store(notInitialized)
}

// NumActiveCores returns the number of cores currently dispatching.
func NumActiveCores() int {
	return int(sched.numCores.Load())
}

// MainThreadJoinPool donates the calling goroutine's kernel thread to the
// scheduler as one more core, if there is room under maxNumCores, and
// returns only after the runtime has terminated. With no room it simply
// waits for termination.
func MainThreadJoinPool() {
	if sched.initState.Load() != initialized {
		return
	}
	sched.coreChangeMutex.lock()
	if sched.drainInProgress.Load() || sched.numCoresPrecursor.Load() >= sched.maxNumCores {
		sched.coreChangeMutex.unlock()
		WaitForTermination()
		return
	}
	sched.numCoresPrecursor.Add(1)
	sched.coreChangeMutex.unlock()

	sched.kernelWG.Add(1)
	joinKernelThreadPool()
	WaitForTermination()
}
