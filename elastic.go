package loom

import (
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/loomruntime/loom/internal/cpuset"
	"github.com/loomruntime/loom/internal/cycles"
)

// estimatorInterval is the cadence at which the load estimator is consulted.
const estimatorInterval = 50 * time.Millisecond

// incrementCoreCount brings one more core online, up to maxNumCores. Called
// from dispatchers on every quick runnable hit and from the estimator
// driver, so everything up to the precursor reservation must stay cheap.
// Growth is barred while a core is being drained: the drain victim must
// remain the highest-indexed core until it retires.
func incrementCoreCount() {
	if sched.drainInProgress.Load() || sched.numCoresPrecursor.Load() >= sched.maxNumCores {
		return
	}
	sched.coreChangeMutex.lock()
	if sched.drainInProgress.Load() || sched.numCoresPrecursor.Load() >= sched.maxNumCores {
		sched.coreChangeMutex.unlock()
		return
	}
	sched.numCoresPrecursor.Add(1)
	sched.coreChangeMutex.unlock()

	sched.kernelWG.Add(1)
	go joinKernelThreadPool()
}

// joinKernelThreadPool is the body of one kernel dispatch thread. It builds
// a core, claims the next registry index, pins itself and then serves as the
// core's switch hub until the dispatcher exits through the shutdown or
// ramp-down branch and every context has retired. On a ramp-down exit it
// also retires the core from the registry.
func joinKernelThreadPool() {
	defer sched.kernelWG.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	c := newCore()

	sched.coreChangeMutex.lock()
	id := sched.numCores.Load()
	c.id = uint8(id)
	for _, ctx := range c.contexts {
		ctx.coreID = c.id
	}
	sched.cores[id] = c
	sched.numCores.Store(id + 1)
	sched.coreChangeMutex.unlock()

	if err := cpuset.Pin(int(id)); err != nil {
		logger().Warn("cpu pinning unavailable",
			zap.Int32("core", id), zap.Error(err))
	}
	defer cpuset.Release()

	c.stats.lastTick = cycles.Now()
	c.createContexts()
	c.next = c.contexts[0]
	c.runContexts()

	if !sched.shutdown.Load() {
		sched.coreChangeMutex.lock()
		sched.cores[id] = nil
		sched.numCores.Store(id)
		sched.numCoresPrecursor.Add(-1)
		sched.coreChangeMutex.unlock()
		sched.drainInProgress.Store(false)
		logger().Info("core retired", zap.Int32("core", id))
	}
}

// descheduleCore starts retiring the highest-indexed core: placement stops
// sending threads to it, a watcher waits for its slot map to drain, and the
// deschedule flag then makes its dispatcher exit at the next wrap. Growth
// stays barred for the whole drain.
func descheduleCore() {
	sched.coreChangeMutex.lock()
	numCores := sched.numCores.Load()
	if numCores <= 1 || sched.numCoresPrecursor.Load() != numCores ||
		!sched.drainInProgress.CompareAndSwap(false, true) {
		sched.coreChangeMutex.unlock()
		return
	}
	victim := sched.cores[numCores-1]
	victim.draining.Store(true)
	sched.coreChangeMutex.unlock()

	sched.driverWG.Add(1)
	go func() {
		defer sched.driverWG.Done()
		for victim.slots.numOccupied() != 0 && !sched.shutdown.Load() {
			time.Sleep(time.Millisecond)
		}
		victim.deschedule.Store(true)
	}()
}

// startEstimatorDriver runs the load estimator on a fixed cadence until
// shutdown.
func startEstimatorDriver() {
	sched.driverWG.Add(1)
	go func() {
		defer sched.driverWG.Done()
		ticker := time.NewTicker(estimatorInterval)
		defer ticker.Stop()
		for range ticker.C {
			if sched.shutdown.Load() {
				return
			}
			switch sched.estimator.estimate(int(sched.numCores.Load())) {
			case 1:
				incrementCoreCount()
			case -1:
				descheduleCore()
			}
		}
	}()
}
