package loom

import (
	"math/bits"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/loomruntime/loom/internal/cycles"
	"github.com/loomruntime/loom/internal/gls"
)

// current returns the thread context of the calling goroutine, or nil if the
// caller is not a scheduler thread.
func current() *threadContext {
	if v := gls.Current().Load(); v != nil {
		return v.(*threadContext)
	}
	return nil
}

// contextMain is the body of every context coroutine. It starts on the
// first switch into the context, then alternates between running the
// invocation published into its slot and dispatching on behalf of the core.
// The coroutine never returns: it ends in retire when its core is torn down
// or its dispatcher takes the shutdown branch.
func (c *core) contextMain(ctx *threadContext) {
	gls.Current().Store(ctx)
	if c.torndown {
		ctx.retire()
	}
	if c.slots.occupied(int(ctx.idInCore)) && ctx.wakeupTimeInCycles.Load() == 0 {
		// Scheduled straight into a fresh invocation; mark running before
		// touching it so a signal from now on is recorded, not lost.
		ctx.wakeupTimeInCycles.Store(blockedSentinel)
	} else {
		// Nothing published here yet; the slot may be reserved with its
		// record still being written. Wait to be selected like any other
		// context.
		ctx.dispatch()
	}
	for {
		if c.slots.occupied(int(ctx.idInCore)) {
			ctx.run()
		}
		ctx.dispatch()
	}
}

// run executes the slot's invocation and walks the exit path.
func (ctx *threadContext) run() {
	ctx.invocation.invoke()
	ctx.finish()
}

// finish retires the thread occupying this context. The ordering is load
// bearing: the wakeup word goes to unoccupied and the generation moves on
// before joiners are notified, and the slot bit is cleared only after that,
// so a racing creation can never have its freshly set bit clobbered and a
// joiner can never observe a released slot with a live generation.
func (ctx *threadContext) finish() {
	c := ctx.c
	ctx.invocation = threadInvocation{}
	ctx.wakeupTimeInCycles.Store(unoccupied)
	gen := ctx.generation.Add(1)

	ctx.joinLock.lock()
	waiters := ctx.joinWaiters
	ctx.joinWaiters = nil
	ctx.joinFutex.Store(gen)
	ctx.joinLock.unlock()
	ctx.joinFutex.WakeAll()
	for _, w := range waiters {
		Signal(w.id)
	}

	c.slots.release(int(ctx.idInCore))

	// A reused slot must not inherit a boost from its previous occupant.
	bit := uint64(1) << ctx.idInCore
	c.publicPriorityMask.And(^bit)
	c.privatePriorityMask &^= bit

	sched.numThreadsFinished.Add(1)
}

func (ctx *threadContext) checkCanary() {
	if ctx.canary != stackCanary {
		logger().Fatal("thread context canary mismatch",
			zap.Uint8("core", ctx.coreID),
			zap.Uint8("slot", ctx.idInCore))
	}
}

// dispatch selects the next runnable context on this core and switches to
// it. It returns only when the calling context has itself been selected to
// run again.
func (ctx *threadContext) dispatch() {
	ctx.checkCanary()
	c := ctx.c
	now := cycles.Now()
	c.stats.accountInterval(now, c.slots.numOccupied(), false)

	iterations := 0
	for {
		// Fast path: serve boosted slots before resuming the round robin.
		if c.privatePriorityMask == 0 {
			if pub := c.publicPriorityMask.Load(); pub != 0 {
				c.publicPriorityMask.And(^pub)
				c.privatePriorityMask = pub
			}
		}
		for c.privatePriorityMask != 0 {
			k := bits.TrailingZeros64(c.privatePriorityMask)
			c.privatePriorityMask &^= uint64(1) << k
			cand := c.contexts[k]
			// Stale bits, from exited or re-blocked threads, are dropped.
			if c.slots.occupied(k) && cand.wakeupTimeInCycles.Load() == 0 {
				if cand == ctx {
					ctx.wakeupTimeInCycles.Store(blockedSentinel)
					return
				}
				ctx.switchTo(cand)
				return
			}
		}

		// Slow path: one round-robin pass over the occupied bitmap starting
		// at the core's saved position.
		idx := c.nextCandidateIndex
		mask := c.slots.bitmap() >> idx
		for mask != 0 {
			if mask&1 == 0 {
				n := bits.TrailingZeros64(mask)
				mask >>= n
				idx += n
				continue
			}
			cand := c.contexts[idx]
			if w := cand.wakeupTimeInCycles.Load(); now >= w {
				// Work found almost immediately means the core is behind;
				// ask for another one. The call is a cheap no-op at the cap.
				if iterations < coreIncreaseThreshold {
					incrementCoreCount()
				}
				c.nextCandidateIndex = (idx + 1) % maxThreadsPerCore
				if cand == ctx {
					ctx.wakeupTimeInCycles.Store(blockedSentinel)
					return
				}
				ctx.switchTo(cand)
				return
			}
			iterations++
			mask >>= 1
			idx++
		}

		// Wrap: charge the fruitless pass as idle time, honor shutdown and
		// ramp-down, yield the processor and rescan from slot zero.
		now = cycles.Now()
		c.stats.accountInterval(now, c.slots.numOccupied(), true)
		if sched.shutdown.Load() || c.deschedule.Load() {
			// No successor is named, so the hub falls through to teardown.
			ctx.retire()
		}
		c.nextCandidateIndex = 0
		runtime.Gosched()
		now = cycles.Now()
	}
}

// Yield gives up the core to the next runnable thread on it. Returns
// immediately when the caller is the core's only occupant, and is a plain
// scheduler yield on goroutines outside the runtime.
func Yield() {
	ctx := current()
	if ctx == nil {
		runtime.Gosched()
		return
	}
	if ctx.c.slots.numOccupied() == 1 {
		return
	}
	ctx.wakeupTimeInCycles.Store(0)
	ctx.dispatch()
}

// Sleep suspends the calling thread for at least d. There is no upper bound
// on the delay: the thread runs again when the dispatcher next reaches it
// after the deadline passes. On goroutines outside the runtime it falls back
// to time.Sleep.
func Sleep(d time.Duration) {
	ctx := current()
	if ctx == nil {
		time.Sleep(d)
		return
	}
	ctx.wakeupTimeInCycles.Store(cycles.Now() + cycles.FromDuration(d))
	ctx.dispatch()
}

// Block suspends the calling thread until a Signal arrives. A signal
// delivered before Block is consumed by it: the call returns without
// suspending. Callers must tolerate spurious wakeups and loop on their own
// predicate.
func Block() {
	ctx := current()
	if ctx == nil {
		return
	}
	for {
		w := ctx.wakeupTimeInCycles.Load()
		if w == 0 {
			// Pre-armed by an earlier signal; consume it and keep running.
			if ctx.wakeupTimeInCycles.CompareAndSwap(0, blockedSentinel) {
				return
			}
			continue
		}
		if w == blockedSentinel || ctx.wakeupTimeInCycles.CompareAndSwap(w, blockedSentinel) {
			break
		}
	}
	ctx.dispatch()
}

// Signal makes the thread named by id runnable and boosts its scheduling
// priority. Signals to exited or stale ids are no-ops; a signal that lands
// on a slot's next incarnation becomes a spurious wakeup, which Block
// callers must tolerate.
func Signal(id ThreadID) {
	ctx := id.ctx
	if ctx == nil {
		return
	}
	for {
		w := ctx.wakeupTimeInCycles.Load()
		if w == unoccupied {
			return
		}
		if w == 0 || ctx.wakeupTimeInCycles.CompareAndSwap(w, 0) {
			break
		}
	}
	ctx.c.publicPriorityMask.Or(uint64(1) << ctx.idInCore)
}

// Join blocks until the thread named by id has exited. Stale ids return
// immediately. Callable both from scheduler threads, which block on the
// runtime's own primitives, and from outside goroutines, which sleep on the
// context's join futex.
func Join(id ThreadID) {
	ctx := id.ctx
	if ctx == nil {
		return
	}
	if ctx.generation.Load() != id.generation {
		return
	}
	if self := current(); self != nil {
		ctx.joinLock.lock()
		if ctx.generation.Load() != id.generation {
			ctx.joinLock.unlock()
			return
		}
		ctx.joinWaiters = append(ctx.joinWaiters, joinWaiter{id: GetThreadID()})
		ctx.joinLock.unlock()
		for ctx.generation.Load() == id.generation {
			Block()
		}
		return
	}
	for ctx.generation.Load() == id.generation {
		ctx.joinFutex.Wait(id.generation)
	}
}

// GetThreadID returns the id of the calling thread, or NullThreadID when the
// caller is not a scheduler thread.
func GetThreadID() ThreadID {
	ctx := current()
	if ctx == nil {
		return NullThreadID
	}
	return ThreadID{ctx: ctx, generation: ctx.generation.Load()}
}
