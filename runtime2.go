package loom

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/loomruntime/loom/internal/futex"
)

const (
	// maxThreadsPerCore is the number of thread slots on each core. 56 slots
	// leave the top byte of the packed slot-map word free for the occupancy
	// count.
	maxThreadsPerCore = 56

	cacheLineSize = 64

	// coreIncreaseThreshold is the dispatch iteration count under which a
	// runnable hit is taken as evidence the core is saturated and another
	// core should be brought up. A tuning choice, not an invariant.
	coreIncreaseThreshold = 3

	// noCore marks a context that is not attached to any core.
	noCore = 0xFF
)

// The two largest 64-bit values are reserved as run-state sentinels in
// wakeupTimeInCycles. Everything below them is an absolute wakeup deadline
// in clock ticks, with 0 meaning "runnable now".
const (
	unoccupied      = ^uint64(0)
	blockedSentinel = ^uint64(0) - 1
)

// stackCanary is written into the first word of every context at
// construction and verified at every dispatch entry. A mismatch means the
// context table has been corrupted and the process aborts.
const stackCanary = 0x6c6f6f6d6c6f6f6d

// Runtime initialization states.
const (
	notInitialized uint32 = iota
	initializing
	initialized
)

// A ThreadID names one incarnation of a thread slot: the context plus the
// generation observed at creation. Once the slot is reused the generation
// moves on and the id goes stale; Signal and Join on a stale id are no-ops.
type ThreadID struct {
	ctx        *threadContext
	generation uint64
}

// NullThreadID is returned by GetThreadID on goroutines that are not
// scheduler threads.
var NullThreadID ThreadID

// Valid reports whether id names a thread incarnation (possibly exited).
func (id ThreadID) Valid() bool { return id.ctx != nil }

// A joinWaiter is a scheduler thread blocked in Join; the exit path signals
// it. Waiters that are not scheduler threads sleep on the context's join
// futex instead.
type joinWaiter struct {
	id ThreadID
}

// A threadContext is one thread slot on one core. The canary must stay the
// first word of the struct.
type threadContext struct {
	canary uint64

	// wakeupTimeInCycles is the slot's entire run state in one word:
	// unoccupied, blockedSentinel, 0 (runnable now) or an absolute wakeup
	// deadline. All transitions that clear a block go through CAS so a
	// racing signal is never lost.
	wakeupTimeInCycles atomic.Uint64

	// generation increments every time the slot is reused. Strictly
	// monotonic per slot.
	generation atomic.Uint64

	// coro is the context's switch cell. While the context is suspended the
	// cell holds its goroutine; while it runs the cell holds the core's hub.
	coro *coro

	// exited is set by retire just before coroexit, and read by the hub
	// after the handoff returns control to it.
	exited bool

	c        *core
	coreID   uint8
	idInCore uint8

	joinLock    spinLock
	joinWaiters []joinWaiter
	// joinFutex mirrors generation; off-runtime joiners sleep on it.
	joinFutex futex.Futex

	invocation threadInvocation
}

// coreStats are the per-core inputs of the load estimator, maintained by the
// dispatcher and read cross-core by collectStats. lastTick is owned by
// whichever context is currently dispatching on the core.
type coreStats struct {
	totalCycles          atomic.Uint64
	idleCycles           atomic.Uint64
	weightedLoadedCycles atomic.Uint64
	lastTick             uint64
	_                    [cacheLineSize - 4*8]byte
}

// accountInterval charges the clock ticks since the previous call to the
// core's counters: total always, idle only for intervals the dispatcher
// spent scanning without finding work, and occupancy-weighted load always.
func (s *coreStats) accountInterval(now, numOccupied uint64, idle bool) {
	last := s.lastTick
	if now <= last {
		return
	}
	delta := now - last
	s.lastTick = now
	s.totalCycles.Add(delta)
	if idle {
		s.idleCycles.Add(delta)
	}
	s.weightedLoadedCycles.Add(delta * numOccupied)
}

// A core is one scheduling domain: a slot map, its context table and the
// priority masks. At most one context per core is running at any instant;
// that context is the core's dispatcher.
type core struct {
	slots slotMap

	// publicPriorityMask collects boost bits from any thread. The dispatcher
	// drains it into privatePriorityMask by reading it and clearing the bits
	// it read, so local scheduling decisions do not ping-pong the shared line.
	publicPriorityMask atomic.Uint64

	// Dispatcher-owned state. Only the currently running context touches
	// these; ownership is handed over by the context switch itself.
	privatePriorityMask uint64
	nextCandidateIndex  int

	id       uint8
	contexts [maxThreadsPerCore]*threadContext

	// next is the successor a yielding context names for the hub. Written
	// and read only across coroswitch handoffs on this core's kernel
	// thread, as is torndown, so neither needs to be atomic.
	next     *threadContext
	torndown bool // resumed contexts must retire instead of dispatching

	draining   atomic.Bool // ramp-down: placement must skip this core
	deschedule atomic.Bool // dispatcher exits at the next wrap

	stats coreStats
}

func newCore() *core {
	c := &core{}
	for i := range c.contexts {
		ctx := &threadContext{
			canary:   stackCanary,
			c:        c,
			coreID:   noCore,
			idInCore: uint8(i),
		}
		ctx.wakeupTimeInCycles.Store(unoccupied)
		c.contexts[i] = ctx
	}
	return c
}

// createContexts allocates a coroutine per context. Bodies do not run until
// the hub or a dispatcher first switches into them.
func (c *core) createContexts() {
	for _, ctx := range c.contexts {
		ctx.coro = newcoro(func(*coro) { c.contextMain(ctx) })
	}
}

// schedt holds all global scheduler state.
type schedt struct {
	initState atomic.Uint32

	// shutdown only ever transitions false→true between Init cycles;
	// eventual visibility at dispatch wrap is sufficient.
	shutdown atomic.Bool

	// coreChangeMutex serializes growth and retirement of the core
	// registry. Held only for fixed-cost bookkeeping.
	coreChangeMutex spinLock

	// cores is the registry. Entries below numCores are active and
	// published before numCores advances past them; the slice itself is
	// allocated once per Init at maxNumCores length.
	cores             []*core
	numCores          atomic.Int32
	numCoresPrecursor atomic.Int32
	maxNumCores       int32

	// drainInProgress bars growth while a core is being ramped down, so the
	// victim stays the highest-index core until it retires.
	drainInProgress atomic.Bool

	stackSize int64

	// nextPlacement advances monotonically; placement round-robins from it.
	nextPlacement atomic.Uint32

	numThreadsCreated  atomic.Uint64
	numThreadsFinished atomic.Uint64

	kernelWG sync.WaitGroup
	driverWG sync.WaitGroup

	estimator *coreLoadEstimator
}

var sched schedt

// A spinLock guards fixed-cost critical sections. Contended acquires yield
// the processor between attempts.
type spinLock struct {
	state atomic.Uint32
}

func (l *spinLock) lock() {
	for !l.state.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
}

func (l *spinLock) unlock() {
	l.state.Store(0)
}
