package loom

import (
	_ "unsafe" // for go:linkname

	"github.com/loomruntime/loom/internal/gls"
)

// The context switch is built on the runtime's coroutine support, the same
// machinery that backs iter.Pull. A coro cell pairs two goroutines:
// coroswitch parks the caller and runs the goroutine stored in the cell in
// one direct handoff, without touching the run queue, and coroexit
// terminates the calling goroutine and resumes the cell's holder. Deferred
// calls do not run across coroexit, so retirement cleanup is explicit.
//
// Building requires -ldflags=-checklinkname=0 on toolchains that restrict
// linkname references into the runtime.
type coro struct{}

//go:linkname newcoro runtime.newcoro
func newcoro(func(*coro)) *coro

//go:linkname coroswitch runtime.coroswitch
func coroswitch(*coro)

//go:linkname coroexit runtime.coroexit
func coroexit(*coro)

// Every switch on a core routes through the kernel thread's hub loop in
// runContexts. A suspended context always yields on its own cell, so the
// cell of every suspended context holds that context's goroutine and the
// cell of the one running context holds the hub. That is the invariant that
// makes coroswitch on a context's cell resume the right goroutine; two
// contexts switching between each other directly would strand the yielder's
// goroutine in the target's cell.

// switchTo hands the core over to target and suspends the caller until some
// later scheduling decision picks it again. Control returns here when the
// hub switches back in; the first action on resume is to mark this context
// running, so that a subsequent signal is recorded rather than acted on.
func (ctx *threadContext) switchTo(target *threadContext) {
	c := ctx.c
	c.next = target
	coroswitch(ctx.coro)
	if c.torndown {
		ctx.retire()
	}
	ctx.wakeupTimeInCycles.Store(blockedSentinel)
}

// retire terminates the context's coroutine and returns the kernel thread
// to the hub. coroexit skips deferred calls, which also means deferred
// calls in a suspended invocation's frames never run when its core is torn
// down.
func (ctx *threadContext) retire() {
	gls.Current().Clear()
	ctx.exited = true
	coroexit(ctx.coro)
}

// runContexts is the core's hub loop, run by the kernel thread. A yielding
// context names its successor in next and switches here; the hub switches
// straight into the successor. A full handoff is therefore two coroswitch
// calls, each a direct goroutine swap on the same thread.
//
// The loop ends when the dispatcher exits without naming a successor, on
// shutdown or ramp-down. The hub then resumes every surviving context once
// so it can retire, and returns with all context coroutines dead.
func (c *core) runContexts() {
	for c.next != nil {
		target := c.next
		c.next = nil
		coroswitch(target.coro)
	}
	c.torndown = true
	for _, ctx := range c.contexts {
		if !ctx.exited {
			coroswitch(ctx.coro)
		}
	}
}
