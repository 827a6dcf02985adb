// Package fiber implements the cooperative, per-worker task scheduler of
// spec.md §4.7: one scheduler per worker multiplexes many small tasks —
// connection handlers, the snapshot writer, the eviction sampler — over a
// single logical thread of control, with explicit suspension points instead
// of preemption.
//
// The original's fiber is a user-space stack switched by a tiny
// architecture-specific assembly routine (spec.md §9 calls this out as
// something to re-architect rather than translate literally: "describe as
// a callee-save context save/restore primitive... the scheduler itself is
// ISA-agnostic"). Go already owns stack management for every goroutine, so
// a Fiber here is backed by its own goroutine but is handed control only
// when the Scheduler explicitly resumes it — the pair of channels between
// Fiber and Scheduler stand in for "save/restore registers, jump to the
// saved stack pointer." From the scheduler's point of view a Fiber never
// runs concurrently with another Fiber on the same Scheduler, matching the
// original's single-threaded-per-worker execution model even though the
// runtime underneath is preemptible.
package fiber

import (
	"sync/atomic"
	"time"
)

// State is a Fiber's scheduling state.
type State int

const (
	StateReady State = iota
	StateRunning
	StateSuspended
	StateWaitingIO
	StateDone
)

type yieldKind int

const (
	yieldNow yieldKind = iota
	yieldWaitDeadline
	yieldWaitIO
	yieldDone
)

type yieldEvent struct {
	kind   yieldKind
	wakeAt time.Time
	ioDone <-chan struct{}
	err    error
}

// Fiber is one cooperatively-scheduled task: a name (for diagnostics), a
// terminate flag the scheduler or an external caller can raise, and the
// pair of unbuffered channels used to hand control back and forth with its
// Scheduler.
type Fiber struct {
	id        uint64
	name      string
	terminate atomic.Bool
	state     State
	wakeAt    time.Time
	ioDone    <-chan struct{}
	resume    chan struct{}
	yielded   chan yieldEvent
	err       error

	// heapIndex is maintained by the scheduler's suspended-set heap.
	heapIndex int
}

// Name returns the fiber's diagnostic name.
func (f *Fiber) Name() string { return f.name }

// Terminate cooperatively requests the fiber stop at its next suspension
// point (spec.md §4.7: "setting a fiber's terminate flag causes the next
// suspension point to return a failure; there is no asynchronous
// cancellation").
func (f *Fiber) Terminate() { f.terminate.Store(true) }

// Err returns the error the fiber's body returned, once it has reached
// StateDone.
func (f *Fiber) Err() error { return f.err }

// Context is the handle a fiber's body uses to cooperate with its
// scheduler: suspension points and cancellation observation. A Context must
// only be used from within the fiber body it was handed to.
type Context struct {
	f *Fiber
}

// Terminated reports whether Terminate has been called; fiber bodies should
// check this after every suspension point and unwind promptly.
func (c *Context) Terminated() bool {
	return c.f.terminate.Load()
}

// Yield suspends the current fiber, letting the scheduler run another
// ready fiber, then resumes at the next scheduling opportunity. Returns
// false if the fiber has been asked to terminate, in which case the caller
// should unwind rather than continue its loop (spec.md §5's "long-running
// loops... yield between iterations").
func (c *Context) Yield() bool {
	c.f.yielded <- yieldEvent{kind: yieldNow}
	<-c.f.resume
	return !c.f.terminate.Load()
}

// WaitMs suspends the fiber until at least n milliseconds have elapsed,
// requeuing it into the scheduler's timer-sorted suspended set (spec.md
// §4.7 "wait_ms(n) (requeues with deadline)"). Returns false if terminated.
func (c *Context) WaitMs(n int) bool {
	c.f.yielded <- yieldEvent{kind: yieldWaitDeadline, wakeAt: time.Now().Add(time.Duration(n) * time.Millisecond)}
	<-c.f.resume
	return !c.f.terminate.Load()
}

// AwaitIO suspends the fiber until done is closed (or receives a value),
// standing in for spec.md §4.7's "IO completion waits registered with the
// I/O ring" — package netio closes such a channel when a submitted
// operation completes.
func (c *Context) AwaitIO(done <-chan struct{}) bool {
	c.f.yielded <- yieldEvent{kind: yieldWaitIO, ioDone: done}
	<-c.f.resume
	return !c.f.terminate.Load()
}
