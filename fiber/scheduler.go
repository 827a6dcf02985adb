package fiber

import (
	"container/heap"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"kvstore/logger"
)

// Scheduler is one worker's cooperative round-robin scheduler: a ready
// queue and a timer-sorted suspended set, driven by Run on a single
// goroutine that Run itself pins to its own OS thread with
// runtime.LockOSThread, matching spec.md §4.7's "each worker owns a
// scheduler driving one OS thread pinned to one core."
type Scheduler struct {
	workerIndex int

	mu        sync.Mutex // guards spawned, touched by Spawn from other goroutines
	ready     []*Fiber
	spawned   []*Fiber
	suspended suspendedHeap

	ioWaiters map[*Fiber]<-chan struct{}

	wake     chan struct{}
	stopping atomic.Bool
	nextID   atomic.Uint64
}

// New creates a scheduler for the given worker index (used only for
// diagnostics/logging).
func New(workerIndex int) *Scheduler {
	return &Scheduler{
		workerIndex: workerIndex,
		wake:        make(chan struct{}, 1),
		ioWaiters:   make(map[*Fiber]<-chan struct{}),
	}
}

// Spawn creates a new fiber running fn and enqueues it as ready. Safe to
// call from any goroutine, including from within another fiber's body
// running on this same scheduler.
func (s *Scheduler) Spawn(name string, fn func(ctx *Context)) *Fiber {
	f := &Fiber{
		id:      s.nextID.Add(1),
		name:    name,
		resume:  make(chan struct{}),
		yielded: make(chan yieldEvent),
	}

	go func() {
		<-f.resume // wait for the scheduler's first resume before running
		ctx := &Context{f: f}
		defer func() {
			if r := recover(); r != nil {
				logger.Error("fiber %q panicked: %v", f.name, r)
			}
			f.yielded <- yieldEvent{kind: yieldDone}
		}()
		fn(ctx)
	}()

	s.mu.Lock()
	s.spawned = append(s.spawned, f)
	s.mu.Unlock()
	s.nudge()
	return f
}

func (s *Scheduler) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Stop requests the scheduler's Run loop to exit. Run returns the next time
// it finds no fiber ready or suspended; fibers still waiting on I/O do not
// keep it running. Stop does not itself terminate running fibers; callers
// typically Terminate() each fiber first.
func (s *Scheduler) Stop() {
	s.stopping.Store(true)
	s.nudge()
}

// Run drives the scheduler until Stop is called and no fibers remain ready,
// suspended, or newly spawned. Intended to be the entire body of the
// worker's OS-thread-locked goroutine.
func (s *Scheduler) Run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		s.drainSpawned()
		s.promoteDue()

		if len(s.ready) == 0 {
			if s.stopping.Load() && s.suspended.Len() == 0 {
				return
			}
			s.sleepUntilWork()
			continue
		}

		f := s.ready[0]
		s.ready = s.ready[1:]

		f.state = StateRunning
		f.resume <- struct{}{}
		ev := <-f.yielded

		switch ev.kind {
		case yieldNow:
			f.state = StateReady
			s.ready = append(s.ready, f)
		case yieldWaitDeadline:
			f.state = StateSuspended
			f.wakeAt = ev.wakeAt
			heap.Push(&s.suspended, f)
		case yieldWaitIO:
			f.state = StateWaitingIO
			f.ioDone = ev.ioDone
			s.ioWaiters[f] = ev.ioDone
		case yieldDone:
			f.state = StateDone
			delete(s.ioWaiters, f)
		}
	}
}

func (s *Scheduler) drainSpawned() {
	s.mu.Lock()
	if len(s.spawned) > 0 {
		s.ready = append(s.ready, s.spawned...)
		s.spawned = s.spawned[:0]
	}
	s.mu.Unlock()
}

func (s *Scheduler) promoteDue() {
	now := time.Now()
	for s.suspended.Len() > 0 && !s.suspended[0].wakeAt.After(now) {
		f := heap.Pop(&s.suspended).(*Fiber)
		f.state = StateReady
		s.ready = append(s.ready, f)
	}

	for f, done := range s.ioWaiters {
		select {
		case <-done:
			delete(s.ioWaiters, f)
			f.state = StateReady
			s.ready = append(s.ready, f)
		default:
		}
	}
}

func (s *Scheduler) sleepUntilWork() {
	var timer *time.Timer
	var timerC <-chan time.Time
	if s.suspended.Len() > 0 {
		d := time.Until(s.suspended[0].wakeAt)
		if d < 0 {
			d = 0
		}
		timer = time.NewTimer(d)
		timerC = timer.C
		defer timer.Stop()
	}

	if len(s.ioWaiters) == 0 && timerC == nil {
		select {
		case <-s.wake:
		case <-time.After(time.Millisecond):
		}
		return
	}

	select {
	case <-s.wake:
	case <-timerC:
	case <-time.After(time.Millisecond):
	}
}

// suspendedHeap orders fibers by wakeAt, implementing container/heap.
type suspendedHeap []*Fiber

func (h suspendedHeap) Len() int            { return len(h) }
func (h suspendedHeap) Less(i, j int) bool  { return h[i].wakeAt.Before(h[j].wakeAt) }
func (h suspendedHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}
func (h *suspendedHeap) Push(x any) {
	f := x.(*Fiber)
	f.heapIndex = len(*h)
	*h = append(*h, f)
}
func (h *suspendedHeap) Pop() any {
	old := *h
	n := len(old)
	f := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return f
}
