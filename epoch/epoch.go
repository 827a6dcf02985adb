// Package epoch implements the epoch-based reclamation scheme described in
// spec.md §5: each worker advances a global epoch counter at quiescent
// points, retired objects carry the epoch they were retired at, and they are
// freed once every worker has advanced past that epoch.
//
// This is the same shape as the lock-free string interning table's epoch
// reclamation in the teacher codebase (sharded epoch slots, a retire queue
// drained on advance), generalized here into a small reusable primitive:
// storagedb retires replaced and deleted data through it, and each server
// worker registers with it and pins/advances it around dispatched commands.
package epoch

import (
	"sync"
	"sync/atomic"
)

// MaxEpochs is not consulted by Reclaimer: retire queues are kept for every
// epoch that some registered worker has not yet moved past, however many
// that is. A worker that stalls delays reclamation of those queues; it does
// not corrupt state.
const MaxEpochs = 3

// Reclaimer tracks a global epoch counter, one "last observed epoch" slot per
// registered worker, and per-epoch retire queues. Callers call Pin before a
// unit of work that touches epoch-protected data (an RMW operation, a
// hashtable probe), Advance at the next quiescent point, and Retire when
// they replace/delete such data.
type Reclaimer struct {
	epoch atomic.Int64

	mu      sync.Mutex
	workers map[int]*atomic.Int64 // worker index -> last observed epoch
	queues  map[int64][]func()    // epoch -> pending free callbacks
}

// New creates a Reclaimer with no registered workers.
func New() *Reclaimer {
	return &Reclaimer{
		workers: make(map[int]*atomic.Int64),
		queues:  make(map[int64][]func()),
	}
}

// Register associates a worker index with this reclaimer. Each worker (one
// per spec.md's "one OS thread per worker") must register exactly once
// before calling Pin.
func (r *Reclaimer) Register(workerIndex int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[workerIndex] = &atomic.Int64{}
	r.workers[workerIndex].Store(r.epoch.Load())
}

// Pin records that workerIndex currently observes the global epoch; call at
// the start of an RMW/lookup. There is no Unpin: the worker calls Advance at
// its next quiescent point — spec.md §5 names "between commands" as the
// natural site.
func (r *Reclaimer) Pin(workerIndex int) int64 {
	e := r.epoch.Load()
	r.mu.Lock()
	if slot, ok := r.workers[workerIndex]; ok {
		slot.Store(e)
	}
	r.mu.Unlock()
	return e
}

// Retire enqueues free for execution once every registered worker has
// advanced past the current global epoch. Used by storagedb when an RMW
// commit, a lazy expiry or an eviction replaces or removes an entry, and
// when FLUSHDB replaces a whole table.
func (r *Reclaimer) Retire(free func()) {
	e := r.epoch.Load()
	r.mu.Lock()
	r.queues[e] = append(r.queues[e], free)
	r.mu.Unlock()
}

// Advance bumps the global epoch and reclaims any retire queues that every
// registered worker has moved past. Safe to call from any worker at its
// quiescent point; typically invoked once per command completion.
func (r *Reclaimer) Advance() {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.epoch.Add(1)

	minObserved := next
	for _, slot := range r.workers {
		if o := slot.Load(); o < minObserved {
			minObserved = o
		}
	}

	for e, fns := range r.queues {
		if e >= minObserved {
			continue
		}
		for _, fn := range fns {
			fn()
		}
		delete(r.queues, e)
	}
}

// Epoch returns the current global epoch, useful for tests asserting
// reclamation lag.
func (r *Reclaimer) Epoch() int64 {
	return r.epoch.Load()
}
