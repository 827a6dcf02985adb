package storagedb

import (
	"sync/atomic"

	"kvstore/chunkstore"
	"kvstore/models"
)

// Entry is the addressable storage record returned by lookup — spec.md §3's
// "Entry Index": value type, value (a Chunk Sequence), expiry, a readers
// pin counter, and a deleted flag. Owned by the hashtable. A removed entry
// is marked deleted and retired to the epoch reclaimer, whose callbacks do
// not consult readers; the entry's memory is left to the Go garbage
// collector, which keeps it alive while any reader still references it.
type Entry struct {
	ValueType models.ValueType
	Value     *chunkstore.Sequence
	ExpiryMs  int64
	DBNumber  int

	readers atomic.Int32
	deleted atomic.Bool

	// Eviction bookkeeping (spec.md §4.6): approximate LRU/LFU sampling
	// needs per-entry recency and frequency, not present in the original's
	// EntryIndex proper but implied by "rank by policy (LRU/LFU/...)".
	lastAccessMs atomic.Int64
	frequency    atomic.Uint32
}

func newEntry(valueType models.ValueType, value *chunkstore.Sequence, expiryMs int64, dbNumber int, nowMs int64) *Entry {
	e := &Entry{ValueType: valueType, Value: value, ExpiryMs: expiryMs, DBNumber: dbNumber}
	e.lastAccessMs.Store(nowMs)
	e.frequency.Store(1)
	return e
}

// Pin increments the readers counter; callers must Unpin when done reading.
func (e *Entry) Pin() { e.readers.Add(1) }

// Unpin decrements the readers counter.
func (e *Entry) Unpin() { e.readers.Add(-1) }

// touch records an access for eviction scoring.
func (e *Entry) touch(nowMs int64) {
	e.lastAccessMs.Store(nowMs)
	e.frequency.Add(1)
}

// IsExpired reports whether the entry's expiry has passed as of nowMs.
// NoExpiry never expires.
func (e *Entry) IsExpired(nowMs int64) bool {
	return e.ExpiryMs != models.NoExpiry && nowMs >= e.ExpiryMs
}

// Reclaimable reports whether the entry is both deleted and has no pinned
// readers — the condition under which the epoch reclaimer may free it
// (spec.md §3: "freed when readers_counter reaches zero and deleted is
// set").
func (e *Entry) Reclaimable() bool {
	return e.deleted.Load() && e.readers.Load() == 0
}
