// Package bitmap implements the slot bitmap allocator described in spec.md
// §4.1: a shard-partitioned bitmap that hands out fixed-width index slots to
// concurrent producers and consumers. MPMC supports any number of concurrent
// callers via CAS; SPSC (spsc.go) assumes a single writer and trades the CAS
// loop for a full bit-scan.
//
// Grounded on the same sharded-counter idiom the teacher uses for its lock
// manager (storage/binary/locks_sharded.go's per-shard atomics), applied
// here to bitmap words instead of mutexes.
package bitmap

import (
	"math/bits"
	"sync/atomic"
)

// ShardWidth is the number of slots packed into one shard word.
const ShardWidth = 64

// shard holds one 64-bit occupancy word plus an atomic used-count. Kept as
// two parallel fields (not a flexible-array-member layout) per spec.md §9's
// guidance to re-express C's offsetof/FAM bucket layouts as owned fields.
type shard struct {
	bits atomic.Uint64
	used atomic.Int32
}

// MPMC is a fixed-capacity slot allocator safe for any number of concurrent
// callers. Allocation is lock-free (CAS) but not linearizable across shards:
// a later Get may return a lower index than a concurrent earlier one still
// in flight, matching spec.md §4.1.
type MPMC struct {
	shards []shard
	size   int
}

// NewMPMC creates an allocator covering size slots (rounded up to a multiple
// of ShardWidth).
func NewMPMC(size int) *MPMC {
	n := (size + ShardWidth - 1) / ShardWidth
	if n < 1 {
		n = 1
	}
	return &MPMC{shards: make([]shard, n), size: n * ShardWidth}
}

// Size returns the total slot capacity.
func (m *MPMC) Size() int { return m.size }

// GetNextAvailable allocates and returns a free slot index, or (-1, false)
// if the bitmap is full. Equivalent to GetNextAvailableWithStep(0, 1).
func (m *MPMC) GetNextAvailable() (int, bool) {
	return m.GetNextAvailableWithStep(0, 1)
}

// GetNextAvailableWithStep walks shards starting at startShard with stride
// step, implementing spec.md §4.1's five-step allocation procedure. Callers
// racing on a shard that looks free should retry with (start=0, step=1) to
// disambiguate full-shard races, per the spec's guidance.
func (m *MPMC) GetNextAvailableWithStep(startShard, step int) (int, bool) {
	n := len(m.shards)
	if step <= 0 {
		step = 1
	}
	for i := 0; i < n; i++ {
		idx := (startShard + i*step) % n
		s := &m.shards[idx]

		if s.used.Load() == ShardWidth {
			continue
		}

		for {
			word := s.bits.Load()
			if word == ^uint64(0) {
				break // shard filled out from under us; advance
			}
			bitPos := firstZeroBit16(word)
			newWord := word | (uint64(1) << bitPos)
			if s.bits.CompareAndSwap(word, newWord) {
				s.used.Add(1)
				return idx*ShardWidth + int(bitPos), true
			}
			// CAS lost the race for this bit; do not retry the same
			// shard indefinitely — spec.md §4.1 step 3 says advance.
			break
		}
	}
	return -1, false
}

// Release clears the bit at index, making the slot available again. The
// allocator never reorders indices; a slot handed out may be released out
// of order relative to other in-flight allocations.
func (m *MPMC) Release(index int) {
	shardIdx := index / ShardWidth
	bitPos := uint(index % ShardWidth)
	if shardIdx < 0 || shardIdx >= len(m.shards) {
		return
	}
	s := &m.shards[shardIdx]
	for {
		word := s.bits.Load()
		mask := uint64(1) << bitPos
		if word&mask == 0 {
			return // already released
		}
		if s.bits.CompareAndSwap(word, word&^mask) {
			s.used.Add(-1)
			return
		}
	}
}

// UsedCount reports the number of occupied slots across all shards. Intended
// for metrics/diagnostics, not the hot allocation path.
func (m *MPMC) UsedCount() int64 {
	var total int64
	for i := range m.shards {
		total += int64(m.shards[i].used.Load())
	}
	return total
}

// firstZeroBit16 finds the first zero bit in word using the four 16-bit-half
// lookup spec.md §4.1 step 2 describes, implemented here with
// bits.TrailingZeros16 over each half — equivalent in effect to a
// precomputed 16-bit table, without hand-maintaining one in Go.
func firstZeroBit16(word uint64) uint {
	for half := uint(0); half < 4; half++ {
		chunk := uint16(word >> (half * 16))
		if chunk != 0xFFFF {
			return half*16 + uint(bits.TrailingZeros16(^chunk))
		}
	}
	return 63 // unreachable when word != ^uint64(0), guarded by caller
}
