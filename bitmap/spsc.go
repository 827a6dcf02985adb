package bitmap

import "math/bits"

// SPSC is a single-producer slot allocator: the producer is the only writer
// to shard words and used-counts, so allocation needs no CAS loop, just a
// hardware bit-scan (spec.md §4.1, SPSC variant). Used for each server
// worker's local connection-slot allocator, which only that worker's
// fibers ever mutate.
type SPSC struct {
	shards []uint64 // occupancy words
	full   []bool   // per-shard "full" flag, scanned to skip saturated shards
	used   []uint8
	size   int
}

// NewSPSC creates a single-writer allocator covering size slots.
func NewSPSC(size int) *SPSC {
	n := (size + ShardWidth - 1) / ShardWidth
	if n < 1 {
		n = 1
	}
	return &SPSC{
		shards: make([]uint64, n),
		full:   make([]bool, n),
		used:   make([]uint8, n),
		size:   n * ShardWidth,
	}
}

// Size returns the total slot capacity.
func (s *SPSC) Size() int { return s.size }

// GetNextAvailable scans shards for the first free slot and marks it used.
func (s *SPSC) GetNextAvailable() (int, bool) {
	for i, word := range s.shards {
		if s.full[i] {
			continue
		}
		if word == ^uint64(0) {
			s.full[i] = true
			continue
		}
		bitPos := firstZeroBit16(word)
		s.shards[i] = word | (uint64(1) << bitPos)
		s.used[i]++
		if s.used[i] == ShardWidth {
			s.full[i] = true
		}
		return i*ShardWidth + int(bitPos), true
	}
	return -1, false
}

// Release clears the bit at index.
func (s *SPSC) Release(index int) {
	shardIdx := index / ShardWidth
	bitPos := uint(index % ShardWidth)
	if shardIdx < 0 || shardIdx >= len(s.shards) {
		return
	}
	mask := uint64(1) << bitPos
	if s.shards[shardIdx]&mask == 0 {
		return
	}
	s.shards[shardIdx] &^= mask
	s.used[shardIdx]--
	s.full[shardIdx] = false
}

// UsedCount reports the number of occupied slots.
func (s *SPSC) UsedCount() int {
	total := 0
	for _, u := range s.used {
		total += int(u)
	}
	return total
}

// firstSetBit returns the index of the lowest set bit in word, the hardware
// bit-scan a producer would use to walk occupied slots. It is unexported and
// nothing in this package calls it.
func firstSetBit(word uint64) (uint, bool) {
	if word == 0 {
		return 0, false
	}
	return uint(bits.TrailingZeros64(word)), true
}
