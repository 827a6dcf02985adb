package storagedb

import (
	"math/rand"

	"kvstore/hashtable"
	"kvstore/models"
)

// EvictionPolicy selects how DB picks a victim once HardLimitBytes is
// breached (spec.md §4.6: "rank by policy (LRU/LFU/TTL/random, keys-with-ttl
// variants)").
type EvictionPolicy int

const (
	EvictionNoEviction EvictionPolicy = iota
	EvictionAllKeysLRU
	EvictionAllKeysLFU
	EvictionAllKeysRandom
	EvictionVolatileLRU
	EvictionVolatileLFU
	EvictionVolatileRandom
	EvictionVolatileTTL
)

func (p EvictionPolicy) String() string {
	switch p {
	case EvictionNoEviction:
		return "noeviction"
	case EvictionAllKeysLRU:
		return "allkeys-lru"
	case EvictionAllKeysLFU:
		return "allkeys-lfu"
	case EvictionAllKeysRandom:
		return "allkeys-random"
	case EvictionVolatileLRU:
		return "volatile-lru"
	case EvictionVolatileLFU:
		return "volatile-lfu"
	case EvictionVolatileRandom:
		return "volatile-random"
	case EvictionVolatileTTL:
		return "volatile-ttl"
	default:
		return "unknown"
	}
}

func (p EvictionPolicy) volatileOnly() bool {
	switch p {
	case EvictionVolatileLRU, EvictionVolatileLFU, EvictionVolatileRandom, EvictionVolatileTTL:
		return true
	default:
		return false
	}
}

// UsedBytes returns the approximate byte footprint tracked for eviction
// triggering (spec.md §4.6: "triggered when configured hard_limit is
// breached").
func (db *DB) UsedBytes() int64 {
	return db.usedBytes.load()
}

// OverLimit reports whether the configured HardLimitBytes has been
// breached. A zero limit means unlimited.
func (db *DB) OverLimit() bool {
	return db.cfg.HardLimitBytes > 0 && db.usedBytes.load() >= db.cfg.HardLimitBytes
}

// EvictOne samples db.cfg.SampleSize candidate keys from dbNumber's table,
// ranks them by the configured policy, and deletes the single best victim.
// Returns the evicted key, or ok == false if eviction is disabled, the
// table is empty, or (for volatile-* policies) no sampled candidate carries
// a TTL. Mirrors spec.md §4.6's "sample N candidates (typical 16), rank by
// policy, delete the chosen victim."
func (db *DB) EvictOne(dbNumber int) (key []byte, ok bool) {
	if db.cfg.EvictionPolicy == EvictionNoEviction {
		return nil, false
	}
	t, err := db.table(dbNumber)
	if err != nil {
		return nil, false
	}

	candidates := sampleLive(t, db.cfg.SampleSize)
	volatileOnly := db.cfg.EvictionPolicy.volatileOnly()

	var best hashtable.ScanResult[*Entry]
	haveBest := false
	bestScore := int64(0)

	for _, c := range candidates {
		if volatileOnly && c.Value.ExpiryMs == models.NoExpiry {
			continue
		}
		score := scoreFor(db.cfg.EvictionPolicy, c.Value)
		if !haveBest || score < bestScore {
			best, bestScore, haveBest = c, score, true
		}
	}
	if !haveBest {
		return nil, false
	}

	if _, found := t.Delete(best.Key); !found {
		return nil, false
	}
	best.Value.deleted.Store(true)
	db.usedBytes.add(-(int64(len(best.Key)) + sizeOf(best.Value.Value)))
	db.Epoch.Retire(func() {})
	return best.Key, true
}

// scoreFor ranks lower == more evictable.
func scoreFor(policy EvictionPolicy, e *Entry) int64 {
	switch policy {
	case EvictionAllKeysLRU, EvictionVolatileLRU:
		return e.lastAccessMs.Load()
	case EvictionAllKeysLFU, EvictionVolatileLFU:
		return int64(e.frequency.Load())
	case EvictionVolatileTTL:
		return e.ExpiryMs
	default: // *-random
		return rand.Int63()
	}
}

// sampleLive draws about n live entries with a single Scan call, standing
// in for the original's direct random-slot sampling: a hashtable doesn't
// expose raw slot indices outside its own package, so a capped cursor walk
// from a randomized start is the closest equivalent. Scan returns whole
// chunks, so the sample can hold up to ChunkWidth-1 entries more than n.
func sampleLive(t *hashtable.Table[*Entry], n int) []hashtable.ScanResult[*Entry] {
	if n <= 0 {
		n = 16
	}
	capacity := t.Capacity()
	if capacity == 0 {
		return nil
	}
	start := uint64(rand.Intn(capacity))
	results, _ := t.Scan(start, n)
	return results
}
