package storagedb

import "kvstore/hashtable"

// Keys returns every live key in the given logical database, backing the
// KEYS command (spec.md §6); callers apply their own pattern match.
func (db *DB) Keys(dbNumber int) ([][]byte, error) {
	t, err := db.table(dbNumber)
	if err != nil {
		return nil, err
	}
	return t.Keys(), nil
}

// Scan walks the given logical database from cursor, returning up to count
// live (key, value) pairs and the cursor to resume from — backing the SCAN
// command's cursor-based iteration (spec.md §6).
func (db *DB) Scan(dbNumber int, cursor uint64, count int) ([]hashtable.ScanResult[*Entry], uint64, error) {
	t, err := db.table(dbNumber)
	if err != nil {
		return nil, 0, err
	}
	results, next := t.Scan(cursor, count)
	return results, next, nil
}

// HomeChunkOf returns the chunk index key hashes into within dbNumber's
// table, used by the snapshot writer (spec.md §4.11 step 4) to decide
// whether a key about to be deleted lies ahead of or behind its scan
// cursor.
func (db *DB) HomeChunkOf(dbNumber int, key []byte) (uint64, error) {
	t, err := db.table(dbNumber)
	if err != nil {
		return 0, err
	}
	return t.HomeChunk(key), nil
}
