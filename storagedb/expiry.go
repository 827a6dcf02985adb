package storagedb

// Lookup is the non-mutating read path used by commands that only need a
// key's current entry (GET, STRLEN, TYPE, TTL, ...): spec.md §4.6's
// "get_entry_index_for_read" — no transaction, no chunk write-lock, just a
// pin so the entry cannot be freed out from under the caller, with lazy
// expiry applied before the pin is handed back.
//
// Callers must call Release(entry) once done reading, which unpins the
// entry; Release(nil) is a no-op, so the nil returned for a missing or
// expired key can be passed to it as well.
func (db *DB) Lookup(dbNumber int, key []byte) (*Entry, error) {
	t, err := db.table(dbNumber)
	if err != nil {
		return nil, err
	}

	entry, found := t.Get(key)
	if !found {
		return nil, nil
	}
	if entry.IsExpired(nowMs()) {
		db.lazyExpire(t, dbNumber, key, entry)
		return nil, nil
	}

	entry.Pin()
	entry.touch(nowMs())
	return entry, nil
}

// Release unpins an entry obtained from Lookup.
func (db *DB) Release(entry *Entry) {
	if entry != nil {
		entry.Unpin()
	}
}

// lazyExpire deletes an observed-expired entry the first time any reader or
// writer notices it, matching spec.md §4.6's "Expiry" note that expired
// keys are reaped lazily on next access. No background sweep runs: an
// expired key nobody touches again stays in the table until it is
// overwritten or its database is flushed.
func (db *DB) lazyExpire(t interface {
	Delete(key []byte) (*Entry, bool)
}, dbNumber int, key []byte, entry *Entry) {
	if _, found := t.Delete(key); found {
		entry.deleted.Store(true)
		db.usedBytes.add(-(int64(len(key)) + sizeOf(entry.Value)))
		db.Epoch.Retire(func() {})
	}
}
