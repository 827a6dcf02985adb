package storagedb

import (
	"time"

	"kvstore/chunkstore"
	"kvstore/models"
	"kvstore/txlock"
)

// RMWStatus carries the state of one read-modify-write operation between
// op_rmw_begin and its terminal commit_*/abort call (spec.md §4.6). It does
// not unlock on its own: the owning Transaction's Release (called once the
// whole command — possibly touching several keys — has finished) unlocks
// every lock acquired under it, in reverse order.
type RMWStatus struct {
	db       *DB
	dbNumber int
	key      []byte
	tx       *txlock.Transaction
	lock     *txlock.Spinlock
	existing *Entry
	done     bool
}

// Existing returns the entry currently stored for the key, or nil if absent
// (or present but expired, which op_rmw_begin treats as absent after
// issuing a lazy delete under the same transaction).
func (s *RMWStatus) Existing() *Entry { return s.existing }

// BeginRMW write-locks the chunk owning key (via the sharded txlock array)
// under tx, looks the key up, and returns a status carrying the existing
// entry if any. If the stored entry has expired, it is lazily deleted under
// the same transaction and Existing() reports nil (spec.md §4.6 "Expiry").
func (db *DB) BeginRMW(tx *txlock.Transaction, dbNumber int, key []byte) (*RMWStatus, error) {
	t, err := db.table(dbNumber)
	if err != nil {
		return nil, err
	}

	lock := db.keyLock(key)
	if err := lock.WriteLock(tx); err != nil {
		return nil, err
	}

	status := &RMWStatus{db: db, dbNumber: dbNumber, key: key, tx: tx, lock: lock}

	entry, found := t.Get(key)
	if !found {
		return status, nil
	}
	if entry.IsExpired(nowMs()) {
		db.deleteExpired(t, dbNumber, key, entry)
		return status, nil
	}
	status.existing = entry
	return status, nil
}

// Abort ends the RMW without mutating anything (spec.md §4.6 step 4). It
// does not release the chunk lock: locks are released at
// Transaction.Release; Abort just marks the status terminal so a caller
// cannot accidentally commit after aborting.
func (s *RMWStatus) Abort() {
	s.done = true
}

// CommitUpdate publishes a new Entry Index for the key, retiring the old
// entry and its value sequence to the epoch GC — unless a snapshot run is
// in progress and this key has not yet been captured by it, in which case
// the old entry is handed to the snapshot's retained-entry queue instead of
// being freed (spec.md §4.11 step 4).
func (s *RMWStatus) CommitUpdate(valueType models.ValueType, value *chunkstore.Sequence, expiryMs int64) error {
	if s.done {
		return models.ErrTransactionClosed
	}
	t, err := s.db.table(s.dbNumber)
	if err != nil {
		return err
	}

	entry := newEntry(valueType, value, expiryMs, s.dbNumber, nowMs())
	if err := t.Set(s.key, entry); err != nil {
		return err
	}

	s.db.usedBytes.add(int64(len(s.key)) + sizeOf(value))
	if s.existing != nil {
		s.db.usedBytes.add(-(int64(len(s.key)) + sizeOf(s.existing.Value)))
		s.retireOrSnapshot(s.existing)
	}
	s.done = true
	return nil
}

func sizeOf(v *chunkstore.Sequence) int64 {
	if v == nil {
		return 0
	}
	return v.Size()
}

// CommitMetadata updates expiry in place, keeping the existing value
// sequence untouched (spec.md §4.6 step 3, commit_metadata — used by
// EXPIRE/PERSIST/TOUCH-style commands).
func (s *RMWStatus) CommitMetadata(expiryMs int64) error {
	if s.done {
		return models.ErrTransactionClosed
	}
	if s.existing == nil {
		return models.ErrNotFound
	}
	s.existing.ExpiryMs = expiryMs
	s.done = true
	return nil
}

// CommitDelete clears the key's slot and retires the entry (spec.md §4.6
// step 3, commit_delete).
func (s *RMWStatus) CommitDelete() error {
	if s.done {
		return models.ErrTransactionClosed
	}
	t, err := s.db.table(s.dbNumber)
	if err != nil {
		return err
	}
	entry, found := t.Delete(s.key)
	if !found {
		s.done = true
		return models.ErrNotFound
	}
	entry.deleted.Store(true)
	s.db.usedBytes.add(-(int64(len(s.key)) + sizeOf(entry.Value)))
	s.retireOrSnapshot(entry)
	s.done = true
	return nil
}

// CommitRename atomically moves src's entry to dst's key under the two
// locks both statuses already hold, failing if dst exists and replace is
// false (spec.md §4.6 step 3, commit_rename).
func CommitRename(src, dst *RMWStatus, replace bool) error {
	if src.done || dst.done {
		return models.ErrTransactionClosed
	}
	if src.existing == nil {
		return models.ErrNotFound
	}
	if dst.existing != nil && !replace {
		return models.ErrKeyExists
	}

	srcTable, err := src.db.table(src.dbNumber)
	if err != nil {
		return err
	}
	dstTable, err := dst.db.table(dst.dbNumber)
	if err != nil {
		return err
	}

	moved := src.existing
	if _, found := srcTable.Delete(src.key); !found {
		return models.ErrNotFound
	}
	if err := dstTable.Set(dst.key, moved); err != nil {
		return err
	}
	if dst.existing != nil {
		dst.retireOrSnapshot(dst.existing)
	}
	src.done = true
	dst.done = true
	return nil
}

func (s *RMWStatus) retireOrSnapshot(entry *Entry) {
	if s.db.snapshot != nil && s.db.snapshot.Running() && s.db.snapshot.PreCursor(s.dbNumber, s.key) {
		s.db.snapshot.EnqueueRetained(s.dbNumber, s.key, entry)
		return
	}
	s.db.Epoch.Retire(func() {
		entry.deleted.Store(true)
	})
}

func (db *DB) deleteExpired(t interface {
	Delete(key []byte) (*Entry, bool)
}, dbNumber int, key []byte, entry *Entry) {
	if _, found := t.Delete(key); found {
		entry.deleted.Store(true)
		db.usedBytes.add(-(int64(len(key)) + sizeOf(entry.Value)))
		db.Epoch.Retire(func() {})
	}
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
