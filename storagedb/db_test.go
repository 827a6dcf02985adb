package storagedb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvstore/chunkstore"
	"kvstore/models"
	"kvstore/txlock"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DatabaseCount = 4
	return New(cfg)
}

func mustSet(t *testing.T, db *DB, mgr *txlock.Manager, dbNumber int, key string, value string) {
	t.Helper()
	tx := mgr.Acquire()
	defer tx.Release()
	st, err := db.BeginRMW(tx, dbNumber, []byte(key))
	require.NoError(t, err)
	err = st.CommitUpdate(models.ValueTypeString, chunkstore.FromBytes([]byte(value), 0), models.NoExpiry)
	require.NoError(t, err)
}

func TestSetThenLookupRoundTrip(t *testing.T) {
	db := newTestDB(t)
	mgr := txlock.NewManager(0)

	mustSet(t, db, mgr, 0, "greeting", "hello")

	entry, err := db.Lookup(0, []byte("greeting"))
	require.NoError(t, err)
	require.NotNil(t, entry)
	defer db.Release(entry)

	assert.Equal(t, models.ValueTypeString, entry.ValueType)
	assert.Equal(t, []byte("hello"), entry.Value.Bytes())
}

func TestLookupMissingKeyReturnsNil(t *testing.T) {
	db := newTestDB(t)
	entry, err := db.Lookup(0, []byte("absent"))
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCommitUpdateReplacesExistingValue(t *testing.T) {
	db := newTestDB(t)
	mgr := txlock.NewManager(0)

	mustSet(t, db, mgr, 0, "k", "v1")
	mustSet(t, db, mgr, 0, "k", "v2")

	entry, err := db.Lookup(0, []byte("k"))
	require.NoError(t, err)
	require.NotNil(t, entry)
	defer db.Release(entry)
	assert.Equal(t, []byte("v2"), entry.Value.Bytes())
}

func TestCommitDeleteRemovesKey(t *testing.T) {
	db := newTestDB(t)
	mgr := txlock.NewManager(0)
	mustSet(t, db, mgr, 0, "k", "v")

	tx := mgr.Acquire()
	st, err := db.BeginRMW(tx, 0, []byte("k"))
	require.NoError(t, err)
	require.NotNil(t, st.Existing())
	require.NoError(t, st.CommitDelete())
	tx.Release()

	entry, err := db.Lookup(0, []byte("k"))
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCommitDeleteMissingKeyReturnsNotFound(t *testing.T) {
	db := newTestDB(t)
	mgr := txlock.NewManager(0)

	tx := mgr.Acquire()
	defer tx.Release()
	st, err := db.BeginRMW(tx, 0, []byte("nope"))
	require.NoError(t, err)
	assert.ErrorIs(t, st.CommitDelete(), models.ErrNotFound)
}

func TestCommitMetadataUpdatesExpiryOnly(t *testing.T) {
	db := newTestDB(t)
	mgr := txlock.NewManager(0)
	mustSet(t, db, mgr, 0, "k", "v")

	tx := mgr.Acquire()
	st, err := db.BeginRMW(tx, 0, []byte("k"))
	require.NoError(t, err)
	expiry := time.Now().Add(time.Hour).UnixMilli()
	require.NoError(t, st.CommitMetadata(expiry))
	tx.Release()

	entry, err := db.Lookup(0, []byte("k"))
	require.NoError(t, err)
	require.NotNil(t, entry)
	defer db.Release(entry)
	assert.Equal(t, expiry, entry.ExpiryMs)
	assert.Equal(t, []byte("v"), entry.Value.Bytes())
}

func TestLazyExpiryReapsOnLookup(t *testing.T) {
	db := newTestDB(t)
	mgr := txlock.NewManager(0)

	tx := mgr.Acquire()
	st, err := db.BeginRMW(tx, 0, []byte("k"))
	require.NoError(t, err)
	past := time.Now().Add(-time.Minute).UnixMilli()
	require.NoError(t, st.CommitUpdate(models.ValueTypeString, chunkstore.FromBytes([]byte("v"), 0), past))
	tx.Release()

	entry, err := db.Lookup(0, []byte("k"))
	require.NoError(t, err)
	assert.Nil(t, entry)

	size, err := db.DBSize(0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, size)
}

func TestCommitRenameMovesKeyAcrossDatabases(t *testing.T) {
	db := newTestDB(t)
	mgr := txlock.NewManager(0)
	mustSet(t, db, mgr, 0, "src", "payload")

	tx := mgr.Acquire()
	defer tx.Release()

	srcStatus, err := db.BeginRMW(tx, 0, []byte("src"))
	require.NoError(t, err)
	dstStatus, err := db.BeginRMW(tx, 1, []byte("dst"))
	require.NoError(t, err)

	require.NoError(t, CommitRename(srcStatus, dstStatus, false))

	gone, err := db.Lookup(0, []byte("src"))
	require.NoError(t, err)
	assert.Nil(t, gone)

	moved, err := db.Lookup(1, []byte("dst"))
	require.NoError(t, err)
	require.NotNil(t, moved)
	defer db.Release(moved)
	assert.Equal(t, []byte("payload"), moved.Value.Bytes())
}

func TestCommitRenameWithoutReplaceFailsWhenDestinationExists(t *testing.T) {
	db := newTestDB(t)
	mgr := txlock.NewManager(0)
	mustSet(t, db, mgr, 0, "src", "a")
	mustSet(t, db, mgr, 0, "dst", "b")

	tx := mgr.Acquire()
	defer tx.Release()
	srcStatus, err := db.BeginRMW(tx, 0, []byte("src"))
	require.NoError(t, err)
	dstStatus, err := db.BeginRMW(tx, 0, []byte("dst"))
	require.NoError(t, err)

	assert.ErrorIs(t, CommitRename(srcStatus, dstStatus, false), models.ErrKeyExists)
}

func TestFlushDBEmptiesDatabase(t *testing.T) {
	db := newTestDB(t)
	mgr := txlock.NewManager(0)
	mustSet(t, db, mgr, 0, "a", "1")
	mustSet(t, db, mgr, 0, "b", "2")

	require.NoError(t, db.FlushDB(0))

	size, err := db.DBSize(0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, size)
}

func TestDBSizeIsIsolatedPerDatabase(t *testing.T) {
	db := newTestDB(t)
	mgr := txlock.NewManager(0)
	mustSet(t, db, mgr, 0, "a", "1")
	mustSet(t, db, mgr, 1, "b", "2")

	n0, err := db.DBSize(0)
	require.NoError(t, err)
	n1, err := db.DBSize(1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n0)
	assert.EqualValues(t, 1, n1)
}

func TestOutOfRangeDatabaseNumberIsRejected(t *testing.T) {
	db := newTestDB(t)
	_, err := db.DBSize(db.DatabaseCount())
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestEvictOneRemovesLeastRecentlyUsedUnderAllKeysLRU(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DatabaseCount = 1
	cfg.EvictionPolicy = EvictionAllKeysLRU
	cfg.SampleSize = 64
	db := New(cfg)
	mgr := txlock.NewManager(0)

	for _, k := range []string{"old", "mid", "new"} {
		mustSet(t, db, mgr, 0, k, k)
		time.Sleep(time.Millisecond)
	}

	key, ok := db.EvictOne(0)
	require.True(t, ok)
	assert.Equal(t, "old", string(key))
}

func TestEvictOneDisabledUnderNoEviction(t *testing.T) {
	db := newTestDB(t)
	mgr := txlock.NewManager(0)
	mustSet(t, db, mgr, 0, "k", "v")

	_, ok := db.EvictOne(0)
	assert.False(t, ok)
}

func TestEvictOneSkipsKeysWithoutTTLUnderVolatilePolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DatabaseCount = 1
	cfg.EvictionPolicy = EvictionVolatileTTL
	cfg.SampleSize = 64
	db := New(cfg)
	mgr := txlock.NewManager(0)
	mustSet(t, db, mgr, 0, "no-ttl", "v")

	_, ok := db.EvictOne(0)
	assert.False(t, ok)
}

func TestUsedBytesTracksCommitsAndDeletes(t *testing.T) {
	db := newTestDB(t)
	mgr := txlock.NewManager(0)

	mustSet(t, db, mgr, 0, "k", "hello")
	afterSet := db.UsedBytes()
	assert.Greater(t, afterSet, int64(0))

	tx := mgr.Acquire()
	st, err := db.BeginRMW(tx, 0, []byte("k"))
	require.NoError(t, err)
	require.NoError(t, st.CommitDelete())
	tx.Release()

	assert.EqualValues(t, 0, db.UsedBytes())
}
