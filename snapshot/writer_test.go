package snapshot

import (
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvstore/chunkstore"
	"kvstore/models"
	"kvstore/storagedb"
	"kvstore/txlock"
)

func newTestDB(t *testing.T) *storagedb.DB {
	t.Helper()
	cfg := storagedb.DefaultConfig()
	cfg.DatabaseCount = 2
	return storagedb.New(cfg)
}

func mustSet(t *testing.T, db *storagedb.DB, mgr *txlock.Manager, dbNumber int, key, value string) {
	t.Helper()
	tx := mgr.Acquire()
	defer tx.Release()
	st, err := db.BeginRMW(tx, dbNumber, []byte(key))
	require.NoError(t, err)
	require.NoError(t, st.CommitUpdate(models.ValueTypeString, chunkstore.FromBytes([]byte(value), 0), models.NoExpiry))
}

func mustDelete(t *testing.T, db *storagedb.DB, mgr *txlock.Manager, dbNumber int, key string) {
	t.Helper()
	tx := mgr.Acquire()
	defer tx.Release()
	st, err := db.BeginRMW(tx, dbNumber, []byte(key))
	require.NoError(t, err)
	require.NoError(t, st.CommitDelete())
}

// parsedRecord is a minimal hand-rolled decode of one entry record, used to
// assert on a dump without depending on any reader the production code
// doesn't itself have (this repo is write-only for snapshots, per spec.md
// §4.11 — replay/restore is explicitly out of scope).
type parsedRecord struct {
	key       string
	valueType models.ValueType
	expiryMs  int64
	value     string
}

func parseDump(t *testing.T, path string, wantDBs int) ([][]parsedRecord, uint32) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), 16+4+4)

	require.Equal(t, []byte("KVSNAP01"), data[:8])
	version := binary.BigEndian.Uint32(data[8:12])
	assert.Equal(t, formatVersion, version)

	crc := crc32.New(castagnoli)
	crc.Write(data[:len(data)-4])
	footerCRC := binary.BigEndian.Uint32(data[len(data)-4:])

	pos := 16
	tocCount := binary.BigEndian.Uint32(data[pos : pos+4])
	pos += 4

	type toc struct {
		dbNumber   int32
		entryCount int64
		dataSize   int64
	}
	tocs := make([]toc, tocCount)
	for i := range tocs {
		tocs[i].dbNumber = int32(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		tocs[i].entryCount = int64(binary.BigEndian.Uint64(data[pos : pos+8]))
		pos += 8
		tocs[i].dataSize = int64(binary.BigEndian.Uint64(data[pos : pos+8]))
		pos += 8
	}

	out := make([][]parsedRecord, wantDBs)
	for _, tc := range tocs {
		regionEnd := pos + int(tc.dataSize)
		var recs []parsedRecord
		for pos < regionEnd {
			keyLen := int(binary.BigEndian.Uint32(data[pos : pos+4]))
			pos += 4
			key := string(data[pos : pos+keyLen])
			pos += keyLen
			vt := models.ValueType(data[pos])
			pos++
			expiry := int64(binary.BigEndian.Uint64(data[pos : pos+8]))
			pos += 8
			valLen := int(binary.BigEndian.Uint64(data[pos : pos+8]))
			pos += 8
			val := string(data[pos : pos+valLen])
			pos += valLen
			recs = append(recs, parsedRecord{key: key, valueType: vt, expiryMs: expiry, value: val})
		}
		require.Equal(t, regionEnd, pos)
		if int(tc.dbNumber) < wantDBs {
			out[tc.dbNumber] = recs
		}
	}

	return out, footerCRC
}

func TestRunSyncWritesReadableDump(t *testing.T) {
	db := newTestDB(t)
	mgr := txlock.NewManager(0)
	mustSet(t, db, mgr, 0, "a", "1")
	mustSet(t, db, mgr, 0, "b", "2")
	mustSet(t, db, mgr, 1, "c", "3")

	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Dir = dir
	w := New(db, cfg)
	w.Attach()

	require.NoError(t, w.RunSync())

	path := filepath.Join(dir, "dump.kvsnap")
	_, err := os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")

	dbs, crcInFile := parseDump(t, path, 2)

	byKey := map[string]string{}
	for _, r := range dbs[0] {
		byKey[r.key] = r.value
	}
	assert.Equal(t, "1", byKey["a"])
	assert.Equal(t, "2", byKey["b"])
	require.Len(t, dbs[1], 1)
	assert.Equal(t, "c", dbs[1][0].key)
	assert.Equal(t, "3", dbs[1][0].value)
	assert.NotZero(t, crcInFile)

	assert.False(t, w.Running())
}

func TestRunSyncSkipsExpiredEntries(t *testing.T) {
	db := newTestDB(t)
	mgr := txlock.NewManager(0)

	tx := mgr.Acquire()
	st, err := db.BeginRMW(tx, 0, []byte("stale"))
	require.NoError(t, err)
	require.NoError(t, st.CommitUpdate(models.ValueTypeString, chunkstore.FromBytes([]byte("v"), 0), 1))
	tx.Release()

	mustSet(t, db, mgr, 0, "fresh", "v2")

	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Dir = dir
	w := New(db, cfg)
	w.Attach()

	require.NoError(t, w.RunSync())

	dbs, _ := parseDump(t, filepath.Join(dir, "dump.kvsnap"), 2)
	var keys []string
	for _, r := range dbs[0] {
		keys = append(keys, r.key)
	}
	assert.Contains(t, keys, "fresh")
	assert.NotContains(t, keys, "stale")
}

func TestEnqueueRetainedCapturesDeletedValue(t *testing.T) {
	db := newTestDB(t)
	mgr := txlock.NewManager(0)
	mustSet(t, db, mgr, 0, "doomed", "before")

	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Dir = dir
	w := New(db, cfg)
	w.Attach()

	w.mu.Lock()
	w.running = true
	w.scanStarted[0] = true
	w.mu.Unlock()

	require.True(t, w.PreCursor(0, []byte("doomed")))
	mustDelete(t, db, mgr, 0, "doomed")

	w.mu.Lock()
	w.scanDone[0] = true
	w.running = false
	w.mu.Unlock()

	w.retainedMu.Lock()
	recs := w.retained[0]
	w.retainedMu.Unlock()
	require.Len(t, recs, 1)
	assert.Equal(t, "doomed", string(recs[0].key))
	assert.Equal(t, "before", string(recs[0].value))
}

func TestPreCursorFalseWhenNotRunning(t *testing.T) {
	db := newTestDB(t)
	w := New(db, DefaultConfig())
	assert.False(t, w.PreCursor(0, []byte("k")))
}

func TestShouldRunRespectsChangeThreshold(t *testing.T) {
	db := newTestDB(t)
	cfg := DefaultConfig()
	cfg.ChangeThreshold = 10
	w := New(db, cfg)

	assert.False(t, w.ShouldRun(nowMs()))
	w.NotifyChanged(10)
	assert.True(t, w.ShouldRun(nowMs()))
}

func TestTriggerAsyncCoalesces(t *testing.T) {
	db := newTestDB(t)
	w := New(db, DefaultConfig())
	w.TriggerAsync()
	w.TriggerAsync()
	select {
	case <-w.triggerCh:
	default:
		t.Fatal("expected a pending trigger")
	}
	select {
	case <-w.triggerCh:
		t.Fatal("trigger should have coalesced to one pending signal")
	default:
	}
}
