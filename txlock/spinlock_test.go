package txlock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvstore/models"
)

func TestWriteLockExclusive(t *testing.T) {
	mgr := NewManager(0)
	lock := &Spinlock{}

	tx1 := mgr.Acquire()
	require.NoError(t, lock.WriteLock(tx1))

	tx2 := mgr.Acquire().WithStuckThreshold(10)
	assert.False(t, lock.TryWriteLock(tx2))

	tx1.Release()
	assert.True(t, lock.TryWriteLock(tx2))
	tx2.Release()
}

func TestWriteLockReentrant(t *testing.T) {
	mgr := NewManager(0)
	lock := &Spinlock{}
	tx := mgr.Acquire()

	require.NoError(t, lock.WriteLock(tx))
	require.NoError(t, lock.WriteLock(tx)) // re-entrant, same tx
	assert.Equal(t, 1, tx.LockCount(), "re-entrant acquisition must not duplicate tracking")

	tx.Release()
}

func TestReadLockSharedAcrossReaders(t *testing.T) {
	mgr := NewManager(0)
	lock := &Spinlock{}

	tx1 := mgr.Acquire()
	tx2 := mgr.Acquire()

	require.NoError(t, lock.ReadLock(tx1))
	require.NoError(t, lock.ReadLock(tx2))

	holder, readers := unpack(lock.word.Load())
	assert.Zero(t, holder)
	assert.EqualValues(t, 2, readers)

	tx1.Release()
	tx2.Release()
	_, readers = unpack(lock.word.Load())
	assert.Zero(t, readers)
}

func TestReadLockReentrant(t *testing.T) {
	mgr := NewManager(0)
	lock := &Spinlock{}
	tx := mgr.Acquire()

	require.NoError(t, lock.ReadLock(tx))
	require.NoError(t, lock.ReadLock(tx)) // re-entrant, same tx
	assert.Equal(t, 1, tx.LockCount(), "re-entrant read acquisition must not duplicate tracking")

	_, readers := unpack(lock.word.Load())
	assert.EqualValues(t, 1, readers, "re-entrant read must not inflate readers_count")

	tx.Release()
	_, readers = unpack(lock.word.Load())
	assert.Zero(t, readers)
}

func TestReadLockBlockedByWriter(t *testing.T) {
	mgr := NewManager(0)
	lock := &Spinlock{}

	writer := mgr.Acquire()
	require.NoError(t, lock.WriteLock(writer))

	reader := mgr.Acquire()
	assert.False(t, lock.TryReadLock(reader))

	writer.Release()
	assert.True(t, lock.TryReadLock(reader))
	reader.Release()
}

func TestReleaseUnlocksAllLocksAndResetsID(t *testing.T) {
	mgr := NewManager(3)
	tx := mgr.Acquire()
	assert.NotZero(t, tx.ID())

	a, b, c := &Spinlock{}, &Spinlock{}, &Spinlock{}
	require.NoError(t, a.WriteLock(tx))
	require.NoError(t, b.WriteLock(tx))
	require.NoError(t, c.WriteLock(tx))
	assert.Equal(t, 3, tx.LockCount())

	tx.Release()

	assert.Zero(t, tx.ID())
	assert.Zero(t, tx.LockCount())
	for _, l := range []*Spinlock{a, b, c} {
		holder, readers := unpack(l.word.Load())
		assert.Zero(t, holder)
		assert.Zero(t, readers)
	}
}

func TestWriteLockStuckReportsError(t *testing.T) {
	mgr := NewManager(0)
	lock := &Spinlock{}

	holder := mgr.Acquire()
	require.NoError(t, lock.WriteLock(holder))

	blocked := mgr.Acquire().WithStuckThreshold(5)
	err := lock.WriteLock(blocked)
	assert.ErrorIs(t, err, models.ErrLockStuck)
	holder.Release()
}

func TestTransactionIDsNeverReuseZero(t *testing.T) {
	mgr := NewManager(1)
	seen := make(map[uint32]bool)
	for i := 0; i < 1000; i++ {
		tx := mgr.Acquire()
		require.NotZero(t, tx.ID())
		assert.False(t, seen[tx.ID()])
		seen[tx.ID()] = true
	}
}

func TestConcurrentTransactionsSerializeOnSameKey(t *testing.T) {
	mgr := NewManager(0)
	lock := &Spinlock{}
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx := mgr.Acquire()
			require.NoError(t, lock.WriteLock(tx))
			counter++
			tx.Release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}
