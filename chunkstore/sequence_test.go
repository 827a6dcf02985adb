package chunkstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateChunkCountAndSize(t *testing.T) {
	seq := Allocate(150, 64)
	assert.EqualValues(t, 150, seq.Size())
	assert.Equal(t, 3, seq.Count()) // 64+64+22
}

func TestWriteReadRoundTripSingleChunk(t *testing.T) {
	seq := Allocate(10, 64)
	require.NoError(t, seq.WriteAt(0, []byte("helloworld")))

	got, err := seq.ReadAt(0, 10)
	require.NoError(t, err)
	assert.Equal(t, "helloworld", string(got))
}

func TestWriteReadRoundTripAcrossChunks(t *testing.T) {
	seq := Allocate(20, 8) // 3 chunks: 8,8,4
	payload := []byte("abcdefghijklmnopqrst")
	require.NoError(t, seq.WriteAt(0, payload))

	got, err := seq.ReadAt(0, 20)
	require.NoError(t, err)
	assert.Equal(t, string(payload), string(got))

	mid, err := seq.ReadAt(6, 8)
	require.NoError(t, err)
	assert.Equal(t, string(payload[6:14]), string(mid))
}

func TestWriteAtOutOfBoundsRejected(t *testing.T) {
	seq := Allocate(8, 8)
	err := seq.WriteAt(4, []byte("toolong12"))
	assert.Error(t, err)
}

func TestFromBytesMatchesInput(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog")
	seq := FromBytes(payload, 16)
	assert.Equal(t, payload, seq.Bytes())
}

func TestChannelBackedChunkStagesAndReleases(t *testing.T) {
	backing := []byte("channel-backed-chunk-data")
	ch := &memChannel{data: backing}
	c := NewChannelChunk(ch, 0, len(backing))

	data, allocated, err := c.Read(0, len(backing))
	require.NoError(t, err)
	require.True(t, allocated)
	assert.Equal(t, backing, data)
	ReleaseStaged(data)
}

type memChannel struct{ data []byte }

func (m *memChannel) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, m.data[off:])
	return n, nil
}
