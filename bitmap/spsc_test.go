package bitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSPSC_GetReleaseRoundTrip(t *testing.T) {
	s := NewSPSC(128)

	var allocated []int
	for i := 0; i < 100; i++ {
		idx, ok := s.GetNextAvailable()
		require.True(t, ok)
		allocated = append(allocated, idx)
	}
	assert.Equal(t, 100, s.UsedCount())

	for _, idx := range allocated {
		s.Release(idx)
	}
	assert.Equal(t, 0, s.UsedCount())
}

func TestSPSC_FullShardSkipped(t *testing.T) {
	s := NewSPSC(ShardWidth * 2)

	for i := 0; i < ShardWidth; i++ {
		_, ok := s.GetNextAvailable()
		require.True(t, ok)
	}

	idx, ok := s.GetNextAvailable()
	require.True(t, ok)
	assert.GreaterOrEqual(t, idx, ShardWidth, "allocator should skip the full first shard")
}
