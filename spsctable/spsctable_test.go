package spsctable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetCaseSensitive(t *testing.T) {
	tbl := NewCaseSensitive(16)
	require.True(t, tbl.Set("SET", 1))
	require.True(t, tbl.Set("set", 2))

	v, ok := tbl.Get("SET")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = tbl.Get("set")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestSetGetCaseInsensitive(t *testing.T) {
	tbl := NewCaseInsensitive(16)
	require.True(t, tbl.Set("EXPIRE", "token"))

	v, ok := tbl.Get("expire")
	require.True(t, ok)
	assert.Equal(t, "token", v)

	v, ok = tbl.Get("ExPiRe")
	require.True(t, ok)
	assert.Equal(t, "token", v)
}

func TestGetMissingReturnsFalse(t *testing.T) {
	tbl := NewCaseInsensitive(8)
	_, ok := tbl.Get("nope")
	assert.False(t, ok)
}

func TestUpdateExistingKey(t *testing.T) {
	tbl := NewCaseSensitive(8)
	tbl.Set("k", 1)
	tbl.Set("k", 2)
	assert.Equal(t, 1, tbl.Count())

	v, _ := tbl.Get("k")
	assert.Equal(t, 2, v)
}

func TestUpsizePreservesEntries(t *testing.T) {
	tbl := NewCaseSensitive(4)
	for _, k := range []string{"GET", "SET", "DEL", "TTL"} {
		require.True(t, tbl.Set(k, k))
	}

	require.NoError(t, tbl.Upsize(32))
	for _, k := range []string{"GET", "SET", "DEL", "TTL"} {
		v, ok := tbl.Get(k)
		require.True(t, ok)
		assert.Equal(t, k, v)
	}
}
