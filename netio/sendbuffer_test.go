package netio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSendBufferAcquireAndWrite(t *testing.T) {
	b := NewSendBuffer(0)
	slice := b.Acquire(5)
	copy(slice, "hello")
	assert.Equal(t, []byte("hello"), b.Pending())
}

func TestSendBufferReleaseShrinksUnusedTail(t *testing.T) {
	b := NewSendBuffer(0)
	slice := b.Acquire(10)
	copy(slice, "abc")
	b.Release(10, 3)
	assert.Equal(t, []byte("abc"), b.Pending())
}

func TestSendBufferResetClearsPending(t *testing.T) {
	b := NewSendBuffer(0)
	b.Write([]byte("data"))
	b.Reset()
	assert.Equal(t, 0, b.Len())
}

func TestSendBufferAcquireGrowsCapacityOnDemand(t *testing.T) {
	b := NewSendBuffer(1)
	slice := b.Acquire(4096)
	assert.Len(t, slice, 4096)
}
