package netio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecvBufferAppendAndAdvance(t *testing.T) {
	b := NewRecvBuffer(0)
	b.Append([]byte("hello"))
	assert.Equal(t, []byte("hello"), b.Unread())

	b.Advance(3)
	assert.Equal(t, []byte("lo"), b.Unread())
}

func TestRecvBufferRewindRestoresUncommittedBytes(t *testing.T) {
	b := NewRecvBuffer(0)
	b.Append([]byte("PING\r\n"))
	b.Advance(4)
	b.Rewind()
	assert.Equal(t, []byte("PING\r\n"), b.Unread())
}

func TestRecvBufferCommitMovesRewindMark(t *testing.T) {
	b := NewRecvBuffer(0)
	b.Append([]byte("PING\r\nPONG\r\n"))
	b.Advance(6)
	b.Commit()
	b.Advance(4)
	b.Rewind()
	assert.Equal(t, []byte("PONG\r\n"), b.Unread())
}

func TestRecvBufferAppendCompactsPastCommittedBytes(t *testing.T) {
	b := NewRecvBuffer(0)
	b.Append([]byte("AAAA"))
	b.Advance(4)
	b.Commit()
	b.Append([]byte("BBBB"))
	assert.Equal(t, []byte("BBBB"), b.Unread())
}
