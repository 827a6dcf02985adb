package resp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvstore/models"
	"kvstore/netio"
)

func collectCommand(t *testing.T, r *Reader, buf *netio.RecvBuffer) [][]byte {
	t.Helper()
	var args [][]byte
	var cur []byte

	for {
		events := make([]Event, 0, 8)
		events, needMore, err := r.Feed(buf, events)
		require.NoError(t, err)
		for _, ev := range events {
			switch ev.Kind {
			case EventArgumentBegin:
				cur = nil
			case EventArgumentData:
				cur = append(cur, ev.Data...)
			case EventArgumentEnd:
				args = append(args, cur)
			case EventCommandEnd:
				return args
			}
		}
		if needMore {
			t.Fatal("ran out of buffered bytes before a full command arrived")
		}
	}
}

func TestReaderParsesCompleteArrayCommand(t *testing.T) {
	r := NewReader(1024, 1<<20, 4096)
	buf := netio.NewRecvBuffer(0)
	buf.Append([]byte("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"))

	args := collectCommand(t, r, buf)
	require.Len(t, args, 2)
	assert.Equal(t, "GET", string(args[0]))
	assert.Equal(t, "foo", string(args[1]))
}

func TestReaderSignalsNeedMoreOnPartialCommand(t *testing.T) {
	r := NewReader(1024, 1<<20, 4096)
	buf := netio.NewRecvBuffer(0)
	buf.Append([]byte("*2\r\n$3\r\nGET\r\n$3\r\nfo"))

	events := make([]Event, 0, 8)
	events, needMore, err := r.Feed(buf, events)
	require.NoError(t, err)
	assert.True(t, needMore)

	// The reader does not replay: the first argument and the "fo" fragment
	// of the second were already emitted above, so the command is rebuilt
	// from the events of both Feed calls.
	var args [][]byte
	var cur []byte
	var sawEnd bool
	fold := func(evs []Event) {
		for _, ev := range evs {
			switch ev.Kind {
			case EventArgumentBegin:
				cur = nil
			case EventArgumentData:
				cur = append(cur, ev.Data...)
			case EventArgumentEnd:
				args = append(args, cur)
			case EventCommandEnd:
				sawEnd = true
			}
		}
	}
	fold(events)
	assert.False(t, sawEnd)

	buf.Append([]byte("o\r\n"))
	rest := make([]Event, 0, 8)
	rest, _, err = r.Feed(buf, rest)
	require.NoError(t, err)
	fold(rest)
	assert.True(t, sawEnd)
	require.Len(t, args, 2)
	assert.Equal(t, "foo", string(args[1]))
}

func TestReaderStreamsLargeArgumentAcrossMultipleFeeds(t *testing.T) {
	r := NewReader(1024, 1<<20, 4096)
	buf := netio.NewRecvBuffer(0)
	buf.Append([]byte("*2\r\n$3\r\nSET\r\n$10\r\n"))

	events := make([]Event, 0, 8)
	events, _, err := r.Feed(buf, events)
	require.NoError(t, err)
	_ = events

	buf.Append([]byte("abcde"))
	events = make([]Event, 0, 8)
	events, needMore, err := r.Feed(buf, events)
	require.NoError(t, err)
	assert.True(t, needMore)

	var partial []byte
	for _, ev := range events {
		if ev.Kind == EventArgumentData {
			partial = append(partial, ev.Data...)
		}
	}
	assert.Equal(t, "abcde", string(partial))

	buf.Append([]byte("fghij\r\n"))
	events = make([]Event, 0, 8)
	events, _, err = r.Feed(buf, events)
	require.NoError(t, err)

	var rest []byte
	var sawEnd bool
	for _, ev := range events {
		if ev.Kind == EventArgumentData {
			rest = append(rest, ev.Data...)
		}
		if ev.Kind == EventCommandEnd {
			sawEnd = true
		}
	}
	assert.Equal(t, "fghij", string(rest))
	assert.True(t, sawEnd)
}

func TestReaderParsesInlineCommand(t *testing.T) {
	r := NewReader(1024, 1<<20, 4096)
	buf := netio.NewRecvBuffer(0)
	buf.Append([]byte("PING foo\r\n"))

	args := collectCommand(t, r, buf)
	require.Len(t, args, 2)
	assert.Equal(t, "PING", string(args[0]))
	assert.Equal(t, "foo", string(args[1]))
}

func TestReaderRejectsArgumentCountAboveLimit(t *testing.T) {
	r := NewReader(2, 1<<20, 4096)
	buf := netio.NewRecvBuffer(0)
	buf.Append([]byte("*5\r\n"))

	events := make([]Event, 0, 8)
	_, _, err := r.Feed(buf, events)
	assert.ErrorIs(t, err, models.ErrProtocolError)
}

func TestReaderRejectsArgumentLengthAboveLimit(t *testing.T) {
	r := NewReader(1024, 16, 4096)
	buf := netio.NewRecvBuffer(0)
	buf.Append([]byte("*1\r\n$1000\r\n"))

	events := make([]Event, 0, 8)
	_, _, err := r.Feed(buf, events)
	assert.ErrorIs(t, err, models.ErrProtocolError)
}

func TestReaderHandlesBackToBackCommandsInOneBuffer(t *testing.T) {
	r := NewReader(1024, 1<<20, 4096)
	buf := netio.NewRecvBuffer(0)
	buf.Append([]byte("*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPING\r\n"))

	first := collectCommand(t, r, buf)
	require.Len(t, first, 1)
	second := collectCommand(t, r, buf)
	require.Len(t, second, 1)
}
