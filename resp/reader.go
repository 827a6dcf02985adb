// Package resp implements the RESP2/RESP3 wire format: an incremental
// reader that turns raw bytes from a netio.RecvBuffer into a bounded
// stream of typed events (spec.md §4.9), and a writer that encodes reply
// values.
//
// Grounded on netio.RecvBuffer's Advance/Commit/Rewind contract: the
// reader calls Commit after each structurally complete header or
// terminator (an array header, a bulk-string header, a bulk string's
// trailing CRLF, an inline command's newline) and after each bulk-body
// fragment it emits as an EventArgumentData. It never advances past an
// incomplete header or terminator, and it records how much of a bulk body
// it has already emitted, so on a short read the buffer is already
// positioned exactly where a later Rewind would leave it and the next Feed
// continues from there without re-emitting earlier events — satisfying spec.md §4.9 property (b)
// without every caller having to reason about when to call Rewind.
package resp

import (
	"bytes"

	"kvstore/models"
	"kvstore/netio"
)

// EventKind enumerates the reader's event grammar (spec.md §4.9).
type EventKind int

const (
	EventCommandBegin EventKind = iota
	EventArgumentBegin
	EventArgumentData
	EventArgumentEnd
	EventCommandEnd
)

// Event is one unit of the reader's output stream. Data is a view into the
// RecvBuffer's backing array and is only valid until the buffer is next
// appended to or compacted — callers that need to retain bytes across a
// Feed call must copy them out (the server's assembler stages long
// arguments into a chunkstore.Sequence for exactly this reason).
type Event struct {
	Kind   EventKind
	Length int // ArgumentBegin: declared length. CommandBegin: argument count.
	Index  int // ArgumentBegin/ArgumentData/ArgumentEnd: argument index.
	Data   []byte
}

type readerState int

const (
	stateNeedFirstByte readerState = iota
	stateArrayHeader
	stateBulkHeader
	stateBulkBody
	stateBulkCRLF
	stateInlineLine
)

// Reader is the incremental RESP parser for one connection. It is not
// safe for concurrent use; a connection has exactly one.
type Reader struct {
	maxArgs      int
	maxArgLen    int
	maxInlineLen int

	st           readerState
	expectedArgs int
	argIndex     int
	bulkLen      int
	bulkRead     int
}

// NewReader creates a reader enforcing the given protocol limits (spec.md
// §6/§7: excessive argument counts or lengths are protocol errors, not
// silently accepted).
func NewReader(maxArgs, maxArgLen, maxInlineLen int) *Reader {
	return &Reader{maxArgs: maxArgs, maxArgLen: maxArgLen, maxInlineLen: maxInlineLen}
}

// Feed consumes as much of buf's unread bytes as it can, appending events
// describing complete or partially-complete commands. It starts no new
// step once len(events) reaches cap(events); one step can append several
// events (an inline command appends all of its events at once), so the
// returned slice can grow past cap(events).
// Returns the events slice, whether more bytes are needed before further
// progress is possible, and any protocol error.
func (r *Reader) Feed(buf *netio.RecvBuffer, events []Event) ([]Event, bool, error) {
	for len(events) < cap(events) {
		data := buf.Unread()
		if len(data) == 0 {
			return events, true, nil
		}

		switch r.st {
		case stateNeedFirstByte:
			if data[0] == '*' {
				r.st = stateArrayHeader
				continue
			}
			r.st = stateInlineLine
			continue

		case stateArrayHeader:
			line, ok := readLine(data)
			if !ok {
				if len(data) > r.maxInlineLen {
					return events, false, models.ErrProtocolError
				}
				return events, true, nil
			}
			n, ok := parseInt(line[1:])
			if !ok || n < 0 || n > r.maxArgs {
				return events, false, models.ErrProtocolError
			}
			buf.Advance(len(line) + lineTerminatorLen(data, line))
			buf.Commit()
			r.expectedArgs = n
			r.argIndex = 0
			events = append(events, Event{Kind: EventCommandBegin, Length: n})
			if n == 0 {
				events = append(events, Event{Kind: EventCommandEnd})
				r.st = stateNeedFirstByte
			} else {
				r.st = stateBulkHeader
			}

		case stateBulkHeader:
			if data[0] != '$' {
				return events, false, models.ErrProtocolError
			}
			line, ok := readLine(data)
			if !ok {
				if len(data) > r.maxInlineLen {
					return events, false, models.ErrProtocolError
				}
				return events, true, nil
			}
			n, ok := parseInt(line[1:])
			if !ok || n < 0 || n > r.maxArgLen {
				return events, false, models.ErrProtocolError
			}
			buf.Advance(len(line) + lineTerminatorLen(data, line))
			buf.Commit()
			r.bulkLen = n
			r.bulkRead = 0
			events = append(events, Event{Kind: EventArgumentBegin, Length: n, Index: r.argIndex})
			if n == 0 {
				r.st = stateBulkCRLF
			} else {
				r.st = stateBulkBody
			}

		case stateBulkBody:
			remaining := r.bulkLen - r.bulkRead
			avail := len(data)
			if avail == 0 {
				return events, true, nil
			}
			take := avail
			if take > remaining {
				take = remaining
			}
			chunk := data[:take]
			buf.Advance(take)
			buf.Commit()
			r.bulkRead += take
			events = append(events, Event{Kind: EventArgumentData, Index: r.argIndex, Data: chunk})
			if r.bulkRead >= r.bulkLen {
				r.st = stateBulkCRLF
			}

		case stateBulkCRLF:
			if len(data) < 2 {
				return events, true, nil
			}
			if data[0] != '\r' || data[1] != '\n' {
				return events, false, models.ErrProtocolError
			}
			buf.Advance(2)
			buf.Commit()
			events = append(events, Event{Kind: EventArgumentEnd, Index: r.argIndex, Length: r.bulkLen})
			r.argIndex++
			if r.argIndex >= r.expectedArgs {
				events = append(events, Event{Kind: EventCommandEnd})
				r.st = stateNeedFirstByte
			} else {
				r.st = stateBulkHeader
			}

		case stateInlineLine:
			line, ok := readLine(data)
			if !ok {
				if len(data) > r.maxInlineLen {
					return events, false, models.ErrProtocolError
				}
				return events, true, nil
			}
			buf.Advance(len(line) + lineTerminatorLen(data, line))
			buf.Commit()
			r.st = stateNeedFirstByte
			events = appendInlineEvents(events, line)
		}
	}
	return events, false, nil
}

func appendInlineEvents(events []Event, line []byte) []Event {
	fields := bytes.Fields(line)
	events = append(events, Event{Kind: EventCommandBegin, Length: len(fields)})
	for i, f := range fields {
		events = append(events,
			Event{Kind: EventArgumentBegin, Length: len(f), Index: i},
			Event{Kind: EventArgumentData, Index: i, Data: f},
			Event{Kind: EventArgumentEnd, Index: i, Length: len(f)},
		)
	}
	events = append(events, Event{Kind: EventCommandEnd})
	return events
}

// readLine finds a line terminated by \n (optionally preceded by \r) at
// the start of data. Returns the line's content (without its terminator)
// and whether a terminator was found; lineTerminatorLen then reports how
// many bytes the terminator itself occupied, so callers can advance past
// the exact consumed length even for a bare \n.
func readLine(data []byte) ([]byte, bool) {
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		return nil, false
	}
	if idx > 0 && data[idx-1] == '\r' {
		return data[:idx-1], true
	}
	return data[:idx], true
}

func lineTerminatorLen(data, line []byte) int {
	if len(line) < len(data) && len(data) > len(line) && data[len(line)] == '\r' {
		return 2
	}
	return 1
}

func parseInt(b []byte) (int, bool) {
	if len(b) == 0 {
		return 0, false
	}
	neg := false
	i := 0
	if b[0] == '-' {
		neg = true
		i = 1
	}
	if i >= len(b) {
		return 0, false
	}
	n := 0
	for ; i < len(b); i++ {
		if b[i] < '0' || b[i] > '9' {
			return 0, false
		}
		n = n*10 + int(b[i]-'0')
	}
	if neg {
		n = -n
	}
	return n, true
}
