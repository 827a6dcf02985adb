package resp

import (
	"strconv"

	"kvstore/netio"
)

// Writer encodes RESP2/RESP3 reply values into a netio.SendBuffer through
// its Write method, appending each piece of a reply as it is produced.
type Writer struct {
	send *netio.SendBuffer
	rsp3 bool
}

// NewWriter creates a writer targeting send. resp3 selects RESP3-only
// reply kinds (map, double, bool, big number, set, null) versus their
// RESP2 fallback encodings — negotiated per-connection by HELLO.
func NewWriter(send *netio.SendBuffer, resp3 bool) *Writer {
	return &Writer{send: send, rsp3: resp3}
}

// SetProtocol switches the writer's encoding after a HELLO negotiation.
func (w *Writer) SetProtocol(resp3 bool) { w.rsp3 = resp3 }

func (w *Writer) raw(b []byte) { w.send.Write(b) }
func (w *Writer) str(s string) { w.send.Write([]byte(s)) }

// SimpleString writes a "+OK\r\n"-style reply.
func (w *Writer) SimpleString(s string) {
	w.str("+")
	w.str(s)
	w.str("\r\n")
}

// Error writes a "-ERR message\r\n"-style reply.
func (w *Writer) Error(s string) {
	w.str("-")
	w.str(s)
	w.str("\r\n")
}

// Integer writes a ":123\r\n"-style reply.
func (w *Writer) Integer(n int64) {
	w.str(":")
	w.str(strconv.FormatInt(n, 10))
	w.str("\r\n")
}

// Bool writes RESP3 "#t\r\n"/"#f\r\n", or the RESP2 integer-reply fallback.
func (w *Writer) Bool(b bool) {
	if !w.rsp3 {
		if b {
			w.Integer(1)
		} else {
			w.Integer(0)
		}
		return
	}
	if b {
		w.str("#t\r\n")
	} else {
		w.str("#f\r\n")
	}
}

// Double writes RESP3 ",1.5\r\n", or the RESP2 bulk-string fallback.
func (w *Writer) Double(f float64) {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !w.rsp3 {
		w.BulkString([]byte(s))
		return
	}
	w.str(",")
	w.str(s)
	w.str("\r\n")
}

// BulkString writes "$len\r\ndata\r\n".
func (w *Writer) BulkString(data []byte) {
	w.str("$")
	w.str(strconv.Itoa(len(data)))
	w.str("\r\n")
	w.raw(data)
	w.str("\r\n")
}

// Null writes RESP3 "_\r\n", or the RESP2 "$-1\r\n" nil bulk string.
func (w *Writer) Null() {
	if w.rsp3 {
		w.str("_\r\n")
		return
	}
	w.str("$-1\r\n")
}

// NullArray writes the RESP2 "*-1\r\n" nil array reply, or RESP3 "_\r\n",
// for a reply that distinguishes "no such key" from "empty array".
func (w *Writer) NullArray() {
	if w.rsp3 {
		w.str("_\r\n")
		return
	}
	w.str("*-1\r\n")
}

// ArrayHeader writes "*n\r\n"; callers then write n elements themselves.
func (w *Writer) ArrayHeader(n int) {
	w.str("*")
	w.str(strconv.Itoa(n))
	w.str("\r\n")
}

// MapHeader writes RESP3 "%n\r\n", or the RESP2 "*2n\r\n" flattened-pairs
// fallback (callers still write n key/value pairs either way).
func (w *Writer) MapHeader(n int) {
	if w.rsp3 {
		w.str("%")
		w.str(strconv.Itoa(n))
		w.str("\r\n")
		return
	}
	w.ArrayHeader(n * 2)
}

// SetHeader writes RESP3 "~n\r\n", or the RESP2 array fallback.
func (w *Writer) SetHeader(n int) {
	if w.rsp3 {
		w.str("~")
		w.str(strconv.Itoa(n))
		w.str("\r\n")
		return
	}
	w.ArrayHeader(n)
}

// BigNumber writes RESP3 "(123...\r\n", or the RESP2 bulk-string fallback.
func (w *Writer) BigNumber(decimal string) {
	if !w.rsp3 {
		w.BulkString([]byte(decimal))
		return
	}
	w.str("(")
	w.str(decimal)
	w.str("\r\n")
}
