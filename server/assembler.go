package server

import (
	"kvstore/chunkstore"
	"kvstore/resp"
)

// chunkInlineThreshold bounds the argument size below which the assembler
// just appends fragments to a plain byte slice; above it, the argument is
// staged into a chunkstore.Sequence instead, the way command handlers stage
// large values, so one oversized argument doesn't force a single
// contiguous allocation of its full declared length up front.
const chunkInlineThreshold = 4096

// assembler turns the resp.Reader's event stream into complete [][]byte
// argument lists, the shape command.Registry.Dispatch expects — the glue
// spec.md §4.9/§4.10 describe only in terms of "the reader hands the
// dispatcher a command" without naming the intermediate representation.
//
// Grounded on chunkstore.Sequence as the buffer a long argument accumulates
// into: its EventArgumentData fragments are views into the recv buffer,
// only valid until the next read, so anything past chunkInlineThreshold is
// staged into a Sequence exactly the way a command handler stages a large
// value, then flattened to a single []byte once its EventArgumentEnd
// arrives. A connection owns exactly one assembler; it is not safe for
// concurrent use.
type assembler struct {
	args [][]byte

	inline      []byte
	staged      *chunkstore.Sequence
	writeOffset int64
}

func newAssembler() *assembler {
	return &assembler{}
}

// feed processes one batch of events, invoking onCommand for each complete
// command assembled.
func (a *assembler) feed(events []resp.Event, onCommand func(args [][]byte) error) error {
	for _, ev := range events {
		switch ev.Kind {
		case resp.EventCommandBegin:
			a.args = a.args[:0]

		case resp.EventArgumentBegin:
			a.writeOffset = 0
			if ev.Length > chunkInlineThreshold {
				a.staged = chunkstore.Allocate(int64(ev.Length), chunkstore.ChunkMaxSize)
				a.inline = nil
			} else {
				a.staged = nil
				a.inline = make([]byte, 0, ev.Length)
			}

		case resp.EventArgumentData:
			if a.staged != nil {
				if err := a.staged.WriteAt(a.writeOffset, ev.Data); err != nil {
					return err
				}
				a.writeOffset += int64(len(ev.Data))
			} else {
				a.inline = append(a.inline, ev.Data...)
			}

		case resp.EventArgumentEnd:
			if a.staged != nil {
				a.args = append(a.args, a.staged.Bytes())
				a.staged = nil
			} else {
				a.args = append(a.args, a.inline)
				a.inline = nil
			}

		case resp.EventCommandEnd:
			if len(a.args) == 0 {
				continue
			}
			cmd := a.args
			a.args = nil
			if err := onCommand(cmd); err != nil {
				return err
			}
		}
	}
	return nil
}
