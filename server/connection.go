package server

import (
	"kvstore/command"
	"kvstore/fiber"
	"kvstore/logger"
	"kvstore/netio"
	"kvstore/resp"
	"kvstore/txlock"
)

// connectionLoop is the fiber body for one accepted connection: read
// whatever bytes are available, feed them through the RESP reader and
// assembler, dispatch each complete command, flush the reply, repeat until
// the peer disconnects or the session requests closing (QUIT/SHUTDOWN).
// This is the glue spec.md §4.9/§4.10 name but leave unglued — "the reader
// hands complete commands to the dispatcher, the dispatcher's reply is
// flushed back out" — one fiber per connection, matching spec.md §4.7's
// "a fiber per accepted connection."
func (w *Worker) connectionLoop(ctx *fiber.Context, conn *netio.Conn, clientID int) {
	defer w.releaseClientID(clientID)
	defer conn.Close()

	reader := resp.NewReader(w.limits.MaxCommandArgs, maxProtoBulkLen, w.cfg.MaxInlineCommandLength)
	writer := resp.NewWriter(conn.Send, false)
	asm := newAssembler()

	txMgr := txlock.NewManager(uint32(w.index))
	sess := command.NewSession(w.db, txMgr, writer, w.limits)
	sess.Snapshotter = w.snapshotter
	sess.ClientID = int64(clientID)

	events := make([]resp.Event, 0, 32)

	for {
		if ctx.Terminated() {
			return
		}

		var dispatchErr error
		events = events[:0]
		evs, needMore, err := reader.Feed(conn.Recv, events)
		if err != nil {
			logger.Trace("conn %s: protocol error: %v", conn.RemoteAddr(), err)
			writer.Error("ERR Protocol error: " + err.Error())
			conn.SubmitFlush(ctx)
			return
		}

		if len(evs) > 0 {
			w.epoch.Pin(w.index)
			dispatchErr = asm.feed(evs, func(args [][]byte) error {
				return w.registry.Dispatch(sess, args)
			})
			w.epoch.Advance()
		}
		if dispatchErr != nil {
			logger.Warn("conn %s: dispatch error: %v", conn.RemoteAddr(), dispatchErr)
			return
		}

		writer.SetProtocol(sess.Resp3)

		if conn.Send.Len() > 0 {
			if err := conn.SubmitFlush(ctx); err != nil {
				return
			}
		}

		if sess.Closing {
			conn.SubmitFlush(ctx)
			return
		}

		if !needMore {
			continue
		}

		conn.Recv.Rewind()
		if _, err := conn.SubmitRecv(ctx); err != nil {
			return
		}
	}
}
