// Package netio is the network I/O abstraction of spec.md §4.8: three
// operation kinds (accept, recv, send) submitted by a fiber and completed
// asynchronously, so the fiber scheduler can run other work while a socket
// call is in flight.
//
// The original rides io_uring: one ring per worker, SQEs submitted and
// completions harvested in a batch. Go has no io_uring binding in the
// standard toolchain and no safe portable equivalent; net.Conn's blocking
// calls are the idiomatic substitute (spec.md §9's guidance to re-express
// OS-specific primitives rather than translate them literally — io_uring
// is exactly this class of thing, like the assembly stack switch). Each
// Submit* call here runs the blocking syscall on its own goroutine and
// signals the owning fiber through the same fiber.Context.AwaitIO
// suspension point package fiber already exposes for "I/O ring completion
// waits," so command handlers written against this package still read as
// synchronous, cooperatively-suspending code.
package netio

import (
	"net"

	"kvstore/fiber"
	"kvstore/models"
)

// Ring owns one listening socket. One Ring per worker, matching spec.md
// §4.8's "one I/O ring per worker."
type Ring struct {
	ln net.Listener
}

// Listen opens a TCP listener on addr and wraps it as a Ring.
func Listen(network, addr string) (*Ring, error) {
	ln, err := net.Listen(network, addr)
	if err != nil {
		return nil, err
	}
	return &Ring{ln: ln}, nil
}

// Addr returns the listener's bound address.
func (r *Ring) Addr() net.Addr { return r.ln.Addr() }

// Close stops accepting new connections.
func (r *Ring) Close() error { return r.ln.Close() }

// SubmitAccept submits an accept operation and suspends the calling fiber
// until a connection arrives or the listener is closed.
func (r *Ring) SubmitAccept(ctx *fiber.Context) (*Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan struct{})
	var res result

	go func() {
		res.conn, res.err = r.ln.Accept()
		close(done)
	}()

	if !ctx.AwaitIO(done) {
		// Terminated while waiting: the goroutine above is still blocked in
		// Accept and will unblock (and leak) only when the listener closes;
		// the worker shutdown path closes the Ring for exactly this reason.
		return nil, models.ErrFiberTerminated
	}
	if res.err != nil {
		return nil, res.err
	}
	return newConn(res.conn), nil
}

// Conn wraps one accepted connection with the rewindable recv buffer and
// slice-acquired send buffer spec.md §4.8 describes.
type Conn struct {
	raw  net.Conn
	Recv *RecvBuffer
	Send *SendBuffer
}

func newConn(raw net.Conn) *Conn {
	return &Conn{
		raw:  raw,
		Recv: NewRecvBuffer(4096),
		Send: NewSendBuffer(4096),
	}
}

// RemoteAddr returns the peer address, used for connection diagnostics.
func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

// Close closes the underlying socket.
func (c *Conn) Close() error { return c.raw.Close() }

// SubmitRecv submits a recv operation, suspending the fiber until data
// arrives (or the connection errors/closes), then appends whatever was
// read onto Recv. Returns the number of bytes appended.
func (c *Conn) SubmitRecv(ctx *fiber.Context) (int, error) {
	tmp := make([]byte, 64*1024)
	done := make(chan struct{})
	var n int
	var err error

	go func() {
		n, err = c.raw.Read(tmp)
		close(done)
	}()

	if !ctx.AwaitIO(done) {
		return 0, models.ErrFiberTerminated
	}
	if n > 0 {
		c.Recv.Append(tmp[:n])
	}
	return n, err
}

// SubmitFlush submits a send of every byte currently queued in Send,
// suspending the fiber until the write completes, then resets Send.
func (c *Conn) SubmitFlush(ctx *fiber.Context) error {
	pending := c.Send.Pending()
	if len(pending) == 0 {
		return nil
	}

	done := make(chan struct{})
	var err error
	go func() {
		_, err = c.raw.Write(pending)
		close(done)
	}()

	if !ctx.AwaitIO(done) {
		return models.ErrFiberTerminated
	}
	c.Send.Reset()
	return err
}

// SubmitSendDirect flushes any buffered reply first, then writes data
// straight to the socket, bypassing Send — spec.md §4.8's "direct-send
// fallback" for responses too large to stage in the send buffer (e.g. a
// multi-megabyte GET reply streamed straight from its Chunk Sequence).
func (c *Conn) SubmitSendDirect(ctx *fiber.Context, data []byte) error {
	if err := c.SubmitFlush(ctx); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	done := make(chan struct{})
	var err error
	go func() {
		_, err = c.raw.Write(data)
		close(done)
	}()

	if !ctx.AwaitIO(done) {
		return models.ErrFiberTerminated
	}
	return err
}
