//go:build linux || darwin

package netio

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// ListenReusePort opens a TCP listener with SO_REUSEPORT set before bind,
// letting every worker own its own kernel-level listening socket on the
// same address instead of funneling accepts through one shared
// net.Listener — a closer match to spec.md §4.8's "one ring per worker"
// than round-robin dispatch over a single socket, and the kernel load
// balances accepts across them instead of the fiber scheduler having to.
func ListenReusePort(network, addr string) (*Ring, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var setErr error
			err := c.Control(func(fd uintptr) {
				setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return setErr
		},
	}
	ln, err := lc.Listen(context.Background(), network, addr)
	if err != nil {
		return nil, err
	}
	return &Ring{ln: ln}, nil
}
