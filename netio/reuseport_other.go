//go:build !linux && !darwin

package netio

// ListenReusePort falls back to a plain listener on platforms without
// SO_REUSEPORT support; only one worker can then bind addr directly and
// the rest must share Rings via accept dispatch (not implemented — this
// build targets Linux per spec.md §9's syscall-level primitives).
func ListenReusePort(network, addr string) (*Ring, error) {
	return Listen(network, addr)
}
