package logger

import (
	"log"
	"strings"
)

// netLogWriter implements io.Writer to redirect standard library log output
// (the only stdlib consumer in this server being net/net.Listener's own
// internal diagnostics, since the core itself never calls the stdlib "log"
// package directly) to our logger.
type netLogWriter struct{}

func (lw *netLogWriter) Write(p []byte) (n int, err error) {
	message := strings.TrimSpace(string(p))
	if message == "" {
		return len(p), nil
	}

	if strings.Contains(message, "accept") || strings.Contains(message, "Accept") {
		Warn("net: %s", message)
	} else if strings.Contains(message, "error") || strings.Contains(message, "Error") {
		Error("net: %s", message)
	} else {
		Info("net: %s", message)
	}

	return len(p), nil
}

// InitLogBridge redirects standard library log output to our logger, so a
// stray stdlib log call from a dependency doesn't bypass our format/level
// filtering.
func InitLogBridge() {
	writer := &netLogWriter{}
	log.SetOutput(writer)
	log.SetFlags(0)
	Debug("standard library log output redirected to kvstore logger")
}

// NetErrorLog returns a *log.Logger bridged into our logger, for the rare
// stdlib API (e.g. a future net.Listener wrapper) that wants its own
// *log.Logger rather than writing to the process-wide default.
func NetErrorLog() *log.Logger {
	writer := &netLogWriter{}
	return log.New(writer, "", 0)
}
