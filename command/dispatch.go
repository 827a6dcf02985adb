package command

import (
	"fmt"

	"kvstore/logger"
	"kvstore/models"
)

// Dispatch resolves args[0] against the registry, enforces the command's
// arity and the session's auth/disabled-command gates, and runs its
// handler. It is the single entry point the server package's per-fiber
// connection loop calls for each parsed RESP command (spec.md §4.10).
func (r *Registry) Dispatch(sess *Session, args [][]byte) error {
	if len(args) == 0 {
		return models.ErrProtocolError
	}
	name := string(args[0])
	traceID := fmt.Sprintf("client-%d", sess.ClientID)
	logger.LogCommandDispatch(traceID, name, "begin")
	defer logger.LogCommandDispatch(traceID, name, "end")

	cmd, ok := r.Lookup(name)
	if !ok {
		sess.Writer.Error("ERR unknown command '" + name + "'")
		return nil
	}
	if sess.RequiresAuth() && !isAuthExempt(cmd.Name) {
		sess.Writer.Error("NOAUTH Authentication required")
		return nil
	}
	if _, disabled := sess.Limits.DisabledCommands[cmd.Name]; disabled {
		sess.Writer.Error("ERR unknown command '" + name + "'")
		return nil
	}
	if len(args) < cmd.MinArgs || (cmd.MaxArgs >= 0 && len(args) > cmd.MaxArgs) {
		sess.Writer.Error("ERR wrong number of arguments for '" + name + "' command")
		return nil
	}
	return cmd.Handler(sess, args)
}

func isAuthExempt(name string) bool {
	switch name {
	case "HELLO", "AUTH", "QUIT":
		return true
	default:
		return false
	}
}
