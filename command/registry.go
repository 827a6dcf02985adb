package command

import (
	"strings"

	"kvstore/spsctable"
)

// Handler executes one command against sess with the command's arguments,
// args[0] being the command name itself (matching RESP's own framing).
type Handler func(sess *Session, args [][]byte) error

// Command is the declarative schema entry of spec.md §4.10: a name, its
// arity contract, and the handler that implements it. MinArgs counts the
// command name itself; MaxArgs of -1 means unbounded (subject to
// Limits.MaxCommandArgs).
type Command struct {
	Name    string
	MinArgs int
	MaxArgs int
	Handler Handler
}

// Registry is the startup-built, read-only-thereafter command table:
// spec.md §4.10's "SPSC token hashtable mapping each token string to its
// Argument," narrowed here to the top-level command-name lookup (the single
// producer is registerAll, called once from NewRegistry before any
// connection is served).
type Registry struct {
	byName   *spsctable.Table[any]
	capacity int
}

// NewRegistry builds and populates the command table.
func NewRegistry() *Registry {
	const initialCapacity = 256
	r := &Registry{byName: spsctable.NewCaseInsensitive(initialCapacity), capacity: initialCapacity}
	registerAll(r)
	return r
}

func (r *Registry) register(c Command) {
	if !r.byName.Set(c.Name, c) {
		r.capacity *= 2
		if err := r.byName.Upsize(r.capacity); err != nil {
			panic("command: registry upsize failed: " + err.Error())
		}
		r.byName.Set(c.Name, c)
	}
}

// Lookup resolves a command name (case-insensitively) to its schema entry.
func (r *Registry) Lookup(name string) (Command, bool) {
	v, ok := r.byName.Get(strings.ToUpper(name))
	if !ok {
		return Command{}, false
	}
	return v.(Command), true
}
