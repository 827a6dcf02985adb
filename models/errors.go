// Package models holds the value types and sentinel errors shared across the
// storage and execution core: the wire-level Entry Index representation, its
// value-type enumeration, and the error values every package surfaces to its
// callers.
package models

import (
	"errors"
)

// Standard storage-core errors, surfaced by hashtable, storagedb, and txlock
// to their callers.
var (
	// ErrNotFound is returned when a requested key is not present.
	ErrNotFound = errors.New("key not found")

	// ErrKeyExists is returned when an operation requires the key to be
	// absent (storagedb.CommitRename without replace, used by RENAMENX).
	ErrKeyExists = errors.New("key already exists")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized is returned when a connection has not authenticated.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrWrongType is returned when a command is applied to a value of the
	// wrong ValueType (e.g. INCR on a non-numeric string).
	ErrWrongType = errors.New("value is not an integer or out of range")

	// ErrOutOfSpace is returned by the hashtable when a bounded probe
	// neighborhood is exhausted during insertion.
	ErrOutOfSpace = errors.New("hashtable neighborhood exhausted")

	// ErrLockStuck is returned when a transactional spinlock fails to
	// acquire within its configured spin budget.
	ErrLockStuck = errors.New("lock appears stuck beyond threshold")

	// ErrTransactionClosed is returned when an operation is attempted
	// against a transaction that has already been released.
	ErrTransactionClosed = errors.New("transaction already released")

	// ErrConnectionClosed is returned when an operation is attempted on a
	// connection that has been torn down.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrCommandTooLong describes a command that exceeds the configured
	// maximum length. Nothing returns it: the RESP reader reports over-long
	// lines and arguments as ErrProtocolError.
	ErrCommandTooLong = errors.New("command too long")

	// ErrProtocolError is returned when the RESP reader encounters
	// malformed input it cannot recover from.
	ErrProtocolError = errors.New("protocol error")

	// ErrCommandDisabled is returned when a command is issued against a
	// name present in the configured disabled-commands list.
	ErrCommandDisabled = errors.New("command disabled")

	// ErrFiberTerminated is returned from a suspension point once a
	// fiber's terminate flag has been observed.
	ErrFiberTerminated = errors.New("fiber terminated")

	// ErrNotAFloat is returned when a command argument declared DOUBLE
	// fails to parse as a float.
	ErrNotAFloat = errors.New("value is not a valid float")

	// ErrNoSuchCommand is returned when a RESP command name does not match
	// any entry in the command registry.
	ErrNoSuchCommand = errors.New("unknown command")

	// ErrWrongArgCount is returned when a command receives fewer or more
	// arguments than its declared schema allows.
	ErrWrongArgCount = errors.New("wrong number of arguments")
)
