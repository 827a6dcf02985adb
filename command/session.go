// Package command implements the declarative command schema and dispatcher
// of spec.md §4.10: command names resolve through a case-insensitive SPSC
// token table built once at startup, arguments are validated against each
// command's declared shape, and the matched handler runs against a
// Session holding the connection's negotiated protocol, auth state, and
// selected database.
package command

import (
	"kvstore/resp"
	"kvstore/storagedb"
	"kvstore/txlock"
)

// AuthMode selects how AUTH/HELLO's auth sub-negotiation behaves (spec.md
// §6's HELLO AUTH sub-negotiation, supplemented from original_source/'s
// module_redis_command_helper_hello.c which gates every command but HELLO/
// AUTH/QUIT/RESET behind a successful auth when a password is configured).
type AuthMode int

const (
	AuthNone AuthMode = iota
	AuthPassword
)

// Limits bounds protocol and command-surface behavior, sourced from
// config.Config at startup.
type Limits struct {
	MaxCommandArgs int
	MaxKeyLength   int
	DisabledCommands map[string]struct{}
	AuthMode         AuthMode
	AuthPasswordHash []byte // bcrypt hash; empty means AuthMode must be AuthNone

	// Params holds every reportable configuration setting as name/value
	// strings, backing CONFIG GET's glob-pattern lookup (spec.md §6,
	// supplemented from original_source/'s module_redis_command_config_get.c).
	// Built once at startup by the server package from config.Config; command
	// never imports config directly to avoid a dependency back onto the
	// process bootstrap layer.
	Params map[string]string
}

// Snapshotter is the subset of the snapshot writer's interface BGSAVE/SAVE
// need, kept here rather than importing the snapshot package directly to
// avoid a command<->snapshot import cycle (snapshot depends on storagedb,
// not on command).
type Snapshotter interface {
	TriggerAsync()
	RunSync() error
}

// Session is the per-connection state threaded through every command
// handler: which database is selected, whether the connection has
// authenticated, which RESP protocol version was negotiated via HELLO, and
// the write-destination resp.Writer for this command's reply.
type Session struct {
	DB          *storagedb.DB
	TxMgr       *txlock.Manager
	Writer      *resp.Writer
	Limits      Limits
	Snapshotter Snapshotter

	DBNumber          int
	ClientID          int64
	Authenticated     bool
	Resp3             bool
	ClientName        string
	Closing           bool
	ShutdownRequested bool
}

// NewSession creates a session for a freshly-accepted connection, starting
// on logical database 0 and RESP2 until a HELLO negotiates otherwise.
func NewSession(db *storagedb.DB, txMgr *txlock.Manager, writer *resp.Writer, limits Limits) *Session {
	return &Session{
		DB:            db,
		TxMgr:         txMgr,
		Writer:        writer,
		Limits:        limits,
		Authenticated: limits.AuthMode == AuthNone,
	}
}

// RequiresAuth reports whether this session must successfully AUTH/HELLO
// before any command other than HELLO, AUTH, or QUIT is allowed.
func (s *Session) RequiresAuth() bool {
	return !s.Authenticated && s.Limits.AuthMode != AuthNone
}
