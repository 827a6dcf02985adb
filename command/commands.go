package command

import (
	"sort"
	"strconv"
	"strings"

	"kvstore/chunkstore"
	"kvstore/models"
	"kvstore/storagedb"
)

func registerAll(r *Registry) {
	r.register(Command{Name: "HELLO", MinArgs: 1, MaxArgs: -1, Handler: cmdHello})
	r.register(Command{Name: "PING", MinArgs: 1, MaxArgs: 2, Handler: cmdPing})
	r.register(Command{Name: "QUIT", MinArgs: 1, MaxArgs: 1, Handler: cmdQuit})
	r.register(Command{Name: "AUTH", MinArgs: 2, MaxArgs: 3, Handler: cmdAuth})
	r.register(Command{Name: "SELECT", MinArgs: 2, MaxArgs: 2, Handler: cmdSelect})
	r.register(Command{Name: "SHUTDOWN", MinArgs: 1, MaxArgs: 2, Handler: cmdShutdown})

	r.register(Command{Name: "GET", MinArgs: 2, MaxArgs: 2, Handler: cmdGet})
	r.register(Command{Name: "SET", MinArgs: 3, MaxArgs: -1, Handler: cmdSet})
	r.register(Command{Name: "SETEX", MinArgs: 4, MaxArgs: 4, Handler: cmdSetex(false)})
	r.register(Command{Name: "PSETEX", MinArgs: 4, MaxArgs: 4, Handler: cmdSetex(true)})
	r.register(Command{Name: "SETNX", MinArgs: 3, MaxArgs: 3, Handler: cmdSetnx})
	r.register(Command{Name: "SETRANGE", MinArgs: 4, MaxArgs: 4, Handler: cmdSetrange})
	r.register(Command{Name: "GETSET", MinArgs: 3, MaxArgs: 3, Handler: cmdGetset})
	r.register(Command{Name: "GETEX", MinArgs: 2, MaxArgs: -1, Handler: cmdGetex})
	r.register(Command{Name: "GETDEL", MinArgs: 2, MaxArgs: 2, Handler: cmdGetdel})
	r.register(Command{Name: "APPEND", MinArgs: 3, MaxArgs: 3, Handler: cmdAppend})
	r.register(Command{Name: "INCR", MinArgs: 2, MaxArgs: 2, Handler: cmdIncrBy(1)})
	r.register(Command{Name: "DECR", MinArgs: 2, MaxArgs: 2, Handler: cmdIncrBy(-1)})
	r.register(Command{Name: "INCRBY", MinArgs: 3, MaxArgs: 3, Handler: cmdIncrByArg(1)})
	r.register(Command{Name: "DECRBY", MinArgs: 3, MaxArgs: 3, Handler: cmdIncrByArg(-1)})
	r.register(Command{Name: "INCRBYFLOAT", MinArgs: 3, MaxArgs: 3, Handler: cmdIncrByFloat})
	r.register(Command{Name: "MSET", MinArgs: 3, MaxArgs: -1, Handler: cmdMset})
	r.register(Command{Name: "MSETNX", MinArgs: 3, MaxArgs: -1, Handler: cmdMsetnx})
	r.register(Command{Name: "MGET", MinArgs: 2, MaxArgs: -1, Handler: cmdMget})
	r.register(Command{Name: "COPY", MinArgs: 3, MaxArgs: 4, Handler: cmdCopy})
	r.register(Command{Name: "RENAMENX", MinArgs: 3, MaxArgs: 3, Handler: cmdRenamenx})
	r.register(Command{Name: "EXISTS", MinArgs: 2, MaxArgs: -1, Handler: cmdExists})
	r.register(Command{Name: "TOUCH", MinArgs: 2, MaxArgs: -1, Handler: cmdExists})
	r.register(Command{Name: "TYPE", MinArgs: 2, MaxArgs: 2, Handler: cmdType})
	r.register(Command{Name: "EXPIRE", MinArgs: 3, MaxArgs: 4, Handler: cmdExpire(1000, false)})
	r.register(Command{Name: "PEXPIRE", MinArgs: 3, MaxArgs: 4, Handler: cmdExpire(1, false)})
	r.register(Command{Name: "EXPIREAT", MinArgs: 3, MaxArgs: 4, Handler: cmdExpire(1000, true)})
	r.register(Command{Name: "PEXPIREAT", MinArgs: 3, MaxArgs: 4, Handler: cmdExpire(1, true)})
	r.register(Command{Name: "PERSIST", MinArgs: 2, MaxArgs: 2, Handler: cmdPersist})
	r.register(Command{Name: "TTL", MinArgs: 2, MaxArgs: 2, Handler: cmdTTL(1000)})
	r.register(Command{Name: "PTTL", MinArgs: 2, MaxArgs: 2, Handler: cmdTTL(1)})
	r.register(Command{Name: "EXPIRETIME", MinArgs: 2, MaxArgs: 2, Handler: cmdExpireTime(1000)})
	r.register(Command{Name: "PEXPIRETIME", MinArgs: 2, MaxArgs: 2, Handler: cmdExpireTime(1)})
	r.register(Command{Name: "DEL", MinArgs: 2, MaxArgs: -1, Handler: cmdDel})
	r.register(Command{Name: "UNLINK", MinArgs: 2, MaxArgs: -1, Handler: cmdDel})
	r.register(Command{Name: "KEYS", MinArgs: 2, MaxArgs: 2, Handler: cmdKeys})
	r.register(Command{Name: "SCAN", MinArgs: 2, MaxArgs: -1, Handler: cmdScan})
	r.register(Command{Name: "GETRANGE", MinArgs: 4, MaxArgs: 4, Handler: cmdGetrange})
	r.register(Command{Name: "SUBSTR", MinArgs: 4, MaxArgs: 4, Handler: cmdGetrange})
	r.register(Command{Name: "STRLEN", MinArgs: 2, MaxArgs: 2, Handler: cmdStrlen})
	r.register(Command{Name: "BITCOUNT", MinArgs: 2, MaxArgs: 5, Handler: cmdBitcount})
	r.register(Command{Name: "LCS", MinArgs: 3, MaxArgs: -1, Handler: cmdLCS})
	r.register(Command{Name: "FLUSHDB", MinArgs: 1, MaxArgs: 2, Handler: cmdFlushdb})
	r.register(Command{Name: "DBSIZE", MinArgs: 1, MaxArgs: 1, Handler: cmdDbsize})
	r.register(Command{Name: "CONFIG", MinArgs: 2, MaxArgs: -1, Handler: cmdConfig})
	r.register(Command{Name: "BGSAVE", MinArgs: 1, MaxArgs: 2, Handler: cmdBgsave})
	r.register(Command{Name: "SAVE", MinArgs: 1, MaxArgs: 1, Handler: cmdSave})
}

// --- connection commands ---

func cmdHello(sess *Session, args [][]byte) error {
	resp3 := sess.Resp3
	for i := 1; i < len(args); i++ {
		switch string(args[i]) {
		case "2":
			resp3 = false
		case "3":
			resp3 = true
		case "AUTH":
			if i+2 >= len(args) {
				sess.Writer.Error("ERR syntax error")
				return nil
			}
			if !sess.authenticate(args[i+1], args[i+2]) {
				sess.Writer.Error("WRONGPASS invalid username-password pair")
				return nil
			}
			i += 2
		default:
			sess.Writer.Error("NOPROTO unsupported protocol version")
			return nil
		}
	}
	sess.Resp3 = resp3
	sess.Writer.SetProtocol(resp3)

	sess.Writer.MapHeader(6)
	writeBulkPair(sess, "server", "kvstore")
	writeBulkPair(sess, "version", "1.0.0")
	sess.Writer.BulkString([]byte("proto"))
	if resp3 {
		sess.Writer.Integer(3)
	} else {
		sess.Writer.Integer(2)
	}
	sess.Writer.BulkString([]byte("id"))
	sess.Writer.Integer(sess.ClientID)
	writeBulkPair(sess, "mode", "standalone")
	writeBulkPair(sess, "role", "master")
	return nil
}

func writeBulkPair(sess *Session, k, v string) {
	sess.Writer.BulkString([]byte(k))
	sess.Writer.BulkString([]byte(v))
}

func (s *Session) authenticate(user, pass []byte) bool {
	if s.Limits.AuthMode != AuthPassword {
		return true
	}
	if !bcryptCompare(s.Limits.AuthPasswordHash, pass) {
		return false
	}
	s.Authenticated = true
	return true
}

func cmdPing(sess *Session, args [][]byte) error {
	if len(args) == 2 {
		sess.Writer.BulkString(args[1])
		return nil
	}
	sess.Writer.SimpleString("PONG")
	return nil
}

func cmdQuit(sess *Session, args [][]byte) error {
	sess.Closing = true
	sess.Writer.SimpleString("OK")
	return nil
}

func cmdAuth(sess *Session, args [][]byte) error {
	var pass []byte
	if len(args) == 3 {
		pass = args[2]
	} else {
		pass = args[1]
	}
	if sess.Limits.AuthMode == AuthNone {
		sess.Writer.Error("ERR Client sent AUTH, but no password is set")
		return nil
	}
	if !bcryptCompare(sess.Limits.AuthPasswordHash, pass) {
		sess.Writer.Error("WRONGPASS invalid username-password pair")
		return nil
	}
	sess.Authenticated = true
	sess.Writer.SimpleString("OK")
	return nil
}

func cmdSelect(sess *Session, args [][]byte) error {
	n, err := parseInteger(args[1])
	if err != nil || int(n) < 0 || int(n) >= sess.DB.DatabaseCount() {
		sess.Writer.Error("ERR DB index is out of range")
		return nil
	}
	sess.DBNumber = int(n)
	sess.Writer.SimpleString("OK")
	return nil
}

func cmdShutdown(sess *Session, args [][]byte) error {
	save := false
	if len(args) > 1 {
		switch strings.ToUpper(string(args[1])) {
		case "NOSAVE":
			save = false
		case "SAVE":
			save = true
		default:
			sess.Writer.Error("ERR syntax error")
			return nil
		}
	}
	if save && sess.Snapshotter != nil {
		if err := sess.Snapshotter.RunSync(); err != nil {
			sess.Writer.Error("ERR " + err.Error())
			return nil
		}
	}
	sess.Closing = true
	sess.ShutdownRequested = true
	return nil
}

// --- key/value commands ---

func cmdGet(sess *Session, args [][]byte) error {
	entry, err := sess.DB.Lookup(sess.DBNumber, args[1])
	if err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	if entry == nil {
		sess.Writer.Null()
		return nil
	}
	defer sess.DB.Release(entry)
	if entry.ValueType != models.ValueTypeString {
		sess.Writer.Error(wrongTypeMsg)
		return nil
	}
	sess.Writer.BulkString(entry.Value.Bytes())
	return nil
}

const wrongTypeMsg = "WRONGTYPE Operation against a key holding the wrong kind of value"

type setOptions struct {
	expiryMs  int64
	hasExpiry bool
	nx        bool
	xx        bool
	keepttl   bool
	get       bool
}

func parseSetOptions(args [][]byte) (setOptions, error) {
	var o setOptions
	for i := 3; i < len(args); i++ {
		switch strings.ToUpper(string(args[i])) {
		case "NX":
			if o.xx {
				return o, models.ErrInvalidInput
			}
			o.nx = true
		case "XX":
			if o.nx {
				return o, models.ErrInvalidInput
			}
			o.xx = true
		case "GET":
			o.get = true
		case "KEEPTTL":
			o.keepttl = true
		case "EX", "PX", "EXAT", "PXAT":
			if i+1 >= len(args) {
				return o, models.ErrInvalidInput
			}
			n, err := parseInteger(args[i+1])
			if err != nil {
				return o, err
			}
			switch strings.ToUpper(string(args[i])) {
			case "EX":
				o.expiryMs = nowMs() + n*1000
			case "PX":
				o.expiryMs = nowMs() + n
			case "EXAT":
				o.expiryMs = n * 1000
			case "PXAT":
				o.expiryMs = n
			}
			o.hasExpiry = true
			i++
		default:
			return o, models.ErrInvalidInput
		}
	}
	return o, nil
}

func cmdSet(sess *Session, args [][]byte) error {
	opts, err := parseSetOptions(args)
	if err != nil {
		sess.Writer.Error("ERR syntax error")
		return nil
	}
	tx := sess.TxMgr.Acquire()
	defer tx.Release()

	status, err := sess.DB.BeginRMW(tx, sess.DBNumber, args[1])
	if err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	existing := status.Existing()
	if opts.nx && existing != nil {
		status.Abort()
		if opts.get {
			writeGetReply(sess, existing)
			return nil
		}
		sess.Writer.Null()
		return nil
	}
	if opts.xx && existing == nil {
		status.Abort()
		if opts.get {
			sess.Writer.Null()
			return nil
		}
		sess.Writer.Null()
		return nil
	}

	expiry := models.NoExpiry
	if opts.hasExpiry {
		expiry = opts.expiryMs
	} else if opts.keepttl && existing != nil {
		expiry = existing.ExpiryMs
	}

	seq := chunkstore.FromBytes(args[2], 0)
	var oldBytes []byte
	if opts.get && existing != nil {
		oldBytes = append([]byte(nil), existing.Value.Bytes()...)
	}
	if err := status.CommitUpdate(models.ValueTypeString, seq, expiry); err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	if opts.get {
		if oldBytes == nil {
			sess.Writer.Null()
		} else {
			sess.Writer.BulkString(oldBytes)
		}
		return nil
	}
	sess.Writer.SimpleString("OK")
	return nil
}

func writeGetReply(sess *Session, e *storagedb.Entry) {
	sess.Writer.BulkString(e.Value.Bytes())
}

func cmdSetex(isMs bool) Handler {
	return func(sess *Session, args [][]byte) error {
		n, err := parseInteger(args[2])
		if err != nil || (!isMs && n <= 0) {
			sess.Writer.Error("ERR invalid expire time")
			return nil
		}
		expiry := nowMs() + n
		if !isMs {
			expiry = nowMs() + n*1000
		}
		tx := sess.TxMgr.Acquire()
		defer tx.Release()
		status, err := sess.DB.BeginRMW(tx, sess.DBNumber, args[1])
		if err != nil {
			sess.Writer.Error("ERR " + err.Error())
			return nil
		}
		seq := chunkstore.FromBytes(args[3], 0)
		if err := status.CommitUpdate(models.ValueTypeString, seq, expiry); err != nil {
			sess.Writer.Error("ERR " + err.Error())
			return nil
		}
		sess.Writer.SimpleString("OK")
		return nil
	}
}

func cmdSetnx(sess *Session, args [][]byte) error {
	tx := sess.TxMgr.Acquire()
	defer tx.Release()
	status, err := sess.DB.BeginRMW(tx, sess.DBNumber, args[1])
	if err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	if status.Existing() != nil {
		status.Abort()
		sess.Writer.Integer(0)
		return nil
	}
	seq := chunkstore.FromBytes(args[2], 0)
	if err := status.CommitUpdate(models.ValueTypeString, seq, models.NoExpiry); err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	sess.Writer.Integer(1)
	return nil
}

func cmdSetrange(sess *Session, args [][]byte) error {
	offset, err := parseInteger(args[2])
	if err != nil || offset < 0 {
		sess.Writer.Error("ERR offset is out of range")
		return nil
	}
	tx := sess.TxMgr.Acquire()
	defer tx.Release()
	status, err := sess.DB.BeginRMW(tx, sess.DBNumber, args[1])
	if err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	existing := status.Existing()
	var base []byte
	expiry := models.NoExpiry
	if existing != nil {
		if existing.ValueType != models.ValueTypeString {
			status.Abort()
			sess.Writer.Error(wrongTypeMsg)
			return nil
		}
		base = append([]byte(nil), existing.Value.Bytes()...)
		expiry = existing.ExpiryMs
	}
	needed := int(offset) + len(args[3])
	if len(base) < needed {
		grown := make([]byte, needed)
		copy(grown, base)
		base = grown
	}
	copy(base[offset:], args[3])
	seq := chunkstore.FromBytes(base, 0)
	if err := status.CommitUpdate(models.ValueTypeString, seq, expiry); err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	sess.Writer.Integer(int64(len(base)))
	return nil
}

func cmdGetset(sess *Session, args [][]byte) error {
	tx := sess.TxMgr.Acquire()
	defer tx.Release()
	status, err := sess.DB.BeginRMW(tx, sess.DBNumber, args[1])
	if err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	existing := status.Existing()
	var oldBytes []byte
	if existing != nil {
		oldBytes = append([]byte(nil), existing.Value.Bytes()...)
	}
	seq := chunkstore.FromBytes(args[2], 0)
	if err := status.CommitUpdate(models.ValueTypeString, seq, models.NoExpiry); err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	if oldBytes == nil {
		sess.Writer.Null()
	} else {
		sess.Writer.BulkString(oldBytes)
	}
	return nil
}

func cmdGetex(sess *Session, args [][]byte) error {
	tx := sess.TxMgr.Acquire()
	defer tx.Release()
	status, err := sess.DB.BeginRMW(tx, sess.DBNumber, args[1])
	if err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	existing := status.Existing()
	if existing == nil {
		status.Abort()
		sess.Writer.Null()
		return nil
	}
	body := append([]byte(nil), existing.Value.Bytes()...)
	expiry := existing.ExpiryMs
	persist := false
	for i := 2; i < len(args); i++ {
		switch strings.ToUpper(string(args[i])) {
		case "PERSIST":
			persist = true
		case "EX", "PX", "EXAT", "PXAT":
			if i+1 >= len(args) {
				status.Abort()
				sess.Writer.Error("ERR syntax error")
				return nil
			}
			n, perr := parseInteger(args[i+1])
			if perr != nil {
				status.Abort()
				sess.Writer.Error("ERR value is not an integer or out of range")
				return nil
			}
			switch strings.ToUpper(string(args[i])) {
			case "EX":
				expiry = nowMs() + n*1000
			case "PX":
				expiry = nowMs() + n
			case "EXAT":
				expiry = n * 1000
			case "PXAT":
				expiry = n
			}
			i++
		}
	}
	if persist {
		expiry = models.NoExpiry
	}
	if err := status.CommitMetadata(expiry); err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	sess.Writer.BulkString(body)
	return nil
}

func cmdGetdel(sess *Session, args [][]byte) error {
	tx := sess.TxMgr.Acquire()
	defer tx.Release()
	status, err := sess.DB.BeginRMW(tx, sess.DBNumber, args[1])
	if err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	existing := status.Existing()
	if existing == nil {
		status.Abort()
		sess.Writer.Null()
		return nil
	}
	body := append([]byte(nil), existing.Value.Bytes()...)
	if err := status.CommitDelete(); err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	sess.Writer.BulkString(body)
	return nil
}

func cmdAppend(sess *Session, args [][]byte) error {
	tx := sess.TxMgr.Acquire()
	defer tx.Release()
	status, err := sess.DB.BeginRMW(tx, sess.DBNumber, args[1])
	if err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	existing := status.Existing()
	var base []byte
	expiry := models.NoExpiry
	if existing != nil {
		if existing.ValueType != models.ValueTypeString {
			status.Abort()
			sess.Writer.Error(wrongTypeMsg)
			return nil
		}
		base = append([]byte(nil), existing.Value.Bytes()...)
		expiry = existing.ExpiryMs
	}
	base = append(base, args[2]...)
	seq := chunkstore.FromBytes(base, 0)
	if err := status.CommitUpdate(models.ValueTypeString, seq, expiry); err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	sess.Writer.Integer(int64(len(base)))
	return nil
}

func cmdIncrBy(delta int64) Handler {
	return func(sess *Session, args [][]byte) error {
		return incrByAndReply(sess, args[1], delta)
	}
}

func cmdIncrByArg(sign int64) Handler {
	return func(sess *Session, args [][]byte) error {
		n, err := parseInteger(args[2])
		if err != nil {
			sess.Writer.Error("ERR value is not an integer or out of range")
			return nil
		}
		return incrByAndReply(sess, args[1], sign*n)
	}
}

func incrByAndReply(sess *Session, key []byte, delta int64) error {
	tx := sess.TxMgr.Acquire()
	defer tx.Release()
	status, err := sess.DB.BeginRMW(tx, sess.DBNumber, key)
	if err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	existing := status.Existing()
	var current int64
	expiry := models.NoExpiry
	if existing != nil {
		if existing.ValueType != models.ValueTypeString {
			status.Abort()
			sess.Writer.Error(wrongTypeMsg)
			return nil
		}
		current, err = parseInteger(existing.Value.Bytes())
		if err != nil {
			status.Abort()
			sess.Writer.Error("ERR value is not an integer or out of range")
			return nil
		}
		expiry = existing.ExpiryMs
	}
	next := current + delta
	seq := chunkstore.FromBytes([]byte(itoa(next)), 0)
	if err := status.CommitUpdate(models.ValueTypeString, seq, expiry); err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	sess.Writer.Integer(next)
	return nil
}

func cmdIncrByFloat(sess *Session, args [][]byte) error {
	delta, err := parseDouble(args[2])
	if err != nil {
		sess.Writer.Error("ERR value is not a valid float")
		return nil
	}
	tx := sess.TxMgr.Acquire()
	defer tx.Release()
	status, err := sess.DB.BeginRMW(tx, sess.DBNumber, args[1])
	if err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	existing := status.Existing()
	var current float64
	expiry := models.NoExpiry
	if existing != nil {
		current, err = parseDouble(existing.Value.Bytes())
		if err != nil {
			status.Abort()
			sess.Writer.Error("ERR value is not a valid float")
			return nil
		}
		expiry = existing.ExpiryMs
	}
	next := current + delta
	formatted := ftoa(next)
	seq := chunkstore.FromBytes([]byte(formatted), 0)
	if err := status.CommitUpdate(models.ValueTypeString, seq, expiry); err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	sess.Writer.BulkString([]byte(formatted))
	return nil
}

func cmdMset(sess *Session, args [][]byte) error {
	if (len(args)-1)%2 != 0 {
		sess.Writer.Error("ERR wrong number of arguments for MSET")
		return nil
	}
	for i := 1; i < len(args); i += 2 {
		tx := sess.TxMgr.Acquire()
		status, err := sess.DB.BeginRMW(tx, sess.DBNumber, args[i])
		if err != nil {
			tx.Release()
			sess.Writer.Error("ERR " + err.Error())
			return nil
		}
		seq := chunkstore.FromBytes(args[i+1], 0)
		_ = status.CommitUpdate(models.ValueTypeString, seq, models.NoExpiry)
		tx.Release()
	}
	sess.Writer.SimpleString("OK")
	return nil
}

func cmdMsetnx(sess *Session, args [][]byte) error {
	if (len(args)-1)%2 != 0 {
		sess.Writer.Error("ERR wrong number of arguments for MSETNX")
		return nil
	}
	for i := 1; i < len(args); i += 2 {
		entry, err := sess.DB.Lookup(sess.DBNumber, args[i])
		if err != nil {
			sess.Writer.Error("ERR " + err.Error())
			return nil
		}
		if entry != nil {
			sess.DB.Release(entry)
			sess.Writer.Integer(0)
			return nil
		}
	}
	for i := 1; i < len(args); i += 2 {
		tx := sess.TxMgr.Acquire()
		status, err := sess.DB.BeginRMW(tx, sess.DBNumber, args[i])
		if err != nil {
			tx.Release()
			sess.Writer.Error("ERR " + err.Error())
			return nil
		}
		seq := chunkstore.FromBytes(args[i+1], 0)
		_ = status.CommitUpdate(models.ValueTypeString, seq, models.NoExpiry)
		tx.Release()
	}
	sess.Writer.Integer(1)
	return nil
}

func cmdMget(sess *Session, args [][]byte) error {
	sess.Writer.ArrayHeader(len(args) - 1)
	for _, key := range args[1:] {
		entry, err := sess.DB.Lookup(sess.DBNumber, key)
		if err != nil || entry == nil {
			sess.Writer.Null()
			continue
		}
		if entry.ValueType != models.ValueTypeString {
			sess.DB.Release(entry)
			sess.Writer.Null()
			continue
		}
		sess.Writer.BulkString(entry.Value.Bytes())
		sess.DB.Release(entry)
	}
	return nil
}

func cmdCopy(sess *Session, args [][]byte) error {
	replace := false
	if len(args) == 4 && strings.EqualFold(string(args[3]), "REPLACE") {
		replace = true
	}
	tx := sess.TxMgr.Acquire()
	defer tx.Release()
	src, err := sess.DB.BeginRMW(tx, sess.DBNumber, args[1])
	if err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	if src.Existing() == nil {
		src.Abort()
		sess.Writer.Integer(0)
		return nil
	}
	dst, err := sess.DB.BeginRMW(tx, sess.DBNumber, args[2])
	if err != nil {
		src.Abort()
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	if dst.Existing() != nil && !replace {
		src.Abort()
		dst.Abort()
		sess.Writer.Integer(0)
		return nil
	}
	existing := src.Existing()
	body := append([]byte(nil), existing.Value.Bytes()...)
	seq := chunkstore.FromBytes(body, 0)
	src.Abort()
	if err := dst.CommitUpdate(existing.ValueType, seq, existing.ExpiryMs); err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	sess.Writer.Integer(1)
	return nil
}

func cmdRenamenx(sess *Session, args [][]byte) error {
	tx := sess.TxMgr.Acquire()
	defer tx.Release()
	src, err := sess.DB.BeginRMW(tx, sess.DBNumber, args[1])
	if err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	dst, err := sess.DB.BeginRMW(tx, sess.DBNumber, args[2])
	if err != nil {
		src.Abort()
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	if err := storagedb.CommitRename(src, dst, false); err != nil {
		if err == models.ErrKeyExists || err == models.ErrNotFound {
			sess.Writer.Integer(0)
			return nil
		}
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	sess.Writer.Integer(1)
	return nil
}

func cmdExists(sess *Session, args [][]byte) error {
	var count int64
	for _, key := range args[1:] {
		entry, err := sess.DB.Lookup(sess.DBNumber, key)
		if err == nil && entry != nil {
			count++
			sess.DB.Release(entry)
		}
	}
	sess.Writer.Integer(count)
	return nil
}

func cmdType(sess *Session, args [][]byte) error {
	entry, err := sess.DB.Lookup(sess.DBNumber, args[1])
	if err != nil || entry == nil {
		sess.Writer.SimpleString("none")
		return nil
	}
	defer sess.DB.Release(entry)
	sess.Writer.SimpleString(entry.ValueType.String())
	return nil
}

func cmdExpire(unitMs int64, absolute bool) Handler {
	return func(sess *Session, args [][]byte) error {
		n, err := parseInteger(args[2])
		if err != nil {
			sess.Writer.Error("ERR value is not an integer or out of range")
			return nil
		}
		var expiry int64
		if absolute {
			expiry = n * unitMs
		} else {
			expiry = nowMs() + n*unitMs
		}
		cond := ""
		if len(args) == 4 {
			cond = strings.ToUpper(string(args[3]))
		}
		tx := sess.TxMgr.Acquire()
		defer tx.Release()
		status, err := sess.DB.BeginRMW(tx, sess.DBNumber, args[1])
		if err != nil {
			sess.Writer.Error("ERR " + err.Error())
			return nil
		}
		existing := status.Existing()
		if existing == nil {
			status.Abort()
			sess.Writer.Integer(0)
			return nil
		}
		if !expireConditionMet(cond, existing.ExpiryMs, expiry) {
			status.Abort()
			sess.Writer.Integer(0)
			return nil
		}
		if err := status.CommitMetadata(expiry); err != nil {
			sess.Writer.Error("ERR " + err.Error())
			return nil
		}
		sess.Writer.Integer(1)
		return nil
	}
}

func expireConditionMet(cond string, currentExpiry, newExpiry int64) bool {
	switch cond {
	case "NX":
		return currentExpiry == models.NoExpiry
	case "XX":
		return currentExpiry != models.NoExpiry
	case "GT":
		return currentExpiry != models.NoExpiry && newExpiry > currentExpiry
	case "LT":
		return currentExpiry == models.NoExpiry || newExpiry < currentExpiry
	default:
		return true
	}
}

func cmdPersist(sess *Session, args [][]byte) error {
	tx := sess.TxMgr.Acquire()
	defer tx.Release()
	status, err := sess.DB.BeginRMW(tx, sess.DBNumber, args[1])
	if err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	existing := status.Existing()
	if existing == nil || existing.ExpiryMs == models.NoExpiry {
		status.Abort()
		sess.Writer.Integer(0)
		return nil
	}
	if err := status.CommitMetadata(models.NoExpiry); err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	sess.Writer.Integer(1)
	return nil
}

func cmdTTL(unitMs int64) Handler {
	return func(sess *Session, args [][]byte) error {
		entry, err := sess.DB.Lookup(sess.DBNumber, args[1])
		if err != nil || entry == nil {
			sess.Writer.Integer(-2)
			return nil
		}
		defer sess.DB.Release(entry)
		if entry.ExpiryMs == models.NoExpiry {
			sess.Writer.Integer(-1)
			return nil
		}
		remaining := entry.ExpiryMs - nowMs()
		if remaining < 0 {
			remaining = 0
		}
		sess.Writer.Integer(remaining / unitMs)
		return nil
	}
}

func cmdExpireTime(unitMs int64) Handler {
	return func(sess *Session, args [][]byte) error {
		entry, err := sess.DB.Lookup(sess.DBNumber, args[1])
		if err != nil || entry == nil {
			sess.Writer.Integer(-2)
			return nil
		}
		defer sess.DB.Release(entry)
		if entry.ExpiryMs == models.NoExpiry {
			sess.Writer.Integer(-1)
			return nil
		}
		sess.Writer.Integer(entry.ExpiryMs / unitMs)
		return nil
	}
}

func cmdDel(sess *Session, args [][]byte) error {
	var count int64
	for _, key := range args[1:] {
		tx := sess.TxMgr.Acquire()
		status, err := sess.DB.BeginRMW(tx, sess.DBNumber, key)
		if err != nil {
			tx.Release()
			continue
		}
		if status.Existing() == nil {
			status.Abort()
			tx.Release()
			continue
		}
		if err := status.CommitDelete(); err == nil {
			count++
		}
		tx.Release()
	}
	sess.Writer.Integer(count)
	return nil
}

func cmdKeys(sess *Session, args [][]byte) error {
	keys, err := sess.DB.Keys(sess.DBNumber)
	if err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	pattern := string(args[1])
	var matched [][]byte
	for _, k := range keys {
		if globMatch(pattern, string(k)) {
			matched = append(matched, k)
		}
	}
	sess.Writer.ArrayHeader(len(matched))
	for _, k := range matched {
		sess.Writer.BulkString(k)
	}
	return nil
}

func cmdScan(sess *Session, args [][]byte) error {
	cursor, err := parseInteger(args[1])
	if err != nil || cursor < 0 {
		sess.Writer.Error("ERR invalid cursor")
		return nil
	}
	pattern := "*"
	count := 10
	for i := 2; i < len(args)-1; i += 2 {
		switch strings.ToUpper(string(args[i])) {
		case "MATCH":
			pattern = string(args[i+1])
		case "COUNT":
			if n, perr := parseInteger(args[i+1]); perr == nil && n > 0 {
				count = int(n)
			}
		}
	}
	results, next, err := sess.DB.Scan(sess.DBNumber, uint64(cursor), count)
	if err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	sess.Writer.ArrayHeader(2)
	sess.Writer.BulkString([]byte(itoa(int64(next))))
	var matched [][]byte
	for _, r := range results {
		if globMatch(pattern, string(r.Key)) {
			matched = append(matched, r.Key)
		}
	}
	sess.Writer.ArrayHeader(len(matched))
	for _, k := range matched {
		sess.Writer.BulkString(k)
	}
	return nil
}

func cmdGetrange(sess *Session, args [][]byte) error {
	start, err1 := parseInteger(args[2])
	end, err2 := parseInteger(args[3])
	if err1 != nil || err2 != nil {
		sess.Writer.Error("ERR value is not an integer or out of range")
		return nil
	}
	entry, err := sess.DB.Lookup(sess.DBNumber, args[1])
	if err != nil || entry == nil {
		sess.Writer.BulkString(nil)
		return nil
	}
	defer sess.DB.Release(entry)
	body := entry.Value.Bytes()
	s, e := normalizeRange(start, end, len(body))
	if s > e {
		sess.Writer.BulkString(nil)
		return nil
	}
	sess.Writer.BulkString(body[s : e+1])
	return nil
}

func normalizeRange(start, end int64, length int) (int, int) {
	if length == 0 {
		return 0, -1
	}
	if start < 0 {
		start += int64(length)
	}
	if end < 0 {
		end += int64(length)
	}
	if start < 0 {
		start = 0
	}
	if end >= int64(length) {
		end = int64(length) - 1
	}
	return int(start), int(end)
}

func cmdStrlen(sess *Session, args [][]byte) error {
	entry, err := sess.DB.Lookup(sess.DBNumber, args[1])
	if err != nil || entry == nil {
		sess.Writer.Integer(0)
		return nil
	}
	defer sess.DB.Release(entry)
	sess.Writer.Integer(entry.Value.Size())
	return nil
}

func cmdBitcount(sess *Session, args [][]byte) error {
	entry, err := sess.DB.Lookup(sess.DBNumber, args[1])
	if err != nil || entry == nil {
		sess.Writer.Integer(0)
		return nil
	}
	defer sess.DB.Release(entry)
	body := entry.Value.Bytes()
	if len(args) >= 4 {
		start, err1 := parseInteger(args[2])
		end, err2 := parseInteger(args[3])
		if err1 != nil || err2 != nil {
			sess.Writer.Error("ERR value is not an integer or out of range")
			return nil
		}
		s, e := normalizeRange(start, end, len(body))
		if s <= e {
			body = body[s : e+1]
		} else {
			body = nil
		}
	}
	var count int64
	for _, b := range body {
		count += int64(popcount(b))
	}
	sess.Writer.Integer(count)
	return nil
}

func popcount(b byte) int {
	n := 0
	for b != 0 {
		n += int(b & 1)
		b >>= 1
	}
	return n
}

// cmdLCS implements LCS key1 key2 [LEN] [IDX] [MINMATCHLEN n] [WITHMATCHLEN],
// the full option set of original_source/'s module_redis_command_lcs.c:
// IDX reports the list of matching ranges in each string instead of the
// subsequence itself, MINMATCHLEN drops ranges shorter than n, and
// WITHMATCHLEN annotates each range with its length. LEN and IDX are
// mutually exclusive, matching the original's own validation.
func cmdLCS(sess *Session, args [][]byte) error {
	a, err1 := sess.DB.Lookup(sess.DBNumber, args[1])
	b, err2 := sess.DB.Lookup(sess.DBNumber, args[2])
	if err1 == nil && a != nil {
		defer sess.DB.Release(a)
	}
	if err2 == nil && b != nil {
		defer sess.DB.Release(b)
	}
	var x, y []byte
	if a != nil {
		x = a.Value.Bytes()
	}
	if b != nil {
		y = b.Value.Bytes()
	}

	wantLen, wantIdx, withMatchLen := false, false, false
	minMatchLen := 0
	for i := 3; i < len(args); i++ {
		switch strings.ToUpper(string(args[i])) {
		case "LEN":
			wantLen = true
		case "IDX":
			wantIdx = true
		case "WITHMATCHLEN":
			withMatchLen = true
		case "MINMATCHLEN":
			if i+1 >= len(args) {
				sess.Writer.Error("ERR syntax error")
				return nil
			}
			i++
			n, err := parseInteger(args[i])
			if err != nil {
				sess.Writer.Error("ERR MINMATCHLEN is not an integer or out of range")
				return nil
			}
			minMatchLen = int(n)
		default:
			sess.Writer.Error("ERR syntax error")
			return nil
		}
	}
	if wantLen && wantIdx {
		sess.Writer.Error("ERR If you want both the length and indexes, please just use IDX")
		return nil
	}

	dp, lcs := lcsTable(x, y)

	if wantLen {
		sess.Writer.Integer(int64(len(lcs)))
		return nil
	}
	if !wantIdx {
		sess.Writer.BulkString(lcs)
		return nil
	}

	matches := lcsMatches(dp, x, y, minMatchLen)
	sess.Writer.MapHeader(2)
	sess.Writer.BulkString([]byte("matches"))
	sess.Writer.ArrayHeader(len(matches))
	for _, m := range matches {
		fields := 2
		if withMatchLen {
			fields = 3
		}
		sess.Writer.ArrayHeader(fields)
		sess.Writer.ArrayHeader(2)
		sess.Writer.Integer(int64(m.aStart))
		sess.Writer.Integer(int64(m.aEnd))
		sess.Writer.ArrayHeader(2)
		sess.Writer.Integer(int64(m.bStart))
		sess.Writer.Integer(int64(m.bEnd))
		if withMatchLen {
			sess.Writer.Integer(int64(m.length))
		}
	}
	sess.Writer.BulkString([]byte("len"))
	sess.Writer.Integer(int64(len(lcs)))
	return nil
}

func longestCommonSubsequence(a, b []byte) []byte {
	_, lcs := lcsTable(a, b)
	return lcs
}

// lcsTable builds the classic O(n*m) LCS dynamic-programming table and
// reconstructs the subsequence itself, reused by both LEN/plain and IDX
// output modes so the table is only built once.
func lcsTable(a, b []byte) ([][]int, []byte) {
	n, m := len(a), len(b)
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else if dp[i-1][j] > dp[i][j-1] {
				dp[i][j] = dp[i-1][j]
			} else {
				dp[i][j] = dp[i][j-1]
			}
		}
	}
	out := make([]byte, dp[n][m])
	i, j, k := n, m, len(out)
	for i > 0 && j > 0 {
		switch {
		case a[i-1] == b[j-1]:
			k--
			out[k] = a[i-1]
			i--
			j--
		case dp[i-1][j] > dp[i][j-1]:
			i--
		default:
			j--
		}
	}
	return dp, out
}

type lcsMatch struct {
	aStart, aEnd, bStart, bEnd, length int
}

// lcsMatches walks dp from (n, m) back to (0, 0) collecting every matched
// character position, then groups consecutive positions (in both strings)
// into ranges for LCS IDX's "matches" reply, dropping any range shorter
// than minMatchLen.
func lcsMatches(dp [][]int, a, b []byte, minMatchLen int) []lcsMatch {
	type pos struct{ a, b int }
	var pairs []pos

	i, j := len(a), len(b)
	for i > 0 && j > 0 {
		switch {
		case a[i-1] == b[j-1]:
			pairs = append(pairs, pos{i - 1, j - 1})
			i--
			j--
		case dp[i-1][j] > dp[i][j-1]:
			i--
		default:
			j--
		}
	}
	for l, r := 0, len(pairs)-1; l < r; l, r = l+1, r-1 {
		pairs[l], pairs[r] = pairs[r], pairs[l]
	}

	var matches []lcsMatch
	for k := 0; k < len(pairs); {
		start := k
		for k+1 < len(pairs) && pairs[k+1].a == pairs[k].a+1 && pairs[k+1].b == pairs[k].b+1 {
			k++
		}
		length := k - start + 1
		if length >= minMatchLen {
			matches = append(matches, lcsMatch{
				aStart: pairs[start].a, aEnd: pairs[k].a,
				bStart: pairs[start].b, bEnd: pairs[k].b,
				length: length,
			})
		}
		k++
	}

	for l, r := 0, len(matches)-1; l < r; l, r = l+1, r-1 {
		matches[l], matches[r] = matches[r], matches[l]
	}
	return matches
}

func cmdFlushdb(sess *Session, args [][]byte) error {
	if err := sess.DB.FlushDB(sess.DBNumber); err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	sess.Writer.SimpleString("OK")
	return nil
}

func cmdDbsize(sess *Session, args [][]byte) error {
	n, err := sess.DB.DBSize(sess.DBNumber)
	if err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	sess.Writer.Integer(n)
	return nil
}

func cmdConfig(sess *Session, args [][]byte) error {
	sub := strings.ToUpper(string(args[1]))
	switch sub {
	case "GET":
		patterns := args[2:]
		matched := make([]string, 0, len(sess.Limits.Params))
		seen := make(map[string]struct{}, len(sess.Limits.Params))
		for name := range sess.Limits.Params {
			for _, p := range patterns {
				if globMatch(strings.ToLower(string(p)), strings.ToLower(name)) {
					if _, ok := seen[name]; !ok {
						seen[name] = struct{}{}
						matched = append(matched, name)
					}
					break
				}
			}
		}
		sort.Strings(matched)
		sess.Writer.MapHeader(len(matched))
		for _, name := range matched {
			sess.Writer.BulkString([]byte(name))
			sess.Writer.BulkString([]byte(sess.Limits.Params[name]))
		}
	default:
		sess.Writer.Error("ERR unsupported CONFIG subcommand")
	}
	return nil
}

func cmdBgsave(sess *Session, args [][]byte) error {
	if sess.Snapshotter == nil {
		sess.Writer.Error("ERR snapshotting is not configured")
		return nil
	}
	sess.Snapshotter.TriggerAsync()
	sess.Writer.SimpleString("Background saving started")
	return nil
}

func cmdSave(sess *Session, args [][]byte) error {
	if sess.Snapshotter == nil {
		sess.Writer.Error("ERR snapshotting is not configured")
		return nil
	}
	if err := sess.Snapshotter.RunSync(); err != nil {
		sess.Writer.Error("ERR " + err.Error())
		return nil
	}
	sess.Writer.SimpleString("OK")
	return nil
}

// --- small local helpers kept free of extra deps for the hot command path ---

func itoa(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func ftoa(f float64) string {
	s := strconv.FormatFloat(f, 'f', 17, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	return s
}
