package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryLookupIsCaseInsensitive(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Lookup("get")
	assert.True(t, ok)
	_, ok = r.Lookup("GET")
	assert.True(t, ok)
	_, ok = r.Lookup("GeT")
	assert.True(t, ok)
}

func TestRegistryLookupMissingCommand(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Lookup("NOSUCHCOMMAND")
	assert.False(t, ok)
}

func TestRegistryCoversCoreCommandSurface(t *testing.T) {
	r := NewRegistry()

	for _, name := range []string{
		"HELLO", "PING", "AUTH", "SELECT", "SHUTDOWN",
		"GET", "SET", "SETEX", "PSETEX", "SETNX", "GETSET", "GETEX", "GETDEL",
		"APPEND", "INCR", "DECR", "INCRBY", "DECRBY", "INCRBYFLOAT",
		"MSET", "MSETNX", "MGET", "COPY", "RENAMENX",
		"EXISTS", "TOUCH", "TYPE", "EXPIRE", "PEXPIRE", "EXPIREAT", "PEXPIREAT",
		"PERSIST", "TTL", "PTTL", "EXPIRETIME", "DEL", "UNLINK",
		"KEYS", "SCAN", "GETRANGE", "SUBSTR", "STRLEN", "BITCOUNT", "LCS",
		"FLUSHDB", "DBSIZE", "CONFIG", "BGSAVE", "SAVE",
	} {
		_, ok := r.Lookup(name)
		assert.True(t, ok, "expected %s to be registered", name)
	}
}
