package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvstore/netio"
	"kvstore/resp"
	"kvstore/storagedb"
	"kvstore/txlock"
)

func newTestSession(t *testing.T) (*Session, *netio.SendBuffer) {
	t.Helper()
	db := storagedb.New(storagedb.DefaultConfig())
	mgr := txlock.NewManager(0)
	send := netio.NewSendBuffer(0)
	writer := resp.NewWriter(send, false)
	sess := NewSession(db, mgr, writer, Limits{})
	return sess, send
}

func dispatch(t *testing.T, r *Registry, sess *Session, send *netio.SendBuffer, args ...string) string {
	t.Helper()
	byteArgs := make([][]byte, len(args))
	for i, a := range args {
		byteArgs[i] = []byte(a)
	}
	require.NoError(t, r.Dispatch(sess, byteArgs))
	out := string(send.Pending())
	send.Reset()
	return out
}

func TestSetAndGetRoundTrip(t *testing.T) {
	r := NewRegistry()
	sess, send := newTestSession(t)

	assert.Equal(t, "+OK\r\n", dispatch(t, r, sess, send, "SET", "foo", "bar"))
	assert.Equal(t, "$3\r\nbar\r\n", dispatch(t, r, sess, send, "GET", "foo"))
}

func TestGetMissingKeyReturnsNull(t *testing.T) {
	r := NewRegistry()
	sess, send := newTestSession(t)

	assert.Equal(t, "$-1\r\n", dispatch(t, r, sess, send, "GET", "missing"))
}

func TestDelRemovesKey(t *testing.T) {
	r := NewRegistry()
	sess, send := newTestSession(t)

	dispatch(t, r, sess, send, "SET", "foo", "bar")
	assert.Equal(t, ":1\r\n", dispatch(t, r, sess, send, "DEL", "foo"))
	assert.Equal(t, "$-1\r\n", dispatch(t, r, sess, send, "GET", "foo"))
}

func TestIncrByAndDecr(t *testing.T) {
	r := NewRegistry()
	sess, send := newTestSession(t)

	dispatch(t, r, sess, send, "SET", "c", "10")
	assert.Equal(t, ":11\r\n", dispatch(t, r, sess, send, "INCR", "c"))
	assert.Equal(t, ":16\r\n", dispatch(t, r, sess, send, "INCRBY", "c", "5"))
	assert.Equal(t, ":15\r\n", dispatch(t, r, sess, send, "DECR", "c"))
}

func TestIncrOnNonIntegerReturnsError(t *testing.T) {
	r := NewRegistry()
	sess, send := newTestSession(t)

	dispatch(t, r, sess, send, "SET", "c", "abc")
	out := dispatch(t, r, sess, send, "INCR", "c")
	assert.Contains(t, out, "not an integer")
}

func TestExpireAndTTL(t *testing.T) {
	r := NewRegistry()
	sess, send := newTestSession(t)

	dispatch(t, r, sess, send, "SET", "k", "v")
	assert.Equal(t, ":1\r\n", dispatch(t, r, sess, send, "EXPIRE", "k", "100"))
	out := dispatch(t, r, sess, send, "TTL", "k")
	assert.NotEqual(t, ":-1\r\n", out)
	assert.NotEqual(t, ":-2\r\n", out)
}

func TestPersistClearsExpiry(t *testing.T) {
	r := NewRegistry()
	sess, send := newTestSession(t)

	dispatch(t, r, sess, send, "SET", "k", "v", "EX", "100")
	assert.Equal(t, ":1\r\n", dispatch(t, r, sess, send, "PERSIST", "k"))
	assert.Equal(t, ":-1\r\n", dispatch(t, r, sess, send, "TTL", "k"))
}

func TestSetnxRefusesExistingKey(t *testing.T) {
	r := NewRegistry()
	sess, send := newTestSession(t)

	assert.Equal(t, ":1\r\n", dispatch(t, r, sess, send, "SETNX", "k", "v1"))
	assert.Equal(t, ":0\r\n", dispatch(t, r, sess, send, "SETNX", "k", "v2"))
	assert.Equal(t, "$2\r\nv1\r\n", dispatch(t, r, sess, send, "GET", "k"))
}

func TestMsetAndMget(t *testing.T) {
	r := NewRegistry()
	sess, send := newTestSession(t)

	dispatch(t, r, sess, send, "MSET", "a", "1", "b", "2")
	assert.Equal(t, "*3\r\n$1\r\n1\r\n$1\r\n2\r\n$-1\r\n", dispatch(t, r, sess, send, "MGET", "a", "b", "c"))
}

func TestAppendGrowsValue(t *testing.T) {
	r := NewRegistry()
	sess, send := newTestSession(t)

	dispatch(t, r, sess, send, "SET", "k", "Hello")
	assert.Equal(t, ":11\r\n", dispatch(t, r, sess, send, "APPEND", "k", " World"))
	assert.Equal(t, "$11\r\nHello World\r\n", dispatch(t, r, sess, send, "GET", "k"))
}

func TestStrlenAndExists(t *testing.T) {
	r := NewRegistry()
	sess, send := newTestSession(t)

	dispatch(t, r, sess, send, "SET", "k", "hello")
	assert.Equal(t, ":5\r\n", dispatch(t, r, sess, send, "STRLEN", "k"))
	assert.Equal(t, ":1\r\n", dispatch(t, r, sess, send, "EXISTS", "k"))
	assert.Equal(t, ":0\r\n", dispatch(t, r, sess, send, "EXISTS", "missing"))
}

func TestCopyWithAndWithoutReplace(t *testing.T) {
	r := NewRegistry()
	sess, send := newTestSession(t)

	dispatch(t, r, sess, send, "SET", "src", "v1")
	dispatch(t, r, sess, send, "SET", "dst", "v2")
	assert.Equal(t, ":0\r\n", dispatch(t, r, sess, send, "COPY", "src", "dst"))
	assert.Equal(t, ":1\r\n", dispatch(t, r, sess, send, "COPY", "src", "dst", "REPLACE"))
	assert.Equal(t, "$2\r\nv1\r\n", dispatch(t, r, sess, send, "GET", "dst"))
}

func TestHelloRejectsUnsupportedProtover(t *testing.T) {
	r := NewRegistry()
	sess, send := newTestSession(t)

	out := dispatch(t, r, sess, send, "HELLO", "4")
	assert.Contains(t, out, "NOPROTO unsupported protocol version")
	assert.False(t, sess.Resp3, "a rejected HELLO must not change the negotiated protocol")
}

func TestHelloAcceptsProtover2And3(t *testing.T) {
	r := NewRegistry()
	sess, send := newTestSession(t)

	out := dispatch(t, r, sess, send, "HELLO", "3")
	assert.Contains(t, out, "kvstore")
	assert.True(t, sess.Resp3)

	dispatch(t, r, sess, send, "HELLO", "2")
	assert.False(t, sess.Resp3)
}

func TestSetRejectsBothNxAndXx(t *testing.T) {
	r := NewRegistry()
	sess, send := newTestSession(t)

	out := dispatch(t, r, sess, send, "SET", "k", "v", "NX", "XX")
	assert.Contains(t, out, "ERR syntax error")
}

func TestUnknownCommandRepliesError(t *testing.T) {
	r := NewRegistry()
	sess, send := newTestSession(t)

	out := dispatch(t, r, sess, send, "NOPE")
	assert.Contains(t, out, "ERR unknown command")
}

func TestWrongArgCountRepliesError(t *testing.T) {
	r := NewRegistry()
	sess, send := newTestSession(t)

	out := dispatch(t, r, sess, send, "GET")
	assert.Contains(t, out, "wrong number of arguments")
}

func TestAuthGateBlocksUntilAuthenticated(t *testing.T) {
	r := NewRegistry()
	db := storagedb.New(storagedb.DefaultConfig())
	mgr := txlock.NewManager(0)
	send := netio.NewSendBuffer(0)
	writer := resp.NewWriter(send, false)
	hash, err := HashPassword("secret")
	require.NoError(t, err)
	sess := NewSession(db, mgr, writer, Limits{AuthMode: AuthPassword, AuthPasswordHash: hash})

	out := dispatch(t, r, sess, send, "GET", "k")
	assert.Contains(t, out, "NOAUTH")

	out = dispatch(t, r, sess, send, "AUTH", "secret")
	assert.Equal(t, "+OK\r\n", out)

	out = dispatch(t, r, sess, send, "GET", "k")
	assert.Equal(t, "$-1\r\n", out)
}

func TestKeysFilterByPattern(t *testing.T) {
	r := NewRegistry()
	sess, send := newTestSession(t)

	dispatch(t, r, sess, send, "SET", "user:1", "a")
	dispatch(t, r, sess, send, "SET", "user:2", "b")
	dispatch(t, r, sess, send, "SET", "order:1", "c")

	out := dispatch(t, r, sess, send, "KEYS", "user:*")
	assert.Contains(t, out, "user:1")
	assert.Contains(t, out, "user:2")
	assert.NotContains(t, out, "order:1")
}

func TestGlobMatchPatterns(t *testing.T) {
	assert.True(t, globMatch("user:*", "user:123"))
	assert.True(t, globMatch("h?llo", "hello"))
	assert.True(t, globMatch("h[ae]llo", "hallo"))
	assert.False(t, globMatch("h[ae]llo", "hbllo"))
	assert.True(t, globMatch("*", "anything"))
}
