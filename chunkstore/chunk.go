// Package chunkstore implements the Chunk and Chunk Sequence value
// representation of spec.md §4.5: values are stored as an ordered sequence
// of fixed-size chunks, each either held inline in memory or backed by a
// storage channel staged into a caller-owned buffer on read.
//
// Grounded on the teacher's buffer-pool idiom (storage/pools/pools.go's
// tiered sync.Pool buffers) for the staging-buffer fast path, and on
// storage/binary/format.go's fixed-record chunking for the
// allocate-by-size/write/read shape.
package chunkstore

import (
	"io"
	"sync"

	"kvstore/models"
)

// ChunkMaxSize is the default upper bound on one chunk's region size
// (spec.md §3: "typical 64 KiB"). Configurable per Store for tests that
// want small chunks to exercise multi-chunk sequences cheaply.
const ChunkMaxSize = 64 * 1024

// stagingPool recycles the buffers used to stage channel-backed chunk reads,
// the same tiered-pool idea as the teacher's storage/pools.LargeBufferPool.
var stagingPool = sync.Pool{
	New: func() any {
		b := make([]byte, ChunkMaxSize)
		return &b
	},
}

func getStagingBuffer(size int) []byte {
	bp := stagingPool.Get().(*[]byte)
	if cap(*bp) < size {
		*bp = make([]byte, size)
	}
	return (*bp)[:size]
}

func putStagingBuffer(buf []byte) {
	b := buf[:cap(buf)]
	stagingPool.Put(&b)
}

// Channel is the storage-channel backing interface a Chunk may read through
// instead of holding bytes inline (spec.md §3, "a chunk is either in-memory
// or backed by a storage channel").
type Channel interface {
	ReadAt(p []byte, off int64) (n int, err error)
}

// Chunk is a fixed-size byte region carrying chunkLength <= region size. It
// is either backed by an in-memory slice (the fast path) or by a Channel at
// a given offset, staged into a pooled buffer on read.
type Chunk struct {
	length int

	data []byte // in-memory fast path; nil when channel-backed

	channel       Channel
	channelOffset int64
}

// NewInlineChunk creates a chunk wholly backed by memory, sized to cap.
func NewInlineChunk(capSize int) *Chunk {
	return &Chunk{data: make([]byte, capSize)}
}

// NewChannelChunk creates a chunk backed by a storage channel at the given
// offset, covering length bytes.
func NewChannelChunk(ch Channel, offset int64, length int) *Chunk {
	return &Chunk{channel: ch, channelOffset: offset, length: length}
}

// Length returns the chunk's occupied length (<= its region capacity).
func (c *Chunk) Length() int { return c.length }

// Write copies buf into the chunk at offset, bounded by the chunk's region
// capacity, and grows chunkLength to cover the written range. Returns
// models.ErrInvalidInput if the write would overflow the chunk's capacity.
func (c *Chunk) Write(offset int, buf []byte) error {
	if c.data == nil {
		return models.ErrInvalidInput // channel-backed chunks are read-only here
	}
	if offset < 0 || offset+len(buf) > cap(c.data) {
		return models.ErrInvalidInput
	}
	if offset+len(buf) > len(c.data) {
		c.data = c.data[:offset+len(buf)]
	}
	copy(c.data[offset:], buf)
	if offset+len(buf) > c.length {
		c.length = offset + len(buf)
	}
	return nil
}

// Read returns up to n bytes starting at offset. For in-memory chunks this
// returns a direct slice (no copy, no allocation). For channel-backed
// chunks it stages the bytes into a pooled buffer, returns
// allocatedNewBuffer=true, and the caller must call ReleaseStaged on the
// returned slice once done — matching spec.md §4.5's "caller must free it".
func (c *Chunk) Read(offset, n int) (data []byte, allocatedNewBuffer bool, err error) {
	if offset < 0 || offset > c.length {
		return nil, false, models.ErrInvalidInput
	}
	if offset+n > c.length {
		n = c.length - offset
	}
	if c.data != nil {
		return c.data[offset : offset+n], false, nil
	}

	buf := getStagingBuffer(n)
	read, err := c.channel.ReadAt(buf, c.channelOffset+int64(offset))
	if err != nil && err != io.EOF {
		putStagingBuffer(buf)
		return nil, false, err
	}
	return buf[:read], true, nil
}

// ReleaseStaged returns a buffer obtained from a channel-backed Read (one
// where allocatedNewBuffer was true) to the pool. Callers must not call this
// on an in-memory chunk's slice — doing so would return live chunk data to
// the pool for reuse.
func ReleaseStaged(buf []byte) {
	putStagingBuffer(buf)
}
