package chunkstore

import "kvstore/models"

// Sequence is an ordered list of Chunks with a total size, matching
// spec.md §3's Chunk Sequence: the sum of chunk lengths equals size, and
// every chunk but possibly the last is full. Sequences are immutable once
// published — updates replace the whole sequence (see storagedb's
// commit_update) and the old one is retired to the epoch GC.
type Sequence struct {
	chunks []*Chunk
	size   int64
}

// Allocate returns a Sequence of ceil(size/chunkMax) in-memory chunks, per
// spec.md §4.5 sequence_allocate.
func Allocate(size int64, chunkMax int) *Sequence {
	if chunkMax <= 0 {
		chunkMax = ChunkMaxSize
	}
	if size == 0 {
		return &Sequence{}
	}
	n := int((size + int64(chunkMax) - 1) / int64(chunkMax))
	chunks := make([]*Chunk, n)
	remaining := size
	for i := 0; i < n; i++ {
		this := int64(chunkMax)
		if remaining < this {
			this = remaining
		}
		chunks[i] = NewInlineChunk(int(this))
		remaining -= this
	}
	return &Sequence{chunks: chunks, size: size}
}

// FromBytes builds a Sequence holding buf's contents, splitting across
// chunkMax-sized chunks the same way Allocate does.
func FromBytes(buf []byte, chunkMax int) *Sequence {
	seq := Allocate(int64(len(buf)), chunkMax)
	_ = seq.WriteAt(0, buf)
	return seq
}

// Size returns the sequence's total byte length.
func (s *Sequence) Size() int64 { return s.size }

// Count returns the number of chunks in the sequence.
func (s *Sequence) Count() int { return len(s.chunks) }

// WriteAt writes buf into the sequence starting at byte offset, spanning as
// many chunks as required. offset+len(buf) must not exceed the sequence's
// allocated size.
func (s *Sequence) WriteAt(offset int64, buf []byte) error {
	if offset < 0 || offset+int64(len(buf)) > s.size {
		return models.ErrInvalidInput
	}
	if len(s.chunks) == 0 {
		return nil
	}
	chunkMax := cap(s.chunks[0].data)
	remaining := buf
	pos := offset
	for len(remaining) > 0 {
		ci := int(pos / int64(chunkMax))
		within := int(pos % int64(chunkMax))
		n := chunkMax - within
		if n > len(remaining) {
			n = len(remaining)
		}
		if err := s.chunks[ci].Write(within, remaining[:n]); err != nil {
			return err
		}
		remaining = remaining[n:]
		pos += int64(n)
	}
	return nil
}

// ReadAt reads length bytes starting at offset, copying across chunk
// boundaries into a single owned buffer (the multi-chunk case always
// allocates, since spec.md's per-chunk zero-copy fast path only applies
// within one chunk).
func (s *Sequence) ReadAt(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > s.size {
		return nil, models.ErrInvalidInput
	}
	if length == 0 {
		return nil, nil
	}
	if len(s.chunks) == 0 {
		return nil, nil
	}
	chunkMax := cap(s.chunks[0].data)

	// Single-chunk fast path: return a direct slice, no copy.
	startChunk := int(offset / int64(chunkMax))
	endByte := offset + length - 1
	endChunk := int(endByte / int64(chunkMax))
	if startChunk == endChunk {
		within := int(offset % int64(chunkMax))
		data, allocated, err := s.chunks[startChunk].Read(within, int(length))
		if err != nil {
			return nil, err
		}
		if allocated {
			defer ReleaseStaged(data)
			out := make([]byte, len(data))
			copy(out, data)
			return out, nil
		}
		return data, nil
	}

	out := make([]byte, 0, length)
	pos := offset
	remaining := length
	for remaining > 0 {
		ci := int(pos / int64(chunkMax))
		within := int(pos % int64(chunkMax))
		n := int64(chunkMax - within)
		if n > remaining {
			n = remaining
		}
		data, allocated, err := s.chunks[ci].Read(within, int(n))
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
		if allocated {
			ReleaseStaged(data)
		}
		pos += n
		remaining -= n
	}
	return out, nil
}

// Bytes materializes the whole sequence into one owned byte slice. Used by
// command handlers that need the full value (GET, APPEND's read side,
// snapshot serialization).
func (s *Sequence) Bytes() []byte {
	if s.size == 0 {
		return nil
	}
	b, _ := s.ReadAt(0, s.size)
	return b
}
