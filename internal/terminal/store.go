// Package terminal maintains the ordered, bounded buffers of terminal output
// per (node, stream) pair, and the renderer state machine that replays them.
package terminal

import (
	"time"

	"github.com/runlens/runlens/pkg/types"
)

// DefaultRingLimit bounds how many chunks a buffer retains. The buffer
// always represents the most recent window; full history lives in the
// external log store.
const DefaultRingLimit = 500

// buffer holds the chunks for one (node, stream) pair.
type buffer struct {
	chunks    []types.TerminalChunk
	lastIndex int64 // highest chunk index applied; -1 before the first chunk
}

// Store holds the chunk buffers for a run. Buffers are created lazily on
// first chunk. Ordering is by ChunkIndex: a chunk at or below the buffer's
// last applied index is a duplicate and is dropped.
//
// Store is not safe for concurrent use; it is owned by the session goroutine.
type Store struct {
	buffers   map[types.TerminalRef]*buffer
	ringLimit int
}

// NewStore creates a store with the given ring limit per buffer.
// A limit of 0 means DefaultRingLimit.
func NewStore(ringLimit int) *Store {
	if ringLimit <= 0 {
		ringLimit = DefaultRingLimit
	}
	return &Store{
		buffers:   make(map[types.TerminalRef]*buffer),
		ringLimit: ringLimit,
	}
}

// Ingest applies a batch of chunks, dropping duplicates and trimming each
// buffer to the ring limit. It returns the number of chunks accepted.
func (s *Store) Ingest(chunks []types.TerminalChunk) int {
	accepted := 0
	for _, chunk := range chunks {
		buf, ok := s.buffers[chunk.Ref()]
		if !ok {
			buf = &buffer{lastIndex: -1}
			s.buffers[chunk.Ref()] = buf
		}
		if chunk.ChunkIndex <= buf.lastIndex {
			continue
		}
		buf.chunks = append(buf.chunks, chunk)
		buf.lastIndex = chunk.ChunkIndex
		if len(buf.chunks) > s.ringLimit {
			buf.chunks = buf.chunks[len(buf.chunks)-s.ringLimit:]
		}
		accepted++
	}
	return accepted
}

// Chunks returns a copy of the buffered chunks for ref, in index order.
func (s *Store) Chunks(ref types.TerminalRef) []types.TerminalChunk {
	buf, ok := s.buffers[ref]
	if !ok {
		return nil
	}
	out := make([]types.TerminalChunk, len(buf.chunks))
	copy(out, buf.chunks)
	return out
}

// ChunksUpTo returns the buffered chunks for ref recorded at or before t.
func (s *Store) ChunksUpTo(ref types.TerminalRef, t time.Time) []types.TerminalChunk {
	buf, ok := s.buffers[ref]
	if !ok {
		return nil
	}
	var out []types.TerminalChunk
	for _, chunk := range buf.chunks {
		if chunk.RecordedAt.After(t) {
			continue
		}
		out = append(out, chunk)
	}
	return out
}

// LastIndex returns the highest applied chunk index for ref, or -1 if the
// buffer does not exist yet.
func (s *Store) LastIndex(ref types.TerminalRef) int64 {
	buf, ok := s.buffers[ref]
	if !ok {
		return -1
	}
	return buf.lastIndex
}

// Refs returns the buffer keys that currently exist.
func (s *Store) Refs() []types.TerminalRef {
	refs := make([]types.TerminalRef, 0, len(s.buffers))
	for ref := range s.buffers {
		refs = append(refs, ref)
	}
	return refs
}

// Clear drops the buffer for ref. Used when the viewing session for a node
// closes or a backward seek forces a resynchronization from upstream.
func (s *Store) Clear(ref types.TerminalRef) {
	delete(s.buffers, ref)
}

// Reset drops every buffer.
func (s *Store) Reset() {
	s.buffers = make(map[types.TerminalRef]*buffer)
}
