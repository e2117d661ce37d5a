package terminal

import (
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/runlens/runlens/pkg/types"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func chunk(node string, stream types.TerminalStream, index int64, text string) types.TerminalChunk {
	return types.TerminalChunk{
		NodeRef:    node,
		Stream:     stream,
		ChunkIndex: index,
		Payload:    base64.StdEncoding.EncodeToString([]byte(text)),
		RecordedAt: base.Add(time.Duration(index) * 100 * time.Millisecond),
	}
}

func chunkRange(node string, stream types.TerminalStream, from, to int64) []types.TerminalChunk {
	var out []types.TerminalChunk
	for i := from; i <= to; i++ {
		out = append(out, chunk(node, stream, i, fmt.Sprintf("line %d\n", i)))
	}
	return out
}

func TestStore_Ingest(t *testing.T) {
	ref := types.TerminalRef{NodeRef: "A", Stream: types.StreamPTY}

	t.Run("applies chunks in index order", func(t *testing.T) {
		s := NewStore(0)
		n := s.Ingest(chunkRange("A", types.StreamPTY, 0, 4))
		if n != 5 {
			t.Fatalf("expected 5 accepted, got %d", n)
		}
		if got := s.LastIndex(ref); got != 4 {
			t.Errorf("expected last index 4, got %d", got)
		}
	})

	t.Run("overlapping batches apply each index once", func(t *testing.T) {
		s := NewStore(0)
		s.Ingest(chunkRange("A", types.StreamPTY, 0, 6))
		s.Ingest(chunkRange("A", types.StreamPTY, 3, 9))

		chunks := s.Chunks(ref)
		if len(chunks) != 10 {
			t.Fatalf("expected 10 chunks, got %d", len(chunks))
		}
		for i, c := range chunks {
			if c.ChunkIndex != int64(i) {
				t.Errorf("position %d: expected index %d, got %d", i, i, c.ChunkIndex)
			}
		}
	})

	t.Run("duplicate redelivery is dropped", func(t *testing.T) {
		s := NewStore(0)
		s.Ingest(chunkRange("A", types.StreamPTY, 0, 4))
		n := s.Ingest(chunkRange("A", types.StreamPTY, 0, 4))
		if n != 0 {
			t.Errorf("expected 0 accepted on redelivery, got %d", n)
		}
	})

	t.Run("buffers are keyed by node and stream", func(t *testing.T) {
		s := NewStore(0)
		s.Ingest([]types.TerminalChunk{
			chunk("A", types.StreamStdout, 0, "out"),
			chunk("A", types.StreamStderr, 0, "err"),
			chunk("B", types.StreamStdout, 0, "other"),
		})
		if len(s.Refs()) != 3 {
			t.Errorf("expected 3 buffers, got %d", len(s.Refs()))
		}
	})

	t.Run("ring limit trims from the front", func(t *testing.T) {
		s := NewStore(5)
		s.Ingest(chunkRange("A", types.StreamPTY, 0, 9))
		chunks := s.Chunks(ref)
		if len(chunks) != 5 {
			t.Fatalf("expected 5 chunks after trim, got %d", len(chunks))
		}
		if chunks[0].ChunkIndex != 5 {
			t.Errorf("expected oldest retained index 5, got %d", chunks[0].ChunkIndex)
		}
		// Trimming never lowers the dedup floor.
		if got := s.LastIndex(ref); got != 9 {
			t.Errorf("expected last index 9, got %d", got)
		}
	})
}

func TestStore_ChunksUpTo(t *testing.T) {
	ref := types.TerminalRef{NodeRef: "A", Stream: types.StreamPTY}
	s := NewStore(0)
	s.Ingest(chunkRange("A", types.StreamPTY, 0, 9))

	got := s.ChunksUpTo(ref, base.Add(450*time.Millisecond))
	if len(got) != 5 {
		t.Fatalf("expected 5 chunks at or before t=450ms, got %d", len(got))
	}
	if got[len(got)-1].ChunkIndex != 4 {
		t.Errorf("expected last index 4, got %d", got[len(got)-1].ChunkIndex)
	}
}

func TestStore_Clear(t *testing.T) {
	ref := types.TerminalRef{NodeRef: "A", Stream: types.StreamPTY}
	s := NewStore(0)
	s.Ingest(chunkRange("A", types.StreamPTY, 0, 4))

	s.Clear(ref)
	if got := s.Chunks(ref); got != nil {
		t.Errorf("expected nil after clear, got %d chunks", len(got))
	}
	if got := s.LastIndex(ref); got != -1 {
		t.Errorf("expected last index -1 after clear, got %d", got)
	}

	// After a clear the buffer resynchronizes from index 0.
	n := s.Ingest(chunkRange("A", types.StreamPTY, 0, 2))
	if n != 3 {
		t.Errorf("expected 3 accepted after clear, got %d", n)
	}
}
