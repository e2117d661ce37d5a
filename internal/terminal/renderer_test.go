package terminal

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/runlens/runlens/pkg/types"
)

func renderText(frame Frame) string {
	var buf bytes.Buffer
	for _, w := range frame.Writes {
		buf.Write(w)
	}
	return buf.String()
}

func TestRenderer_Tail(t *testing.T) {
	ref := types.TerminalRef{NodeRef: "A", Stream: types.StreamPTY}
	s := NewStore(0)
	r := NewRenderer(s, ref, nil)

	if r.State() != StateEmpty {
		t.Fatalf("expected empty state, got %s", r.State())
	}

	s.Ingest(chunkRange("A", types.StreamPTY, 0, 2))
	frame := r.Tail()
	if frame.Reset {
		t.Error("tail must not reset")
	}
	if len(frame.Writes) != 3 {
		t.Fatalf("expected 3 writes, got %d", len(frame.Writes))
	}
	if r.State() != StateStreaming {
		t.Errorf("expected streaming state, got %s", r.State())
	}

	// Second tail is incremental: only the new chunk is written.
	s.Ingest(chunkRange("A", types.StreamPTY, 0, 3))
	frame = r.Tail()
	if len(frame.Writes) != 1 {
		t.Fatalf("expected 1 incremental write, got %d", len(frame.Writes))
	}
	if got := renderText(frame); got != "line 3\n" {
		t.Errorf("expected %q, got %q", "line 3\n", got)
	}
}

func TestRenderer_OverlappingBatchesEqualSingleApplication(t *testing.T) {
	ref := types.TerminalRef{NodeRef: "A", Stream: types.StreamPTY}

	// Deliver 0..9 as two overlapping batches.
	s1 := NewStore(0)
	r1 := NewRenderer(s1, ref, nil)
	var out1 bytes.Buffer
	s1.Ingest(chunkRange("A", types.StreamPTY, 0, 6))
	out1.WriteString(renderText(r1.Tail()))
	s1.Ingest(chunkRange("A", types.StreamPTY, 3, 9))
	out1.WriteString(renderText(r1.Tail()))

	// Deliver 0..9 once.
	s2 := NewStore(0)
	r2 := NewRenderer(s2, ref, nil)
	s2.Ingest(chunkRange("A", types.StreamPTY, 0, 9))
	out2 := renderText(r2.Tail())

	if out1.String() != out2 {
		t.Errorf("overlapping delivery diverged from single application:\n%q\nvs\n%q", out1.String(), out2)
	}
}

func TestRenderer_BackwardSeekFullReset(t *testing.T) {
	ref := types.TerminalRef{NodeRef: "A", Stream: types.StreamPTY}
	s := NewStore(0)
	r := NewRenderer(s, ref, nil)

	s.Ingest(chunkRange("A", types.StreamPTY, 0, 19))

	// Replay forward to t=5000ms: all 20 chunks (indices 0..19 recorded at
	// 0..1900ms) are written.
	r.RequestReplay(base.Add(5 * time.Second))
	frame, ok := r.Flush()
	if !ok {
		t.Fatal("expected a pending replay")
	}
	if len(frame.Writes) != 20 {
		t.Fatalf("expected 20 writes, got %d", len(frame.Writes))
	}

	// Backward seek to t=1000ms: full reset, then chunks 0..10 replayed.
	r.RequestReplay(base.Add(time.Second))
	frame, _ = r.Flush()
	if !frame.Reset {
		t.Fatal("backward seek must reset the surface")
	}
	if len(frame.Writes) != 11 {
		t.Fatalf("expected 11 writes after reset, got %d", len(frame.Writes))
	}
	if got := renderText(frame); !strings.HasPrefix(got, "line 0\nline 1\n") {
		t.Errorf("replay did not restart from chunk 0: %q", got)
	}
	if r.State() != StateReplayed {
		t.Errorf("expected replayed state, got %s", r.State())
	}
}

func TestRenderer_ForwardSeekIsIncremental(t *testing.T) {
	ref := types.TerminalRef{NodeRef: "A", Stream: types.StreamPTY}
	s := NewStore(0)
	r := NewRenderer(s, ref, nil)
	s.Ingest(chunkRange("A", types.StreamPTY, 0, 19))

	r.RequestReplay(base.Add(500 * time.Millisecond))
	frame, _ := r.Flush()
	if frame.Reset {
		t.Error("first replay must not reset")
	}
	first := len(frame.Writes)

	r.RequestReplay(base.Add(time.Second))
	frame, _ = r.Flush()
	if frame.Reset {
		t.Error("forward seek must not reset")
	}
	if first+len(frame.Writes) != 11 {
		t.Errorf("expected 11 total writes up to t=1s, got %d", first+len(frame.Writes))
	}
}

func TestRenderer_SupersededReplay(t *testing.T) {
	ref := types.TerminalRef{NodeRef: "A", Stream: types.StreamPTY}
	s := NewStore(0)
	r := NewRenderer(s, ref, nil)
	s.Ingest(chunkRange("A", types.StreamPTY, 0, 19))

	// Two seeks land before the debounce flush; only the latest target is
	// applied, never two interleaved resets.
	r.RequestReplay(base.Add(1500 * time.Millisecond))
	r.RequestReplay(base.Add(500 * time.Millisecond))
	frame, ok := r.Flush()
	if !ok {
		t.Fatal("expected a pending replay")
	}
	if len(frame.Writes) != 6 {
		t.Errorf("expected 6 writes for the superseding target, got %d", len(frame.Writes))
	}

	if _, ok := r.Flush(); ok {
		t.Error("expected no pending replay after flush")
	}
}

func TestRenderer_UndecodableChunkPlaceholder(t *testing.T) {
	ref := types.TerminalRef{NodeRef: "A", Stream: types.StreamPTY}
	s := NewStore(0)
	r := NewRenderer(s, ref, nil)

	good := chunk("A", types.StreamPTY, 0, "ok\n")
	bad := types.TerminalChunk{
		NodeRef:    "A",
		Stream:     types.StreamPTY,
		ChunkIndex: 1,
		Payload:    "%%% not base64 %%%",
		RecordedAt: base.Add(100 * time.Millisecond),
	}
	s.Ingest([]types.TerminalChunk{good, bad})

	frame := r.Tail()
	if len(frame.Writes) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(frame.Writes))
	}
	if !strings.Contains(string(frame.Writes[1]), "undecodable") {
		t.Errorf("expected visible placeholder, got %q", frame.Writes[1])
	}
}

func TestRenderer_BinarySafePayload(t *testing.T) {
	ref := types.TerminalRef{NodeRef: "A", Stream: types.StreamPTY}
	s := NewStore(0)
	r := NewRenderer(s, ref, nil)

	raw := []byte{0x1b, '[', '2', 'J', 0x00, 0xff}
	s.Ingest([]types.TerminalChunk{{
		NodeRef:    "A",
		Stream:     types.StreamPTY,
		ChunkIndex: 0,
		Payload:    base64.StdEncoding.EncodeToString(raw),
		RecordedAt: base,
	}})

	frame := r.Tail()
	if !bytes.Equal(frame.Writes[0], raw) {
		t.Errorf("payload not preserved byte for byte: %v", frame.Writes[0])
	}
}
