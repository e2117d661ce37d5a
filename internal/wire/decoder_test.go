package wire

import (
	"encoding/json"
	"testing"
)

func rawBatch(items ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(items))
	for i, s := range items {
		out[i] = json.RawMessage(s)
	}
	return out
}

func TestDecoder_Events(t *testing.T) {
	d, err := NewDecoder(nil)
	if err != nil {
		t.Fatalf("NewDecoder failed: %v", err)
	}

	t.Run("valid event decodes", func(t *testing.T) {
		events := d.Events(rawBatch(
			`{"id":"e1","run_id":"r1","node_id":"A","type":"STARTED","timestamp":"2025-03-01T12:00:00Z"}`,
		))
		if len(events) != 1 {
			t.Fatalf("expected 1 event, got %d", len(events))
		}
		if events[0].ID != "e1" || events[0].NodeID != "A" {
			t.Errorf("unexpected decode: %+v", events[0])
		}
	})

	t.Run("invalid items are dropped, rest survives", func(t *testing.T) {
		events := d.Events(rawBatch(
			`{"id":"e1","run_id":"r1","type":"STARTED","timestamp":"2025-03-01T12:00:00Z"}`,
			`{"id":"e2","run_id":"r1","type":"EXPLODED","timestamp":"2025-03-01T12:00:01Z"}`,
			`not json at all`,
			`{"run_id":"r1","type":"PROGRESS","timestamp":"2025-03-01T12:00:02Z"}`,
			`{"id":"e3","run_id":"r1","type":"COMPLETED","timestamp":"2025-03-01T12:00:03Z"}`,
		))
		if len(events) != 2 {
			t.Fatalf("expected 2 surviving events, got %d", len(events))
		}
		if events[0].ID != "e1" || events[1].ID != "e3" {
			t.Errorf("wrong survivors: %s, %s", events[0].ID, events[1].ID)
		}
	})

	t.Run("metadata decodes", func(t *testing.T) {
		events := d.Events(rawBatch(
			`{"id":"e1","run_id":"r1","type":"STARTED","timestamp":"2025-03-01T12:00:00Z","metadata":{"attempt":3,"activity_id":"act-1"}}`,
		))
		if len(events) != 1 || events[0].Metadata == nil {
			t.Fatal("expected metadata")
		}
		if events[0].Metadata.Attempt != 3 {
			t.Errorf("expected attempt 3, got %d", events[0].Metadata.Attempt)
		}
	})
}

func TestDecoder_Chunks(t *testing.T) {
	d, err := NewDecoder(nil)
	if err != nil {
		t.Fatalf("NewDecoder failed: %v", err)
	}

	tests := []struct {
		name string
		raw  string
		want int
	}{
		{
			name: "valid chunk",
			raw:  `{"node_ref":"A","stream":"pty","chunk_index":0,"payload":"aGk=","recorded_at":"2025-03-01T12:00:00Z"}`,
			want: 1,
		},
		{
			name: "unknown stream is rejected",
			raw:  `{"node_ref":"A","stream":"tty0","chunk_index":0,"payload":"aGk=","recorded_at":"2025-03-01T12:00:00Z"}`,
			want: 0,
		},
		{
			name: "negative index is rejected",
			raw:  `{"node_ref":"A","stream":"pty","chunk_index":-1,"payload":"aGk=","recorded_at":"2025-03-01T12:00:00Z"}`,
			want: 0,
		},
		{
			name: "missing payload is rejected",
			raw:  `{"node_ref":"A","stream":"pty","chunk_index":0,"recorded_at":"2025-03-01T12:00:00Z"}`,
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(d.Chunks(rawBatch(tt.raw))); got != tt.want {
				t.Errorf("expected %d chunks, got %d", tt.want, got)
			}
		})
	}
}

func TestDecoder_Status(t *testing.T) {
	d, err := NewDecoder(nil)
	if err != nil {
		t.Fatalf("NewDecoder failed: %v", err)
	}

	t.Run("valid status", func(t *testing.T) {
		snap, err := d.Status(json.RawMessage(`{"run_id":"r1","status":"RUNNING","history_length":42}`))
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if snap.HistoryLength != 42 {
			t.Errorf("expected history length 42, got %d", snap.HistoryLength)
		}
	})

	t.Run("unknown status is an error", func(t *testing.T) {
		if _, err := d.Status(json.RawMessage(`{"status":"NAPPING"}`)); err == nil {
			t.Error("expected validation error")
		}
	})
}
