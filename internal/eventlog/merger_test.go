package eventlog

import (
	"fmt"
	"testing"
	"time"

	"github.com/runlens/runlens/pkg/types"
)

func evt(id string, node string, offsetMs int) types.ExecutionEvent {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return types.ExecutionEvent{
		ID:        id,
		RunID:     "run-1",
		NodeID:    node,
		Type:      types.EventProgress,
		Timestamp: base.Add(time.Duration(offsetMs) * time.Millisecond),
	}
}

func ids(events []types.ExecutionEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func TestLog_Append(t *testing.T) {
	t.Run("accepts unseen events in order", func(t *testing.T) {
		l := New()
		accepted := l.Append([]types.ExecutionEvent{evt("1", "A", 0), evt("2", "A", 10)})
		if len(accepted) != 2 {
			t.Fatalf("expected 2 accepted, got %d", len(accepted))
		}
		if l.Len() != 2 {
			t.Errorf("expected log length 2, got %d", l.Len())
		}
	})

	t.Run("drops duplicates within a batch", func(t *testing.T) {
		l := New()
		accepted := l.Append([]types.ExecutionEvent{evt("1", "A", 0), evt("1", "A", 0), evt("2", "A", 10)})
		if len(accepted) != 2 {
			t.Errorf("expected 2 accepted, got %d", len(accepted))
		}
	})

	t.Run("drops duplicates across batches", func(t *testing.T) {
		l := New()
		l.Append([]types.ExecutionEvent{evt("1", "A", 0), evt("2", "A", 10)})
		accepted := l.Append([]types.ExecutionEvent{evt("2", "A", 10), evt("3", "A", 20)})
		if len(accepted) != 1 || accepted[0].ID != "3" {
			t.Errorf("expected only event 3 accepted, got %v", ids(accepted))
		}
		got := ids(l.Events())
		want := []string{"1", "2", "3"}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
			}
		}
	})

	t.Run("never reorders previously accepted events", func(t *testing.T) {
		l := New()
		l.Append([]types.ExecutionEvent{evt("5", "A", 50), evt("1", "A", 0)})
		l.Append([]types.ExecutionEvent{evt("3", "A", 30)})
		got := ids(l.Events())
		want := []string{"5", "1", "3"}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
			}
		}
	})

	t.Run("Has reports seen ids", func(t *testing.T) {
		l := New()
		l.Append([]types.ExecutionEvent{evt("1", "A", 0)})
		if !l.Has("1") {
			t.Error("expected Has(1) to be true")
		}
		if l.Has("2") {
			t.Error("expected Has(2) to be false")
		}
	})
}

func TestMerge_Idempotent(t *testing.T) {
	existing := []types.ExecutionEvent{evt("1", "A", 0), evt("2", "B", 10)}
	batch := []types.ExecutionEvent{evt("2", "B", 10), evt("3", "A", 20)}

	once := Merge(existing, batch)
	twice := Merge(once, batch)

	if len(once) != len(twice) {
		t.Fatalf("replaying a batch changed the log: %d vs %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].ID != twice[i].ID {
			t.Errorf("position %d: %s vs %s", i, once[i].ID, twice[i].ID)
		}
	}
}

func TestMerge_DoesNotMutateExisting(t *testing.T) {
	existing := make([]types.ExecutionEvent, 0, 8)
	existing = append(existing, evt("1", "A", 0))
	snapshot := ids(existing)

	Merge(existing, []types.ExecutionEvent{evt("2", "A", 10)})

	for i, id := range ids(existing) {
		if id != snapshot[i] {
			t.Errorf("existing log mutated at %d", i)
		}
	}
}

func TestLog_AppendScales(t *testing.T) {
	// Live tailing appends small batches to a large log; each append should
	// only touch the batch, which this exercises without timing assertions.
	l := New()
	for i := 0; i < 1000; i++ {
		l.Append([]types.ExecutionEvent{evt(fmt.Sprintf("e-%d", i), "A", i)})
	}
	if l.Len() != 1000 {
		t.Fatalf("expected 1000 events, got %d", l.Len())
	}
	accepted := l.Append([]types.ExecutionEvent{evt("e-500", "A", 500), evt("e-1000", "A", 1000)})
	if len(accepted) != 1 || accepted[0].ID != "e-1000" {
		t.Errorf("expected only e-1000 accepted, got %v", ids(accepted))
	}
}
