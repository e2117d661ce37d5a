package cursorstore

import (
	"context"
	"testing"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	t.Run("load missing checkpoint", func(t *testing.T) {
		_, err := store.Load(ctx, "absent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("save and load", func(t *testing.T) {
		cp := &Checkpoint{
			RunID:          "r1",
			EventCursor:    "ev-10",
			TerminalCursor: "term-3",
			LastEventID:    "e-10",
		}
		if err := store.Save(ctx, cp); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		got, err := store.Load(ctx, "r1")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if got.EventCursor != "ev-10" || got.TerminalCursor != "term-3" {
			t.Errorf("unexpected checkpoint: %+v", got)
		}
	})

	t.Run("save overwrites", func(t *testing.T) {
		store.Save(ctx, &Checkpoint{RunID: "r1", EventCursor: "ev-20"})
		got, err := store.Load(ctx, "r1")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if got.EventCursor != "ev-20" {
			t.Errorf("expected ev-20, got %s", got.EventCursor)
		}
	})

	t.Run("delete", func(t *testing.T) {
		store.Save(ctx, &Checkpoint{RunID: "r2"})
		if err := store.Delete(ctx, "r2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := store.Load(ctx, "r2"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("loaded checkpoint is a copy", func(t *testing.T) {
		store.Save(ctx, &Checkpoint{RunID: "r3", EventCursor: "a"})
		got, _ := store.Load(ctx, "r3")
		got.EventCursor = "mutated"
		again, _ := store.Load(ctx, "r3")
		if again.EventCursor != "a" {
			t.Error("stored checkpoint mutated through loaded copy")
		}
	})
}
