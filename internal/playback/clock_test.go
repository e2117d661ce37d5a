package playback

import (
	"testing"
	"time"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestClock_Observe(t *testing.T) {
	t.Run("first event anchors the axis", func(t *testing.T) {
		c := NewClock()
		c.Observe(base)
		if !c.Start().Equal(base) {
			t.Errorf("expected start %v, got %v", base, c.Start())
		}
		if c.Total() != 0 {
			t.Errorf("expected total 0, got %v", c.Total())
		}
	})

	t.Run("later events extend the total", func(t *testing.T) {
		c := NewClock()
		c.Observe(base)
		c.Observe(base.Add(5 * time.Second))
		c.Observe(base.Add(2 * time.Second)) // out of order, no extension
		if c.Total() != 5*time.Second {
			t.Errorf("expected total 5s, got %v", c.Total())
		}
	})

	t.Run("earlier event rebases the axis", func(t *testing.T) {
		c := NewClock()
		c.Observe(base)
		c.Observe(base.Add(3 * time.Second))
		c.SetCurrent(2 * time.Second)

		c.Observe(base.Add(-time.Second))

		if !c.Start().Equal(base.Add(-time.Second)) {
			t.Errorf("expected rebased start, got %v", c.Start())
		}
		if c.Total() != 4*time.Second {
			t.Errorf("expected total 4s, got %v", c.Total())
		}
		// The position keeps pointing at the same absolute moment.
		if c.Current() != 3*time.Second {
			t.Errorf("expected current 3s after rebase, got %v", c.Current())
		}
	})
}

func TestClock_SetCurrentClamps(t *testing.T) {
	c := NewClock()
	c.Observe(base)
	c.Observe(base.Add(10 * time.Second))

	if got := c.SetCurrent(-5 * time.Second); got != 0 {
		t.Errorf("expected clamp to 0, got %v", got)
	}
	if got := c.SetCurrent(time.Minute); got != 10*time.Second {
		t.Errorf("expected clamp to 10s, got %v", got)
	}
}

func TestClock_StepOffsets(t *testing.T) {
	c := NewClock()
	for _, off := range []time.Duration{0, time.Second, 3 * time.Second} {
		c.Observe(base.Add(off))
	}
	// Duplicate offsets collapse.
	c.Observe(base.Add(time.Second))

	t.Run("next", func(t *testing.T) {
		next, ok := c.NextOffset(time.Second)
		if !ok || next != 3*time.Second {
			t.Errorf("expected 3s, got %v ok=%v", next, ok)
		}
		if _, ok := c.NextOffset(3 * time.Second); ok {
			t.Error("expected no offset after the last event")
		}
	})

	t.Run("prev", func(t *testing.T) {
		prev, ok := c.PrevOffset(3 * time.Second)
		if !ok || prev != time.Second {
			t.Errorf("expected 1s, got %v ok=%v", prev, ok)
		}
		if _, ok := c.PrevOffset(0); ok {
			t.Error("expected no offset before the first event")
		}
	})

	t.Run("next between offsets", func(t *testing.T) {
		next, ok := c.NextOffset(1500 * time.Millisecond)
		if !ok || next != 3*time.Second {
			t.Errorf("expected 3s, got %v ok=%v", next, ok)
		}
	})
}

func TestClock_AbsoluteAt(t *testing.T) {
	c := NewClock()
	if !c.AbsoluteAt(time.Second).IsZero() {
		t.Error("expected zero time for empty axis")
	}
	c.Observe(base)
	if got := c.AbsoluteAt(2 * time.Second); !got.Equal(base.Add(2 * time.Second)) {
		t.Errorf("expected %v, got %v", base.Add(2*time.Second), got)
	}
}
