// Package playback maps wall-clock event timestamps onto a normalized
// playback axis and drives live/replay mode switching for dependent views.
package playback

import (
	"sort"
	"time"
)

// Clock maps event timestamps onto a millisecond offset axis anchored at the
// run's first observed event. It tracks the total duration of the axis, the
// current playback position, and the distinct event offsets used for
// step navigation.
//
// Clock is not safe for concurrent use.
type Clock struct {
	start   time.Time // timestamp of the earliest observed event
	total   time.Duration
	current time.Duration

	offsets     []time.Duration // sorted, distinct
	offsetIndex map[time.Duration]struct{}
}

// NewClock returns a clock with an empty axis.
func NewClock() *Clock {
	return &Clock{offsetIndex: make(map[time.Duration]struct{})}
}

// Observe extends the axis with an event timestamp. Timestamps may arrive
// out of order; an earlier-than-start timestamp rebases the axis.
func (c *Clock) Observe(ts time.Time) {
	if ts.IsZero() {
		return
	}
	if c.start.IsZero() {
		c.start = ts
	}
	if ts.Before(c.start) {
		shift := c.start.Sub(ts)
		c.start = ts
		c.total += shift
		c.current += shift
		c.rebase(shift)
	}

	offset := ts.Sub(c.start)
	if offset > c.total {
		c.total = offset
	}
	if _, seen := c.offsetIndex[offset]; !seen {
		c.offsetIndex[offset] = struct{}{}
		i := sort.Search(len(c.offsets), func(i int) bool { return c.offsets[i] >= offset })
		c.offsets = append(c.offsets, 0)
		copy(c.offsets[i+1:], c.offsets[i:])
		c.offsets[i] = offset
	}
}

func (c *Clock) rebase(shift time.Duration) {
	rebased := make([]time.Duration, len(c.offsets))
	index := make(map[time.Duration]struct{}, len(c.offsets))
	for i, off := range c.offsets {
		rebased[i] = off + shift
		index[off+shift] = struct{}{}
	}
	c.offsets = rebased
	c.offsetIndex = index
}

// Start returns the absolute timestamp of offset zero.
func (c *Clock) Start() time.Time { return c.start }

// Total returns the axis length.
func (c *Clock) Total() time.Duration { return c.total }

// Current returns the playback position.
func (c *Clock) Current() time.Duration { return c.current }

// SetCurrent moves the playback position, clamped to [0, Total].
func (c *Clock) SetCurrent(d time.Duration) time.Duration {
	if d < 0 {
		d = 0
	}
	if d > c.total {
		d = c.total
	}
	c.current = d
	return d
}

// Pin snaps the playback position to the end of the axis.
func (c *Clock) Pin() {
	c.current = c.total
}

// AbsoluteAt converts an offset into an absolute timestamp. The zero time is
// returned while the axis is empty.
func (c *Clock) AbsoluteAt(d time.Duration) time.Time {
	if c.start.IsZero() {
		return time.Time{}
	}
	return c.start.Add(d)
}

// NextOffset returns the smallest event offset strictly after d.
func (c *Clock) NextOffset(d time.Duration) (time.Duration, bool) {
	i := sort.Search(len(c.offsets), func(i int) bool { return c.offsets[i] > d })
	if i == len(c.offsets) {
		return 0, false
	}
	return c.offsets[i], true
}

// PrevOffset returns the largest event offset strictly before d.
func (c *Clock) PrevOffset(d time.Duration) (time.Duration, bool) {
	i := sort.Search(len(c.offsets), func(i int) bool { return c.offsets[i] >= d })
	if i == 0 {
		return 0, false
	}
	return c.offsets[i-1], true
}
