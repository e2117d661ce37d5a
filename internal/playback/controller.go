package playback

import (
	"log/slog"
	"time"
)

// Mode is the playback mode of a session.
type Mode string

const (
	ModeLive   Mode = "live"
	ModeReplay Mode = "replay"
)

// Listener receives playback transitions. Callbacks run synchronously on the
// session goroutine that owns the controller.
type Listener interface {
	// OnSeek fires after the position moved in replay mode. target is the
	// absolute timestamp of the new position; backward reports whether the
	// move went backward, which forces dependent terminal renderers to
	// reset and replay.
	OnSeek(target time.Time, backward bool)

	// OnLive fires after switching to live mode and requires a full state
	// reload for the run, guarding against drift accumulated in replay.
	OnLive()
}

// Controller owns the playback mode and position for one run. In live mode
// the position is pinned to the end of the axis and follows new events; in
// replay mode the position is scrubbable across history.
//
// Controller is not safe for concurrent use.
type Controller struct {
	clock    *Clock
	mode     Mode
	playing  bool
	listener Listener
	logger   *slog.Logger
}

// NewController creates a controller in live mode.
func NewController(clock *Clock, listener Listener, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		clock:    clock,
		mode:     ModeLive,
		playing:  true,
		listener: listener,
		logger:   logger,
	}
}

// Mode returns the current playback mode.
func (c *Controller) Mode() Mode { return c.mode }

// Playing reports whether replay auto-advance is active.
func (c *Controller) Playing() bool { return c.playing }

// Clock exposes the underlying timeline clock.
func (c *Controller) Clock() *Clock { return c.clock }

// ObserveEvent extends the axis with an event timestamp. In live mode the
// position stays pinned to the new total.
func (c *Controller) ObserveEvent(ts time.Time) {
	c.clock.Observe(ts)
	if c.mode == ModeLive {
		c.clock.Pin()
	}
}

// Seek moves the position to the given offset, clamped to the axis. Seeking
// while live detaches the timeline into replay mode first.
func (c *Controller) Seek(offset time.Duration) {
	if c.mode == ModeLive {
		c.mode = ModeReplay
		c.playing = false
		c.logger.Debug("detached timeline into replay mode")
	}

	prev := c.clock.Current()
	clamped := c.clock.SetCurrent(offset)
	backward := clamped < prev

	if c.listener != nil {
		c.listener.OnSeek(c.clock.AbsoluteAt(clamped), backward)
	}
}

// StepForward jumps to the next event offset after the position, so
// scrubbing always lands on a meaningful state transition.
func (c *Controller) StepForward() {
	if next, ok := c.clock.NextOffset(c.clock.Current()); ok {
		c.Seek(next)
	}
}

// StepBackward jumps to the previous event offset before the position.
func (c *Controller) StepBackward() {
	if prev, ok := c.clock.PrevOffset(c.clock.Current()); ok {
		c.Seek(prev)
	}
}

// Play resumes replay auto-advance. No-op in live mode, where the position
// already follows the stream.
func (c *Controller) Play() {
	c.playing = true
}

// Pause halts replay auto-advance.
func (c *Controller) Pause() {
	if c.mode == ModeReplay {
		c.playing = false
	}
}

// Advance moves the position forward by dt during replay playback, snapping
// back to live mode when the position catches up with the end of the axis.
func (c *Controller) Advance(dt time.Duration) {
	if c.mode != ModeReplay || !c.playing {
		return
	}
	target := c.clock.Current() + dt
	if target >= c.clock.Total() {
		c.SwitchToLive()
		return
	}
	c.Seek(target)
}

// SwitchToLive snaps the position to the end of the axis, pins the timeline
// to the stream, and asks the listener for a full state reload. It is
// idempotent: switching while already live still re-pins and reloads.
func (c *Controller) SwitchToLive() {
	c.mode = ModeLive
	c.playing = true
	c.clock.Pin()

	if c.listener != nil {
		c.listener.OnLive()
	}
}
