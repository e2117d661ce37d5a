package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/runlens/runlens/internal/metrics"
	"github.com/runlens/runlens/pkg/types"
)

// State is the reconciler's connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateRealtime     State = "realtime"
	StatePolling      State = "polling"
)

// Config holds reconciler tuning.
type Config struct {
	// PollInterval is the event/status poll cadence when push is
	// unavailable and the source did not suggest one.
	PollInterval time.Duration

	// BackupPollInterval is the status-only poll cadence kept alive even in
	// realtime mode, since a push channel can stall without erroring.
	BackupPollInterval time.Duration

	// ReadyGrace bounds how long an opened stream may stay silent before it
	// is treated as failed and polling takes over.
	ReadyGrace time.Duration

	// MaxReconnectWait caps the exponential reconnect backoff.
	MaxReconnectWait time.Duration
}

// DefaultConfig returns the standard reconciler tuning.
func DefaultConfig() Config {
	return Config{
		PollInterval:       2 * time.Second,
		BackupPollInterval: 5 * time.Second,
		ReadyGrace:         5 * time.Second,
		MaxReconnectWait:   30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.BackupPollInterval <= 0 {
		c.BackupPollInterval = d.BackupPollInterval
	}
	if c.ReadyGrace <= 0 {
		c.ReadyGrace = d.ReadyGrace
	}
	if c.MaxReconnectWait <= 0 {
		c.MaxReconnectWait = d.MaxReconnectWait
	}
	return c
}

// Reconciler drives the connection to the source for one run. It prefers
// push delivery, falls back to polling when push is declined or silent,
// resumes from cursors across reconnects, and stops all activity once the
// run is terminal. All delivered data comes out of Messages in the same
// shape regardless of the underlying mode.
type Reconciler struct {
	source Source
	runID  string
	cfg    Config
	logger *slog.Logger

	mu             sync.Mutex
	state          State
	mode           Mode
	lastErr        error
	cursor         types.Cursor
	terminalCursor types.Cursor
	watched        map[types.TerminalRef]struct{}
	terminal       bool

	out    chan Message
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewReconciler creates a reconciler resuming from the given cursors.
func NewReconciler(source Source, runID string, resume StreamOptions, cfg Config, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		source:         source,
		runID:          runID,
		cfg:            cfg.withDefaults(),
		logger:         logger.With(slog.String("run_id", runID)),
		state:          StateDisconnected,
		mode:           ModeNone,
		cursor:         resume.Cursor,
		terminalCursor: resume.TerminalCursor,
		watched:        make(map[types.TerminalRef]struct{}),
		out:            make(chan Message, 64),
		done:           make(chan struct{}),
	}
}

// Start launches the connection loop. It may be called once.
func (r *Reconciler) Start(ctx context.Context) {
	r.once.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		r.cancel = cancel
		go r.run(ctx)
	})
}

// Messages returns the delivery channel. It is closed when the reconciler
// stops for good (terminal run or Close).
func (r *Reconciler) Messages() <-chan Message {
	return r.out
}

// Close tears down the connection and stops every timer. It blocks until
// the loop has exited, so no reconnect can fire afterwards.
func (r *Reconciler) Close() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

// State returns the connection state, active mode, and last transport error.
func (r *Reconciler) State() (State, Mode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.mode, r.lastErr
}

// Cursors returns the current resumption cursors for checkpointing.
func (r *Reconciler) Cursors() StreamOptions {
	r.mu.Lock()
	defer r.mu.Unlock()
	return StreamOptions{Cursor: r.cursor, TerminalCursor: r.terminalCursor}
}

// WatchTerminal registers interest in a (node, stream) buffer so polling
// mode fetches its chunks. Push mode delivers chunks regardless.
func (r *Reconciler) WatchTerminal(ref types.TerminalRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watched[ref] = struct{}{}
}

// UnwatchTerminal drops interest in a buffer.
func (r *Reconciler) UnwatchTerminal(ref types.TerminalRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.watched, ref)
}

func (r *Reconciler) run(ctx context.Context) {
	defer close(r.done)
	defer close(r.out)
	defer r.setState(StateDisconnected, ModeNone)
	defer metrics.TransportMode.DeleteLabelValues(r.runID)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = r.cfg.MaxReconnectWait
	bo.MaxElapsedTime = 0 // retry until terminal or Close

	for {
		if ctx.Err() != nil || r.isTerminal() {
			return
		}

		r.setState(StateConnecting, ModeNone)
		stream, err := r.source.OpenStream(ctx, r.runID, r.Cursors())
		if err != nil {
			r.recordError(err)
			metrics.TransportErrors.WithLabelValues("connect").Inc()
			r.logger.Warn("push channel unavailable, polling", slog.String("error", err.Error()))
			r.pollUntil(ctx, r.cfg.PollInterval, time.Now().Add(bo.NextBackOff()))
			metrics.TransportReconnects.Inc()
			continue
		}

		ready, err := r.awaitReady(ctx, stream)
		if err != nil {
			stream.Close()
			r.recordError(err)
			metrics.TransportErrors.WithLabelValues("connect").Inc()
			r.logger.Warn("stream never became ready, polling", slog.String("error", err.Error()))
			r.pollUntil(ctx, r.cfg.PollInterval, time.Now().Add(bo.NextBackOff()))
			metrics.TransportReconnects.Inc()
			continue
		}

		bo.Reset()

		switch ready.Mode {
		case ModePolling:
			// The source declared polling delivery; honor its interval and
			// drop the push channel.
			stream.Close()
			interval := ready.Interval
			if interval <= 0 {
				interval = r.cfg.PollInterval
			}
			r.logger.Info("source declared polling mode", slog.Duration("interval", interval))
			r.pollUntil(ctx, interval, time.Time{})
			return

		default: // realtime
			r.setState(StateRealtime, ModeRealtime)
			r.logger.Info("realtime stream established")
			err := r.consume(ctx, stream)
			stream.Close()
			if ctx.Err() != nil || r.isTerminal() {
				return
			}
			r.recordError(err)
			metrics.TransportErrors.WithLabelValues("stream").Inc()
			r.setState(StateDisconnected, ModeNone)
			wait := bo.NextBackOff()
			r.logger.Warn("stream dropped, reconnecting",
				slog.String("error", errString(err)),
				slog.Duration("backoff", wait),
			)
			metrics.TransportReconnects.Inc()
			if !sleep(ctx, wait) {
				return
			}
		}
	}
}

// awaitReady waits for the stream's ready declaration, forwarding any data
// messages that arrive ahead of it. A silent stream fails after the grace
// period.
func (r *Reconciler) awaitReady(ctx context.Context, stream Stream) (*Ready, error) {
	grace := time.NewTimer(r.cfg.ReadyGrace)
	defer grace.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-grace.C:
			return nil, ErrReadyTimedOut
		case msg, ok := <-stream.Messages():
			if !ok {
				if err := stream.Err(); err != nil {
					return nil, err
				}
				return nil, ErrStreamClosed
			}
			if msg.Type == MessageReady {
				return msg.Ready, nil
			}
			if !r.handle(ctx, msg) {
				return nil, ctx.Err()
			}
			if r.isTerminal() {
				return nil, ErrStreamClosed
			}
		}
	}
}

// consume forwards stream messages until the stream ends, the run turns
// terminal, or ctx is cancelled. A low-frequency status poll runs alongside
// because a push channel can stall silently.
func (r *Reconciler) consume(ctx context.Context, stream Stream) error {
	backup := time.NewTicker(r.cfg.BackupPollInterval)
	defer backup.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-stream.Messages():
			if !ok {
				if err := stream.Err(); err != nil {
					return err
				}
				return ErrStreamClosed
			}
			if !r.handle(ctx, msg) {
				return ctx.Err()
			}
			if r.isTerminal() {
				return nil
			}

		case <-backup.C:
			status, err := r.source.GetStatus(ctx, r.runID)
			if err != nil {
				metrics.TransportErrors.WithLabelValues("poll").Inc()
				r.logger.Debug("backup status poll failed", slog.String("error", err.Error()))
				continue
			}
			if !r.handle(ctx, Message{Type: MessageStatus, Status: status}) {
				return ctx.Err()
			}
			if r.isTerminal() {
				return nil
			}
		}
	}
}

// pollUntil polls status, trace, and watched terminal buffers at the given
// interval. It returns when ctx is cancelled, the run turns terminal, or
// the deadline passes (a zero deadline polls indefinitely). The first poll
// runs immediately. A run already marked terminal is never polled, even
// when the stream failed before declaring ready.
func (r *Reconciler) pollUntil(ctx context.Context, interval time.Duration, deadline time.Time) {
	if r.isTerminal() {
		return
	}
	r.setState(StatePolling, ModePolling)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if !r.poll(ctx) || r.isTerminal() {
			return
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll fetches one round of status + trace + watched terminal chunks and
// forwards them. It returns false when ctx is done.
func (r *Reconciler) poll(ctx context.Context) bool {
	status, err := r.source.GetStatus(ctx, r.runID)
	if err != nil {
		metrics.TransportErrors.WithLabelValues("poll").Inc()
		r.recordError(err)
		r.logger.Debug("status poll failed", slog.String("error", err.Error()))
	} else if !r.handle(ctx, Message{Type: MessageStatus, Status: status}) {
		return false
	}

	trace, err := r.source.GetTrace(ctx, r.runID, r.Cursors().Cursor)
	if err != nil {
		metrics.TransportErrors.WithLabelValues("poll").Inc()
		r.logger.Debug("trace poll failed", slog.String("error", err.Error()))
	} else if !r.handle(ctx, Message{Type: MessageTrace, Trace: trace}) {
		return false
	}

	for _, ref := range r.watchedRefs() {
		batch, err := r.source.GetTerminalChunks(ctx, r.runID, ref, r.Cursors().TerminalCursor)
		if err != nil {
			metrics.TransportErrors.WithLabelValues("poll").Inc()
			r.logger.Debug("terminal poll failed",
				slog.String("node", ref.NodeRef),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !r.handle(ctx, Message{Type: MessageTerminal, Terminal: batch}) {
			return false
		}
	}

	return ctx.Err() == nil
}

// handle updates cursors and terminal tracking for a message and forwards
// it. It returns false when ctx is done.
func (r *Reconciler) handle(ctx context.Context, msg Message) bool {
	switch msg.Type {
	case MessageTrace:
		if msg.Trace != nil && msg.Trace.Cursor != "" {
			r.setCursor(msg.Trace.Cursor)
		}
	case MessageTerminal:
		if msg.Terminal != nil && msg.Terminal.Cursor != "" {
			r.setTerminalCursor(msg.Terminal.Cursor)
		}
	case MessageStatus:
		if msg.Status != nil && msg.Status.Status.IsTerminal() {
			r.markTerminal()
		}
	case MessageComplete:
		r.markTerminal()
	}

	select {
	case r.out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *Reconciler) watchedRefs() []types.TerminalRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	refs := make([]types.TerminalRef, 0, len(r.watched))
	for ref := range r.watched {
		refs = append(refs, ref)
	}
	return refs
}

func (r *Reconciler) setState(state State, mode Mode) {
	r.mu.Lock()
	r.state = state
	r.mode = mode
	r.mu.Unlock()

	var v float64
	switch mode {
	case ModePolling:
		v = 1
	case ModeRealtime:
		v = 2
	}
	metrics.TransportMode.WithLabelValues(r.runID).Set(v)
}

func (r *Reconciler) setCursor(c types.Cursor) {
	r.mu.Lock()
	r.cursor = c
	r.mu.Unlock()
}

func (r *Reconciler) setTerminalCursor(c types.Cursor) {
	r.mu.Lock()
	r.terminalCursor = c
	r.mu.Unlock()
}

func (r *Reconciler) recordError(err error) {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
}

func (r *Reconciler) markTerminal() {
	r.mu.Lock()
	r.terminal = true
	r.mu.Unlock()
}

func (r *Reconciler) isTerminal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminal
}

// sleep waits for d or until ctx is done, reporting whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
