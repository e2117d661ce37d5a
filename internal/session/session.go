// Package session owns the per-run viewing state: one goroutine per run
// applies transport messages to the event log, the terminal store, and the
// playback timeline, so merge and projection never need locking. Reads and
// controls are posted onto the same goroutine as commands.
package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/runlens/runlens/internal/cursorstore"
	"github.com/runlens/runlens/internal/eventlog"
	"github.com/runlens/runlens/internal/metrics"
	"github.com/runlens/runlens/internal/playback"
	"github.com/runlens/runlens/internal/projection"
	"github.com/runlens/runlens/internal/terminal"
	"github.com/runlens/runlens/internal/transport"
	"github.com/runlens/runlens/pkg/types"
)

// Common errors returned by sessions.
var (
	ErrClosed          = errors.New("session closed")
	ErrTerminalNotOpen = errors.New("terminal not open")
)

// Config holds session tuning.
type Config struct {
	// RingLimit bounds each terminal buffer.
	RingLimit int

	// SeekDebounce delays terminal replay after a seek so rapid scrubbing
	// coalesces into one reset. Cosmetic only.
	SeekDebounce time.Duration

	// AdvanceTick is the cadence of replay auto-advance while playing.
	AdvanceTick time.Duration

	// CheckpointInterval throttles cursor checkpoint writes.
	CheckpointInterval time.Duration

	// Transport tunes the reconciler.
	Transport transport.Config
}

// DefaultConfig returns the standard session tuning.
func DefaultConfig() Config {
	return Config{
		RingLimit:          terminal.DefaultRingLimit,
		SeekDebounce:       150 * time.Millisecond,
		AdvanceTick:        200 * time.Millisecond,
		CheckpointInterval: 2 * time.Second,
		Transport:          transport.DefaultConfig(),
	}
}

// ConnectionState is the transport badge surfaced to presentation layers.
type ConnectionState struct {
	State       transport.State `json:"state"`
	Mode        transport.Mode  `json:"mode"`
	LastError   string          `json:"last_error,omitempty"`
	LastEventAt *time.Time      `json:"last_event_at,omitempty"`
}

// Snapshot is a read-only view of the session for presentation layers.
type Snapshot struct {
	SessionID     string                `json:"session_id"`
	RunID         string                `json:"run_id"`
	Status        types.RunStatus       `json:"status"`
	Mode          playback.Mode         `json:"mode"`
	Playing       bool                  `json:"playing"`
	CurrentTimeMs int64                 `json:"current_time_ms"`
	TotalTimeMs   int64                 `json:"total_time_ms"`
	EventCount    int                   `json:"event_count"`
	NodeCount     int                   `json:"node_count"`
	Connection    ConnectionState       `json:"connection"`
	StatusDetail  *types.StatusSnapshot `json:"status_detail,omitempty"`
}

// TerminalView is the rendered output of one (node, stream) buffer.
type TerminalView struct {
	Ref       types.TerminalRef    `json:"ref"`
	State     terminal.RenderState `json:"state"`
	Output    []byte               `json:"output"`
	LastIndex int64                `json:"last_index"`
}

// terminalView pairs a renderer with its accumulated surface.
type terminalView struct {
	renderer *terminal.Renderer
	surface  bytes.Buffer
}

// Session reconstructs one run's timeline from the transport stream and
// serves live and replay views of it.
type Session struct {
	id     string
	runID  string
	cfg    Config
	logger *slog.Logger

	source      transport.Source
	reconciler  *transport.Reconciler
	checkpoints cursorstore.Store

	// Owned by the run loop. Never touched from outside it.
	log        *eventlog.Log
	packets    []types.DataPacket
	packetSeen map[string]struct{}
	chunks     *terminal.Store
	clock      *playback.Clock
	controller *playback.Controller
	status     *types.StatusSnapshot
	terminals  map[types.TerminalRef]*terminalView
	lastEvent   *time.Time
	lastEventID string
	lastSaved   time.Time

	seekTimer   *time.Timer
	seekPending bool

	cmds      chan func()
	cancel    context.CancelFunc
	closed    chan struct{}
	closeOnce sync.Once
}

// New creates a session for runID, resuming from the stored checkpoint if
// one exists.
func New(ctx context.Context, source transport.Source, checkpoints cursorstore.Store, runID string, cfg Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	resume := transport.StreamOptions{}
	lastEventID := ""
	if cp, err := checkpoints.Load(ctx, runID); err == nil {
		resume.Cursor = cp.EventCursor
		resume.TerminalCursor = cp.TerminalCursor
		lastEventID = cp.LastEventID
		logger.Info("resuming from checkpoint",
			slog.String("run_id", runID),
			slog.String("cursor", string(cp.EventCursor)),
		)
	} else if !errors.Is(err, cursorstore.ErrNotFound) {
		logger.Warn("checkpoint load failed, starting cold",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
	}

	s := &Session{
		id:          uuid.New().String(),
		runID:       runID,
		lastEventID: lastEventID,
		cfg:         cfg,
		logger:      logger.With(slog.String("run_id", runID)),
		source:      source,
		checkpoints: checkpoints,
		log:         eventlog.New(),
		packetSeen:  make(map[string]struct{}),
		chunks:      terminal.NewStore(cfg.RingLimit),
		clock:       playback.NewClock(),
		terminals:   make(map[types.TerminalRef]*terminalView),
		cmds:        make(chan func()),
		closed:      make(chan struct{}),
	}
	s.controller = playback.NewController(s.clock, s, s.logger)
	s.reconciler = transport.NewReconciler(source, runID, resume, cfg.Transport, s.logger)
	return s
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// RunID returns the run this session is attached to.
func (s *Session) RunID() string { return s.runID }

// Start connects the transport and launches the run loop.
func (s *Session) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.reconciler.Start(ctx)
	metrics.SessionsActive.Inc()
	go s.run(ctx)
}

// Close disconnects the transport, cancels all timers, and stops the loop.
// It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.reconciler.Close()
		<-s.closed
		metrics.SessionsActive.Dec()
	})
}

func (s *Session) run(ctx context.Context) {
	defer close(s.closed)

	// The debounce timer is created idle and re-armed on every seek.
	s.seekTimer = time.NewTimer(time.Hour)
	if !s.seekTimer.Stop() {
		<-s.seekTimer.C
	}
	defer s.seekTimer.Stop()

	advance := time.NewTicker(s.cfg.AdvanceTick)
	defer advance.Stop()

	msgs := s.reconciler.Messages()

	for {
		select {
		case <-ctx.Done():
			s.saveCheckpoint(true)
			return

		case msg, ok := <-msgs:
			if !ok {
				// Transport finished (terminal run or closed). The session
				// stays alive for replay until Close.
				msgs = nil
				s.saveCheckpoint(true)
				continue
			}
			s.apply(msg)

		case cmd := <-s.cmds:
			cmd()

		case <-s.seekTimer.C:
			s.flushSeek()

		case <-advance.C:
			s.controller.Advance(s.cfg.AdvanceTick)
		}
	}
}

// apply folds one transport message into the session state.
func (s *Session) apply(msg transport.Message) {
	switch msg.Type {
	case transport.MessageTrace:
		if msg.Trace == nil {
			return
		}
		accepted := s.log.Append(msg.Trace.Events)
		dup := len(msg.Trace.Events) - len(accepted)
		if dup > 0 {
			metrics.EventsDuplicate.Add(float64(dup))
		}
		for _, evt := range accepted {
			metrics.EventsMerged.Inc()
			s.controller.ObserveEvent(evt.Timestamp)
			ts := evt.Timestamp
			s.lastEvent = &ts
			s.lastEventID = evt.ID
		}
		s.saveCheckpoint(false)

	case transport.MessageTerminal:
		if msg.Terminal == nil {
			return
		}
		accepted := s.chunks.Ingest(msg.Terminal.Chunks)
		for _, chunk := range msg.Terminal.Chunks {
			metrics.ChunksIngested.WithLabelValues(string(chunk.Stream)).Inc()
		}
		if dropped := len(msg.Terminal.Chunks) - accepted; dropped > 0 {
			metrics.ChunksDropped.Add(float64(dropped))
		}
		// Live surfaces follow the stream; replay surfaces wait for a seek.
		if s.controller.Mode() == playback.ModeLive {
			for _, view := range s.terminals {
				s.applyFrame(view, view.renderer.Tail())
			}
		}
		s.saveCheckpoint(false)

	case transport.MessageStatus:
		if msg.Status != nil {
			s.status = msg.Status
		}

	case transport.MessageDataflow:
		for _, pkt := range msg.Dataflow {
			if _, seen := s.packetSeen[pkt.ID]; seen {
				continue
			}
			s.packetSeen[pkt.ID] = struct{}{}
			s.packets = append(s.packets, pkt)
			s.controller.ObserveEvent(pkt.Timestamp)
		}

	case transport.MessageComplete:
		if msg.Complete != nil {
			s.status = &types.StatusSnapshot{RunID: msg.Complete.RunID, Status: msg.Complete.Status}
			s.logger.Info("run reached terminal status", slog.String("status", string(msg.Complete.Status)))
		}
		s.saveCheckpoint(true)
	}
}

// applyFrame writes a renderer frame onto the view's accumulated surface.
func (s *Session) applyFrame(view *terminalView, frame terminal.Frame) {
	if frame.Reset {
		view.surface.Reset()
		metrics.TerminalResets.Inc()
	}
	for _, w := range frame.Writes {
		view.surface.Write(w)
	}
}

// OnSeek implements playback.Listener. It queues a replay for every open
// terminal and re-arms the debounce timer; rapid scrubbing supersedes the
// pending target instead of stacking resets.
func (s *Session) OnSeek(target time.Time, backward bool) {
	direction := "forward"
	if backward {
		direction = "backward"
	}
	metrics.SeeksTotal.WithLabelValues(direction).Inc()

	for _, view := range s.terminals {
		view.renderer.RequestReplay(target)
	}
	s.seekPending = true
	if !s.seekTimer.Stop() {
		select {
		case <-s.seekTimer.C:
		default:
		}
	}
	s.seekTimer.Reset(s.cfg.SeekDebounce)
}

// OnLive implements playback.Listener: a full state reload guards against
// drift accumulated while detached in replay. The merger makes refetching
// from the beginning safe.
func (s *Session) OnLive() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	trace, err := s.source.GetTrace(ctx, s.runID, "")
	if err != nil {
		s.logger.Warn("full reload failed, keeping current projection", slog.String("error", err.Error()))
	} else {
		for _, evt := range s.log.Append(trace.Events) {
			s.controller.Clock().Observe(evt.Timestamp)
		}
		s.controller.Clock().Pin()
	}

	for _, view := range s.terminals {
		view.renderer.RequestReplay(time.Time{})
	}
	s.seekPending = true
	if !s.seekTimer.Stop() {
		select {
		case <-s.seekTimer.C:
		default:
		}
	}
	s.seekTimer.Reset(s.cfg.SeekDebounce)
}

// flushSeek applies the latest pending replay target to every open
// terminal.
func (s *Session) flushSeek() {
	if !s.seekPending {
		return
	}
	s.seekPending = false
	for _, view := range s.terminals {
		if frame, ok := view.renderer.Flush(); ok {
			s.applyFrame(view, frame)
		}
	}
}

// saveCheckpoint persists the transport cursors, throttled unless forced.
func (s *Session) saveCheckpoint(force bool) {
	if !force && time.Since(s.lastSaved) < s.cfg.CheckpointInterval {
		return
	}
	cursors := s.reconciler.Cursors()
	cp := &cursorstore.Checkpoint{
		RunID:          s.runID,
		EventCursor:    cursors.Cursor,
		TerminalCursor: cursors.TerminalCursor,
		LastEventID:    s.lastEventID,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.checkpoints.Save(ctx, cp); err != nil {
		s.logger.Debug("checkpoint save failed", slog.String("error", err.Error()))
		return
	}
	s.lastSaved = time.Now()
}

// do runs fn on the session loop and waits for it.
func (s *Session) do(fn func()) error {
	done := make(chan struct{})
	select {
	case s.cmds <- func() { fn(); close(done) }:
	case <-s.closed:
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-s.closed:
		return ErrClosed
	}
}

// Events returns the merged event log.
func (s *Session) Events() ([]types.ExecutionEvent, error) {
	var out []types.ExecutionEvent
	err := s.do(func() { out = s.log.Events() })
	return out, err
}

// NodeStates projects the node states as of the current playback position.
func (s *Session) NodeStates() (map[string]*types.NodeVisualState, error) {
	var out map[string]*types.NodeVisualState
	err := s.do(func() {
		upTo := time.Time{}
		if s.controller.Mode() == playback.ModeReplay {
			upTo = s.clock.AbsoluteAt(s.clock.Current())
		}
		out = projection.Project(s.log.Events(), s.packets, upTo)
	})
	return out, err
}

// OpenTerminal registers interest in a (node, stream) buffer and returns
// its current rendered view.
func (s *Session) OpenTerminal(ref types.TerminalRef) (*TerminalView, error) {
	var out *TerminalView
	err := s.do(func() {
		view, ok := s.terminals[ref]
		if !ok {
			view = &terminalView{renderer: terminal.NewRenderer(s.chunks, ref, s.logger)}
			s.terminals[ref] = view
			s.reconciler.WatchTerminal(ref)
			if s.controller.Mode() == playback.ModeLive {
				s.applyFrame(view, view.renderer.Tail())
			} else {
				view.renderer.RequestReplay(s.clock.AbsoluteAt(s.clock.Current()))
				if frame, ok := view.renderer.Flush(); ok {
					s.applyFrame(view, frame)
				}
			}
		}
		out = s.viewOf(ref, view)
	})
	return out, err
}

// Terminal returns the rendered view of an open terminal.
func (s *Session) Terminal(ref types.TerminalRef) (*TerminalView, error) {
	var out *TerminalView
	err := s.do(func() {
		if view, ok := s.terminals[ref]; ok {
			out = s.viewOf(ref, view)
		}
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrTerminalNotOpen
	}
	return out, nil
}

func (s *Session) viewOf(ref types.TerminalRef, view *terminalView) *TerminalView {
	output := make([]byte, view.surface.Len())
	copy(output, view.surface.Bytes())
	return &TerminalView{
		Ref:       ref,
		State:     view.renderer.State(),
		Output:    output,
		LastIndex: view.renderer.LastIndex(),
	}
}

// CloseTerminal drops interest in a buffer and clears it.
func (s *Session) CloseTerminal(ref types.TerminalRef) error {
	return s.do(func() {
		if _, ok := s.terminals[ref]; !ok {
			return
		}
		delete(s.terminals, ref)
		s.reconciler.UnwatchTerminal(ref)
		s.chunks.Clear(ref)
	})
}

// Seek moves the playback position to the given offset, detaching into
// replay mode if the session is live.
func (s *Session) Seek(offset time.Duration) error {
	return s.do(func() { s.controller.Seek(offset) })
}

// Play resumes replay auto-advance.
func (s *Session) Play() error {
	return s.do(func() { s.controller.Play() })
}

// Pause halts replay auto-advance.
func (s *Session) Pause() error {
	return s.do(func() { s.controller.Pause() })
}

// StepForward jumps to the next event boundary.
func (s *Session) StepForward() error {
	return s.do(func() { s.controller.StepForward() })
}

// StepBackward jumps to the previous event boundary.
func (s *Session) StepBackward() error {
	return s.do(func() { s.controller.StepBackward() })
}

// SwitchToLive pins the timeline back to the stream and reloads state.
func (s *Session) SwitchToLive() error {
	return s.do(func() { s.controller.SwitchToLive() })
}

// Snapshot returns the session's presentation view.
func (s *Session) Snapshot() (*Snapshot, error) {
	var out *Snapshot
	err := s.do(func() {
		state, mode, lastErr := s.reconciler.State()
		conn := ConnectionState{State: state, Mode: mode, LastEventAt: s.lastEvent}
		if lastErr != nil {
			conn.LastError = lastErr.Error()
		}

		status := types.RunStatusPending
		if s.status != nil {
			status = s.status.Status
		}

		nodes := projection.Project(s.log.Events(), s.packets, time.Time{})

		out = &Snapshot{
			SessionID:     s.id,
			RunID:         s.runID,
			Status:        status,
			Mode:          s.controller.Mode(),
			Playing:       s.controller.Playing(),
			CurrentTimeMs: s.clock.Current().Milliseconds(),
			TotalTimeMs:   s.clock.Total().Milliseconds(),
			EventCount:    s.log.Len(),
			NodeCount:     len(nodes),
			Connection:    conn,
			StatusDetail:  s.status,
		}
	})
	return out, err
}
