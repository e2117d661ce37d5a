package terminal

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/runlens/runlens/pkg/types"
)

// RenderState identifies where a renderer is in its lifecycle.
type RenderState string

const (
	StateEmpty     RenderState = "empty"
	StateStreaming RenderState = "streaming"
	StateReset     RenderState = "reset"
	StateReplayed  RenderState = "replayed"
)

// Frame is the outcome of one render pass: whether the surface must be
// discarded first, and the decoded byte runs to write, in chunk order.
type Frame struct {
	Reset  bool
	Writes [][]byte
	State  RenderState
}

// Renderer replays one (node, stream) buffer onto a rendering surface.
//
// Forward progress is incremental: only chunks beyond the last rendered
// index (and, under a time-filtered replay, recorded at or before the
// target) are written. A backward seek cannot cheaply un-write emitted
// control sequences, so it always discards the surface and replays from
// chunk 0 up to the new target. That is a correctness property of
// cursor-addressed terminal output, not an optimization choice.
//
// Renderer is not safe for concurrent use.
type Renderer struct {
	store  *Store
	ref    types.TerminalRef
	logger *slog.Logger

	state     RenderState
	lastIndex int64
	lastTime  time.Time // last rendered target; zero while tailing live

	// pendingTarget coalesces replay requests: a reset requested while a
	// previous one is still pending supersedes it, so two resets never
	// interleave.
	pendingTarget *time.Time
}

// NewRenderer creates a renderer over the given buffer.
func NewRenderer(store *Store, ref types.TerminalRef, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		store:     store,
		ref:       ref,
		logger:    logger,
		state:     StateEmpty,
		lastIndex: -1,
	}
}

// State returns the renderer's current lifecycle state.
func (r *Renderer) State() RenderState { return r.state }

// LastIndex returns the highest chunk index written so far.
func (r *Renderer) LastIndex() int64 { return r.lastIndex }

// Tail renders incrementally for live mode: every buffered chunk beyond the
// last rendered index is written, with no time filter.
func (r *Renderer) Tail() Frame {
	return r.render(time.Time{})
}

// RequestReplay records target as the desired replay point. If a replay is
// already pending it is superseded; only the latest target is applied when
// Flush runs.
func (r *Renderer) RequestReplay(target time.Time) {
	if r.pendingTarget != nil {
		r.logger.Debug("superseding in-flight replay",
			slog.String("node", r.ref.NodeRef),
			slog.Time("superseded", *r.pendingTarget),
			slog.Time("target", target),
		)
	}
	t := target
	r.pendingTarget = &t
}

// Flush applies the latest pending replay target, if any.
func (r *Renderer) Flush() (Frame, bool) {
	if r.pendingTarget == nil {
		return Frame{State: r.state}, false
	}
	target := *r.pendingTarget
	r.pendingTarget = nil
	return r.render(target), true
}

// render compares the requested target against the last rendered time and
// either advances incrementally or performs a full reset-and-replay.
func (r *Renderer) render(target time.Time) Frame {
	backward := !target.IsZero() && !r.lastTime.IsZero() && target.Before(r.lastTime)

	if backward {
		r.state = StateReset
		r.lastIndex = -1
	}

	var chunks []types.TerminalChunk
	if target.IsZero() {
		chunks = r.store.Chunks(r.ref)
	} else {
		chunks = r.store.ChunksUpTo(r.ref, target)
	}

	frame := Frame{Reset: backward}
	for _, chunk := range chunks {
		if chunk.ChunkIndex <= r.lastIndex {
			continue
		}
		frame.Writes = append(frame.Writes, decodePayload(&chunk, r.logger))
		r.lastIndex = chunk.ChunkIndex
	}

	switch {
	case backward:
		r.state = StateReplayed
	case r.lastIndex >= 0:
		if target.IsZero() {
			r.state = StateStreaming
		} else {
			r.state = StateReplayed
		}
	}

	if !target.IsZero() {
		r.lastTime = target
	} else if len(chunks) > 0 {
		r.lastTime = chunks[len(chunks)-1].RecordedAt
	}

	frame.State = r.state
	return frame
}

// decodePayload decodes a chunk's base64 payload. A payload that will not
// decode is replaced with a visible placeholder rather than dropped, since
// partial output is still informative.
func decodePayload(chunk *types.TerminalChunk, logger *slog.Logger) []byte {
	data, err := base64.StdEncoding.DecodeString(chunk.Payload)
	if err != nil {
		logger.Warn("undecodable terminal chunk",
			slog.String("node", chunk.NodeRef),
			slog.String("stream", string(chunk.Stream)),
			slog.Int64("chunk_index", chunk.ChunkIndex),
			slog.String("error", err.Error()),
		)
		return []byte(fmt.Sprintf("\r\n[runlens: undecodable chunk %d]\r\n", chunk.ChunkIndex))
	}
	return data
}
