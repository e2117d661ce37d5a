// Package transport owns the connection to the upstream run source. It
// reconciles push and poll delivery behind one message stream, resumes from
// cursors after reconnects, and stops all activity once a run is terminal.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/runlens/runlens/pkg/types"
)

// Mode is the active delivery mode declared by the source.
type Mode string

const (
	ModeNone     Mode = "none"
	ModePolling  Mode = "polling"
	ModeRealtime Mode = "realtime"
)

// Common errors returned by Source implementations.
var (
	ErrRunNotFound   = errors.New("run not found")
	ErrStreamClosed  = errors.New("stream closed")
	ErrPushDeclined  = errors.New("push delivery unavailable")
	ErrReadyTimedOut = errors.New("no ready signal within grace period")
)

// MessageType names the messages emitted over a stream.
type MessageType string

const (
	MessageReady    MessageType = "ready"
	MessageTrace    MessageType = "trace"
	MessageTerminal MessageType = "terminal"
	MessageStatus   MessageType = "status"
	MessageDataflow MessageType = "dataflow"
	MessageComplete MessageType = "complete"
)

// Ready declares the delivery mode of an opened stream. Interval is the
// server-suggested polling interval when Mode is polling.
type Ready struct {
	Mode     Mode
	Interval time.Duration
}

// TraceBatch is a batch of execution events plus the cursor to resume after
// them.
type TraceBatch struct {
	Events []types.ExecutionEvent
	Cursor types.Cursor
}

// TerminalBatch is a batch of terminal chunks plus its resumption cursor.
type TerminalBatch struct {
	Chunks []types.TerminalChunk
	Cursor types.Cursor
}

// Complete announces that the run reached a terminal status.
type Complete struct {
	RunID  string
	Status types.RunStatus
}

// Message is one named message from the source. Exactly one payload field is
// set, matching Type.
type Message struct {
	Type     MessageType
	Ready    *Ready
	Trace    *TraceBatch
	Terminal *TerminalBatch
	Status   *types.StatusSnapshot
	Dataflow []types.DataPacket
	Complete *Complete
}

// StreamOptions carries the resumption cursors for OpenStream.
type StreamOptions struct {
	Cursor         types.Cursor
	TerminalCursor types.Cursor
}

// Stream is an open push channel from the source. Messages is closed when
// the stream ends; Err reports why.
type Stream interface {
	Messages() <-chan Message
	Err() error
	Close() error
}

// Source is the boundary contract owned by the external scheduler/log-store
// component. Implementations must be safe for concurrent use.
type Source interface {
	// GetStatus returns the upstream view of the run.
	GetStatus(ctx context.Context, runID string) (*types.StatusSnapshot, error)

	// GetTrace returns events after the cursor. An empty cursor requests
	// the trace from the beginning.
	GetTrace(ctx context.Context, runID string, cursor types.Cursor) (*TraceBatch, error)

	// GetTerminalChunks returns chunks for one (node, stream) after the
	// cursor.
	GetTerminalChunks(ctx context.Context, runID string, ref types.TerminalRef, cursor types.Cursor) (*TerminalBatch, error)

	// OpenStream opens the push channel, resuming from the given cursors.
	OpenStream(ctx context.Context, runID string, opts StreamOptions) (Stream, error)
}
