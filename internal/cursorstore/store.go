// Package cursorstore persists per-run resumption cursors so a restarted
// viewer can resume mid-stream instead of refetching a run's whole history.
package cursorstore

import (
	"context"
	"errors"

	"github.com/runlens/runlens/pkg/types"
)

// ErrNotFound is returned when no checkpoint exists for a run.
var ErrNotFound = errors.New("checkpoint not found")

// Checkpoint is the durable resumption state for one run.
type Checkpoint struct {
	RunID          string       `json:"run_id"`
	EventCursor    types.Cursor `json:"event_cursor"`
	TerminalCursor types.Cursor `json:"terminal_cursor"`
	LastEventID    string       `json:"last_event_id,omitempty"`
}

// Store persists checkpoints. Implementations must be safe for concurrent
// use.
type Store interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, runID string) (*Checkpoint, error)
	Delete(ctx context.Context, runID string) error
	Close() error
}
