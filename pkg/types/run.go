// Package types provides shared types for the runlens engine.
package types

import (
	"time"
)

// RunStatus represents the upstream state of a run.
type RunStatus string

const (
	RunStatusPending    RunStatus = "PENDING"
	RunStatusRunning    RunStatus = "RUNNING"
	RunStatusCompleted  RunStatus = "COMPLETED"
	RunStatusFailed     RunStatus = "FAILED"
	RunStatusCancelled  RunStatus = "CANCELLED"
	RunStatusTerminated RunStatus = "TERMINATED"
	RunStatusTimedOut   RunStatus = "TIMED_OUT"
)

// IsTerminal reports whether the run has reached a final state. Once a run
// is terminal its event log is immutable and no further transport activity
// is warranted.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled,
		RunStatusTerminated, RunStatusTimedOut:
		return true
	}
	return false
}

// StatusSnapshot is the upstream view of a run returned by getStatus.
type StatusSnapshot struct {
	RunID         string     `json:"run_id"`
	Status        RunStatus  `json:"status"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
	TaskQueue     string     `json:"task_queue,omitempty"`
	HistoryLength int64      `json:"history_length,omitempty"`
}

// NodeVisualStatus is the derived per-node status shown on the canvas.
type NodeVisualStatus string

const (
	NodeIdle    NodeVisualStatus = "idle"
	NodeRunning NodeVisualStatus = "running"
	NodeSuccess NodeVisualStatus = "success"
	NodeError   NodeVisualStatus = "error"
)

// NodeVisualState is the projection of a node's event history up to a point
// in time. It is derived, never persisted, and recomputed deterministically
// from the event log.
type NodeVisualState struct {
	NodeID     string           `json:"node_id"`
	Status     NodeVisualStatus `json:"status"`
	Progress   int              `json:"progress"` // 0..100
	StartTime  *time.Time       `json:"start_time,omitempty"`
	EndTime    *time.Time       `json:"end_time,omitempty"`
	EventCount int              `json:"event_count"`
	LastEvent  *ExecutionEvent  `json:"last_event,omitempty"`
	Attempts   int              `json:"attempts"`
	RetryCount int              `json:"retry_count"`
	Input      []DataPacket     `json:"input,omitempty"`
	Output     []DataPacket     `json:"output,omitempty"`
}
