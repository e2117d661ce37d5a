package types

import (
	"encoding/json"
	"time"
)

// EventType categorizes the kind of execution event.
type EventType string

const (
	EventStarted   EventType = "STARTED"
	EventProgress  EventType = "PROGRESS"
	EventCompleted EventType = "COMPLETED"
	EventFailed    EventType = "FAILED"
)

// EventMetadata carries optional upstream execution details.
type EventMetadata struct {
	Attempt    int    `json:"attempt,omitempty"`
	ActivityID string `json:"activity_id,omitempty"`
}

// ExecutionEvent is a single event in a run's execution trace. Identity is
// ID: two events with the same ID are the same event no matter how many
// times they arrive. Events are immutable once observed.
type ExecutionEvent struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"`
	NodeID    string         `json:"node_id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Message   string         `json:"message,omitempty"`
	Metadata  *EventMetadata `json:"metadata,omitempty"`
}

// Cursor is an opaque resumption token returned alongside a batch. The
// engine stores it and hands it back verbatim; only the upstream source
// interprets it.
type Cursor string

// DataPacket records data handed between two nodes during a run.
type DataPacket struct {
	ID         string          `json:"id"`
	SourceNode string          `json:"source_node"`
	TargetNode string          `json:"target_node"`
	Timestamp  time.Time       `json:"timestamp"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Size       int64           `json:"size"`
	Type       string          `json:"type,omitempty"`
}
