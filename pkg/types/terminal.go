package types

import (
	"time"
)

// TerminalStream identifies which output stream a chunk belongs to.
type TerminalStream string

const (
	StreamPTY    TerminalStream = "pty"
	StreamStdout TerminalStream = "stdout"
	StreamStderr TerminalStream = "stderr"
)

// TerminalRef addresses one (node, stream) output buffer.
type TerminalRef struct {
	NodeRef string         `json:"node_ref"`
	Stream  TerminalStream `json:"stream"`
}

// TerminalChunk is one unit of ordered terminal output. The ordering key is
// ChunkIndex, monotonic per (NodeRef, Stream) starting at 0, not arrival
// order and not RecordedAt. Payload is base64-encoded opaque bytes; the
// store never interprets control sequences.
type TerminalChunk struct {
	NodeRef    string         `json:"node_ref"`
	Stream     TerminalStream `json:"stream"`
	ChunkIndex int64          `json:"chunk_index"`
	Payload    string         `json:"payload"`
	RecordedAt time.Time      `json:"recorded_at"`
	DeltaMs    *int64         `json:"delta_ms,omitempty"`
}

// Ref returns the buffer key for the chunk.
func (c *TerminalChunk) Ref() TerminalRef {
	return TerminalRef{NodeRef: c.NodeRef, Stream: c.Stream}
}
