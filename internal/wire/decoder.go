package wire

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/runlens/runlens/internal/metrics"
	"github.com/runlens/runlens/pkg/types"
)

// Decoder normalizes raw wire payloads into internal types, dropping items
// that fail schema validation. Drops are logged and counted; processing
// always continues on the remainder of the batch.
type Decoder struct {
	schemas *Schemas
	logger  *slog.Logger
}

// NewDecoder compiles the wire schemas and returns a decoder.
func NewDecoder(logger *slog.Logger) (*Decoder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schemas, err := Compile()
	if err != nil {
		return nil, err
	}
	return &Decoder{schemas: schemas, logger: logger}, nil
}

// Events validates and decodes a batch of raw events. Invalid items are
// dropped; valid items are returned in their given order.
func (d *Decoder) Events(items []json.RawMessage) []types.ExecutionEvent {
	out := make([]types.ExecutionEvent, 0, len(items))
	for _, raw := range items {
		if err := validate(d.schemas.event, raw); err != nil {
			d.reject("event", raw, err)
			continue
		}
		var evt types.ExecutionEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			d.reject("event", raw, err)
			continue
		}
		out = append(out, evt)
	}
	return out
}

// Chunks validates and decodes a batch of raw terminal chunks.
func (d *Decoder) Chunks(items []json.RawMessage) []types.TerminalChunk {
	out := make([]types.TerminalChunk, 0, len(items))
	for _, raw := range items {
		if err := validate(d.schemas.chunk, raw); err != nil {
			d.reject("chunk", raw, err)
			continue
		}
		var chunk types.TerminalChunk
		if err := json.Unmarshal(raw, &chunk); err != nil {
			d.reject("chunk", raw, err)
			continue
		}
		out = append(out, chunk)
	}
	return out
}

// Packets validates and decodes a batch of raw data packets.
func (d *Decoder) Packets(items []json.RawMessage) []types.DataPacket {
	out := make([]types.DataPacket, 0, len(items))
	for _, raw := range items {
		if err := validate(d.schemas.packet, raw); err != nil {
			d.reject("packet", raw, err)
			continue
		}
		var pkt types.DataPacket
		if err := json.Unmarshal(raw, &pkt); err != nil {
			d.reject("packet", raw, err)
			continue
		}
		out = append(out, pkt)
	}
	return out
}

// Status validates and decodes a status payload. Unlike batch items, a bad
// status is an error for the caller to handle: there is no partial batch to
// fall back on.
func (d *Decoder) Status(raw json.RawMessage) (*types.StatusSnapshot, error) {
	if err := validate(d.schemas.status, raw); err != nil {
		metrics.WireRejected.WithLabelValues("status").Inc()
		return nil, fmt.Errorf("status payload rejected: %w", err)
	}
	var snap types.StatusSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		metrics.WireRejected.WithLabelValues("status").Inc()
		return nil, fmt.Errorf("status payload rejected: %w", err)
	}
	return &snap, nil
}

func (d *Decoder) reject(kind string, raw json.RawMessage, err error) {
	metrics.WireRejected.WithLabelValues(kind).Inc()
	preview := string(raw)
	if len(preview) > 120 {
		preview = preview[:120] + "..."
	}
	d.logger.Warn("dropping malformed wire payload",
		slog.String("kind", kind),
		slog.String("error", err.Error()),
		slog.String("payload", preview),
	)
}
