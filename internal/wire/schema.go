// Package wire validates and normalizes payloads arriving from the upstream
// run source. Every event, chunk, and packet is checked against an embedded
// JSON Schema before it is converted into the internal types; invalid items
// are dropped and counted so a malformed payload never reaches the projector
// or the terminal store.
package wire

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const eventSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "run_id", "type", "timestamp"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "run_id": {"type": "string", "minLength": 1},
    "node_id": {"type": "string"},
    "type": {"enum": ["STARTED", "PROGRESS", "COMPLETED", "FAILED"]},
    "timestamp": {"type": "string", "format": "date-time"},
    "message": {"type": "string"},
    "metadata": {
      "type": "object",
      "properties": {
        "attempt": {"type": "integer", "minimum": 0},
        "activity_id": {"type": "string"}
      }
    }
  }
}`

const chunkSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["node_ref", "stream", "chunk_index", "payload", "recorded_at"],
  "properties": {
    "node_ref": {"type": "string", "minLength": 1},
    "stream": {"enum": ["pty", "stdout", "stderr"]},
    "chunk_index": {"type": "integer", "minimum": 0},
    "payload": {"type": "string"},
    "recorded_at": {"type": "string", "format": "date-time"},
    "delta_ms": {"type": "integer", "minimum": 0}
  }
}`

const packetSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "timestamp"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "source_node": {"type": "string"},
    "target_node": {"type": "string"},
    "timestamp": {"type": "string", "format": "date-time"},
    "size": {"type": "integer", "minimum": 0},
    "type": {"type": "string"}
  }
}`

const statusSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["status"],
  "properties": {
    "run_id": {"type": "string"},
    "status": {"enum": ["PENDING", "RUNNING", "COMPLETED", "FAILED", "CANCELLED", "TERMINATED", "TIMED_OUT"]},
    "started_at": {"type": "string", "format": "date-time"},
    "updated_at": {"type": "string", "format": "date-time"},
    "task_queue": {"type": "string"},
    "history_length": {"type": "integer", "minimum": 0}
  }
}`

// Schemas holds the compiled wire schemas.
type Schemas struct {
	event  *jsonschema.Schema
	chunk  *jsonschema.Schema
	packet *jsonschema.Schema
	status *jsonschema.Schema
}

// Compile builds the embedded schemas.
func Compile() (*Schemas, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	resources := map[string]string{
		"event.json":  eventSchemaJSON,
		"chunk.json":  chunkSchemaJSON,
		"packet.json": packetSchemaJSON,
		"status.json": statusSchemaJSON,
	}
	for name, src := range resources {
		if err := compiler.AddResource(name, strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("add %s: %w", name, err)
		}
	}

	s := &Schemas{}
	var err error
	if s.event, err = compiler.Compile("event.json"); err != nil {
		return nil, fmt.Errorf("compile event schema: %w", err)
	}
	if s.chunk, err = compiler.Compile("chunk.json"); err != nil {
		return nil, fmt.Errorf("compile chunk schema: %w", err)
	}
	if s.packet, err = compiler.Compile("packet.json"); err != nil {
		return nil, fmt.Errorf("compile packet schema: %w", err)
	}
	if s.status, err = compiler.Compile("status.json"); err != nil {
		return nil, fmt.Errorf("compile status schema: %w", err)
	}
	return s, nil
}

// validate checks raw JSON against a schema.
func validate(schema *jsonschema.Schema, raw json.RawMessage) error {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return err
	}
	return nil
}
