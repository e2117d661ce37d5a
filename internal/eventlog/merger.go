// Package eventlog maintains the append-only, deduplicated event log for a
// run. Events arrive in batches from a reconnecting transport and may be
// duplicated or partially overlapping; the log accepts each event id exactly
// once and never reorders or removes an accepted event.
package eventlog

import (
	"github.com/runlens/runlens/pkg/types"
)

// Log is an append-only event log with id-based deduplication. It keeps a
// persistent seen-id set so appending a batch costs O(len(batch)). The
// existing log is never rescanned, which matters in a live tail where
// batches arrive every few seconds.
//
// Log is not safe for concurrent use; each run's log is owned by a single
// session goroutine.
type Log struct {
	events []types.ExecutionEvent
	seen   map[string]struct{}
}

// New returns an empty log.
func New() *Log {
	return &Log{seen: make(map[string]struct{})}
}

// Append merges a batch into the log, preserving existing order and keeping
// only unseen events in their given order. It returns the events that were
// actually accepted, in order.
func (l *Log) Append(incoming []types.ExecutionEvent) []types.ExecutionEvent {
	var accepted []types.ExecutionEvent
	for _, evt := range incoming {
		if _, dup := l.seen[evt.ID]; dup {
			continue
		}
		l.seen[evt.ID] = struct{}{}
		l.events = append(l.events, evt)
		accepted = append(accepted, evt)
	}
	return accepted
}

// Events returns the accepted events in acceptance order. The returned slice
// is a copy; callers may retain it across further appends.
func (l *Log) Events() []types.ExecutionEvent {
	out := make([]types.ExecutionEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of accepted events.
func (l *Log) Len() int {
	return len(l.events)
}

// Has reports whether an event id has been accepted.
func (l *Log) Has(id string) bool {
	_, ok := l.seen[id]
	return ok
}

// Merge deduplicates incoming against existing by event id, preserving
// existing order and appending only unseen incoming events in their given
// order. It is the pure-function form of Log.Append for callers that hold
// plain slices.
func Merge(existing, incoming []types.ExecutionEvent) []types.ExecutionEvent {
	seen := make(map[string]struct{}, len(existing))
	for _, evt := range existing {
		seen[evt.ID] = struct{}{}
	}
	out := make([]types.ExecutionEvent, len(existing), len(existing)+len(incoming))
	copy(out, existing)
	for _, evt := range incoming {
		if _, dup := seen[evt.ID]; dup {
			continue
		}
		seen[evt.ID] = struct{}{}
		out = append(out, evt)
	}
	return out
}
