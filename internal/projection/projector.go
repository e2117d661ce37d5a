// Package projection folds an ordered event log into per-node visual state.
// The projection is a pure function of the events with timestamp at or
// before the requested point in time, so the same code path serves both the
// live tail and replay scrubbing.
package projection

import (
	"sort"
	"time"

	"github.com/runlens/runlens/pkg/types"
)

// Project computes the visual state of every node as of upTo. Events and
// packets with a timestamp after upTo are ignored. A zero upTo means "now":
// no time filter is applied.
//
// Per node, events are ordered by timestamp (arrival order breaks ties) and
// folded through the transition table:
//
//	STARTED   -> running
//	PROGRESS  -> running (only if the node has no state yet)
//	COMPLETED -> success
//	FAILED    -> error
//
// Nodes that appear only as a packet endpoint are represented with idle
// status so the canvas can render a placeholder.
func Project(events []types.ExecutionEvent, packets []types.DataPacket, upTo time.Time) map[string]*types.NodeVisualState {
	states := make(map[string]*types.NodeVisualState)

	byNode := make(map[string][]types.ExecutionEvent)
	totals := make(map[string]int)
	for _, evt := range events {
		if evt.NodeID == "" {
			continue
		}
		totals[evt.NodeID]++
		if !upTo.IsZero() && evt.Timestamp.After(upTo) {
			continue
		}
		byNode[evt.NodeID] = append(byNode[evt.NodeID], evt)
	}

	for nodeID, nodeEvents := range byNode {
		sort.SliceStable(nodeEvents, func(i, j int) bool {
			return nodeEvents[i].Timestamp.Before(nodeEvents[j].Timestamp)
		})
		states[nodeID] = foldNode(nodeID, nodeEvents, totals[nodeID])
	}

	attachPackets(states, packets, upTo)

	return states
}

// foldNode replays one node's ordered events into a fresh state. total is
// the node's event count over the whole log, before any time filtering.
func foldNode(nodeID string, events []types.ExecutionEvent, total int) *types.NodeVisualState {
	state := &types.NodeVisualState{
		NodeID: nodeID,
		Status: types.NodeIdle,
	}

	completed := false
	maxAttempt := 0

	for i := range events {
		evt := events[i]
		state.EventCount++
		state.LastEvent = &events[i]

		if evt.Metadata != nil && evt.Metadata.Attempt > maxAttempt {
			maxAttempt = evt.Metadata.Attempt
		}

		switch evt.Type {
		case types.EventStarted:
			state.Status = types.NodeRunning
			if state.StartTime == nil {
				ts := evt.Timestamp
				state.StartTime = &ts
			}
		case types.EventProgress:
			if state.Status == types.NodeIdle {
				state.Status = types.NodeRunning
			}
		case types.EventCompleted:
			state.Status = types.NodeSuccess
			ts := evt.Timestamp
			state.EndTime = &ts
			completed = true
		case types.EventFailed:
			state.Status = types.NodeError
			ts := evt.Timestamp
			state.EndTime = &ts
		}
	}

	state.Attempts = maxAttempt
	if maxAttempt > 1 {
		state.RetryCount = maxAttempt - 1
	}

	// Progress is a cheap visual heuristic, not real step-internal progress:
	// 100 once a COMPLETED is seen, otherwise the processed share of the
	// node's total events.
	switch {
	case completed:
		state.Progress = 100
	case state.EventCount > 0:
		state.Progress = progressHeuristic(state.EventCount, total)
	}

	return state
}

func progressHeuristic(processed, total int) int {
	if total <= 0 {
		return 0
	}
	p := processed * 100 / total
	if p > 100 {
		p = 100
	}
	return p
}

// attachPackets filters packets to those at or before upTo and attaches them
// to the source node's output list and the target node's input list,
// creating idle placeholder states for nodes with no events yet.
func attachPackets(states map[string]*types.NodeVisualState, packets []types.DataPacket, upTo time.Time) {
	ensure := func(nodeID string) *types.NodeVisualState {
		if s, ok := states[nodeID]; ok {
			return s
		}
		s := &types.NodeVisualState{NodeID: nodeID, Status: types.NodeIdle}
		states[nodeID] = s
		return s
	}

	for _, pkt := range packets {
		if !upTo.IsZero() && pkt.Timestamp.After(upTo) {
			continue
		}
		if pkt.SourceNode != "" {
			s := ensure(pkt.SourceNode)
			s.Output = append(s.Output, pkt)
		}
		if pkt.TargetNode != "" {
			s := ensure(pkt.TargetNode)
			s.Input = append(s.Input, pkt)
		}
	}
}
