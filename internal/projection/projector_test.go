package projection

import (
	"testing"
	"time"

	"github.com/runlens/runlens/pkg/types"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func evt(id, node string, typ types.EventType, offsetMs int) types.ExecutionEvent {
	return types.ExecutionEvent{
		ID:        id,
		RunID:     "run-1",
		NodeID:    node,
		Type:      typ,
		Timestamp: base.Add(time.Duration(offsetMs) * time.Millisecond),
	}
}

func TestProject_TransitionTable(t *testing.T) {
	tests := []struct {
		name       string
		events     []types.ExecutionEvent
		wantStatus types.NodeVisualStatus
	}{
		{
			name:       "started yields running",
			events:     []types.ExecutionEvent{evt("1", "A", types.EventStarted, 0)},
			wantStatus: types.NodeRunning,
		},
		{
			name:       "progress alone yields running",
			events:     []types.ExecutionEvent{evt("1", "A", types.EventProgress, 0)},
			wantStatus: types.NodeRunning,
		},
		{
			name: "completed yields success",
			events: []types.ExecutionEvent{
				evt("1", "A", types.EventStarted, 0),
				evt("2", "A", types.EventCompleted, 1000),
			},
			wantStatus: types.NodeSuccess,
		},
		{
			name: "failed yields error",
			events: []types.ExecutionEvent{
				evt("1", "A", types.EventStarted, 0),
				evt("2", "A", types.EventFailed, 1000),
			},
			wantStatus: types.NodeError,
		},
		{
			name: "progress after failure does not resurrect the node",
			events: []types.ExecutionEvent{
				evt("1", "A", types.EventFailed, 0),
				evt("2", "A", types.EventProgress, 100),
			},
			wantStatus: types.NodeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			states := Project(tt.events, nil, time.Time{})
			state, ok := states["A"]
			if !ok {
				t.Fatal("expected state for node A")
			}
			if state.Status != tt.wantStatus {
				t.Errorf("expected status %s, got %s", tt.wantStatus, state.Status)
			}
		})
	}
}

func TestProject_StartEndProgress(t *testing.T) {
	events := []types.ExecutionEvent{
		evt("1", "A", types.EventStarted, 0),
		evt("2", "A", types.EventCompleted, 1000),
	}

	states := Project(events, nil, time.Time{})
	state := states["A"]

	if state.Status != types.NodeSuccess {
		t.Errorf("expected success, got %s", state.Status)
	}
	if state.Progress != 100 {
		t.Errorf("expected progress 100, got %d", state.Progress)
	}
	if state.StartTime == nil || !state.StartTime.Equal(base) {
		t.Errorf("expected start time %v, got %v", base, state.StartTime)
	}
	wantEnd := base.Add(time.Second)
	if state.EndTime == nil || !state.EndTime.Equal(wantEnd) {
		t.Errorf("expected end time %v, got %v", wantEnd, state.EndTime)
	}
	if state.EventCount != 2 {
		t.Errorf("expected event count 2, got %d", state.EventCount)
	}
	if state.LastEvent == nil || state.LastEvent.ID != "2" {
		t.Error("expected last event to be event 2")
	}
}

func TestProject_OrderIndependence(t *testing.T) {
	e1 := evt("1", "A", types.EventStarted, 0)
	e2 := evt("2", "A", types.EventProgress, 500)
	e3 := evt("3", "A", types.EventCompleted, 1000)

	a := Project([]types.ExecutionEvent{e1, e2, e3}, nil, time.Time{})
	b := Project([]types.ExecutionEvent{e3, e1, e2}, nil, time.Time{})

	sa, sb := a["A"], b["A"]
	if sa.Status != sb.Status {
		t.Errorf("status differs by arrival order: %s vs %s", sa.Status, sb.Status)
	}
	if sa.Progress != sb.Progress {
		t.Errorf("progress differs by arrival order: %d vs %d", sa.Progress, sb.Progress)
	}
	if !sa.StartTime.Equal(*sb.StartTime) || !sa.EndTime.Equal(*sb.EndTime) {
		t.Error("start/end times differ by arrival order")
	}
}

func TestProject_TimeFilter(t *testing.T) {
	events := []types.ExecutionEvent{
		evt("1", "A", types.EventStarted, 0),
		evt("2", "A", types.EventProgress, 500),
		evt("3", "A", types.EventCompleted, 1000),
	}

	t.Run("before completion node is still running", func(t *testing.T) {
		states := Project(events, nil, base.Add(600*time.Millisecond))
		state := states["A"]
		if state.Status != types.NodeRunning {
			t.Errorf("expected running, got %s", state.Status)
		}
		if state.EventCount != 2 {
			t.Errorf("expected 2 processed events, got %d", state.EventCount)
		}
		// 2 of 3 total events processed.
		if state.Progress != 66 {
			t.Errorf("expected progress 66, got %d", state.Progress)
		}
	})

	t.Run("at completion node is done", func(t *testing.T) {
		states := Project(events, nil, base.Add(time.Second))
		if states["A"].Status != types.NodeSuccess {
			t.Errorf("expected success, got %s", states["A"].Status)
		}
	})

	t.Run("before any event node is absent", func(t *testing.T) {
		states := Project(events, nil, base.Add(-time.Second))
		if _, ok := states["A"]; ok {
			t.Error("expected no state for node A before its first event")
		}
	})
}

func TestProject_Attempts(t *testing.T) {
	withAttempt := func(e types.ExecutionEvent, attempt int) types.ExecutionEvent {
		e.Metadata = &types.EventMetadata{Attempt: attempt}
		return e
	}

	events := []types.ExecutionEvent{
		withAttempt(evt("1", "A", types.EventStarted, 0), 1),
		withAttempt(evt("2", "A", types.EventFailed, 100), 1),
		withAttempt(evt("3", "A", types.EventStarted, 200), 2),
		withAttempt(evt("4", "A", types.EventCompleted, 300), 3),
	}

	state := Project(events, nil, time.Time{})["A"]
	if state.Attempts != 3 {
		t.Errorf("expected attempts 3, got %d", state.Attempts)
	}
	if state.RetryCount != 2 {
		t.Errorf("expected retry count 2, got %d", state.RetryCount)
	}
}

func TestProject_Packets(t *testing.T) {
	packets := []types.DataPacket{
		{ID: "p1", SourceNode: "A", TargetNode: "B", Timestamp: base.Add(500 * time.Millisecond), Size: 1024},
		{ID: "p2", SourceNode: "A", TargetNode: "B", Timestamp: base.Add(2 * time.Second), Size: 2048},
	}
	events := []types.ExecutionEvent{evt("1", "A", types.EventStarted, 0)}

	t.Run("packet-only node gets idle placeholder", func(t *testing.T) {
		states := Project(events, packets, time.Time{})
		state, ok := states["B"]
		if !ok {
			t.Fatal("expected placeholder state for node B")
		}
		if state.Status != types.NodeIdle {
			t.Errorf("expected idle, got %s", state.Status)
		}
		if len(state.Input) != 2 {
			t.Errorf("expected 2 input packets, got %d", len(state.Input))
		}
		if len(states["A"].Output) != 2 {
			t.Errorf("expected 2 output packets on A, got %d", len(states["A"].Output))
		}
	})

	t.Run("packets after current time are excluded", func(t *testing.T) {
		states := Project(events, packets, base.Add(time.Second))
		if got := len(states["B"].Input); got != 1 {
			t.Errorf("expected 1 input packet at t=1s, got %d", got)
		}
	})
}
