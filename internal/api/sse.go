package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/runlens/runlens/internal/metrics"
	"github.com/runlens/runlens/internal/session"
)

// watchPollInterval is how often the watch stream checks the session for
// new events and state changes.
const watchPollInterval = 500 * time.Millisecond

// Watch handles GET /api/v1/sessions/{id}/watch
// It implements Server-Sent Events (SSE) for following a session: new
// execution events are streamed as "trace" events identified by their log
// index, and session state changes as "snapshot" events. A client that
// reconnects with Last-Event-ID resumes the trace after that index.
func (h *Handlers) Watch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	requestID := GetRequestID(ctx, r)

	metrics.SSEActiveConnections.Inc()
	defer metrics.SSEActiveConnections.Dec()

	h.logger.Info("SSE watch opened",
		slog.String("session_id", s.ID()),
		slog.String("run_id", s.RunID()),
		slog.String("request_id", requestID),
		slog.String("remote_addr", r.RemoteAddr),
	)

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respondError(w, r, http.StatusInternalServerError, "streaming not supported", errors.New("response writer is not a flusher"))
		return
	}
	flusher.Flush()

	// Resume the trace after the client's last seen index.
	sent := 0
	if lastEventID := r.Header.Get("Last-Event-ID"); lastEventID != "" {
		if idx, err := strconv.Atoi(lastEventID); err == nil && idx >= 0 {
			sent = idx + 1
		}
	}

	snap, err := s.Snapshot()
	if err != nil {
		return
	}
	h.writeSSE(w, flusher, "snapshot", "", snap)
	lastSnap := snap

	poll := time.NewTicker(watchPollInterval)
	defer poll.Stop()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("SSE watch closed",
				slog.String("session_id", s.ID()),
				slog.String("request_id", requestID),
				slog.String("reason", "client_disconnect"),
			)
			return

		case <-poll.C:
			events, err := s.Events()
			if err != nil {
				// Session detached under the stream.
				h.writeSSE(w, flusher, "end", "", map[string]string{"reason": "session_closed"})
				return
			}
			for ; sent < len(events); sent++ {
				h.writeSSE(w, flusher, "trace", strconv.Itoa(sent), events[sent])
			}

			snap, err := s.Snapshot()
			if err != nil {
				h.writeSSE(w, flusher, "end", "", map[string]string{"reason": "session_closed"})
				return
			}
			if snapshotChanged(lastSnap, snap) {
				h.writeSSE(w, flusher, "snapshot", "", snap)
				lastSnap = snap
			}

		case <-heartbeat.C:
			h.writeComment(w, flusher, "heartbeat")
		}
	}
}

// snapshotChanged reports whether the parts of a snapshot a watcher cares
// about moved since the last send.
func snapshotChanged(prev, next *session.Snapshot) bool {
	return prev.Status != next.Status ||
		prev.Mode != next.Mode ||
		prev.Playing != next.Playing ||
		prev.CurrentTimeMs != next.CurrentTimeMs ||
		prev.TotalTimeMs != next.TotalTimeMs ||
		prev.EventCount != next.EventCount ||
		prev.Connection.State != next.Connection.State
}

// writeSSE writes one event in SSE format and flushes.
func (h *Handlers) writeSSE(w http.ResponseWriter, flusher http.Flusher, event, id string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal SSE payload", "error", err)
		return
	}
	if id != "" {
		fmt.Fprintf(w, "id: %s\n", id)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		h.logger.Error("failed to write SSE event", "error", err)
		return
	}
	flusher.Flush()
}

// writeComment writes an SSE comment (for heartbeats).
func (h *Handlers) writeComment(w http.ResponseWriter, flusher http.Flusher, comment string) {
	if _, err := w.Write([]byte(": " + comment + "\n\n")); err != nil {
		h.logger.Error("failed to write SSE comment", "error", err)
		return
	}
	flusher.Flush()
}
