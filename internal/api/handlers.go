// Package api provides HTTP handlers and routing for the runlens viewer.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/runlens/runlens/internal/config"
	"github.com/runlens/runlens/internal/session"
	"github.com/runlens/runlens/pkg/types"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	sessions *session.Manager
	config   *config.Config
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(sessions *session.Manager, cfg *config.Config, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		sessions: sessions,
		config:   cfg,
		logger:   logger,
	}
}

// --- Health Endpoints ---

// Health handles the /health and /healthz endpoints.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Ready handles the /ready endpoint.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "ready",
		"sessions": len(h.sessions.List()),
	})
}

// --- Session Management ---

// CreateSessionRequest is the request body for attaching to a run.
type CreateSessionRequest struct {
	RunID string `json:"run_id"`
}

// CreateSession handles POST /api/v1/sessions
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.RunID == "" {
		h.respondError(w, r, http.StatusBadRequest, "run_id is required", errors.New("empty run_id"))
		return
	}

	s, err := h.sessions.Attach(r.Context(), req.RunID)
	if err != nil {
		h.respondError(w, r, http.StatusServiceUnavailable, "failed to attach session", err)
		return
	}

	snap, err := s.Snapshot()
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "failed to read session", err)
		return
	}
	h.respondJSON(w, http.StatusCreated, snap)
}

// ListSessions handles GET /api/v1/sessions
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.sessions.List()
	snaps := make([]*session.Snapshot, 0, len(sessions))
	for _, s := range sessions {
		snap, err := s.Snapshot()
		if err != nil {
			continue // closing concurrently
		}
		snaps = append(snaps, snap)
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"sessions": snaps})
}

// GetSession handles GET /api/v1/sessions/{id}
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := s.Snapshot()
	if err != nil {
		h.respondError(w, r, http.StatusGone, "session closed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, snap)
}

// DeleteSession handles DELETE /api/v1/sessions/{id}
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.sessions.Detach(id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			h.respondError(w, r, http.StatusNotFound, "session not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to detach session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Timeline Views ---

// GetEvents handles GET /api/v1/sessions/{id}/events
func (h *Handlers) GetEvents(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	events, err := s.Events()
	if err != nil {
		h.respondError(w, r, http.StatusGone, "session closed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// GetNodes handles GET /api/v1/sessions/{id}/nodes
func (h *Handlers) GetNodes(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	nodes, err := s.NodeStates()
	if err != nil {
		h.respondError(w, r, http.StatusGone, "session closed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"nodes": nodes})
}

// --- Playback Control ---

// SeekRequest is the request body for a seek.
type SeekRequest struct {
	PositionMs int64 `json:"position_ms"`
}

// Seek handles POST /api/v1/sessions/{id}/seek
func (h *Handlers) Seek(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req SeekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := s.Seek(time.Duration(req.PositionMs) * time.Millisecond); err != nil {
		h.respondError(w, r, http.StatusGone, "session closed", err)
		return
	}
	h.respondSnapshot(w, r, s)
}

// Play handles POST /api/v1/sessions/{id}/play
func (h *Handlers) Play(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, func(s *session.Session) error { return s.Play() })
}

// Pause handles POST /api/v1/sessions/{id}/pause
func (h *Handlers) Pause(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, func(s *session.Session) error { return s.Pause() })
}

// Live handles POST /api/v1/sessions/{id}/live
func (h *Handlers) Live(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, func(s *session.Session) error { return s.SwitchToLive() })
}

// StepForward handles POST /api/v1/sessions/{id}/step/forward
func (h *Handlers) StepForward(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, func(s *session.Session) error { return s.StepForward() })
}

// StepBackward handles POST /api/v1/sessions/{id}/step/backward
func (h *Handlers) StepBackward(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, func(s *session.Session) error { return s.StepBackward() })
}

func (h *Handlers) control(w http.ResponseWriter, r *http.Request, op func(*session.Session) error) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := op(s); err != nil {
		h.respondError(w, r, http.StatusGone, "session closed", err)
		return
	}
	h.respondSnapshot(w, r, s)
}

// --- Terminal Views ---

// OpenTerminalRequest is the request body for opening a terminal view.
type OpenTerminalRequest struct {
	Node   string `json:"node"`
	Stream string `json:"stream"`
}

// OpenTerminal handles POST /api/v1/sessions/{id}/terminals
func (h *Handlers) OpenTerminal(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req OpenTerminalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	ref, err := terminalRef(req.Node, req.Stream)
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid terminal reference", err)
		return
	}

	view, err := s.OpenTerminal(ref)
	if err != nil {
		h.respondError(w, r, http.StatusGone, "session closed", err)
		return
	}
	h.respondJSON(w, http.StatusCreated, view)
}

// GetTerminal handles GET /api/v1/sessions/{id}/terminals/{node}/{stream}
func (h *Handlers) GetTerminal(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	ref, err := terminalRef(vars["node"], vars["stream"])
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid terminal reference", err)
		return
	}

	view, err := s.Terminal(ref)
	if err != nil {
		h.respondError(w, r, http.StatusNotFound, "terminal not open", err)
		return
	}
	h.respondJSON(w, http.StatusOK, view)
}

// CloseTerminal handles DELETE /api/v1/sessions/{id}/terminals/{node}/{stream}
func (h *Handlers) CloseTerminal(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	ref, err := terminalRef(vars["node"], vars["stream"])
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid terminal reference", err)
		return
	}
	if err := s.CloseTerminal(ref); err != nil {
		h.respondError(w, r, http.StatusGone, "session closed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

// session resolves the {id} path variable to a live session, writing the
// error response itself when the lookup fails.
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := mux.Vars(r)["id"]
	s, err := h.sessions.Get(id)
	if err != nil {
		h.respondError(w, r, http.StatusNotFound, "session not found", err)
		return nil, false
	}
	return s, true
}

func terminalRef(node, stream string) (types.TerminalRef, error) {
	if node == "" {
		return types.TerminalRef{}, errors.New("empty node")
	}
	switch types.TerminalStream(stream) {
	case types.StreamPTY, types.StreamStdout, types.StreamStderr:
		return types.TerminalRef{NodeRef: node, Stream: types.TerminalStream(stream)}, nil
	default:
		return types.TerminalRef{}, errors.New("unknown stream: " + stream)
	}
}

func (h *Handlers) respondSnapshot(w http.ResponseWriter, r *http.Request, s *session.Session) {
	snap, err := s.Snapshot()
	if err != nil {
		h.respondError(w, r, http.StatusGone, "session closed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, snap)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	h.logger.Error(message, "error", err, "status", status)
	var details map[string]interface{}
	if err != nil {
		details = map[string]interface{}{"cause": err.Error()}
	}
	writeErrorResponse(w, r, status, HTTPStatusToErrorCode(status), message, details)
}
