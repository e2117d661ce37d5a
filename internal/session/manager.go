package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/runlens/runlens/internal/cursorstore"
	"github.com/runlens/runlens/internal/transport"
)

// ErrNotFound is returned when no session exists for an identifier.
var ErrNotFound = errors.New("session not found")

// Manager tracks the live sessions by id and by run.
type Manager struct {
	source      transport.Source
	checkpoints cursorstore.Store
	cfg         Config
	logger      *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	byRun    map[string]string
	closed   bool
}

// NewManager creates an empty session manager.
func NewManager(source transport.Source, checkpoints cursorstore.Store, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		source:      source,
		checkpoints: checkpoints,
		cfg:         cfg,
		logger:      logger,
		sessions:    make(map[string]*Session),
		byRun:       make(map[string]string),
	}
}

// Attach returns the session for runID, creating and starting one if none
// exists. Attaching to an already-watched run returns the existing session.
func (m *Manager) Attach(ctx context.Context, runID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if id, ok := m.byRun[runID]; ok {
		return m.sessions[id], nil
	}

	// ctx only scopes the checkpoint load; the session itself must outlive
	// the attaching request and is torn down by Detach or Close.
	s := New(ctx, m.source, m.checkpoints, runID, m.cfg, m.logger)
	s.Start(context.Background())
	m.sessions[s.ID()] = s
	m.byRun[runID] = s.ID()

	m.logger.Info("session attached",
		slog.String("session_id", s.ID()),
		slog.String("run_id", runID),
	)
	return s, nil
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// List returns all live sessions.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Detach closes and removes a session.
func (m *Manager) Detach(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		delete(m.byRun, s.RunID())
	}
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	s.Close()
	m.logger.Info("session detached", slog.String("session_id", id))
	return nil
}

// Close shuts down every session. Further Attach calls fail.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.byRun = make(map[string]string)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
