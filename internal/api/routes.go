package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds the HTTP handlers and dependencies.
type Server struct {
	router   *mux.Router
	handlers *Handlers
}

// NewServer creates a new API server with the given handlers.
func NewServer(h *Handlers) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		handlers: h,
	}
	s.setupRoutes()
	return s
}

// Router returns the configured router for use with http.Server.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	// Health and observability endpoints
	s.router.HandleFunc("/health", s.handlers.Health).Methods("GET")
	s.router.HandleFunc("/healthz", s.handlers.Health).Methods("GET")
	s.router.HandleFunc("/ready", s.handlers.Ready).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Session management
	api.HandleFunc("/sessions", s.handlers.CreateSession).Methods("POST")
	api.HandleFunc("/sessions", s.handlers.ListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handlers.GetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handlers.DeleteSession).Methods("DELETE")

	// Timeline views
	api.HandleFunc("/sessions/{id}/events", s.handlers.GetEvents).Methods("GET")
	api.HandleFunc("/sessions/{id}/nodes", s.handlers.GetNodes).Methods("GET")
	api.HandleFunc("/sessions/{id}/watch", s.handlers.Watch).Methods("GET")

	// Playback control
	api.HandleFunc("/sessions/{id}/seek", s.handlers.Seek).Methods("POST")
	api.HandleFunc("/sessions/{id}/play", s.handlers.Play).Methods("POST")
	api.HandleFunc("/sessions/{id}/pause", s.handlers.Pause).Methods("POST")
	api.HandleFunc("/sessions/{id}/live", s.handlers.Live).Methods("POST")
	api.HandleFunc("/sessions/{id}/step/forward", s.handlers.StepForward).Methods("POST")
	api.HandleFunc("/sessions/{id}/step/backward", s.handlers.StepBackward).Methods("POST")

	// Terminal views
	api.HandleFunc("/sessions/{id}/terminals", s.handlers.OpenTerminal).Methods("POST")
	api.HandleFunc("/sessions/{id}/terminals/{node}/{stream}", s.handlers.GetTerminal).Methods("GET")
	api.HandleFunc("/sessions/{id}/terminals/{node}/{stream}", s.handlers.CloseTerminal).Methods("DELETE")

	// Apply middleware
	s.router.Use(s.handlers.TracingMiddleware)
	s.router.Use(s.handlers.CORSMiddleware)
	s.router.Use(s.handlers.LoggingMiddleware)
	s.router.Use(s.handlers.RecoveryMiddleware)
	api.Use(s.handlers.RateLimitMiddleware)
}
