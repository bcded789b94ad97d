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
	limiter  *RateLimiter
}

// NewServer creates a new API server with the given handlers.
func NewServer(h *Handlers, limiter *RateLimiter) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		handlers: h,
		limiter:  limiter,
	}
	s.setupRoutes()
	return s
}

// Router returns the configured router for use with http.Server.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	// Health endpoints
	s.router.HandleFunc("/health", s.handlers.Health).Methods("GET")
	s.router.HandleFunc("/healthz", s.handlers.Health).Methods("GET")
	s.router.HandleFunc("/ready", s.handlers.Ready).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Task definition validation
	api.HandleFunc("/definitions/validate", s.handlers.ValidateTask).Methods("POST")

	// Execution management
	api.HandleFunc("/executions", s.handlers.CreateExecution).Methods("POST")
	api.HandleFunc("/executions", s.handlers.ListExecutions).Methods("GET")
	api.HandleFunc("/executions/{id}", s.handlers.GetExecution).Methods("GET")

	// Apply middleware
	s.router.Use(s.handlers.CORSMiddleware)
	s.router.Use(s.handlers.LoggingMiddleware)
	s.router.Use(s.handlers.RecoveryMiddleware)
	if s.limiter != nil {
		s.router.Use(s.limiter.Middleware)
	}
}
