package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wricardo/scenehost/scene/service"
	"github.com/wricardo/scenehost/scene/session"
)

// Server represents the admin REST API server
type Server struct {
	service  service.SessionService
	gatherer prometheus.Gatherer
	router   *mux.Router
	logger   *slog.Logger
}

// Options configures optional parts of the API
type Options struct {
	// Gatherer backs /metrics. When nil the endpoint is not mounted.
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// NewServer creates a new API server
func NewServer(sessionService service.SessionService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		service:  sessionService,
		gatherer: opts.Gatherer,
		router:   mux.NewRouter(),
		logger:   logger.With("component", "api"),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	r := s.router
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// Server lifecycle
	r.HandleFunc("/api/server", s.handleStatus).Methods("GET")
	r.HandleFunc("/api/server/start", s.handleStart).Methods("POST")
	r.HandleFunc("/api/server/stop", s.handleStop).Methods("POST")

	// Users
	r.HandleFunc("/api/users", s.handleListUsers).Methods("GET")
	r.HandleFunc("/api/users/{id}", s.handleGetUser).Methods("GET")

	// Action sender
	r.HandleFunc("/api/action-sender", s.handleGetActionSender).Methods("GET")
	r.HandleFunc("/api/action-sender", s.handleSetActionSender).Methods("PUT")
	r.HandleFunc("/api/action-sender", s.handleClearActionSender).Methods("DELETE")

	// Login policy
	r.HandleFunc("/api/policy", s.handleGetPolicy).Methods("GET")
	r.HandleFunc("/api/policy/reload", s.handleReloadPolicy).Methods("POST")

	r.HandleFunc("/health", s.handleHealth).Methods("GET")

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps service errors to status codes
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrUserNotFound),
		errors.Is(err, service.ErrNoActionSender),
		errors.Is(err, service.ErrNoPolicy):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrNotRunning):
		status = http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	respondError(w, status, err.Error())
}

func parseUserID(raw string) (uint32, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return uint32(id), nil
}

// Server Handlers

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Status(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Port     int    `json:"port,omitempty"`
		Protocol string `json:"protocol,omitempty"`
	}

	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	status, err := s.service.Start(r.Context(), req.Port, req.Protocol)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.logger.Info("server started via api", "port", status.Port, "protocol", status.Protocol)
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Stop(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.logger.Info("server stopped via api")
	respondJSON(w, http.StatusOK, status)
}

// User Handlers

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.service.ListUsers(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(users),
		"users": users,
	})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.service.GetUser(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// Action Sender Handlers

func (s *Server) handleGetActionSender(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.ActionSender(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleSetActionSender(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID uint32 `json:"user_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == 0 {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	user, err := s.service.SetActionSender(r.Context(), req.UserID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleClearActionSender(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ClearActionSender(r.Context()); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Action sender cleared",
	})
}

// Policy Handlers

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := s.service.Policy(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, policy.Redacted())
}

func (s *Server) handleReloadPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := s.service.ReloadPolicy(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, policy.Redacted())
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
