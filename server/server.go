// Package server exposes the conversation service over HTTP: a small JSON
// API for session lifecycle, a websocket stream of session events and the
// Prometheus metrics endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/duetmatch/core"
	"github.com/hupe1980/duetmatch/logging"
	"github.com/hupe1980/duetmatch/registry"
)

// Service is the orchestration surface the HTTP layer drives. The duetmatch
// facade satisfies it.
type Service interface {
	CreateSession(ctx context.Context, participantA, participantB string) (registry.Entry, error)
	SetReady(ctx context.Context, sessionID, participantID string, ready bool) (registry.Entry, error)
	Disconnect(sessionID string)
	Session(sessionID string) (core.Session, bool)
	Result(sessionID string) (core.CompatibilityResult, bool)
}

// Options configures a Server.
type Options struct {
	Logger logging.Logger
}

// Server is the HTTP front of the conversation service.
type Server struct {
	svc    Service
	hub    *Hub
	logger logging.Logger
}

// New creates a Server around a service and its event hub.
func New(svc Service, hub *Hub, optFns ...func(o *Options)) *Server {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Server{svc: svc, hub: hub, logger: opts.Logger}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Post("/sessions", s.handleCreateSession)
		api.Get("/sessions/{sessionID}", s.handleGetSession)
		api.Post("/sessions/{sessionID}/ready", s.handleReady)
		api.Delete("/sessions/{sessionID}", s.handleDisconnect)
		api.Get("/sessions/{sessionID}/result", s.handleGetResult)
	})

	r.Get("/ws/{sessionID}", func(w http.ResponseWriter, req *http.Request) {
		s.hub.ServeWS(w, req, chi.URLParam(req, "sessionID"))
	})

	return r
}

type createSessionRequest struct {
	ParticipantA string `json:"participantA"`
	ParticipantB string `json:"participantB"`
}

type readyRequest struct {
	ParticipantID string `json:"participantId"`
	// Ready retracts the signal when explicitly false; an omitted field
	// counts as a positive signal.
	Ready *bool `json:"ready"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ParticipantA == "" || req.ParticipantB == "" {
		s.respondError(w, http.StatusBadRequest, "participantA and participantB are required")
		return
	}

	entry, err := s.svc.CreateSession(r.Context(), req.ParticipantA, req.ParticipantB)
	if err != nil {
		if errors.Is(err, core.ErrProfileNotFound) {
			s.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("session create failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	s.respondJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req readyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ParticipantID == "" {
		s.respondError(w, http.StatusBadRequest, "participantId is required")
		return
	}

	ready := req.Ready == nil || *req.Ready
	entry, err := s.svc.SetReady(r.Context(), sessionID, req.ParticipantID, ready)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrUnknownSession):
			s.respondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, registry.ErrUnknownParticipant):
			s.respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, core.ErrProfileNotFound):
			s.respondError(w, http.StatusNotFound, err.Error())
		default:
			s.logger.Error("readiness signal failed", "session", sessionID, "error", err)
			s.respondError(w, http.StatusInternalServerError, "failed to process readiness signal")
		}
		return
	}
	s.respondJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.svc.Disconnect(chi.URLParam(r, "sessionID"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, ok := s.svc.Session(sessionID)
	if !ok {
		s.respondError(w, http.StatusNotFound, "unknown session")
		return
	}
	s.respondJSON(w, http.StatusOK, session)
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	result, ok := s.svc.Result(sessionID)
	if !ok {
		s.respondError(w, http.StatusNotFound, "no result for session")
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("response encode failed", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
