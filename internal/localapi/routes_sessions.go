package localapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/takecian/vibe-flow/internal/session"
)

func (s *Server) registerSessionRoutes(r chi.Router) {
	r.Get("/sessions", s.handleListSessions)
	r.Delete("/sessions/{key}", s.handleDestroySession)
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Sessions == nil {
		respondOK(w, []session.Info{})
		return
	}
	respondOK(w, s.deps.Sessions.List())
}

func (s *Server) handleDestroySession(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sessions == nil {
		respondError(w, http.StatusNotFound, "SESSION_NOT_FOUND", session.ErrSessionNotFound.Error())
		return
	}
	key := chi.URLParam(r, "key")
	if err := s.deps.Sessions.Destroy(key); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "SESSION_NOT_FOUND", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "SESSION_DESTROY_FAILED", err.Error())
		return
	}
	respondOK(w, map[string]any{"destroyed": key})
}
