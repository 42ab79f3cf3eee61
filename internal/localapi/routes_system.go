package localapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/takecian/vibe-flow/internal/systempicker"
)

func (s *Server) registerSystemRoutes(r chi.Router) {
	r.Get("/system/capabilities", s.handleSystemCapabilities)
	r.Get("/system/ai-tools", s.handleSystemAITools)
	r.Post("/system/select-directory", s.handleSelectDirectory)
}

func (s *Server) handleSystemCapabilities(w http.ResponseWriter, _ *http.Request) {
	respondOK(w, map[string]any{
		"directory_picker": s.deps.PickDirectory != nil,
	})
}

func (s *Server) handleSystemAITools(w http.ResponseWriter, r *http.Request) {
	if s.deps.AssistantToolsStore == nil || s.deps.ToolDetector == nil {
		respondError(w, http.StatusInternalServerError, "AI_TOOLS_UNAVAILABLE", "assistant tools are unavailable")
		return
	}
	cfg, err := s.deps.AssistantToolsStore.LoadOrInit()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "AI_TOOLS_LOAD_FAILED", err.Error())
		return
	}
	respondOK(w, s.deps.ToolDetector.Detect(r.Context(), cfg.Tools))
}

func (s *Server) handleSelectDirectory(w http.ResponseWriter, r *http.Request) {
	if s.deps.PickDirectory == nil {
		respondError(w, http.StatusNotImplemented, "PICK_DIRECTORY_UNAVAILABLE", "directory picker is unavailable")
		return
	}
	path, err := s.deps.PickDirectory(r.Context())
	if errors.Is(err, systempicker.ErrCanceled) {
		respondOK(w, map[string]any{"canceled": true})
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "PICK_DIRECTORY_FAILED", err.Error())
		return
	}
	respondOK(w, map[string]any{"repo_root": path})
}
