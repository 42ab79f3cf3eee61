package appserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type WebUIConfig struct {
	Mode        string
	DevProxyURL string
	DistDir     string
}

type Deps struct {
	// LocalAPI serves /healthz, /api/v1/ and /ws/events.
	LocalAPI http.Handler
	// Terminal serves the terminal channel at /ws/terminal.
	Terminal http.HandlerFunc
	WebUI    WebUIConfig
}

type Server struct {
	local    http.Handler
	terminal http.Handler
	webui    http.Handler
}

func NewServer(deps Deps) (*Server, error) {
	if deps.LocalAPI == nil {
		return nil, routeError("local api handler is required")
	}
	if deps.Terminal == nil {
		return nil, routeError("terminal handler is required")
	}
	webui, err := newWebUIHandler(deps.WebUI)
	if err != nil {
		return nil, err
	}
	return &Server{
		local:    deps.LocalAPI,
		terminal: deps.Terminal,
		webui:    webui,
	}, nil
}

func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serveHTTP)
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path
	switch {
	case p == "/ws/terminal":
		s.terminal.ServeHTTP(w, r)
	case p == "/ws/events" || p == "/healthz" || strings.HasPrefix(p, "/api/v1/"):
		s.local.ServeHTTP(w, r)
	case strings.HasPrefix(p, "/api/") || strings.HasPrefix(p, "/ws/"):
		writeJSON(w, http.StatusNotFound, map[string]any{
			"ok":    false,
			"error": map[string]any{"code": "NOT_FOUND", "message": "route not found"},
		})
	default:
		s.webui.ServeHTTP(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func routeError(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
