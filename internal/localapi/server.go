package localapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/takecian/vibe-flow/internal/assistant"
	"github.com/takecian/vibe-flow/internal/global"
	"github.com/takecian/vibe-flow/internal/logging"
	"github.com/takecian/vibe-flow/internal/repohistory"
	"github.com/takecian/vibe-flow/internal/session"
	"github.com/takecian/vibe-flow/internal/task"
	"github.com/takecian/vibe-flow/internal/taskstore"
	"github.com/takecian/vibe-flow/internal/worktree"
)

type ConfigStore interface {
	LoadOrInit() (global.GlobalConfig, error)
	Save(cfg global.GlobalConfig) error
}

type AssistantToolsStore interface {
	LoadOrInit() (global.AssistantToolsConfig, error)
}

type RepoHistory interface {
	Record(path string) error
	List(limit int) ([]repohistory.Entry, error)
	Clear() error
}

type TaskStore interface {
	Create(ctx context.Context, in taskstore.CreateInput) (task.Task, error)
	Get(ctx context.Context, id string) (task.Task, bool, error)
	List(ctx context.Context) ([]task.Task, error)
	Update(ctx context.Context, id string, in taskstore.UpdateInput) (task.Task, error)
	Delete(ctx context.Context, id string) error
}

// TaskObserver is told about every stored task; it must return without blocking.
type TaskObserver interface {
	TaskCreated(t task.Task)
}

type Worktrees interface {
	Ensure(ctx context.Context, repoRoot, taskID, branch string) (worktree.Result, error)
}

type GitOps interface {
	Status(ctx context.Context, dir string) (worktree.Status, error)
	Diff(ctx context.Context, dir string) (string, error)
	Commit(ctx context.Context, dir, message string) error
}

type SessionService interface {
	List() []session.Info
	Destroy(key string) error
}

type ToolDetector interface {
	Detect(ctx context.Context, tools []global.AssistantTool) []assistant.Availability
}

type Deps struct {
	ConfigStore         ConfigStore
	AssistantToolsStore AssistantToolsStore
	RepoHistory         RepoHistory
	TaskStore           TaskStore
	TaskObserver        TaskObserver
	Worktrees           Worktrees
	Git                 GitOps
	Sessions            SessionService
	ToolDetector        ToolDetector
	PickDirectory       func(ctx context.Context) (string, error)
	// Hub is created by NewServer when nil.
	Hub    *WSHub
	Logger *slog.Logger
}

type Server struct {
	deps   Deps
	router *chi.Mux
	hub    *WSHub
	logger *slog.Logger
}

func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	hub := deps.Hub
	if hub == nil {
		hub = NewWSHub()
	}
	s := &Server{deps: deps, router: chi.NewRouter(), hub: hub, logger: logger.With("module", "localapi")}

	s.router.Get("/ws/events", s.hub.HandleWS)
	s.router.Group(func(r chi.Router) {
		r.Use(RequestID)
		r.Use(Logger(s.logger))
		r.Use(Recovery(s.logger))

		r.Get("/healthz", s.handleHealth)
		r.Route("/api/v1", func(r chi.Router) {
			s.registerConfigRoutes(r)
			s.registerTaskRoutes(r)
			s.registerGitRoutes(r)
			s.registerSystemRoutes(r)
			s.registerSessionRoutes(r)
		})
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub is the task event broadcaster served at /ws/events.
func (s *Server) Hub() *WSHub {
	return s.hub
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondOK(w, map[string]any{"status": "ok"})
}

func respondOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": data})
}

func respondError(w http.ResponseWriter, code int, errCode string, msg string) {
	writeJSON(w, code, map[string]any{"ok": false, "error": map[string]any{"code": errCode, "message": msg}})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
}

// repoRoot returns the configured repository, answering the request itself when none is set.
func (s *Server) repoRoot(w http.ResponseWriter) (string, bool) {
	cfg, err := s.deps.ConfigStore.LoadOrInit()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "CONFIG_LOAD_FAILED", err.Error())
		return "", false
	}
	if cfg.RepoPath == "" {
		respondError(w, http.StatusBadRequest, "CONFIG_ERROR", worktree.ErrRepoNotConfigured.Error())
		return "", false
	}
	return cfg.RepoPath, true
}

func (s *Server) publish(topic, taskID string, payload map[string]any) {
	if s.hub != nil {
		s.hub.Publish(topic, taskID, payload)
	}
}
