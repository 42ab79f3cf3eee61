package localapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/takecian/vibe-flow/internal/session"
	"github.com/takecian/vibe-flow/internal/task"
	"github.com/takecian/vibe-flow/internal/taskstore"
)

func (s *Server) registerTaskRoutes(r chi.Router) {
	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", s.handleListTasks)
		r.Post("/", s.handleCreateTask)
		r.Get("/{id}", s.handleGetTask)
		r.Put("/{id}", s.handleUpdateTask)
		r.Delete("/{id}", s.handleDeleteTask)
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.repoRoot(w); !ok {
		return
	}
	tasks, err := s.deps.TaskStore.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "TASK_LIST_FAILED", err.Error())
		return
	}
	respondOK(w, tasks)
}

// handleCreateTask answers as soon as the task is stored. Worktree, session and
// assistant setup run afterwards and report through the task's launch status.
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.repoRoot(w); !ok {
		return
	}
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Status      string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	t, err := s.deps.TaskStore.Create(r.Context(), taskstore.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		respondTaskError(w, err, "TASK_CREATE_FAILED")
		return
	}
	if s.deps.TaskObserver != nil {
		s.deps.TaskObserver.TaskCreated(t)
	}
	s.publish(TopicTaskCreated, t.ID, map[string]any{"task": t})
	respondOK(w, t)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, ok, err := s.deps.TaskStore.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "TASK_GET_FAILED", err.Error())
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "TASK_NOT_FOUND", taskstore.ErrNotFound.Error())
		return
	}
	respondOK(w, t)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Status      *string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	t, err := s.deps.TaskStore.Update(r.Context(), id, taskstore.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		respondTaskError(w, err, "TASK_UPDATE_FAILED")
		return
	}
	s.publish(TopicTaskUpdated, t.ID, map[string]any{"task": t})
	respondOK(w, t)
}

// handleDeleteTask removes the record and kills the task's terminal. The worktree is
// left on disk.
func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.TaskStore.Delete(r.Context(), id); err != nil {
		respondTaskError(w, err, "TASK_DELETE_FAILED")
		return
	}
	if s.deps.Sessions != nil {
		if err := s.deps.Sessions.Destroy(session.KeyFor(id)); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			s.logger.Warn("destroy task session failed", "task_id", id, "err", err)
		}
	}
	s.publish(TopicTaskDeleted, id, nil)
	respondOK(w, map[string]any{"deleted": true})
}

func respondTaskError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, taskstore.ErrNotFound):
		respondError(w, http.StatusNotFound, "TASK_NOT_FOUND", err.Error())
	case errors.Is(err, taskstore.ErrTitleRequired), errors.Is(err, taskstore.ErrInvalidStatus):
		respondError(w, http.StatusBadRequest, "INVALID_TASK", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, fallback, err.Error())
	}
}

type LaunchStatusStore interface {
	SetLaunchStatus(ctx context.Context, id string, status task.LaunchStatus, message string) error
}

// LaunchStatusPublisher stores a task's launch outcome and broadcasts it to board
// clients.
type LaunchStatusPublisher struct {
	store LaunchStatusStore
	hub   *WSHub
}

func NewLaunchStatusPublisher(store LaunchStatusStore, hub *WSHub) *LaunchStatusPublisher {
	return &LaunchStatusPublisher{store: store, hub: hub}
}

func (p *LaunchStatusPublisher) SetLaunchStatus(ctx context.Context, id string, status task.LaunchStatus, message string) error {
	if err := p.store.SetLaunchStatus(ctx, id, status, message); err != nil {
		return err
	}
	if p.hub != nil {
		p.hub.Publish(TopicTaskLaunch, id, map[string]any{"launch_status": status, "launch_error": message})
	}
	return nil
}
