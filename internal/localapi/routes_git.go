package localapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/takecian/vibe-flow/internal/worktree"
)

func (s *Server) registerGitRoutes(r chi.Router) {
	r.Route("/git", func(r chi.Router) {
		r.Get("/status", s.handleGitStatus)
		r.Post("/worktree", s.handleGitWorktree)
		r.Get("/diff", s.handleGitDiff)
		r.Post("/commit", s.handleGitCommit)
	})
}

// gitDir returns the task's worktree when taskID is set, else the repository root.
func gitDir(repoRoot, taskID string) (string, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return repoRoot, nil
	}
	if taskID == "." || taskID == ".." || strings.ContainsAny(taskID, `/\`) {
		return "", worktree.ErrInvalidTaskID
	}
	return worktree.Path(repoRoot, taskID), nil
}

func (s *Server) handleGitStatus(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.repoRoot(w)
	if !ok {
		return
	}
	dir, err := gitDir(repo, r.URL.Query().Get("task_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_TASK_ID", err.Error())
		return
	}
	st, err := s.deps.Git.Status(r.Context(), dir)
	if err != nil {
		respondGitError(w, err)
		return
	}
	respondOK(w, st)
}

func (s *Server) handleGitWorktree(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.repoRoot(w)
	if !ok {
		return
	}
	var req struct {
		TaskID     string `json:"task_id"`
		BranchName string `json:"branch_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	res, err := s.deps.Worktrees.Ensure(r.Context(), repo, req.TaskID, req.BranchName)
	if err != nil {
		respondGitError(w, err)
		return
	}
	respondOK(w, res)
}

func (s *Server) handleGitDiff(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.repoRoot(w)
	if !ok {
		return
	}
	dir, err := gitDir(repo, r.URL.Query().Get("task_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_TASK_ID", err.Error())
		return
	}
	diff, err := s.deps.Git.Diff(r.Context(), dir)
	if err != nil {
		respondGitError(w, err)
		return
	}
	respondOK(w, map[string]any{"diff": diff})
}

func (s *Server) handleGitCommit(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.repoRoot(w)
	if !ok {
		return
	}
	var req struct {
		TaskID  string `json:"task_id"`
		Message string `json:"message"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "INVALID_COMMIT", "message is required")
		return
	}
	dir, err := gitDir(repo, req.TaskID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_TASK_ID", err.Error())
		return
	}
	if err := s.deps.Git.Commit(r.Context(), dir, req.Message); err != nil {
		respondGitError(w, err)
		return
	}
	respondOK(w, map[string]any{"committed": true})
}

func respondGitError(w http.ResponseWriter, err error) {
	var vcsErr *worktree.VcsError
	switch {
	case errors.Is(err, worktree.ErrRepoNotConfigured):
		respondError(w, http.StatusBadRequest, "CONFIG_ERROR", err.Error())
	case errors.Is(err, worktree.ErrInvalidTaskID), errors.Is(err, worktree.ErrBranchRequired), errors.Is(err, worktree.ErrInvalidBranch):
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.As(err, &vcsErr):
		respondError(w, http.StatusInternalServerError, "VCS_ERROR", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "GIT_FAILED", err.Error())
	}
}
