package localapi

import (
	"errors"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/takecian/vibe-flow/internal/worktree"
)

func TestGit_DiffUsesTaskWorktree(t *testing.T) {
	env := newTestEnv(t, true)
	code, res := env.do(t, http.MethodGet, "/api/v1/git/diff?task_id=t1", nil)
	if code != http.StatusOK {
		t.Fatalf("diff failed: %d %+v", code, res)
	}
	if want := filepath.Join(env.repo, ".vibe-flow", "worktrees", "t1"); env.git.dirs[0] != want {
		t.Fatalf("expected diff in %s, got %v", want, env.git.dirs)
	}

	code, _ = env.do(t, http.MethodGet, "/api/v1/git/status", nil)
	if code != http.StatusOK || env.git.dirs[1] != env.repo {
		t.Fatalf("status should run in the repo root: %d %v", code, env.git.dirs)
	}
}

func TestGit_RejectsPathLikeTaskID(t *testing.T) {
	env := newTestEnv(t, true)
	code, res := env.do(t, http.MethodGet, "/api/v1/git/diff?task_id=..", nil)
	if code != http.StatusBadRequest || res.Error.Code != "INVALID_TASK_ID" {
		t.Fatalf("expected INVALID_TASK_ID, got %d %+v", code, res)
	}
}

func TestGit_CommitRequiresMessage(t *testing.T) {
	env := newTestEnv(t, true)
	code, res := env.do(t, http.MethodPost, "/api/v1/git/commit", map[string]any{"task_id": "t1"})
	if code != http.StatusBadRequest || res.Error.Code != "INVALID_COMMIT" {
		t.Fatalf("expected INVALID_COMMIT, got %d %+v", code, res)
	}
	code, res = env.do(t, http.MethodPost, "/api/v1/git/commit", map[string]any{"task_id": "t1", "message": `fix "quotes"; rm -rf /`})
	if code != http.StatusOK || env.git.commitMsg != `fix "quotes"; rm -rf /` {
		t.Fatalf("commit failed: %d %+v msg=%q", code, res, env.git.commitMsg)
	}
}

func TestGit_WorktreeErrorsMapToCodes(t *testing.T) {
	env := newTestEnv(t, true)
	code, res := env.do(t, http.MethodPost, "/api/v1/git/worktree", map[string]any{"task_id": "t1", "branch_name": "feature/x"})
	if code != http.StatusOK || len(env.worktrees.calls) != 1 || env.worktrees.calls[0] != "t1 feature/x" {
		t.Fatalf("worktree failed: %d %+v %v", code, res, env.worktrees.calls)
	}

	env.worktrees.err = &worktree.VcsError{Op: "worktree add", Err: errors.New("fatal: not a git repository")}
	code, res = env.do(t, http.MethodPost, "/api/v1/git/worktree", map[string]any{"task_id": "t1", "branch_name": "feature/x"})
	if code != http.StatusInternalServerError || res.Error.Code != "VCS_ERROR" {
		t.Fatalf("expected VCS_ERROR, got %d %+v", code, res)
	}

	noRepo := newTestEnv(t, false)
	code, res = noRepo.do(t, http.MethodPost, "/api/v1/git/worktree", map[string]any{"task_id": "t1"})
	if code != http.StatusBadRequest || res.Error.Code != "CONFIG_ERROR" {
		t.Fatalf("expected CONFIG_ERROR, got %d %+v", code, res)
	}
}
