package localapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	dbmodel "github.com/takecian/vibe-flow/internal/db"
	"github.com/takecian/vibe-flow/internal/global"
	"github.com/takecian/vibe-flow/internal/repohistory"
	"github.com/takecian/vibe-flow/internal/session"
	"github.com/takecian/vibe-flow/internal/task"
	"github.com/takecian/vibe-flow/internal/taskstore"
	"github.com/takecian/vibe-flow/internal/worktree"
)

type recordingObserver struct {
	mu    sync.Mutex
	tasks []task.Task
}

func (o *recordingObserver) TaskCreated(t task.Task) {
	o.mu.Lock()
	o.tasks = append(o.tasks, t)
	o.mu.Unlock()
}

type fakeWorktrees struct {
	err   error
	calls []string
}

func (f *fakeWorktrees) Ensure(_ context.Context, repoRoot, taskID, branch string) (worktree.Result, error) {
	f.calls = append(f.calls, taskID+" "+branch)
	if f.err != nil {
		return worktree.Result{}, f.err
	}
	return worktree.Result{Path: worktree.Path(repoRoot, taskID), Created: true}, nil
}

type fakeGit struct {
	dirs      []string
	commitMsg string
	err       error
}

func (f *fakeGit) Status(_ context.Context, dir string) (worktree.Status, error) {
	f.dirs = append(f.dirs, dir)
	return worktree.Status{Branch: "main", Changes: []string{" M README.md"}}, f.err
}

func (f *fakeGit) Diff(_ context.Context, dir string) (string, error) {
	f.dirs = append(f.dirs, dir)
	return "diff --git a/x b/x", f.err
}

func (f *fakeGit) Commit(_ context.Context, dir, message string) error {
	f.dirs = append(f.dirs, dir)
	f.commitMsg = message
	return f.err
}

type fakeSessions struct {
	live      map[string]bool
	destroyed []string
}

func (f *fakeSessions) List() []session.Info {
	out := make([]session.Info, 0, len(f.live))
	for key := range f.live {
		out = append(out, session.Info{Key: key})
	}
	return out
}

func (f *fakeSessions) Destroy(key string) error {
	if !f.live[key] {
		return session.ErrSessionNotFound
	}
	delete(f.live, key)
	f.destroyed = append(f.destroyed, key)
	return nil
}

type testEnv struct {
	srv       *Server
	ts        *httptest.Server
	repo      string
	config    *global.ConfigStore
	tasks     *taskstore.Store
	history   *repohistory.Store
	observer  *recordingObserver
	worktrees *fakeWorktrees
	git       *fakeGit
	sessions  *fakeSessions
}

func newTestEnv(t *testing.T, withRepo bool) *testEnv {
	t.Helper()
	gdb, err := dbmodel.Open(filepath.Join(t.TempDir(), "vibeflow.db"))
	if err != nil {
		t.Fatalf("open db failed: %v", err)
	}
	t.Cleanup(func() { _ = dbmodel.Close(gdb) })
	tasks, err := taskstore.NewStore(gdb)
	if err != nil {
		t.Fatalf("task store failed: %v", err)
	}
	history, err := repohistory.NewStore(gdb)
	if err != nil {
		t.Fatalf("history store failed: %v", err)
	}

	env := &testEnv{
		repo:      t.TempDir(),
		config:    global.NewConfigStore(t.TempDir()),
		tasks:     tasks,
		history:   history,
		observer:  &recordingObserver{},
		worktrees: &fakeWorktrees{},
		git:       &fakeGit{},
		sessions:  &fakeSessions{live: map[string]bool{}},
	}
	if withRepo {
		cfg, err := env.config.LoadOrInit()
		if err != nil {
			t.Fatalf("load config failed: %v", err)
		}
		cfg.RepoPath = env.repo
		if err := env.config.Save(cfg); err != nil {
			t.Fatalf("save config failed: %v", err)
		}
	}
	env.srv = NewServer(Deps{
		ConfigStore:  env.config,
		RepoHistory:  history,
		TaskStore:    tasks,
		TaskObserver: env.observer,
		Worktrees:    env.worktrees,
		Git:          env.git,
		Sessions:     env.sessions,
	})
	env.ts = httptest.NewServer(env.srv.Handler())
	t.Cleanup(env.ts.Close)
	return env
}

type apiResponse struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s %s failed: %v", method, path, err)
	}
	return resp.StatusCode, out
}

func decodeData(t *testing.T, res apiResponse, v any) {
	t.Helper()
	if err := json.Unmarshal(res.Data, v); err != nil {
		t.Fatalf("decode data failed: %v (%s)", err, res.Data)
	}
}
