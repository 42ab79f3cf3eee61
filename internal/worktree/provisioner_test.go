package worktree

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type fakeExec struct {
	mu          sync.Mutex
	calls       []string
	branches    map[string]bool
	worktreeErr error
	createOnAdd bool
	addStarted  chan struct{}
	releaseAdd  chan struct{}
}

func (f *fakeExec) Output(_ context.Context, dir, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, strings.Join(append([]string{name}, args...), " "))
	f.mu.Unlock()
	if len(args) > 0 && args[0] == "rev-parse" {
		if f.branches[strings.TrimPrefix(args[len(args)-1], "refs/heads/")] {
			return []byte("abc123\n"), nil
		}
		return nil, errors.New("exit status 1")
	}
	if len(args) > 1 && args[0] == "worktree" && args[1] == "add" {
		if f.addStarted != nil {
			f.addStarted <- struct{}{}
			<-f.releaseAdd
		}
		if f.worktreeErr != nil {
			return nil, f.worktreeErr
		}
		if f.createOnAdd {
			target := args[2]
			if target == "-b" {
				target = args[4]
			}
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, err
			}
		}
	}
	return nil, nil
}

func (f *fakeExec) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func countPrefix(calls []string, prefix string) int {
	n := 0
	for _, c := range calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func TestPath_Layout(t *testing.T) {
	if got := Path("/r", "t1"); got != filepath.Join("/r", ".vibe-flow", "worktrees", "t1") {
		t.Fatalf("unexpected path: %s", got)
	}
}

func TestEnsure_CreatesNewBranchThenIsIdempotent(t *testing.T) {
	repo := t.TempDir()
	f := &fakeExec{createOnAdd: true}
	p := NewProvisioner(f, nil)

	res, err := p.Ensure(context.Background(), repo, "t1", "feature/task-1")
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if !res.Created || res.Path != Path(repo, "t1") {
		t.Fatalf("unexpected result: %+v", res)
	}
	calls := f.snapshot()
	want := "git worktree add -b feature/task-1 " + Path(repo, "t1")
	if calls[len(calls)-1] != want {
		t.Fatalf("unexpected worktree command: %v", calls)
	}

	res, err = p.Ensure(context.Background(), repo, "t1", "feature/task-1")
	if err != nil {
		t.Fatalf("second Ensure failed: %v", err)
	}
	if res.Created || res.Path != Path(repo, "t1") {
		t.Fatalf("unexpected second result: %+v", res)
	}
	if got := len(f.snapshot()); got != len(calls) {
		t.Fatalf("second Ensure should not run git, calls=%v", f.snapshot())
	}
}

func TestEnsure_AttachesExistingBranch(t *testing.T) {
	repo := t.TempDir()
	f := &fakeExec{createOnAdd: true, branches: map[string]bool{"feature/x": true}}
	p := NewProvisioner(f, nil)

	if _, err := p.Ensure(context.Background(), repo, "t2", "feature/x"); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	calls := f.snapshot()
	if calls[0] != "git rev-parse --verify --quiet refs/heads/feature/x" {
		t.Fatalf("unexpected branch lookup: %v", calls)
	}
	if calls[1] != "git worktree add "+Path(repo, "t2")+" feature/x" {
		t.Fatalf("expected attach of existing branch, got %v", calls)
	}
}

func TestEnsure_ExistingDirectorySkipsGit(t *testing.T) {
	repo := t.TempDir()
	if err := os.MkdirAll(Path(repo, "t3"), 0o755); err != nil {
		t.Fatalf("seed dir failed: %v", err)
	}
	f := &fakeExec{}
	res, err := NewProvisioner(f, nil).Ensure(context.Background(), repo, "t3", "")
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if res.Created {
		t.Fatalf("expected created=false, got %+v", res)
	}
	if calls := f.snapshot(); len(calls) != 0 {
		t.Fatalf("expected no git calls, got %v", calls)
	}
}

func TestEnsure_EmptyRepoRootIsConfigError(t *testing.T) {
	f := &fakeExec{}
	_, err := NewProvisioner(f, nil).Ensure(context.Background(), "  ", "t1", "b")
	if !errors.Is(err, ErrRepoNotConfigured) {
		t.Fatalf("expected ErrRepoNotConfigured, got %v", err)
	}
	if calls := f.snapshot(); len(calls) != 0 {
		t.Fatalf("expected no git calls, got %v", calls)
	}
}

func TestEnsure_RejectsPathLikeTaskIDs(t *testing.T) {
	p := NewProvisioner(&fakeExec{}, nil)
	for _, id := range []string{"", "..", "a/b", " t1"} {
		if _, err := p.Ensure(context.Background(), t.TempDir(), id, "b"); !errors.Is(err, ErrInvalidTaskID) {
			t.Fatalf("id %q: expected ErrInvalidTaskID, got %v", id, err)
		}
	}
}

func TestEnsure_RejectsOptionLikeBranchNames(t *testing.T) {
	f := &fakeExec{createOnAdd: true}
	p := NewProvisioner(f, nil)
	for _, branch := range []string{"--detach", "-b", "feature/a b", "feature/../x", "bad~1", "x:y"} {
		if _, err := p.Ensure(context.Background(), t.TempDir(), "t1", branch); !errors.Is(err, ErrInvalidBranch) {
			t.Fatalf("branch %q: expected ErrInvalidBranch, got %v", branch, err)
		}
	}
	if calls := f.snapshot(); len(calls) != 0 {
		t.Fatalf("expected no git calls, got %v", calls)
	}
}

func TestEnsure_GitFailureIsVcsError(t *testing.T) {
	repo := t.TempDir()
	f := &fakeExec{worktreeErr: errors.New("exit status 128: fatal: not a git repository")}
	_, err := NewProvisioner(f, nil).Ensure(context.Background(), repo, "t4", "feature/t4")
	var vcsErr *VcsError
	if !errors.As(err, &vcsErr) {
		t.Fatalf("expected VcsError, got %T %v", err, err)
	}
	if vcsErr.Op != "worktree add" || !strings.Contains(err.Error(), "not a git repository") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsure_ConcurrentCallsProvisionOnce(t *testing.T) {
	repo := t.TempDir()
	f := &fakeExec{createOnAdd: true, addStarted: make(chan struct{}), releaseAdd: make(chan struct{})}
	p := NewProvisioner(f, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := p.Ensure(context.Background(), repo, "t5", "feature/t5")
		errs <- err
	}()
	<-f.addStarted
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := p.Ensure(context.Background(), repo, "t5", "feature/t5")
		errs <- err
	}()
	close(f.releaseAdd)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Ensure failed: %v", err)
		}
	}
	if n := countPrefix(f.snapshot(), "git worktree add"); n != 1 {
		t.Fatalf("expected one worktree add, got %d: %v", n, f.snapshot())
	}
}

func TestEnsure_AddsStateDirToGitExclude(t *testing.T) {
	repo := t.TempDir()
	if err := os.MkdirAll(filepath.Join(repo, ".git", "info"), 0o755); err != nil {
		t.Fatalf("seed .git failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(repo, ".git", "info", "exclude"), []byte("*.log"), 0o644); err != nil {
		t.Fatalf("seed exclude failed: %v", err)
	}
	p := NewProvisioner(&fakeExec{createOnAdd: true}, nil)
	for _, id := range []string{"a", "b"} {
		if _, err := p.Ensure(context.Background(), repo, id, "feature/"+id); err != nil {
			t.Fatalf("Ensure %s failed: %v", id, err)
		}
	}
	raw, err := os.ReadFile(filepath.Join(repo, ".git", "info", "exclude"))
	if err != nil {
		t.Fatalf("read exclude failed: %v", err)
	}
	if string(raw) != "*.log\n.vibe-flow/\n" {
		t.Fatalf("unexpected exclude file: %q", raw)
	}
}

func initGitRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	repo := t.TempDir()
	for _, args := range [][]string{
		{"init", "-q"},
		{"config", "user.email", "dev@example.com"},
		{"config", "user.name", "dev"},
		{"commit", "-q", "--allow-empty", "-m", "init"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = repo
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v %s", args, err, out)
		}
	}
	return repo
}

func TestEnsure_RealGit(t *testing.T) {
	repo := initGitRepo(t)
	p := NewProvisioner(RealExec{}, nil)
	ctx := context.Background()

	res, err := p.Ensure(ctx, repo, "t1", "feature/task-1")
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if !res.Created {
		t.Fatalf("expected created worktree, got %+v", res)
	}
	st, err := p.Git().Status(ctx, res.Path)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.Branch != "feature/task-1" {
		t.Fatalf("unexpected worktree branch: %q", st.Branch)
	}
	rootStatus, err := p.Git().Status(ctx, repo)
	if err != nil {
		t.Fatalf("root Status failed: %v", err)
	}
	if len(rootStatus.Changes) != 0 {
		t.Fatalf("worktrees should not appear as untracked: %v", rootStatus.Changes)
	}

	res, err = p.Ensure(ctx, repo, "t1", "feature/task-1")
	if err != nil || res.Created {
		t.Fatalf("second Ensure should reuse worktree: %+v %v", res, err)
	}
}

func TestEnsure_RealGitTagWithBranchNameStillCreatesBranch(t *testing.T) {
	repo := initGitRepo(t)
	cmd := exec.Command("git", "tag", "feature/x")
	cmd.Dir = repo
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git tag failed: %v %s", err, out)
	}
	p := NewProvisioner(RealExec{}, nil)
	ctx := context.Background()

	res, err := p.Ensure(ctx, repo, "t1", "feature/x")
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	st, err := p.Git().Status(ctx, res.Path)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.Branch != "feature/x" {
		t.Fatalf("expected worktree on branch feature/x, got %q", st.Branch)
	}
}

func TestEnsure_RealGitNotARepository(t *testing.T) {
	_ = initGitRepo(t)
	_, err := NewProvisioner(RealExec{}, nil).Ensure(context.Background(), t.TempDir(), "t1", "feature/task-1")
	var vcsErr *VcsError
	if !errors.As(err, &vcsErr) {
		t.Fatalf("expected VcsError, got %v", err)
	}
}
