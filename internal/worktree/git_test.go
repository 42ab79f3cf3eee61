package worktree

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGit_CommitAndDiff(t *testing.T) {
	repo := initGitRepo(t)
	g := NewGit(RealExec{})
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(repo, "a.txt"), []byte("one\n"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	st, err := g.Status(ctx, repo)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(st.Changes) != 1 || !strings.Contains(st.Changes[0], "a.txt") {
		t.Fatalf("unexpected changes: %v", st.Changes)
	}
	if err := g.Commit(ctx, repo, "add a; echo injected"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(repo, "a.txt"), []byte("two\n"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	diff, err := g.Diff(ctx, repo)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	if !strings.Contains(diff, "-one") || !strings.Contains(diff, "+two") {
		t.Fatalf("unexpected diff: %s", diff)
	}
}

func TestGit_CommitRequiresMessage(t *testing.T) {
	f := &fakeExec{}
	if err := NewGit(f).Commit(context.Background(), "/r", " "); err == nil {
		t.Fatal("expected error")
	}
	if calls := f.snapshot(); len(calls) != 0 {
		t.Fatalf("expected no git calls, got %v", calls)
	}
}
