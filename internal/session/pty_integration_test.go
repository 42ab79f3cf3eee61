package session

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/takecian/vibe-flow/internal/task"
	"github.com/takecian/vibe-flow/internal/terminal"
	"github.com/takecian/vibe-flow/internal/worktree"
)

func TestManager_RealShellSeesTaskEnv(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	repo := t.TempDir()
	if err := os.MkdirAll(worktree.Path(repo, "t1"), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	events := &eventLog{}
	mgr := NewManager(Options{
		Spawner:  terminal.PTYSpawner{},
		Tasks:    fakeTasks{"t1": {ID: "t1", Title: "demo", Status: task.StatusInProgress, BranchName: "b"}},
		RepoRoot: func() string { return repo },
		Shell:    func() string { return "/bin/sh" },
		BaseEnv:  func() []string { return []string{"PATH=/usr/bin:/bin", "PS1=$ "} },
	})
	mgr.SetSink(events.sink)
	defer func() { _ = mgr.Close() }()

	if _, err := mgr.Create(context.Background(), CreateRequest{TaskID: "t1"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := mgr.Write("t1", []byte("echo VALUE=$TASK_ID:$(basename \"$PWD\")\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	waitFor(t, "shell output", func() bool {
		return strings.Contains(events.dataFor("t1"), "VALUE=t1:t1")
	})
}
