package worktree

import (
	"context"
	"errors"
	"strings"
)

// Git runs the handful of git commands the task views need.
type Git struct {
	exec Exec
}

func NewGit(exec Exec) *Git {
	if exec == nil {
		exec = RealExec{}
	}
	return &Git{exec: exec}
}

type Status struct {
	Branch  string   `json:"branch"`
	Changes []string `json:"changes"`
}

func (g *Git) run(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := g.exec.Output(ctx, dir, "git", args...)
	if err != nil {
		return "", vcsError(args, err)
	}
	return string(out), nil
}

// BranchExists reports whether a local branch named branch exists. Tags and other
// revisions with the same name do not count.
func (g *Git) BranchExists(ctx context.Context, dir, branch string) bool {
	_, err := g.exec.Output(ctx, dir, "git", "rev-parse", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

func (g *Git) Status(ctx context.Context, dir string) (Status, error) {
	branch, err := g.run(ctx, dir, "branch", "--show-current")
	if err != nil {
		return Status{}, err
	}
	short, err := g.run(ctx, dir, "status", "--short")
	if err != nil {
		return Status{}, err
	}
	changes := make([]string, 0)
	for _, line := range strings.Split(short, "\n") {
		if strings.TrimSpace(line) != "" {
			changes = append(changes, strings.TrimRight(line, "\r"))
		}
	}
	return Status{Branch: strings.TrimSpace(branch), Changes: changes}, nil
}

// Diff returns the unstaged diff of the working tree at dir.
func (g *Git) Diff(ctx context.Context, dir string) (string, error) {
	return g.run(ctx, dir, "diff")
}

// Commit stages every change in dir and commits it with message.
func (g *Git) Commit(ctx context.Context, dir, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return errors.New("commit message is required")
	}
	if _, err := g.run(ctx, dir, "add", "-A"); err != nil {
		return err
	}
	_, err := g.run(ctx, dir, "commit", "-m", message)
	return err
}
