package worktree

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Exec runs a command in dir and returns its combined output.
type Exec interface {
	Output(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

type RealExec struct{}

func (RealExec) Output(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return out, fmt.Errorf("%w: %s", err, msg)
		}
		return out, err
	}
	return out, nil
}
