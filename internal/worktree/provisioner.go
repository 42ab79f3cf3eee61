package worktree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/takecian/vibe-flow/internal/logging"
)

// Result describes a provisioned working tree.
type Result struct {
	Path    string `json:"path"`
	Created bool   `json:"created"`
}

// Path is where the working tree for taskID lives under repoRoot.
func Path(repoRoot, taskID string) string {
	return filepath.Join(repoRoot, ".vibe-flow", "worktrees", taskID)
}

type Provisioner struct {
	git    *Git
	group  singleflight.Group
	logger *slog.Logger
}

func NewProvisioner(exec Exec, logger *slog.Logger) *Provisioner {
	if exec == nil {
		exec = RealExec{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Provisioner{git: NewGit(exec), logger: logger.With("module", "worktree")}
}

// Git exposes the status/diff/commit helpers bound to the same executor.
func (p *Provisioner) Git() *Git {
	return p.git
}

// Ensure guarantees a working tree for taskID on branch exists and returns its path.
// An existing directory at the path is taken as-is and no git command runs.
// Concurrent calls for the same task share one provisioning run.
func (p *Provisioner) Ensure(ctx context.Context, repoRoot, taskID, branch string) (Result, error) {
	repoRoot = strings.TrimSpace(repoRoot)
	if repoRoot == "" {
		return Result{}, ErrRepoNotConfigured
	}
	if err := validateTaskID(taskID); err != nil {
		return Result{}, err
	}
	branch = strings.TrimSpace(branch)
	if err := validateBranch(branch); err != nil {
		return Result{}, err
	}
	path := Path(repoRoot, taskID)
	v, err, _ := p.group.Do(path, func() (any, error) {
		return p.ensure(ctx, repoRoot, path, branch)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (p *Provisioner) ensure(ctx context.Context, repoRoot, path, branch string) (Result, error) {
	if isDir(path) {
		return Result{Path: path, Created: false}, nil
	}
	if branch == "" {
		return Result{}, ErrBranchRequired
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Result{}, err
	}
	if err := excludeStateDir(repoRoot); err != nil {
		p.logger.Warn("exclude state dir failed", "repo_root", repoRoot, "err", err)
	}

	var args []string
	if p.git.BranchExists(ctx, repoRoot, branch) {
		args = []string{"worktree", "add", path, branch}
	} else {
		args = []string{"worktree", "add", "-b", branch, path}
	}
	if _, err := p.git.run(ctx, repoRoot, args...); err != nil {
		return Result{}, err
	}
	p.logger.Info("worktree created", "path", path, "branch", branch)
	return Result{Path: path, Created: true}, nil
}

func validateTaskID(taskID string) error {
	id := strings.TrimSpace(taskID)
	if id == "" || id != taskID || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidTaskID, taskID)
	}
	return nil
}

// validateBranch rejects names git could read as an option or that are not a single
// ref name. An empty name is left to ensure, which needs it only when creating.
func validateBranch(branch string) error {
	if branch == "" {
		return nil
	}
	if strings.HasPrefix(branch, "-") || strings.Contains(branch, "..") || strings.ContainsFunc(branch, invalidRefRune) {
		return fmt.Errorf("%w: %q", ErrInvalidBranch, branch)
	}
	return nil
}

func invalidRefRune(r rune) bool {
	return r <= ' ' || r == 0x7f || strings.ContainsRune("~^:?*[\\", r)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

const stateDirPattern = ".vibe-flow/"

// excludeStateDir keeps task worktrees out of the main checkout's untracked files.
func excludeStateDir(repoRoot string) error {
	gitDir := filepath.Join(repoRoot, ".git")
	if !isDir(gitDir) {
		return nil
	}
	infoDir := filepath.Join(gitDir, "info")
	excludePath := filepath.Join(infoDir, "exclude")
	raw, err := os.ReadFile(excludePath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.TrimSpace(line) == stateDirPattern {
			return nil
		}
	}
	if err := os.MkdirAll(infoDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(excludePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	prefix := ""
	if len(raw) > 0 && !strings.HasSuffix(string(raw), "\n") {
		prefix = "\n"
	}
	_, err = f.WriteString(prefix + stateDirPattern + "\n")
	return err
}
