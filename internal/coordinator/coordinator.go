// Package coordinator prepares a new task in the background: worktree, then terminal
// session, then assistant launch.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/takecian/vibe-flow/internal/logging"
	"github.com/takecian/vibe-flow/internal/session"
	"github.com/takecian/vibe-flow/internal/task"
	"github.com/takecian/vibe-flow/internal/worktree"
)

type Provisioner interface {
	Ensure(ctx context.Context, repoRoot, taskID, branch string) (worktree.Result, error)
}

type Sessions interface {
	Lookup(key string) (session.Info, bool)
	Create(ctx context.Context, req session.CreateRequest) (session.Info, error)
}

type Launcher interface {
	Launch(ctx context.Context, taskID string)
}

type StatusRecorder interface {
	SetLaunchStatus(ctx context.Context, id string, status task.LaunchStatus, message string) error
}

type Options struct {
	Worktrees Provisioner
	Sessions  Sessions
	Launcher  Launcher
	Status    StatusRecorder
	RepoRoot  func() string
	// TerminalSize returns the dimensions used for sessions created on behalf of a task.
	TerminalSize func() (cols, rows int)
	Logger       *slog.Logger
}

type Coordinator struct {
	ctx          context.Context
	wg           sync.WaitGroup
	worktrees    Provisioner
	sessions     Sessions
	launcher     Launcher
	status       StatusRecorder
	repoRoot     func() string
	terminalSize func() (int, int)
	logger       *slog.Logger
}

// New returns a coordinator whose background work is bound to ctx.
func New(ctx context.Context, opts Options) *Coordinator {
	c := &Coordinator{
		ctx:          ctx,
		worktrees:    opts.Worktrees,
		sessions:     opts.Sessions,
		launcher:     opts.Launcher,
		status:       opts.Status,
		repoRoot:     opts.RepoRoot,
		terminalSize: opts.TerminalSize,
		logger:       opts.Logger,
	}
	if c.repoRoot == nil {
		c.repoRoot = func() string { return "" }
	}
	if c.terminalSize == nil {
		c.terminalSize = func() (int, int) { return session.DefaultCols, session.DefaultRows }
	}
	if c.logger == nil {
		c.logger = logging.Nop()
	}
	c.logger = c.logger.With("module", "coordinator")
	return c
}

// TaskCreated starts preparing t and returns immediately.
func (c *Coordinator) TaskCreated(t task.Task) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.prepare(t)
	}()
}

// Wait blocks until all background preparation has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) prepare(t task.Task) {
	ctx := c.ctx
	log := c.logger.With("task_id", t.ID)
	c.record(ctx, t.ID, task.LaunchPending, "")

	repoRoot := strings.TrimSpace(c.repoRoot())
	if repoRoot == "" {
		c.fail(ctx, log, t.ID, "provision worktree", worktree.ErrRepoNotConfigured)
		return
	}
	res, err := c.worktrees.Ensure(ctx, repoRoot, t.ID, t.BranchName)
	if err != nil {
		c.fail(ctx, log, t.ID, "provision worktree", err)
		return
	}
	log.Info("worktree ready", "path", res.Path, "created", res.Created, "branch", t.BranchName)

	key := session.KeyFor(t.ID)
	if _, ok := c.sessions.Lookup(key); !ok {
		cols, rows := c.terminalSize()
		info, err := c.sessions.Create(ctx, session.CreateRequest{TaskID: t.ID, Cols: cols, Rows: rows})
		if err != nil {
			c.fail(ctx, log, t.ID, "create session", err)
			return
		}
		log.Info("session ready", "session_id", info.SessionID, "dir", info.Dir)
	}

	c.launcher.Launch(ctx, t.ID)
}

func (c *Coordinator) fail(ctx context.Context, log *slog.Logger, taskID, step string, err error) {
	log.Warn("task preparation failed", "step", step, "err", err)
	c.record(ctx, taskID, task.LaunchFailed, fmt.Sprintf("%s: %v", step, err))
}

func (c *Coordinator) record(ctx context.Context, taskID string, status task.LaunchStatus, message string) {
	if c.status == nil {
		return
	}
	if err := c.status.SetLaunchStatus(ctx, taskID, status, message); err != nil {
		c.logger.Warn("record launch status failed", "task_id", taskID, "status", status, "err", err)
	}
}
