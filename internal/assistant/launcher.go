package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/takecian/vibe-flow/internal/global"
	"github.com/takecian/vibe-flow/internal/logging"
	"github.com/takecian/vibe-flow/internal/session"
	"github.com/takecian/vibe-flow/internal/task"
)

var (
	ErrNoToolConfigured = errors.New("no assistant tool configured")
	ErrUnknownTool      = errors.New("unknown assistant tool")
)

type Sessions interface {
	Lookup(key string) (session.Info, bool)
	Create(ctx context.Context, req session.CreateRequest) (session.Info, error)
	Write(key string, data []byte) error
}

type SettingsReader interface {
	LoadOrInit() (global.GlobalConfig, error)
}

type ToolsReader interface {
	LoadOrInit() (global.AssistantToolsConfig, error)
}

// StatusRecorder stores the outcome of a launch on the task record.
type StatusRecorder interface {
	SetLaunchStatus(ctx context.Context, id string, status task.LaunchStatus, message string) error
}

type Launcher struct {
	sessions Sessions
	settings SettingsReader
	tools    ToolsReader
	status   StatusRecorder
	logger   *slog.Logger
}

func NewLauncher(sessions Sessions, settings SettingsReader, tools ToolsReader, status StatusRecorder, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Launcher{
		sessions: sessions,
		settings: settings,
		tools:    tools,
		status:   status,
		logger:   logger.With("module", "assistant"),
	}
}

// Launch types the configured assistant command into the task's session, creating the
// session first when it is not running. It never returns an error: failures are logged
// and written to the task's launch status.
func (l *Launcher) Launch(ctx context.Context, taskID string) {
	key := session.KeyFor(taskID)
	tool, err := l.launch(ctx, key, taskID)
	if err != nil {
		l.logger.Warn("assistant launch failed", "task_id", taskID, "err", err)
		l.record(ctx, taskID, task.LaunchFailed, err.Error())
		return
	}
	l.logger.Info("assistant launched", "task_id", taskID, "tool", tool.ID, "command", tool.Command)
	l.record(ctx, taskID, task.LaunchLaunched, "")
}

func (l *Launcher) launch(ctx context.Context, key, taskID string) (global.AssistantTool, error) {
	cfg, err := l.settings.LoadOrInit()
	if err != nil {
		return global.AssistantTool{}, fmt.Errorf("load settings: %w", err)
	}
	if strings.TrimSpace(cfg.AITool) == "" {
		return global.AssistantTool{}, ErrNoToolConfigured
	}
	tools, err := l.tools.LoadOrInit()
	if err != nil {
		return global.AssistantTool{}, fmt.Errorf("load assistant tools: %w", err)
	}
	tool, ok := tools.Find(cfg.AITool)
	if !ok || strings.TrimSpace(tool.Command) == "" {
		return global.AssistantTool{}, fmt.Errorf("%w: %s", ErrUnknownTool, cfg.AITool)
	}

	if _, ok := l.sessions.Lookup(key); !ok {
		if _, err := l.sessions.Create(ctx, session.CreateRequest{
			TaskID: taskID,
			Cols:   cfg.Terminal.DefaultCols,
			Rows:   cfg.Terminal.DefaultRows,
		}); err != nil {
			return global.AssistantTool{}, fmt.Errorf("create session: %w", err)
		}
	}
	if err := l.sessions.Write(key, []byte(tool.Command+"\r")); err != nil {
		return global.AssistantTool{}, fmt.Errorf("write command: %w", err)
	}
	return tool, nil
}

func (l *Launcher) record(ctx context.Context, taskID string, status task.LaunchStatus, message string) {
	if l.status == nil || strings.TrimSpace(taskID) == "" {
		return
	}
	if err := l.status.SetLaunchStatus(ctx, taskID, status, message); err != nil {
		l.logger.Warn("record launch status failed", "task_id", taskID, "status", status, "err", err)
	}
}
