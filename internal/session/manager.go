package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/takecian/vibe-flow/internal/logging"
	"github.com/takecian/vibe-flow/internal/task"
	"github.com/takecian/vibe-flow/internal/terminal"
	"github.com/takecian/vibe-flow/internal/worktree"

	"golang.org/x/sys/unix"
)

// DefaultKey names the session opened without a task.
const DefaultKey = "default"

const (
	DefaultCols = 80
	DefaultRows = 30
)

// KeyFor returns the session key for taskID.
func KeyFor(taskID string) string {
	if id := strings.TrimSpace(taskID); id != "" {
		return id
	}
	return DefaultKey
}

type EventKind string

const (
	EventData EventKind = "data"
	EventExit EventKind = "exit"
)

// Event is emitted for every output chunk and once when the process exits.
// SessionID distinguishes successive processes created under the same key.
type Event struct {
	Kind      EventKind
	Key       string
	SessionID uint64
	Data      []byte
	ExitCode  int
}

type EventSink func(Event)

type TaskReader interface {
	Get(ctx context.Context, id string) (task.Task, bool, error)
}

type WorktreeEnsurer interface {
	Ensure(ctx context.Context, repoRoot, taskID, branch string) (worktree.Result, error)
}

type Options struct {
	Spawner   terminal.Spawner
	Tasks     TaskReader
	Worktrees WorktreeEnsurer
	// RepoRoot and Shell are read on every Create so settings changes apply to the next session.
	RepoRoot func() string
	Shell    func() string
	TermName string
	HomeDir  func() (string, error)
	BaseEnv  func() []string
	Logger   *slog.Logger
}

type CreateRequest struct {
	TaskID string
	Cols   int
	Rows   int
	// Started is called with the new session before it emits any event.
	Started func(Info)
}

type Info struct {
	Key       string    `json:"key"`
	SessionID uint64    `json:"session_id"`
	Pid       int       `json:"pid"`
	Dir       string    `json:"dir"`
	Cols      int       `json:"cols"`
	Rows      int       `json:"rows"`
	StartedAt time.Time `json:"started_at"`
}

// Manager owns every live terminal process, at most one per key.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*record
	nextID   atomic.Uint64
	sink     atomic.Pointer[EventSink]

	spawner   terminal.Spawner
	tasks     TaskReader
	worktrees WorktreeEnsurer
	repoRoot  func() string
	shell     func() string
	termName  string
	homeDir   func() (string, error)
	baseEnv   func() []string
	logger    *slog.Logger
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		sessions:  map[string]*record{},
		spawner:   opts.Spawner,
		tasks:     opts.Tasks,
		worktrees: opts.Worktrees,
		repoRoot:  opts.RepoRoot,
		shell:     opts.Shell,
		termName:  strings.TrimSpace(opts.TermName),
		homeDir:   opts.HomeDir,
		baseEnv:   opts.BaseEnv,
		logger:    opts.Logger,
	}
	if m.spawner == nil {
		m.spawner = terminal.PTYSpawner{}
	}
	if m.repoRoot == nil {
		m.repoRoot = func() string { return "" }
	}
	if m.shell == nil {
		m.shell = func() string { return "" }
	}
	if m.termName == "" {
		m.termName = "xterm-color"
	}
	if m.homeDir == nil {
		m.homeDir = os.UserHomeDir
	}
	if m.baseEnv == nil {
		m.baseEnv = os.Environ
	}
	if m.logger == nil {
		m.logger = logging.Nop()
	}
	m.logger = m.logger.With("module", "session")
	return m
}

// SetSink installs the receiver of session events.
func (m *Manager) SetSink(sink EventSink) {
	if sink == nil {
		m.sink.Store(nil)
		return
	}
	m.sink.Store(&sink)
}

func (m *Manager) emit(ev Event) {
	if p := m.sink.Load(); p != nil {
		(*p)(ev)
	}
}

// Create starts a shell for the request's key, replacing any process already running
// under that key.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (Info, error) {
	key := KeyFor(req.TaskID)
	cols, rows := req.Cols, req.Rows
	if cols <= 0 {
		cols = DefaultCols
	}
	if rows <= 0 {
		rows = DefaultRows
	}
	repoRoot := strings.TrimSpace(m.repoRoot())
	if repoRoot == "" {
		return Info{}, worktree.ErrRepoNotConfigured
	}

	t := m.lookupTask(ctx, req.TaskID)
	dir := m.resolveDir(ctx, repoRoot, t)
	env := m.buildEnv(t)

	rec, old, err := m.spawn(key, dir, env, cols, rows, req.Started)
	if old != nil {
		old.drain()
	}
	if err != nil {
		return Info{}, err
	}
	return rec.info(), nil
}

// spawn replaces the process under key while holding m.mu. The replaced record, if
// any, is returned already killed so the caller can drain it after unlocking.
func (m *Manager) spawn(key, dir string, env []string, cols, rows int, started func(Info)) (*record, *record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.sessions[key]
	if old != nil {
		delete(m.sessions, key)
		_ = old.kill()
		m.logger.Info("session replaced", "key", key, "session_id", old.id)
	}
	if err := unix.Access(dir, unix.R_OK|unix.X_OK); err != nil {
		return nil, old, fmt.Errorf("%w: %s", ErrDirectoryUnavailable, dir)
	}
	shell := m.resolveShell()
	proc, err := m.spawner.Spawn(terminal.Options{
		Path: shell,
		Dir:  dir,
		Env:  env,
		Cols: cols,
		Rows: rows,
	})
	if err != nil {
		return nil, old, &SpawnError{Key: key, Err: err}
	}

	rec := &record{
		id:        m.nextID.Add(1),
		key:       key,
		proc:      proc,
		dir:       dir,
		cols:      cols,
		rows:      rows,
		startedAt: time.Now(),
		emit:      m.emit,
	}
	rec.alive.Store(true)
	m.sessions[key] = rec
	if started != nil {
		started(rec.info())
	}
	go m.pump(rec)

	m.logger.Info("session created", "key", key, "session_id", rec.id, "pid", proc.Pid(), "dir", dir, "shell", shell)
	return rec, old, nil
}

func (m *Manager) lookupTask(ctx context.Context, taskID string) *task.Task {
	id := strings.TrimSpace(taskID)
	if id == "" || m.tasks == nil {
		return nil
	}
	t, ok, err := m.tasks.Get(ctx, id)
	if err != nil {
		m.logger.Warn("task lookup failed", "task_id", id, "err", err)
		return nil
	}
	if !ok {
		return nil
	}
	return &t
}

// resolveDir never fails: a missing task worktree or repository falls back to the
// operator home directory.
func (m *Manager) resolveDir(ctx context.Context, repoRoot string, t *task.Task) string {
	dir := repoRoot
	if t != nil {
		dir = worktree.Path(repoRoot, t.ID)
		if m.worktrees != nil {
			res, err := m.worktrees.Ensure(ctx, repoRoot, t.ID, t.BranchName)
			if err != nil {
				m.logger.Warn("worktree ensure failed", "task_id", t.ID, "err", err)
			} else {
				dir = res.Path
			}
		}
	}
	if usableDir(dir) {
		return dir
	}
	home, err := m.homeDir()
	if err != nil {
		m.logger.Warn("home dir lookup failed", "err", err)
		return dir
	}
	m.logger.Info("working dir unavailable, using home", "dir", dir, "home", home)
	return home
}

func usableDir(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	return unix.Access(dir, unix.R_OK|unix.X_OK) == nil
}

var taskEnvNames = []string{"TASK_ID", "TASK_TITLE", "TASK_DESCRIPTION", "TASK_STATUS"}

// buildEnv starts from the parent environment without any TASK_* or TERM entries and
// adds task context only for in-progress tasks.
func (m *Manager) buildEnv(t *task.Task) []string {
	base := m.baseEnv()
	env := make([]string, 0, len(base)+len(taskEnvNames)+1)
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if name == "TERM" || isTaskEnvName(name) {
			continue
		}
		env = append(env, kv)
	}
	env = append(env, "TERM="+m.termName)
	if t != nil && t.InProgress() {
		env = append(env,
			"TASK_ID="+t.ID,
			"TASK_TITLE="+t.Title,
			"TASK_DESCRIPTION="+t.Description,
			"TASK_STATUS="+string(t.Status),
		)
	}
	return env
}

func isTaskEnvName(name string) bool {
	for _, n := range taskEnvNames {
		if n == name {
			return true
		}
	}
	return false
}

func (m *Manager) resolveShell() string {
	if s := strings.TrimSpace(m.shell()); s != "" {
		return s
	}
	if s := strings.TrimSpace(os.Getenv("SHELL")); s != "" {
		return s
	}
	return "/bin/sh"
}

func (m *Manager) pump(rec *record) {
	buf := make([]byte, 32*1024)
	for {
		n, err := rec.proc.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			rec.deliver(Event{Kind: EventData, Key: rec.key, SessionID: rec.id, Data: chunk})
		}
		if err != nil {
			break
		}
	}
	code, err := rec.proc.Wait()
	if err != nil {
		m.logger.Debug("session wait failed", "key", rec.key, "session_id", rec.id, "err", err)
	}
	natural := rec.finish(Event{Kind: EventExit, Key: rec.key, SessionID: rec.id, ExitCode: code})

	m.mu.Lock()
	if m.sessions[rec.key] == rec {
		delete(m.sessions, rec.key)
	}
	m.mu.Unlock()
	if natural {
		m.logger.Info("session exited", "key", rec.key, "session_id", rec.id, "exit_code", code)
	}
}

func (m *Manager) lookup(key string) (*record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.sessions[key]
	if rec == nil {
		return nil, ErrSessionNotFound
	}
	return rec, nil
}

// Write forwards data verbatim to the session's input.
func (m *Manager) Write(key string, data []byte) error {
	rec, err := m.lookup(key)
	if err != nil {
		return err
	}
	_, err = rec.proc.Write(data)
	return err
}

func (m *Manager) Resize(key string, cols, rows int) error {
	if cols <= 0 || rows <= 0 {
		return fmt.Errorf("invalid terminal size %dx%d", cols, rows)
	}
	rec, err := m.lookup(key)
	if err != nil {
		return err
	}
	if err := rec.proc.Resize(cols, rows); err != nil {
		return err
	}
	rec.mu.Lock()
	rec.cols, rec.rows = cols, rows
	rec.mu.Unlock()
	return nil
}

// Destroy kills the session's process. Output it produces afterwards is dropped.
func (m *Manager) Destroy(key string) error {
	m.mu.Lock()
	rec := m.sessions[key]
	if rec == nil {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, key)
	m.mu.Unlock()

	rec.retire()
	m.logger.Info("session destroyed", "key", key, "session_id", rec.id)
	return nil
}

func (m *Manager) Lookup(key string) (Info, bool) {
	rec, err := m.lookup(key)
	if err != nil {
		return Info{}, false
	}
	return rec.info(), true
}

func (m *Manager) List() []Info {
	m.mu.Lock()
	out := make([]Info, 0, len(m.sessions))
	for _, rec := range m.sessions {
		out = append(out, rec.info())
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Close kills every session.
func (m *Manager) Close() error {
	m.mu.Lock()
	recs := make([]*record, 0, len(m.sessions))
	for key, rec := range m.sessions {
		recs = append(recs, rec)
		delete(m.sessions, key)
	}
	m.mu.Unlock()

	var errs error
	for _, rec := range recs {
		if err := rec.retire(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("kill %s: %w", rec.key, err))
		}
	}
	return errs
}
