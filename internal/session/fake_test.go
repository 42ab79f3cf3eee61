package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/takecian/vibe-flow/internal/task"
	"github.com/takecian/vibe-flow/internal/terminal"
	"github.com/takecian/vibe-flow/internal/worktree"
)

type fakeProc struct {
	pid        int
	outR       *io.PipeReader
	outW       *io.PipeWriter
	holdOnKill bool

	mu      sync.Mutex
	input   bytes.Buffer
	sizes   [][2]int
	killed  atomic.Bool
	exitCh  chan int
	exitOne sync.Once
	waited  chan struct{}
}

func newFakeProc(pid int) *fakeProc {
	r, w := io.Pipe()
	return &fakeProc{pid: pid, outR: r, outW: w, exitCh: make(chan int, 1), waited: make(chan struct{})}
}

func (p *fakeProc) Read(b []byte) (int, error) { return p.outR.Read(b) }

func (p *fakeProc) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input.Write(b)
}

func (p *fakeProc) Resize(cols, rows int) error {
	p.mu.Lock()
	p.sizes = append(p.sizes, [2]int{cols, rows})
	p.mu.Unlock()
	return nil
}

func (p *fakeProc) Kill() error {
	p.killed.Store(true)
	if !p.holdOnKill {
		p.exit(-1)
	}
	return nil
}

func (p *fakeProc) Wait() (int, error) {
	code := <-p.exitCh
	close(p.waited)
	return code, nil
}

func (p *fakeProc) Pid() int { return p.pid }

func (p *fakeProc) emit(t *testing.T, chunk string) {
	t.Helper()
	if _, err := p.outW.Write([]byte(chunk)); err != nil {
		t.Fatalf("emit %q failed: %v", chunk, err)
	}
}

func (p *fakeProc) exit(code int) {
	p.exitOne.Do(func() {
		_ = p.outW.Close()
		p.exitCh <- code
	})
}

func (p *fakeProc) typed() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input.String()
}

type fakeSpawner struct {
	mu    sync.Mutex
	opts  []terminal.Options
	procs []*fakeProc
	err   error
	hold  bool
}

func (s *fakeSpawner) Spawn(opts terminal.Options) (terminal.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts = append(s.opts, opts)
	if s.err != nil {
		return nil, s.err
	}
	p := newFakeProc(1000 + len(s.procs))
	p.holdOnKill = s.hold
	s.procs = append(s.procs, p)
	return p, nil
}

func (s *fakeSpawner) last() (terminal.Options, *fakeProc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.procs) == 0 {
		return s.opts[len(s.opts)-1], nil
	}
	return s.opts[len(s.opts)-1], s.procs[len(s.procs)-1]
}

func (s *fakeSpawner) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.opts)
}

type fakeTasks map[string]task.Task

func (f fakeTasks) Get(_ context.Context, id string) (task.Task, bool, error) {
	t, ok := f[id]
	return t, ok, nil
}

type fakeWorktrees struct {
	err   error
	calls atomic.Int32
}

func (f *fakeWorktrees) Ensure(_ context.Context, repoRoot, taskID, _ string) (worktree.Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return worktree.Result{}, f.err
	}
	return worktree.Result{Path: worktree.Path(repoRoot, taskID)}, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) sink(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func (l *eventLog) dataFor(key string) string {
	var b strings.Builder
	for _, ev := range l.snapshot() {
		if ev.Kind == EventData && ev.Key == key {
			b.Write(ev.Data)
		}
	}
	return b.String()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func envValue(env []string, name string) (string, bool) {
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == name {
			return v, true
		}
	}
	return "", false
}

var errBoom = errors.New("boom")
