// Package terminal starts interactive processes attached to pseudo-terminals.
package terminal

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

type Options struct {
	Path string
	Args []string
	Dir  string
	Env  []string
	Cols int
	Rows int
}

// Process is a running program on the far side of a pseudo-terminal. Read returns the
// program's output; Write feeds its input.
type Process interface {
	io.Reader
	io.Writer
	Resize(cols, rows int) error
	// Kill terminates the process group with SIGKILL. Safe to call more than once.
	Kill() error
	// Wait blocks until the process exits and returns its exit code, or -1 when it
	// was ended by a signal.
	Wait() (int, error)
	Pid() int
}

type Spawner interface {
	Spawn(opts Options) (Process, error)
}

type PTYSpawner struct{}

func (PTYSpawner) Spawn(opts Options) (Process, error) {
	if opts.Path == "" {
		return nil, errors.New("program path is required")
	}
	cmd := exec.Command(opts.Path, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	master, err := pty.StartWithSize(cmd, winsize(opts.Cols, opts.Rows))
	if err != nil {
		return nil, err
	}
	return &ptyProcess{cmd: cmd, master: master}, nil
}

type ptyProcess struct {
	cmd       *exec.Cmd
	master    *os.File
	closeOnce sync.Once
}

func (p *ptyProcess) Read(b []byte) (int, error) {
	return p.master.Read(b)
}

func (p *ptyProcess) Write(b []byte) (int, error) {
	return p.master.Write(b)
}

func (p *ptyProcess) Resize(cols, rows int) error {
	return pty.Setsize(p.master, winsize(cols, rows))
}

func (p *ptyProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *ptyProcess) Kill() error {
	pid := p.cmd.Process.Pid
	// pty.Start puts the child in its own session, so its pid is also the group id.
	err := unix.Kill(-pid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		err = nil
	}
	if err != nil {
		if killErr := p.cmd.Process.Kill(); killErr == nil || errors.Is(killErr, os.ErrProcessDone) {
			err = nil
		}
	}
	p.closeMaster()
	return err
}

func (p *ptyProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	p.closeMaster()
	if p.cmd.ProcessState == nil {
		return -1, err
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return -1, err
	}
	return p.cmd.ProcessState.ExitCode(), nil
}

func (p *ptyProcess) closeMaster() {
	p.closeOnce.Do(func() {
		_ = p.master.Close()
	})
}

func winsize(cols, rows int) *pty.Winsize {
	return &pty.Winsize{Cols: clampDim(cols), Rows: clampDim(rows)}
}

func clampDim(v int) uint16 {
	if v < 1 {
		return 1
	}
	if v > 0xffff {
		return 0xffff
	}
	return uint16(v)
}
