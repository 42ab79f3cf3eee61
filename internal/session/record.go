package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/takecian/vibe-flow/internal/terminal"
)

type record struct {
	id        uint64
	key       string
	proc      terminal.Process
	dir       string
	startedAt time.Time
	emit      EventSink
	alive     atomic.Bool

	// emitMu is held for the whole of one delivery. It is never taken while Manager.mu
	// is held, so a slow sink only stalls callers of this record.
	emitMu sync.Mutex

	mu   sync.Mutex
	cols int
	rows int
}

func (r *record) deliver(ev Event) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	if r.alive.Load() {
		r.emit(ev)
	}
}

// finish delivers the exit event if the record was still live and reports whether it was.
func (r *record) finish(ev Event) bool {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	if !r.alive.CompareAndSwap(true, false) {
		return false
	}
	r.emit(ev)
	return true
}

// kill marks the record dead and signals the process without waiting for a delivery
// already in progress.
func (r *record) kill() error {
	r.alive.Store(false)
	return r.proc.Kill()
}

// drain returns once no delivery that started before kill is still running.
func (r *record) drain() {
	r.emitMu.Lock()
	r.emitMu.Unlock()
}

func (r *record) retire() error {
	err := r.kill()
	r.drain()
	return err
}

func (r *record) info() Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Info{
		Key:       r.key,
		SessionID: r.id,
		Pid:       r.proc.Pid(),
		Dir:       r.dir,
		Cols:      r.cols,
		Rows:      r.rows,
		StartedAt: r.startedAt,
	}
}
