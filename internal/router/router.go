// Package router routes terminal requests from client connections to sessions and
// session output back to the connection that owns each session key.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/takecian/vibe-flow/internal/logging"
	"github.com/takecian/vibe-flow/internal/protocol"
	"github.com/takecian/vibe-flow/internal/session"
	"github.com/takecian/vibe-flow/internal/worktree"
)

const peerQueueSize = 256

type SessionService interface {
	Create(ctx context.Context, req session.CreateRequest) (session.Info, error)
	Write(key string, data []byte) error
	Resize(key string, cols, rows int) error
	Destroy(key string) error
	Lookup(key string) (session.Info, bool)
}

// Peer is one client connection. Messages queued for it are written in FIFO order by
// a single writer.
type Peer struct {
	id   string
	out  chan protocol.Message
	done chan struct{}
	once sync.Once
}

func (p *Peer) ID() string { return p.id }

func (p *Peer) Outbound() <-chan protocol.Message { return p.out }

func (p *Peer) Done() <-chan struct{} { return p.done }

// enqueue blocks while the queue is full; it gives up only once the peer is closed.
func (p *Peer) enqueue(msg protocol.Message) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.out <- msg:
		return true
	case <-p.done:
		return false
	}
}

func (p *Peer) close() {
	p.once.Do(func() { close(p.done) })
}

// owner is the connection receiving a key's events and the session it holds.
type owner struct {
	connID    string
	sessionID uint64
}

type Router struct {
	mu     sync.Mutex
	peers  map[string]*Peer
	owners map[string]owner
	seq    atomic.Uint64

	sessions SessionService
	logger   *slog.Logger
}

func New(sessions SessionService, logger *slog.Logger) *Router {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Router{
		peers:    map[string]*Peer{},
		owners:   map[string]owner{},
		sessions: sessions,
		logger:   logger.With("module", "router"),
	}
}

func (r *Router) Register() *Peer {
	p := &Peer{
		id:   fmt.Sprintf("conn_%d", r.seq.Add(1)),
		out:  make(chan protocol.Message, peerQueueSize),
		done: make(chan struct{}),
	}
	r.mu.Lock()
	r.peers[p.id] = p
	r.mu.Unlock()
	r.logger.Debug("peer registered", "conn_id", p.id)
	return p
}

// Unregister drops the connection and every key it owned. Sessions keep running.
func (r *Router) Unregister(connID string) {
	r.mu.Lock()
	p := r.peers[connID]
	delete(r.peers, connID)
	released := make([]string, 0)
	for key, o := range r.owners {
		if o.connID == connID {
			delete(r.owners, key)
			released = append(released, key)
		}
	}
	r.mu.Unlock()
	if p != nil {
		p.close()
	}
	r.logger.Debug("peer unregistered", "conn_id", connID, "released_keys", released)
}

// Owner returns the connection currently owning key.
func (r *Router) Owner(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.owners[key]
	return o.connID, ok
}

// Deliver forwards a session event to the owner of its key. Events from a session other
// than the one the owner holds are dropped. An exit of the owned session also releases
// the key.
func (r *Router) Deliver(ev session.Event) {
	r.mu.Lock()
	o, ok := r.owners[ev.Key]
	if !ok || o.sessionID != ev.SessionID {
		r.mu.Unlock()
		return
	}
	p := r.peers[o.connID]
	if ev.Kind == session.EventExit {
		delete(r.owners, ev.Key)
	}
	r.mu.Unlock()
	if p == nil {
		return
	}

	switch ev.Kind {
	case session.EventData:
		p.enqueue(protocol.Event(protocol.OpTerminalData, ev.Key, protocol.DataPayload{Data: ev.Data}))
	case session.EventExit:
		p.enqueue(protocol.Event(protocol.OpTerminalExit, ev.Key, protocol.ExitPayload{ExitCode: ev.ExitCode}))
	}
}

// Handle executes one request from connID and returns the response to send back.
func (r *Router) Handle(ctx context.Context, connID string, msg protocol.Message) protocol.Message {
	if msg.Type != protocol.TypeRequest {
		return protocol.ErrorResponse(msg, protocol.CodeBadPayload, "expected a request message")
	}
	switch msg.Op {
	case protocol.OpTerminalCreate:
		return r.handleCreate(ctx, connID, msg)
	case protocol.OpTerminalAttach:
		return r.handleAttach(connID, msg)
	case protocol.OpTerminalInput:
		return r.handleInput(connID, msg)
	case protocol.OpTerminalResize:
		return r.handleResize(connID, msg)
	case protocol.OpTerminalDestroy:
		return r.handleDestroy(connID, msg)
	default:
		return protocol.ErrorResponse(msg, protocol.CodeUnknownOp, "unknown op: "+msg.Op)
	}
}

func (r *Router) handleCreate(ctx context.Context, connID string, msg protocol.Message) protocol.Message {
	var p protocol.CreatePayload
	if err := protocol.DecodePayload(msg, &p); err != nil {
		return protocol.ErrorResponse(msg, protocol.CodeBadPayload, err.Error())
	}
	taskID := strings.TrimSpace(p.TaskID)
	key := strings.TrimSpace(msg.SessionKey)
	switch {
	case key == "":
		key = session.KeyFor(taskID)
	case taskID == "" && key != session.DefaultKey:
		taskID = key
	case taskID != "" && key != taskID:
		return protocol.ErrorResponse(msg, protocol.CodeBadPayload, "session_key does not match task_id")
	}
	msg.SessionKey = key

	var prev owner
	var hadPrev bool
	info, err := r.sessions.Create(ctx, session.CreateRequest{
		TaskID: taskID,
		Cols:   p.Cols,
		Rows:   p.Rows,
		Started: func(info session.Info) {
			prev, hadPrev = r.setOwner(key, connID, info.SessionID)
		},
	})
	if err != nil {
		code := codeFor(err)
		r.logger.Warn("session create failed", "key", key, "conn_id", connID, "code", code, "err", err)
		r.releaseIfGone(key)
		r.sendError(connID, key, code, err.Error())
		return protocol.ErrorResponse(msg, code, err.Error())
	}
	if hadPrev && prev.connID != connID {
		r.notifyDetached(prev.connID, key, connID)
	}
	return protocol.Response(msg, info)
}

func (r *Router) handleAttach(connID string, msg protocol.Message) protocol.Message {
	key := strings.TrimSpace(msg.SessionKey)
	if key == "" {
		return protocol.ErrorResponse(msg, protocol.CodeBadPayload, "session_key is required")
	}
	info, ok := r.sessions.Lookup(key)
	if !ok {
		return protocol.ErrorResponse(msg, protocol.CodeSessionNotFound, session.ErrSessionNotFound.Error())
	}
	r.claim(key, connID, info.SessionID)
	return protocol.Response(msg, info)
}

func (r *Router) handleInput(connID string, msg protocol.Message) protocol.Message {
	var p protocol.DataPayload
	if err := protocol.DecodePayload(msg, &p); err != nil {
		return protocol.ErrorResponse(msg, protocol.CodeBadPayload, err.Error())
	}
	if res, ok := r.requireOwner(connID, msg); !ok {
		return res
	}
	if err := r.sessions.Write(msg.SessionKey, p.Data); err != nil {
		return protocol.ErrorResponse(msg, codeFor(err), err.Error())
	}
	return protocol.Response(msg, nil)
}

func (r *Router) handleResize(connID string, msg protocol.Message) protocol.Message {
	var p protocol.ResizePayload
	if err := protocol.DecodePayload(msg, &p); err != nil {
		return protocol.ErrorResponse(msg, protocol.CodeBadPayload, err.Error())
	}
	if p.Cols <= 0 || p.Rows <= 0 {
		return protocol.ErrorResponse(msg, protocol.CodeBadPayload, "cols and rows must be positive")
	}
	if res, ok := r.requireOwner(connID, msg); !ok {
		return res
	}
	if err := r.sessions.Resize(msg.SessionKey, p.Cols, p.Rows); err != nil {
		return protocol.ErrorResponse(msg, codeFor(err), err.Error())
	}
	return protocol.Response(msg, nil)
}

func (r *Router) handleDestroy(connID string, msg protocol.Message) protocol.Message {
	if res, ok := r.requireOwner(connID, msg); !ok {
		return res
	}
	err := r.sessions.Destroy(msg.SessionKey)
	r.mu.Lock()
	if o, ok := r.owners[msg.SessionKey]; ok && o.connID == connID {
		delete(r.owners, msg.SessionKey)
	}
	r.mu.Unlock()
	if err != nil {
		return protocol.ErrorResponse(msg, codeFor(err), err.Error())
	}
	return protocol.Response(msg, nil)
}

func (r *Router) requireOwner(connID string, msg protocol.Message) (protocol.Message, bool) {
	key := strings.TrimSpace(msg.SessionKey)
	if key == "" {
		return protocol.ErrorResponse(msg, protocol.CodeBadPayload, "session_key is required"), false
	}
	if current, _ := r.Owner(key); current == connID {
		return protocol.Message{}, true
	}
	if _, ok := r.sessions.Lookup(key); !ok {
		return protocol.ErrorResponse(msg, protocol.CodeSessionNotFound, session.ErrSessionNotFound.Error()), false
	}
	return protocol.ErrorResponse(msg, protocol.CodeNotSessionOwner, "session is owned by another connection"), false
}

// claim makes connID the owner of key, telling the previous owner it lost the key.
func (r *Router) claim(key, connID string, sessionID uint64) {
	prev, hadPrev := r.setOwner(key, connID, sessionID)
	if hadPrev && prev.connID != connID {
		r.notifyDetached(prev.connID, key, connID)
	}
}

// setOwner never blocks; it runs inside session creation.
func (r *Router) setOwner(key, connID string, sessionID uint64) (owner, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, hadPrev := r.owners[key]
	r.owners[key] = owner{connID: connID, sessionID: sessionID}
	return prev, hadPrev
}

func (r *Router) notifyDetached(prevConnID, key, connID string) {
	r.mu.Lock()
	p := r.peers[prevConnID]
	r.mu.Unlock()
	if p != nil {
		p.enqueue(protocol.Event(protocol.OpTerminalDetached, key, protocol.DetachedPayload{Reason: "claimed by " + connID}))
	}
}

// releaseIfGone drops the owner entry of key when the session it points at no longer
// runs, as after a failed create that had already killed the previous process.
func (r *Router) releaseIfGone(key string) {
	r.mu.Lock()
	o, ok := r.owners[key]
	r.mu.Unlock()
	if !ok {
		return
	}
	if info, live := r.sessions.Lookup(key); live && info.SessionID == o.sessionID {
		return
	}
	r.mu.Lock()
	if cur, ok := r.owners[key]; ok && cur == o {
		delete(r.owners, key)
	}
	r.mu.Unlock()
}

func (r *Router) sendError(connID, key, code, message string) {
	r.mu.Lock()
	p := r.peers[connID]
	r.mu.Unlock()
	if p == nil {
		return
	}
	ev := protocol.Event(protocol.OpTerminalError, key, nil)
	ev.Error = &protocol.ErrPayload{Code: code, Message: message}
	p.enqueue(ev)
}

func codeFor(err error) string {
	var vcsErr *worktree.VcsError
	var spawnErr *session.SpawnError
	switch {
	case errors.Is(err, worktree.ErrRepoNotConfigured):
		return protocol.CodeConfig
	case errors.As(err, &vcsErr):
		return protocol.CodeVCS
	case errors.Is(err, session.ErrDirectoryUnavailable):
		return protocol.CodeDirectoryUnavailable
	case errors.As(err, &spawnErr):
		return protocol.CodeSpawn
	case errors.Is(err, session.ErrSessionNotFound):
		return protocol.CodeSessionNotFound
	default:
		return protocol.CodeInternal
	}
}
