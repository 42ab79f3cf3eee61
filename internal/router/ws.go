package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/takecian/vibe-flow/internal/protocol"
)

const (
	wsReadLimitBytes int64 = 1 << 20 // 1 MiB
	wsWriteTimeout         = 2 * time.Second
)

// HandleWS serves one terminal client connection.
func (r *Router) HandleWS(w http.ResponseWriter, req *http.Request) {
	conn, err := websocket.Accept(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket accept failed", "err", err)
		return
	}
	conn.SetReadLimit(wsReadLimitBytes)
	peer := r.Register()

	ctx, cancel := context.WithCancel(req.Context())
	defer func() {
		cancel()
		r.Unregister(peer.ID())
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	go r.writeLoop(ctx, cancel, conn, peer)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			peer.enqueue(protocol.ErrorResponse(protocol.Message{Type: protocol.TypeRequest}, protocol.CodeBadPayload, "invalid json"))
			continue
		}
		if !peer.enqueue(r.Handle(ctx, peer.ID(), msg)) {
			return
		}
	}
}

func (r *Router) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, peer *Peer) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-peer.Done():
			return
		case msg := <-peer.Outbound():
			raw, err := json.Marshal(msg)
			if err != nil {
				r.logger.Warn("encode outbound message failed", "conn_id", peer.ID(), "op", msg.Op, "err", err)
				continue
			}
			writeCtx, writeCancel := context.WithTimeout(ctx, wsWriteTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, raw)
			writeCancel()
			if err != nil {
				r.logger.Debug("websocket write failed", "conn_id", peer.ID(), "err", err)
				return
			}
		}
	}
}
