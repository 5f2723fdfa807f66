package server

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/haasonsaas/scenesync/internal/relay"
	"github.com/haasonsaas/scenesync/internal/scene"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 8 << 20
	wsSendBuffer     = 16
)

// wsSession is one live interactive connection. It implements relay.Session:
// Send queues onto a buffered outbound channel drained by the write pump, so
// hub broadcasts never block on a slow client.
type wsSession struct {
	id     string
	conn   *websocket.Conn
	out    chan relay.Message
	guard  relay.EchoGuard
	logger *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func (c *wsSession) ID() string {
	return c.id
}

// Send queues msg for delivery. Scene updates that make it into the queue
// record their fingerprint on the echo guard, so the session's own reflection
// of this payload can be recognized and dropped on the way back in.
func (c *wsSession) Send(msg relay.Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- msg:
		if msg.Type == relay.KindSceneUpdate && msg.Document != nil {
			c.guard.Record(scene.FingerprintOf(msg.Document.Elements))
		}
		return true
	default:
		return false
	}
}

func (c *wsSession) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// handleWS upgrades the connection, registers the session with the hub, and
// pushes the current document so a fresh session starts converged.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	id := uuid.NewString()
	sess := &wsSession{
		id:     id,
		conn:   conn,
		out:    make(chan relay.Message, wsSendBuffer),
		logger: s.logger.With("session_id", id),
		done:   make(chan struct{}),
	}

	s.relay.Hub().Register(sess)
	go s.writePump(sess)

	if doc, err := s.relay.Document(); err == nil {
		sess.Send(relay.Message{Type: relay.KindSceneUpdate, Document: doc})
	} else {
		sess.logger.Error("initial scene load failed", "error", err)
	}

	s.readPump(sess)
}

// readPump processes inbound messages until the transport closes. It is the
// session's single entry point into the relay, and the place where echoes
// are discarded — before they ever reach the save path.
func (s *Server) readPump(sess *wsSession) {
	defer func() {
		s.relay.Hub().Unregister(sess)
		sess.close()
	}()

	sess.conn.SetReadLimit(wsMaxMessageSize)
	_ = sess.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var msg relay.Message
		if err := sess.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sess.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		switch msg.Type {
		case relay.KindSceneUpdate:
			if msg.Document == nil {
				sess.logger.Warn("scene-update without document")
				continue
			}
			fp := scene.FingerprintOf(msg.Document.Elements)
			if sess.guard.IsEcho(fp) {
				sess.logger.Debug("suppressed echo", "fingerprint", fp.String())
				continue
			}
			if err := s.relay.SubmitUpdate(sess, msg.Document); err != nil {
				if errors.Is(err, scene.ErrSchemaMismatch) {
					sess.logger.Warn("rejecting scene-update with unsupported schema")
					continue
				}
				sess.logger.Error("save session update failed", "error", err)
			}
		default:
			sess.logger.Debug("ignoring unknown message type", "type", msg.Type)
		}
	}
}

func (s *Server) writePump(sess *wsSession) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		sess.close()
	}()

	for {
		select {
		case <-sess.done:
			return
		case msg := <-sess.out:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := sess.conn.WriteJSON(msg); err != nil {
				sess.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
