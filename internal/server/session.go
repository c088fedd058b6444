package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/vireo-ai/vireo/internal/engine"
	"github.com/vireo-ai/vireo/internal/observe"
	"github.com/vireo-ai/vireo/internal/protocol"
)

// writeTimeout bounds a single outbound frame write. A client that stops
// reading stalls the engine's send path; the timeout turns that into an error
// the engine can drop on.
const writeTimeout = 10 * time.Second

// Session binds one WebSocket connection to one conversation engine. The
// session owns the socket: the read loop feeds the engine, and the engine's
// SendFunc writes frames back under a mutex.
type Session struct {
	id      uuid.UUID
	conn    *websocket.Conn
	eng     engine.Engine
	metrics *observe.Metrics

	// sendMu serializes writes; multiple engine goroutines share the socket.
	sendMu sync.Mutex
}

// NewSession creates a session with a fresh id.
func NewSession(conn *websocket.Conn, eng engine.Engine, metrics *observe.Metrics) *Session {
	return &Session{
		id:      uuid.New(),
		conn:    conn,
		eng:     eng,
		metrics: metrics,
	}
}

// Run drives the session until the client disconnects, the engine hits a
// fatal error, or ctx is cancelled. The engine is always stopped before Run
// returns.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := slog.With("session_id", s.id)
	log.Info("session started")

	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(context.Background(), -1)

	if err := s.eng.Start(ctx, s.send(ctx)); err != nil {
		log.Error("engine start failed", "error", err)
		_ = s.conn.Close(websocket.StatusInternalError, "engine start failed")
		return
	}
	defer func() {
		_ = s.eng.Stop()
		log.Info("session ended")
	}()

	// A dead engine ends the read loop through ctx.
	go func() {
		select {
		case <-s.eng.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			switch {
			case status == websocket.StatusNormalClosure,
				status == websocket.StatusGoingAway,
				errors.Is(err, context.Canceled):
				log.Debug("client disconnected")
			default:
				log.Warn("websocket read failed", "error", err)
			}
			return
		}

		switch typ {
		case websocket.MessageBinary:
			if err := s.eng.ProcessAudio(data); err != nil {
				log.Debug("audio frame dropped", "error", err)
			}
		case websocket.MessageText:
			s.handleText(log, data)
		}
	}
}

// handleText decodes a client text frame and routes it to the engine.
func (s *Session) handleText(log *slog.Logger, data []byte) {
	var in protocol.Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		log.Debug("malformed client frame", "error", err)
		return
	}
	switch in.Type {
	case "text":
		if err := s.eng.ProcessText(in.Content, in.TurnID); err != nil {
			log.Warn("text input failed", "error", err)
		}
	default:
		log.Debug("ignoring unknown client message", "message_type", in.Type)
	}
}

// send builds the engine's SendFunc: marshal the message and write it as a
// text frame under the write mutex.
func (s *Session) send(ctx context.Context) engine.SendFunc {
	return func(msg any) error {
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		s.sendMu.Lock()
		defer s.sendMu.Unlock()
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		return s.conn.Write(wctx, websocket.MessageText, data)
	}
}
