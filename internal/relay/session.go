package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/pkg/logger"
	"github.com/nimasrn/bigchat/pkg/prom"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Session is one authenticated real-time connection.
type Session struct {
	conn      *websocket.Conn
	principal model.Principal
	token     string

	// rooms is guarded by the hub lock.
	rooms map[string]struct{}

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, p model.Principal, token string) *Session {
	return &Session{
		conn:      conn,
		principal: p,
		token:     token,
		rooms:     make(map[string]struct{}),
		send:      make(chan []byte, sendBufferSize),
		done:      make(chan struct{}),
	}
}

func (s *Session) Principal() model.Principal {
	return s.principal
}

// Emit queues one event for this session only.
func (s *Session) Emit(event string, data any) bool {
	frame, err := model.NewEnvelope(event, data)
	if err != nil {
		logger.Error("failed to encode relay event", "event", event, "error", err)
		return false
	}
	return s.enqueue(frame)
}

// enqueue never blocks. A session whose buffer is full is too slow to keep
// up and gets disconnected.
func (s *Session) enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		prom.RelayDeliveryFailure("slow_consumer")
		logger.Warn("relay session buffer full, closing", "user_id", s.principal.ID)
		go s.Close()
		return false
	}
}

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn == nil {
			return
		}
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = s.conn.Close()
	})
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

// readPump feeds inbound envelopes to handle until the connection fails.
func (s *Session) readPump(handle func(*Session, model.Envelope)) {
	defer s.Close()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env model.Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("relay session read failed", "user_id", s.principal.ID, "error", err)
			}
			return
		}
		handle(s, env)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}
