package gateway

import (
	"sync"
	"time"

	"collaborative-ide/internal/metrics"
	"collaborative-ide/internal/protocol"
	"collaborative-ide/internal/room"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Peer is what namespace handlers see of a session.
type Peer interface {
	ID() room.SessionID
	UserID() string
	ProjectID() string
	Send(msg protocol.Outbound)
}

// Session is one websocket connection. Owned by the Gateway; everything else
// refers to it by ID.
type Session struct {
	id        room.SessionID
	namespace string
	userID    string
	projectID string
	conn      *websocket.Conn
	log       zerolog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func (s *Session) ID() room.SessionID { return s.id }
func (s *Session) UserID() string     { return s.userID }
func (s *Session) ProjectID() string  { return s.projectID }

// Send encodes msg and queues it for this session only.
func (s *Session) Send(msg protocol.Outbound) {
	frame, err := protocol.Encode(msg)
	if err != nil {
		s.log.Error().Err(err).Str("event", msg.Event()).Msg("encode frame")
		return
	}
	s.push(frame)
}

// push queues frame without blocking. A full queue means the client is not
// keeping up; the session is closed and goes through normal disconnect cleanup.
func (s *Session) push(frame []byte) {
	if s.enqueue(frame) {
		return
	}
	s.log.Warn().Msg("outbound queue full, closing slow consumer")
	metrics.SlowConsumers.WithLabelValues(s.namespace).Inc()
	s.close()
}

// enqueue reports false only when the queue is full. Frames for a closed
// session are discarded.
func (s *Session) enqueue(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

// writePump is the only writer on conn.
func (s *Session) writePump(opts Options) {
	ticker := time.NewTicker(opts.PingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.log.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
