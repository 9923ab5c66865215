package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/trip-dispatch/internal/models"
)

const sendBuffer = 32

// Conn is the subset of *websocket.Conn the session needs, kept as an
// interface so tests can fake the transport.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Session is one live connection for one authenticated party. Writes go
// through a buffered channel drained by WritePump so the registry never
// blocks on a slow socket.
type Session struct {
	Party models.Identity

	conn      Conn
	send      chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

func NewSession(party models.Identity, conn Conn) *Session {
	return &Session{
		Party:  party,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
	}
}

func (s *Session) enqueue(data []byte) bool {
	select {
	case <-s.closed:
		return true // disconnected party: delivery is a no-op
	default:
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// Close shuts the underlying connection. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
}

// WritePump drains the outbound queue and sends a keep-alive ping on the
// given interval regardless of application traffic. A failed write marks
// the connection for teardown by returning.
func (s *Session) WritePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case data := <-s.send:
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.Close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.closed:
			return
		}
	}
}
