package hubsim

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/Quanghau123/smarttasty-realtime/internal/logging"
	"github.com/Quanghau123/smarttasty-realtime/pkg/hub"
	ws "github.com/gorilla/websocket"
)

// session is one connected client on the simulated hub
type session struct {
	id       string
	conn     *ws.Conn
	logger   *logging.Logger
	sendChan chan []byte

	mu     sync.RWMutex
	room   string
	closed bool
}

func newSession(id string, conn *ws.Conn, logger *logging.Logger) *session {
	return &session{
		id:       id,
		conn:     conn,
		logger:   logger.WithFields(map[string]any{"connection_id": id}),
		sendChan: make(chan []byte, 64),
	}
}

func (s *session) Room() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

func (s *session) SetRoom(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = room
}

// SendMessage marshals and queues a frame for delivery
func (s *session) SendMessage(msg *hub.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.send(raw)
}

func (s *session) send(raw []byte) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ws.ErrCloseSent
	}
	s.mu.RUnlock()

	select {
	case s.sendChan <- raw:
		return nil
	default:
		s.logger.Warn("dropping frame, session send queue full")
		return nil
	}
}

func (s *session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.sendChan)
	s.conn.Close()
}

// writePump drains the send queue onto the websocket. Closing the
// connection on exit unblocks the read pump when a write fails.
func (s *session) writePump(writeTimeout time.Duration) {
	defer s.conn.Close()

	for raw := range s.sendChan {
		s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := s.conn.WriteMessage(ws.TextMessage, raw); err != nil {
			s.logger.Debug("session write error", "error", err)
			return
		}
	}
}
