// Package hubsim is a local stand-in for the production realtime hub.
// It implements just enough of the hub protocol for the SDK and demo
// client to run against: the welcome handshake, room joins, heartbeat
// acks and event broadcast into rooms.
package hubsim

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Quanghau123/smarttasty-realtime/internal/logging"
	"github.com/Quanghau123/smarttasty-realtime/pkg/hub"
	"github.com/go-chi/chi/v5"
	ws "github.com/gorilla/websocket"
	"github.com/rs/xid"
)

// ServerOptions represents hub simulator options
type ServerOptions struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
}

// DefaultServerOptions returns default simulator options
func DefaultServerOptions() ServerOptions {
	return ServerOptions{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		MaxMessageSize:  512 * 1024, // 512KB
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// Server is the simulated hub
type Server struct {
	upgrader ws.Upgrader
	logger   *logging.Logger
	options  ServerOptions

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewServer creates a hub simulator
func NewServer(logger *logging.Logger, options ServerOptions) *Server {
	upgrader := ws.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // local development tool
		},
		ReadBufferSize:  options.ReadBufferSize,
		WriteBufferSize: options.WriteBufferSize,
	}

	return &Server{
		upgrader: upgrader,
		logger:   logger,
		options:  options,
		sessions: make(map[string]*session),
	}
}

// Router returns the HTTP routes of the simulator
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Get("/hubs/restaurant", s.handleWS)
	r.Post("/push/rating/{restaurantID}", s.handlePushRating)
	r.Post("/push/notification/{userID}", s.handlePushNotification)
	return r
}

// SessionCount returns the number of connected sessions
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// RoomSize returns the number of sessions currently in a room
func (s *Server) RoomSize(roomID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, sess := range s.sessions {
		if sess.Room() == roomID {
			count++
		}
	}
	return count
}

// handleWS upgrades the connection, sends the welcome ack and serves
// invocations until the client goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection", "error", err)
		return
	}

	sess := newSession(xid.New().String(), conn, s.logger)

	welcome, err := hub.NewMessage(hub.MessageTypeAck, hub.TargetConnected, hub.ConnectedPayload{ConnectionID: sess.id})
	if err != nil {
		s.logger.Error("failed to build welcome frame", "error", err)
		conn.Close()
		return
	}

	go sess.writePump(s.options.WriteTimeout)

	if err := sess.SendMessage(welcome); err != nil {
		s.logger.Error("failed to send welcome frame", "error", err)
		sess.close()
		return
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger.Info("session connected", "connection_id", sess.id)

	s.readPump(sess)

	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()

	sess.close()
	s.logger.Info("session disconnected", "connection_id", sess.id)
}

func (s *Server) readPump(sess *session) {
	conn := sess.conn
	conn.SetReadLimit(s.options.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(s.options.ReadTimeout))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(s.options.ReadTimeout))
		return conn.WriteControl(ws.PongMessage, []byte(appData), time.Now().Add(s.options.WriteTimeout))
	})

	for {
		wsType, raw, err := conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseGoingAway, ws.CloseAbnormalClosure) {
				s.logger.Debug("session unexpected close", "error", err)
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(s.options.ReadTimeout))

		if wsType != ws.TextMessage && wsType != ws.BinaryMessage {
			continue
		}

		var msg hub.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Error("failed to unmarshal frame", "error", err)
			continue
		}

		if msg.Type != hub.MessageTypeInvoke {
			continue
		}

		s.handleInvoke(sess, &msg)
	}
}

func (s *Server) handleInvoke(sess *session, msg *hub.Message) {
	switch msg.Target {
	case hub.MethodJoinRestaurantRoom:
		var req hub.JoinRoomRequest
		if err := msg.Decode(&req); err != nil {
			s.logger.Error("invalid join payload", "error", err)
			return
		}
		sess.SetRoom(req.RoomID)
		s.logger.Info("session joined room", "connection_id", sess.id, "room_id", req.RoomID)

	case hub.MethodPingHeartbeat:
		s.logger.Debug("heartbeat", "connection_id", sess.id)

	case hub.MethodSendTestNotification:
		var req hub.TestNotificationRequest
		if err := msg.Decode(&req); err != nil {
			s.logger.Error("invalid test notification payload", "error", err)
			return
		}
		s.PushNotification(req.UserID, hub.Notification{Title: req.Title, Message: req.Message})

	default:
		s.logger.Warn("unknown invocation", "target", msg.Target)
	}
}

// PushRating broadcasts a rating update to the restaurant's room
func (s *Server) PushRating(restaurantID int, update hub.RatingUpdate) int {
	payload := hub.RestaurantUpdate{Type: hub.RatingUpdateType, Data: update}
	return s.broadcast(hub.RestaurantRoom(restaurantID), hub.EventRestaurantUpdate, payload)
}

// PushNotification broadcasts a notification to the user's room
func (s *Server) PushNotification(userID string, n hub.Notification) int {
	return s.broadcast(hub.UserRoom(userID), hub.EventNotification, n)
}

// broadcast delivers an event to every session in a room, returning the
// number of receivers.
func (s *Server) broadcast(roomID, event string, payload any) int {
	msg, err := hub.NewMessage(hub.MessageTypeEvent, event, payload)
	if err != nil {
		s.logger.Error("failed to build event frame", "error", err)
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	delivered := 0
	for _, sess := range s.sessions {
		if sess.Room() != roomID {
			continue
		}
		if err := sess.SendMessage(msg); err != nil {
			s.logger.Debug("failed to deliver event", "connection_id", sess.id, "error", err)
			continue
		}
		delivered++
	}

	s.logger.Debug("broadcast", "room_id", roomID, "event", event, "delivered", delivered)

	return delivered
}

func (s *Server) handlePushRating(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := strconv.Atoi(chi.URLParam(r, "restaurantID"))
	if err != nil {
		http.Error(w, "invalid restaurant id", http.StatusBadRequest)
		return
	}

	var update hub.RatingUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	update.RestaurantID = restaurantID

	delivered := s.PushRating(restaurantID, update)
	writeJSON(w, map[string]int{"delivered": delivered})
}

func (s *Server) handlePushNotification(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var n hub.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	delivered := s.PushNotification(userID, n)
	writeJSON(w, map[string]int{"delivered": delivered})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
