package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/taskflow/taskflow/internal/domain"
)

// SessionState tracks the connection lifecycle.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateAuthenticated
	StateActive
	StateClosed
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var errSessionClosed = errors.New("session closed")

// Authenticator resolves a bearer credential to a known user.
type Authenticator interface {
	AuthenticateToken(ctx context.Context, token string) (*domain.User, error)
}

// inbound is a client control message on the realtime socket.
type inbound struct {
	Action    string `json:"action"`
	ProjectID string `json:"project_id"`
}

// Session is one live client connection. It owns its subscription set: every
// scope joined through it is left again when the session closes.
type Session struct {
	id     string
	userID string
	hub    *Hub
	conn   *websocket.Conn
	log    *slog.Logger

	state     atomic.Int32
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession wraps an upgraded connection. The session starts in
// Connecting and must authenticate before Run.
func NewSession(id string, hub *Hub, conn *websocket.Conn, logger *slog.Logger, sendBuffer int) *Session {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	s := &Session{
		id:   id,
		hub:  hub,
		conn: conn,
		log:  logger,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// UserID returns the authenticated user, empty before authentication.
func (s *Session) UserID() string {
	return s.userID
}

// Authenticate resolves the bearer token to a known user. On failure the
// session moves straight to Closed and the connection is refused.
func (s *Session) Authenticate(ctx context.Context, token string, auth Authenticator) error {
	if s.State() != StateConnecting {
		return errSessionClosed
	}
	user, err := auth.AuthenticateToken(ctx, token)
	if err != nil {
		s.Close()
		return domain.ErrUnauthenticated
	}
	s.userID = user.ID
	s.state.Store(int32(StateAuthenticated))
	return nil
}

// Run starts the read and write pumps and blocks until the connection is
// torn down. Only an authenticated session may become active.
func (s *Session) Run() {
	if s.State() != StateAuthenticated {
		s.Close()
		return
	}
	s.state.Store(int32(StateActive))
	go s.writePump()
	s.readPump()
}

// Send queues a payload for delivery. It never blocks: a session whose
// buffer is full is considered unreachable and the payload is dropped with
// an error so the hub can evict it.
func (s *Session) Send(payload []byte) error {
	if s.State() != StateActive {
		return errSessionClosed
	}
	select {
	case s.send <- payload:
		return nil
	case <-s.done:
		return errSessionClosed
	default:
		return errors.New("session send buffer full")
	}
}

// Close tears the session down: all joined scopes are left, the socket is
// closed, and the state becomes terminal.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.done)
		s.hub.LeaveAll(s)
		_ = s.conn.Close()
	})
}

// readPump consumes join/leave requests until the peer disconnects.
func (s *Session) readPump() {
	defer s.Close()
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.log.Warn("malformed realtime message", "session_id", s.id, "error", err)
			continue
		}
		if msg.ProjectID == "" {
			continue
		}
		switch msg.Action {
		case "join-project":
			s.hub.Join(msg.ProjectID, s)
			s.log.Info("joined project scope", "session_id", s.id, "user_id", s.userID, "project_id", msg.ProjectID)
		case "leave-project":
			s.hub.Leave(msg.ProjectID, s)
			s.log.Info("left project scope", "session_id", s.id, "user_id", s.userID, "project_id", msg.ProjectID)
		}
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
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
