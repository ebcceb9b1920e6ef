package hub

import (
	"crypto/rand"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"wequack/internal/config"
	"wequack/internal/domain"
	"wequack/internal/metrics"
	"wequack/internal/service"
	"wequack/pkg/logger"
)

type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Session is one live client connection.
type Session struct {
	id   string
	conn *websocket.Conn
	cfg  config.WebSocketConfig
	log  logger.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeCode int
	closeText string

	mu          sync.Mutex
	state       State
	user        *domain.User
	rooms       map[uuid.UUID]struct{}
	memberships *service.MembershipCache
}

func newSession(conn *websocket.Conn, cfg config.WebSocketConfig, log logger.Logger) *Session {
	id := ulid.MustNew(ulid.Now(), rand.Reader).String()
	return &Session{
		id:        id,
		conn:      conn,
		cfg:       cfg,
		log:       log.With("conn_id", id),
		send:      make(chan []byte, cfg.SendBuffer),
		done:      make(chan struct{}),
		closeCode: websocket.CloseNormalClosure,
		rooms:     make(map[uuid.UUID]struct{}),
	}
}

func (s *Session) ConnID() string { return s.id }

func (s *Session) UserID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return uuid.Nil
	}
	return s.user.ID
}

func (s *Session) User() *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) authenticate(user *domain.User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return false
	}
	s.state = StateAuthenticated
	s.user = user
	s.memberships = service.NewMembershipCache(user.ID)
	return true
}

// expireAuth moves a session that never authenticated to Disconnected.
func (s *Session) expireAuth() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return false
	}
	s.state = StateDisconnected
	return true
}

// markDisconnected returns the state the session was in before.
func (s *Session) markDisconnected() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	s.state = StateDisconnected
	return prev
}

func (s *Session) addRoom(groupID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[groupID] = struct{}{}
}

func (s *Session) removeRoom(groupID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, groupID)
}

func (s *Session) takeRooms() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uuid.UUID, 0, len(s.rooms))
	for id := range s.rooms {
		out = append(out, id)
	}
	s.rooms = make(map[uuid.UUID]struct{})
	return out
}

func (s *Session) membershipCache() *service.MembershipCache {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memberships
}

// enqueue reports false only when the send queue is full.
func (s *Session) enqueue(data []byte) bool {
	select {
	case <-s.done:
		return true
	default:
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// Close asks the write pump to send a close frame and shut the connection.
func (s *Session) Close() {
	s.CloseWith(websocket.CloseNormalClosure, "")
}

func (s *Session) CloseWith(code int, text string) {
	s.closeOnce.Do(func() {
		s.closeCode = code
		s.closeText = text
		close(s.done)
	})
}

// readPump reads inbound events and hands each to dispatch, one at a time,
// so events of one connection are handled in arrival order.
func (s *Session) readPump(dispatch func(domain.InboundEvent)) {
	s.conn.SetReadLimit(s.cfg.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.log.Debug("Read failed", "error", err)
			}
			return
		}

		var evt domain.InboundEvent
		if err := json.Unmarshal(data, &evt); err != nil || evt.Kind == "" {
			metrics.InboundEvents.WithLabelValues("malformed", "dropped").Inc()
			s.log.Debug("Dropped malformed event", "error", err)
			continue
		}
		dispatch(evt)
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.cfg.PingPeriod())
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.log.Debug("Write failed", "error", err)
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			_ = s.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(s.closeCode, s.closeText),
				time.Now().Add(s.cfg.WriteWait),
			)
			return
		}
	}
}
