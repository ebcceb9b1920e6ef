package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"wequack/internal/config"
	"wequack/internal/domain"
	"wequack/internal/metrics"
	"wequack/internal/service"
	apperrors "wequack/pkg/errors"
	"wequack/pkg/logger"
)

const cleanupTimeout = 5 * time.Second

// Authenticator resolves a bearer token to a user.
type Authenticator interface {
	ValidateToken(ctx context.Context, token string) (*domain.User, error)
}

// Router drives sessions: it owns the authentication handshake, turns
// inbound events into service calls and cleans up after a connection ends.
type Router struct {
	hub       *Hub
	auth      Authenticator
	presence  service.PresenceService
	rooms     service.RoomDirectory
	messaging service.MessagingService
	validate  *validator.Validate
	cfg       config.WebSocketConfig
	log       logger.Logger
}

func NewRouter(h *Hub, services *service.Services, cfg config.WebSocketConfig, log logger.Logger) *Router {
	return &Router{
		hub:       h,
		auth:      services.Auth,
		presence:  services.Presence,
		rooms:     services.Rooms,
		messaging: services.Messaging,
		validate:  validator.New(),
		cfg:       cfg,
		log:       log,
	}
}

// Serve runs a session on conn until the connection goes away. A non-nil
// user means the token was already checked during the upgrade; otherwise
// the client has AuthTimeout to send a connect event.
func (r *Router) Serve(ctx context.Context, conn *websocket.Conn, user *domain.User) {
	s := newSession(conn, r.cfg, r.log)
	r.hub.register(s)
	go s.writePump()

	var authTimer *time.Timer
	if user != nil {
		r.authenticate(ctx, s, user)
	} else {
		authTimer = time.AfterFunc(r.cfg.AuthTimeout, func() {
			if s.expireAuth() {
				s.log.Debug("Authentication timed out")
				s.CloseWith(websocket.ClosePolicyViolation, "authentication timeout")
			}
		})
	}

	s.readPump(func(evt domain.InboundEvent) {
		r.Dispatch(ctx, s, evt)
	})

	if authTimer != nil {
		authTimer.Stop()
	}
	r.disconnect(s)
	r.hub.unregister(s)
	s.Close()
}

// Dispatch handles one inbound event. Failures are never sent back to the
// client; the event is dropped and counted.
func (r *Router) Dispatch(ctx context.Context, s *Session, evt domain.InboundEvent) {
	outcome := "ok"
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("Recovered from panic while handling event", "kind", evt.Kind, "panic", rec)
			outcome = "dropped"
		}
		metrics.InboundEvents.WithLabelValues(kindLabel(evt.Kind), outcome).Inc()
	}()

	if err := r.handle(ctx, s, evt); err != nil {
		outcome = "dropped"
		s.log.Debug("Dropped event", "kind", evt.Kind, "error", err)
	}
}

func (r *Router) handle(ctx context.Context, s *Session, evt domain.InboundEvent) error {
	switch s.State() {
	case StateConnecting:
		if evt.Kind != domain.EventConnect {
			return fmt.Errorf("%w: %s before connect", apperrors.ErrUnauthorized, evt.Kind)
		}
		return r.handleConnect(ctx, s, evt.Payload)
	case StateDisconnected:
		return fmt.Errorf("session is disconnected")
	}

	ctx = service.WithMembershipCache(ctx, s.membershipCache())

	switch evt.Kind {
	case domain.EventConnect:
		return nil
	case domain.EventDisconnect:
		s.Close()
		return nil
	case domain.EventJoinRoom:
		return r.handleJoin(ctx, s, evt.Payload)
	case domain.EventLeaveRoom:
		return r.handleLeave(s, evt.Payload)
	case domain.EventSendMessage:
		return r.handleSend(ctx, s, evt.Payload)
	case domain.EventMarkRead:
		return r.handleMarkRead(ctx, s, evt.Payload)
	}
	return fmt.Errorf("%w: unknown event kind %q", apperrors.ErrValidation, evt.Kind)
}

func (r *Router) handleConnect(ctx context.Context, s *Session, raw json.RawMessage) error {
	var p domain.ConnectPayload
	if err := r.decode(raw, &p); err != nil {
		r.reject(s)
		return err
	}
	user, err := r.auth.ValidateToken(ctx, p.Token)
	if err != nil {
		r.reject(s)
		return err
	}
	r.authenticate(ctx, s, user)
	return nil
}

func (r *Router) reject(s *Session) {
	s.markDisconnected()
	s.CloseWith(websocket.ClosePolicyViolation, "authentication failed")
}

func (r *Router) authenticate(ctx context.Context, s *Session, user *domain.User) {
	if !s.authenticate(user) {
		return
	}
	// Attach before going online so the user sees their own status change.
	r.hub.attach(s, user.ID)
	r.presence.SetOnline(ctx, user.ID, s.id)
	s.log.Info("Client authenticated", "user_id", user.ID, "username", user.Username)
}

func (r *Router) handleJoin(ctx context.Context, s *Session, raw json.RawMessage) error {
	var p domain.RoomPayload
	if err := r.decode(raw, &p); err != nil {
		return err
	}
	groupID, err := p.Target()
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	ok, err := r.rooms.Join(ctx, groupID, s)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: not a member of %s", apperrors.ErrForbidden, groupID)
	}
	s.addRoom(groupID)
	return nil
}

func (r *Router) handleLeave(s *Session, raw json.RawMessage) error {
	var p domain.RoomPayload
	if err := r.decode(raw, &p); err != nil {
		return err
	}
	groupID, err := p.Target()
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	r.rooms.Leave(groupID, s.id)
	s.removeRoom(groupID)
	return nil
}

func (r *Router) handleSend(ctx context.Context, s *Session, raw json.RawMessage) error {
	var p domain.SendMessagePayload
	if err := r.decode(raw, &p); err != nil {
		return err
	}
	groupID, err := domain.ParseGroupRef(p.GroupID)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	_, err = r.messaging.SendMessage(ctx, s.UserID(), groupID, p.Content)
	return err
}

func (r *Router) handleMarkRead(ctx context.Context, s *Session, raw json.RawMessage) error {
	var p domain.MarkReadPayload
	if err := r.decode(raw, &p); err != nil {
		return err
	}
	return r.messaging.MarkRead(ctx, s.UserID(), p.MessageID)
}

func (r *Router) decode(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	if err := r.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	return nil
}

// disconnect undoes everything authenticate and join did. It runs once per
// session; sessions that never authenticated have nothing to undo.
func (r *Router) disconnect(s *Session) {
	if s.markDisconnected() != StateAuthenticated {
		return
	}
	user := s.User()
	r.hub.detach(s, user.ID)
	for _, groupID := range s.takeRooms() {
		r.rooms.Leave(groupID, s.id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	r.presence.SetOffline(ctx, user.ID, s.id)
	s.log.Info("Client disconnected", "user_id", user.ID)
}

// kindLabel keeps the metric label set bounded.
func kindLabel(kind string) string {
	switch kind {
	case domain.EventConnect, domain.EventDisconnect, domain.EventJoinRoom,
		domain.EventLeaveRoom, domain.EventSendMessage, domain.EventMarkRead:
		return kind
	}
	return "unknown"
}
