package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"wequack/internal/domain"
	"wequack/internal/metrics"
	"wequack/internal/repository"
	"wequack/pkg/logger"
)

// PresenceService tracks the live connections of each user. A user is online
// while at least one connection is registered.
type PresenceService interface {
	// SetOnline registers connID and reports whether the user just came online.
	SetOnline(ctx context.Context, userID uuid.UUID, connID string) bool
	// SetOffline drops connID and reports whether it was the user's last one.
	SetOffline(ctx context.Context, userID uuid.UUID, connID string) bool
	IsOnline(userID uuid.UUID) bool
	Reset(ctx context.Context) error
}

type presenceEntry struct {
	mu    sync.Mutex
	conns map[string]struct{}
}

type presenceService struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*presenceEntry

	userRepo  repository.UserRepository
	publisher Publisher
	log       logger.Logger
}

func NewPresenceService(userRepo repository.UserRepository, publisher Publisher, log logger.Logger) PresenceService {
	return &presenceService{
		entries:   make(map[uuid.UUID]*presenceEntry),
		userRepo:  userRepo,
		publisher: publisher,
		log:       log,
	}
}

// entry returns the per-user record, creating it on first use. Entries are
// kept for the process lifetime so a pointer handed out is never orphaned.
func (s *presenceService) entry(userID uuid.UUID) *presenceEntry {
	s.mu.RLock()
	e, ok := s.entries[userID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[userID]; !ok {
		e = &presenceEntry{conns: make(map[string]struct{})}
		s.entries[userID] = e
	}
	return e
}

func (s *presenceService) SetOnline(ctx context.Context, userID uuid.UUID, connID string) bool {
	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.conns[connID]; ok {
		return false
	}
	e.conns[connID] = struct{}{}
	if len(e.conns) != 1 {
		return false
	}

	metrics.OnlineUsers.Inc()
	s.transition(ctx, userID, domain.StatusOnline)
	return true
}

func (s *presenceService) SetOffline(ctx context.Context, userID uuid.UUID, connID string) bool {
	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.conns[connID]; !ok {
		return false
	}
	delete(e.conns, connID)
	if len(e.conns) != 0 {
		return false
	}

	metrics.OnlineUsers.Dec()
	s.transition(ctx, userID, domain.StatusOffline)
	return true
}

func (s *presenceService) IsOnline(userID uuid.UUID) bool {
	s.mu.RLock()
	e, ok := s.entries[userID]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.conns) > 0
}

// Reset marks every persisted user offline. Called once on startup, when no
// connection can exist yet.
func (s *presenceService) Reset(ctx context.Context) error {
	return s.userRepo.ResetStatuses(ctx, domain.StatusOffline)
}

// transition runs under the user's lock so an online event can never be
// overtaken by the matching offline event.
func (s *presenceService) transition(ctx context.Context, userID uuid.UUID, status string) {
	if err := s.userRepo.UpdateStatus(ctx, userID, status); err != nil {
		s.log.Warn("Failed to persist user status", "user_id", userID, "status", status, "error", err)
	}

	s.publisher.Broadcast(domain.Event{
		Kind:    domain.EventStatusChange,
		Payload: domain.StatusChangePayload{UserID: userID, Status: status},
	})
	s.log.Debug("Presence changed", "user_id", userID, "status", status)
}
