package hub

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"wequack/internal/domain"
	"wequack/internal/metrics"
	"wequack/pkg/logger"
)

// Hub is the registry of live sessions. Every open session is registered;
// only authenticated ones are attached and receive events.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	attached map[string]*Session
	byUser   map[uuid.UUID]map[string]*Session

	log logger.Logger
}

func New(log logger.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]*Session),
		attached: make(map[string]*Session),
		byUser:   make(map[uuid.UUID]map[string]*Session),
		log:      log,
	}
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.id] = s
	metrics.ActiveConnections.Inc()
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s.id]; !ok {
		return
	}
	delete(h.sessions, s.id)
	metrics.ActiveConnections.Dec()
}

func (h *Hub) attach(s *Session, userID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attached[s.id] = s
	conns, ok := h.byUser[userID]
	if !ok {
		conns = make(map[string]*Session)
		h.byUser[userID] = conns
	}
	conns[s.id] = s
}

func (h *Hub) detach(s *Session, userID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.attached, s.id)
	if conns, ok := h.byUser[userID]; ok {
		delete(conns, s.id)
		if len(conns) == 0 {
			delete(h.byUser, userID)
		}
	}
}

// Broadcast sends evt to every authenticated session.
func (h *Hub) Broadcast(evt domain.Event) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.attached))
	for _, s := range h.attached {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	h.deliver(targets, evt)
}

func (h *Hub) PublishToConnections(connIDs []string, evt domain.Event) {
	if len(connIDs) == 0 {
		return
	}
	h.mu.RLock()
	targets := make([]*Session, 0, len(connIDs))
	for _, id := range connIDs {
		if s, ok := h.attached[id]; ok {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	h.deliver(targets, evt)
}

func (h *Hub) PublishToUser(userID uuid.UUID, evt domain.Event) {
	h.mu.RLock()
	conns := h.byUser[userID]
	targets := make([]*Session, 0, len(conns))
	for _, s := range conns {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	h.deliver(targets, evt)
}

// deliver encodes once and enqueues outside the registry lock; a full queue
// only costs that session the event.
func (h *Hub) deliver(targets []*Session, evt domain.Event) {
	if len(targets) == 0 {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		h.log.Error("Failed to encode event", "kind", evt.Kind, "error", err)
		return
	}
	for _, s := range targets {
		if !s.enqueue(data) {
			metrics.DroppedEvents.WithLabelValues(evt.Kind).Inc()
			h.log.Warn("Dropped event, send queue full", "kind", evt.Kind, "conn_id", s.id)
		}
	}
}

// Count returns the number of open sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// CloseAll asks every open session to close; used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.Close()
	}
}
