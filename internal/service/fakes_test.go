package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"wequack/internal/domain"
	"wequack/internal/repository"
	"wequack/pkg/logger"
)

type connPublish struct {
	conns []string
	evt   domain.Event
}

type recordingPublisher struct {
	mu         sync.Mutex
	broadcasts []domain.Event
	toConns    []connPublish
	toUsers    map[uuid.UUID][]domain.Event
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{toUsers: make(map[uuid.UUID][]domain.Event)}
}

func (p *recordingPublisher) Broadcast(evt domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broadcasts = append(p.broadcasts, evt)
}

func (p *recordingPublisher) PublishToConnections(connIDs []string, evt domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toConns = append(p.toConns, connPublish{conns: append([]string(nil), connIDs...), evt: evt})
}

func (p *recordingPublisher) PublishToUser(userID uuid.UUID, evt domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toUsers[userID] = append(p.toUsers[userID], evt)
}

func (p *recordingPublisher) userEvents(userID uuid.UUID, kind string) []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Event
	for _, evt := range p.toUsers[userID] {
		if evt.Kind == kind {
			out = append(out, evt)
		}
	}
	return out
}

func (p *recordingPublisher) broadcastCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.broadcasts)
}

type fakeSubscriber struct {
	conn string
	user uuid.UUID
}

func (s fakeSubscriber) ConnID() string    { return s.conn }
func (s fakeSubscriber) UserID() uuid.UUID { return s.user }

type fixture struct {
	users     repository.UserRepository
	groups    repository.GroupRepository
	messages  repository.MessageRepository
	publisher *recordingPublisher
	presence  PresenceService
	rooms     RoomDirectory
	messaging MessagingService
}

func newFixture() *fixture {
	users, groups, messages := repository.NewMemoryRepositories()
	publisher := newRecordingPublisher()
	log := logger.NewNop()
	rooms := NewRoomDirectory(groups, log)
	return &fixture{
		users:     users,
		groups:    groups,
		messages:  messages,
		publisher: publisher,
		presence:  NewPresenceService(users, publisher, log),
		rooms:     rooms,
		messaging: NewMessagingService(users, groups, messages, rooms, publisher, log),
	}
}

func (f *fixture) user(t *testing.T, name string) *domain.User {
	t.Helper()
	u := &domain.User{ID: uuid.New(), Username: name, Email: name + "@example.com", Status: domain.StatusOffline}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func (f *fixture) group(t *testing.T, creator *domain.User, members ...*domain.User) *domain.Group {
	t.Helper()
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	g, err := f.messaging.CreateGroup(context.Background(), creator.ID, "team", "", ids)
	require.NoError(t, err)
	return g
}
