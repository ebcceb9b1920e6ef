package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"wequack/internal/domain"
	apperrors "wequack/pkg/errors"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// memoryStore backs the in-process repositories. One lock covers every table,
// mirroring a single durable store: a write is visible to the next read.
type memoryStore struct {
	mu sync.RWMutex

	users      map[uuid.UUID]*domain.User
	groups     map[uuid.UUID]*domain.Group
	directKeys map[string]uuid.UUID
	members    map[uuid.UUID]map[uuid.UUID]struct{}
	messages   map[int64]*domain.Message
	byGroup    map[uuid.UUID][]int64
	lastAt     map[uuid.UUID]time.Time
	receipts   map[int64]map[uuid.UUID]*domain.ReadReceipt

	messageSeq int64
	receiptSeq int64
	now        func() time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:      make(map[uuid.UUID]*domain.User),
		groups:     make(map[uuid.UUID]*domain.Group),
		directKeys: make(map[string]uuid.UUID),
		members:    make(map[uuid.UUID]map[uuid.UUID]struct{}),
		messages:   make(map[int64]*domain.Message),
		byGroup:    make(map[uuid.UUID][]int64),
		lastAt:     make(map[uuid.UUID]time.Time),
		receipts:   make(map[int64]map[uuid.UUID]*domain.ReadReceipt),
		now:        time.Now,
	}
}

type memoryUserRepository struct{ s *memoryStore }
type memoryGroupRepository struct{ s *memoryStore }
type memoryMessageRepository struct{ s *memoryStore }

// NewMemoryRepositories wires user, group and message repositories over one
// shared in-memory store.
func NewMemoryRepositories() (UserRepository, GroupRepository, MessageRepository) {
	s := newMemoryStore()
	return &memoryUserRepository{s: s}, &memoryGroupRepository{s: s}, &memoryMessageRepository{s: s}
}

func copyUser(u *domain.User) *domain.User {
	c := *u
	return &c
}

func (r *memoryUserRepository) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	email := strings.ToLower(user.Email)
	for _, existing := range r.s.users {
		if existing.Username == user.Username || existing.Email == email || existing.ID == user.ID {
			return apperrors.ErrUserAlreadyExists
		}
	}

	user.Email = email
	user.CreatedAt = r.s.now()
	r.s.users[user.ID] = copyUser(user)
	return nil
}

func (r *memoryUserRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	user, ok := r.s.users[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return copyUser(user), nil
}

func (r *memoryUserRepository) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	users := make(map[uuid.UUID]*domain.User, len(ids))
	for _, id := range ids {
		if user, ok := r.s.users[id]; ok {
			users[id] = copyUser(user)
		}
	}
	return users, nil
}

func (r *memoryUserRepository) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	username = strings.TrimSpace(username)
	for _, user := range r.s.users {
		if user.Username == username {
			return copyUser(user), nil
		}
	}
	return nil, apperrors.ErrUserNotFound
}

func (r *memoryUserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, user := range r.s.users {
		if user.Email == email {
			return copyUser(user), nil
		}
	}
	return nil, apperrors.ErrUserNotFound
}

func (r *memoryUserRepository) ListExcept(_ context.Context, id uuid.UUID) ([]*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	users := make([]*domain.User, 0, len(r.s.users))
	for _, user := range r.s.users {
		if user.ID != id {
			users = append(users, copyUser(user))
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (r *memoryUserRepository) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[id]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	user.Status = status
	return nil
}

func (r *memoryUserRepository) ResetStatuses(_ context.Context, status string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, user := range r.s.users {
		user.Status = status
	}
	return nil
}

func (s *memoryStore) groupCopy(g *domain.Group) *domain.Group {
	c := *g
	c.Members = s.memberList(g.ID)
	return &c
}

// memberList keeps the insertion order recorded on the group for stable output.
func (s *memoryStore) memberList(groupID uuid.UUID) []uuid.UUID {
	g := s.groups[groupID]
	set := s.members[groupID]
	out := make([]uuid.UUID, 0, len(set))
	for _, id := range g.Members {
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func (r *memoryGroupRepository) Create(_ context.Context, group *domain.Group) error {
	members := lo.Uniq(group.Members)
	if len(members) == 0 {
		return fmt.Errorf("%w: group needs at least one member", apperrors.ErrValidation)
	}
	if group.IsDirectChat && len(members) != 2 {
		return fmt.Errorf("%w: direct chat needs exactly two members", apperrors.ErrValidation)
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.groups[group.ID]; ok {
		return fmt.Errorf("%w: group already exists", apperrors.ErrConflict)
	}
	var key string
	if group.IsDirectChat {
		key = domain.DirectKey(members[0], members[1])
		if _, ok := r.s.directKeys[key]; ok {
			return fmt.Errorf("%w: direct chat already exists", apperrors.ErrConflict)
		}
	}

	group.CreatedAt = r.s.now()
	group.Members = members

	stored := *group
	stored.Members = append([]uuid.UUID(nil), members...)
	r.s.groups[group.ID] = &stored
	set := make(map[uuid.UUID]struct{}, len(members))
	for _, id := range members {
		set[id] = struct{}{}
	}
	r.s.members[group.ID] = set
	if key != "" {
		r.s.directKeys[key] = group.ID
	}
	return nil
}

func (r *memoryGroupRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Group, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	group, ok := r.s.groups[id]
	if !ok {
		return nil, apperrors.ErrGroupNotFound
	}
	return r.s.groupCopy(group), nil
}

func (r *memoryGroupRepository) FindDirectChatBetween(_ context.Context, a, b uuid.UUID) (*domain.Group, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.directKeys[domain.DirectKey(a, b)]
	if !ok {
		return nil, apperrors.ErrGroupNotFound
	}
	return r.s.groupCopy(r.s.groups[id]), nil
}

func (r *memoryGroupRepository) AddMember(_ context.Context, groupID, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	group, ok := r.s.groups[groupID]
	if !ok {
		return apperrors.ErrGroupNotFound
	}
	if _, ok := r.s.members[groupID][userID]; ok {
		return nil
	}
	r.s.members[groupID][userID] = struct{}{}
	group.Members = append(group.Members, userID)
	return nil
}

func (r *memoryGroupRepository) ListMembers(_ context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if _, ok := r.s.groups[groupID]; !ok {
		return []uuid.UUID{}, nil
	}
	return r.s.memberList(groupID), nil
}

func (r *memoryGroupRepository) IsMember(_ context.Context, groupID, userID uuid.UUID) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	_, ok := r.s.members[groupID][userID]
	return ok, nil
}

func (r *memoryGroupRepository) ListByUser(_ context.Context, userID uuid.UUID) ([]*domain.Group, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	groups := make([]*domain.Group, 0)
	for id, set := range r.s.members {
		if _, ok := set[userID]; ok {
			groups = append(groups, r.s.groupCopy(r.s.groups[id]))
		}
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].CreatedAt.Equal(groups[j].CreatedAt) {
			return groups[i].ID.String() < groups[j].ID.String()
		}
		return groups[i].CreatedAt.Before(groups[j].CreatedAt)
	})
	return groups, nil
}

func (s *memoryStore) messageCopy(m *domain.Message) *domain.Message {
	c := *m
	if sender, ok := s.users[m.SenderID]; ok {
		c.SenderName = sender.Username
	}
	return &c
}

func (r *memoryMessageRepository) Create(_ context.Context, message *domain.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.groups[message.GroupID]; !ok {
		return apperrors.ErrGroupNotFound
	}

	// Timestamps never go backwards inside a group.
	now := r.s.now()
	if last, ok := r.s.lastAt[message.GroupID]; ok && !now.After(last) {
		now = last.Add(time.Microsecond)
	}
	r.s.lastAt[message.GroupID] = now

	r.s.messageSeq++
	message.ID = r.s.messageSeq
	message.CreatedAt = now
	message.IsRead = false

	stored := *message
	r.s.messages[stored.ID] = &stored
	r.s.byGroup[message.GroupID] = append(r.s.byGroup[message.GroupID], stored.ID)
	return nil
}

func (r *memoryMessageRepository) GetByID(_ context.Context, id int64) (*domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	message, ok := r.s.messages[id]
	if !ok {
		return nil, apperrors.ErrMessageNotFound
	}
	return r.s.messageCopy(message), nil
}

func (r *memoryMessageRepository) ListByGroup(_ context.Context, groupID uuid.UUID) ([]*domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ids := r.s.byGroup[groupID]
	messages := make([]*domain.Message, 0, len(ids))
	for _, id := range ids {
		messages = append(messages, r.s.messageCopy(r.s.messages[id]))
	}
	return messages, nil
}

func (r *memoryMessageRepository) LastMessage(_ context.Context, groupID uuid.UUID) (*domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ids := r.s.byGroup[groupID]
	if len(ids) == 0 {
		return nil, apperrors.ErrMessageNotFound
	}
	return r.s.messageCopy(r.s.messages[ids[len(ids)-1]]), nil
}

func (r *memoryMessageRepository) CountUnread(_ context.Context, groupID, excludingSender uuid.UUID) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return lo.CountBy(r.s.byGroup[groupID], func(id int64) bool {
		m := r.s.messages[id]
		return !m.IsRead && m.SenderID != excludingSender
	}), nil
}

func (r *memoryMessageRepository) MarkRead(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	message, ok := r.s.messages[id]
	if !ok {
		return apperrors.ErrMessageNotFound
	}
	message.IsRead = true
	return nil
}

func (r *memoryMessageRepository) MarkGroupRead(_ context.Context, groupID, readerID uuid.UUID) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var marked []int64
	for _, id := range r.s.byGroup[groupID] {
		m := r.s.messages[id]
		if m.IsRead || m.SenderID == readerID {
			continue
		}
		m.IsRead = true
		if r.s.addReceipt(id, readerID) {
			marked = append(marked, id)
		}
	}
	return marked, nil
}

func (s *memoryStore) addReceipt(messageID int64, userID uuid.UUID) bool {
	set, ok := s.receipts[messageID]
	if !ok {
		set = make(map[uuid.UUID]*domain.ReadReceipt)
		s.receipts[messageID] = set
	}
	if _, exists := set[userID]; exists {
		return false
	}
	s.receiptSeq++
	set[userID] = &domain.ReadReceipt{
		ID:        s.receiptSeq,
		MessageID: messageID,
		UserID:    userID,
		ReadAt:    s.now(),
	}
	return true
}

func (r *memoryMessageRepository) CreateReadReceipt(_ context.Context, messageID int64, userID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.messages[messageID]; !ok {
		return false, apperrors.ErrMessageNotFound
	}
	return r.s.addReceipt(messageID, userID), nil
}

func (r *memoryMessageRepository) ListReceipts(_ context.Context, messageID int64) ([]*domain.ReadReceipt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	receipts := make([]*domain.ReadReceipt, 0, len(r.s.receipts[messageID]))
	for _, receipt := range r.s.receipts[messageID] {
		c := *receipt
		receipts = append(receipts, &c)
	}
	sort.Slice(receipts, func(i, j int) bool { return receipts[i].ID < receipts[j].ID })
	return receipts, nil
}
