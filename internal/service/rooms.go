package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"wequack/internal/repository"
	"wequack/pkg/logger"
)

// Subscriber is a live connection that can be attached to a room.
type Subscriber interface {
	ConnID() string
	UserID() uuid.UUID
}

// MembershipCache remembers confirmed group memberships for one connection.
// Membership is never revoked, so only positive answers are stored.
type MembershipCache struct {
	userID uuid.UUID
	mu     sync.Mutex
	groups map[uuid.UUID]struct{}
}

func NewMembershipCache(userID uuid.UUID) *MembershipCache {
	return &MembershipCache{userID: userID, groups: make(map[uuid.UUID]struct{})}
}

func (c *MembershipCache) has(userID, groupID uuid.UUID) bool {
	if c == nil || c.userID != userID {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.groups[groupID]
	return ok
}

func (c *MembershipCache) add(userID, groupID uuid.UUID) {
	if c == nil || c.userID != userID {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups[groupID] = struct{}{}
}

type membershipCacheKey struct{}

// WithMembershipCache scopes membership lookups made with ctx to cache.
func WithMembershipCache(ctx context.Context, cache *MembershipCache) context.Context {
	return context.WithValue(ctx, membershipCacheKey{}, cache)
}

func membershipCacheFrom(ctx context.Context) *MembershipCache {
	cache, _ := ctx.Value(membershipCacheKey{}).(*MembershipCache)
	return cache
}

// RoomDirectory maps groups to the connections currently subscribed to their
// fan-out channel.
type RoomDirectory interface {
	// Join subscribes sub to the group. It reports false, without error, when
	// the user is not a persisted member.
	Join(ctx context.Context, groupID uuid.UUID, sub Subscriber) (bool, error)
	Leave(groupID uuid.UUID, connID string)
	Subscribers(groupID uuid.UUID) []string
	IsMember(ctx context.Context, userID, groupID uuid.UUID) (bool, error)
}

type roomEntry struct {
	mu   sync.RWMutex
	subs map[string]uuid.UUID
	dead bool
}

type roomDirectory struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*roomEntry

	groupRepo repository.GroupRepository
	log       logger.Logger
}

func NewRoomDirectory(groupRepo repository.GroupRepository, log logger.Logger) RoomDirectory {
	return &roomDirectory{
		rooms:     make(map[uuid.UUID]*roomEntry),
		groupRepo: groupRepo,
		log:       log,
	}
}

func (d *roomDirectory) IsMember(ctx context.Context, userID, groupID uuid.UUID) (bool, error) {
	cache := membershipCacheFrom(ctx)
	if cache.has(userID, groupID) {
		return true, nil
	}

	ok, err := d.groupRepo.IsMember(ctx, groupID, userID)
	if err != nil {
		return false, err
	}
	if ok {
		cache.add(userID, groupID)
	}
	return ok, nil
}

func (d *roomDirectory) Join(ctx context.Context, groupID uuid.UUID, sub Subscriber) (bool, error) {
	ok, err := d.IsMember(ctx, sub.UserID(), groupID)
	if err != nil {
		return false, err
	}
	if !ok {
		d.log.Debug("Join rejected, not a member", "user_id", sub.UserID(), "group_id", groupID)
		return false, nil
	}

	for {
		e := d.room(groupID)
		e.mu.Lock()
		if e.dead {
			// Lost a race with the last Leave; retry on a fresh entry.
			e.mu.Unlock()
			continue
		}
		e.subs[sub.ConnID()] = sub.UserID()
		e.mu.Unlock()
		return true, nil
	}
}

// Leave removes connID; an emptied room is marked dead and dropped from the
// map under both locks, so Join never adds to an unreachable entry.
func (d *roomDirectory) Leave(groupID uuid.UUID, connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.rooms[groupID]
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.subs, connID)
	if len(e.subs) == 0 {
		e.dead = true
		delete(d.rooms, groupID)
	}
}

func (d *roomDirectory) Subscribers(groupID uuid.UUID) []string {
	d.mu.Lock()
	e, ok := d.rooms[groupID]
	d.mu.Unlock()
	if !ok {
		return nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.subs))
	for connID := range e.subs {
		out = append(out, connID)
	}
	return out
}

func (d *roomDirectory) room(groupID uuid.UUID) *roomEntry {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.rooms[groupID]
	if !ok {
		e = &roomEntry{subs: make(map[string]uuid.UUID)}
		d.rooms[groupID] = e
	}
	return e
}
