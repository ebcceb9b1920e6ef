package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"wequack/internal/domain"
	apperrors "wequack/pkg/errors"
)

func TestMessagingService_SendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("should fan out to subscribers and notify every other member", func(t *testing.T) {
		req := require.New(t)
		f := newFixture()
		alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
		g := f.group(t, alice, bob, carol)

		// given: only bob is looking at the room
		_, err := f.rooms.Join(ctx, g.ID, fakeSubscriber{conn: "b1", user: bob.ID})
		req.NoError(err)

		// when
		content := strings.Repeat("x", 40)
		msg, err := f.messaging.SendMessage(ctx, alice.ID, g.ID, content)

		// then
		req.NoError(err)
		req.NotZero(msg.ID)
		req.Equal("alice", msg.SenderName)
		req.False(msg.IsRead)

		req.Len(f.publisher.toConns, 1)
		req.Equal([]string{"b1"}, f.publisher.toConns[0].conns)
		req.Equal(domain.EventNewMessage, f.publisher.toConns[0].evt.Kind)
		req.Equal(domain.GroupChannel(g.ID), f.publisher.toConns[0].evt.Channel)

		for _, member := range []*domain.User{bob, carol} {
			notes := f.publisher.userEvents(member.ID, domain.EventMessageNotification)
			req.Len(notes, 1)
			payload := notes[0].Payload.(domain.MessageNotificationPayload)
			req.Equal(g.ID, payload.GroupID)
			req.Equal("alice", payload.SenderName)
			req.Equal(strings.Repeat("x", 30)+"...", payload.ContentPreview)
		}
		req.Empty(f.publisher.userEvents(alice.ID, domain.EventMessageNotification))
	})

	t.Run("should reject non-members", func(t *testing.T) {
		req := require.New(t)
		f := newFixture()
		alice, eve := f.user(t, "alice"), f.user(t, "eve")
		g := f.group(t, alice)

		_, err := f.messaging.SendMessage(ctx, eve.ID, g.ID, "hello")
		req.ErrorIs(err, apperrors.ErrForbidden)

		_, err = f.messaging.FetchHistory(ctx, eve.ID, g.ID)
		req.ErrorIs(err, apperrors.ErrForbidden)

		history, err := f.messaging.FetchHistory(ctx, alice.ID, g.ID)
		req.NoError(err)
		req.Empty(history)
		req.Empty(f.publisher.toConns)
	})

	t.Run("should reject empty content", func(t *testing.T) {
		f := newFixture()
		alice := f.user(t, "alice")
		g := f.group(t, alice)

		_, err := f.messaging.SendMessage(ctx, alice.ID, g.ID, "   ")
		require.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("should make the message visible in history before fan-out", func(t *testing.T) {
		req := require.New(t)
		f := newFixture()
		alice, bob := f.user(t, "alice"), f.user(t, "bob")
		g := f.group(t, alice, bob)

		msg, err := f.messaging.SendMessage(ctx, alice.ID, g.ID, "hello")
		req.NoError(err)

		history, err := f.messages.ListByGroup(ctx, g.ID)
		req.NoError(err)
		req.Len(history, 1)
		req.Equal(msg.ID, history[0].ID)
	})

	t.Run("should keep per-sender order under concurrent senders", func(t *testing.T) {
		req := require.New(t)
		f := newFixture()
		alice, bob := f.user(t, "alice"), f.user(t, "bob")
		g := f.group(t, alice, bob)

		var wg sync.WaitGroup
		for _, sender := range []*domain.User{alice, bob} {
			wg.Add(1)
			go func(sender *domain.User) {
				defer wg.Done()
				for i := 0; i < 20; i++ {
					_, err := f.messaging.SendMessage(ctx, sender.ID, g.ID, fmt.Sprintf("%s-%02d", sender.Username, i))
					req.NoError(err)
				}
			}(sender)
		}
		wg.Wait()

		history, err := f.messages.ListByGroup(ctx, g.ID)
		req.NoError(err)
		req.Len(history, 40)

		next := map[uuid.UUID]int{}
		for i, m := range history {
			if i > 0 {
				req.False(m.CreatedAt.Before(history[i-1].CreatedAt))
			}
			n := next[m.SenderID]
			req.Equal(fmt.Sprintf("%s-%02d", m.SenderName, n), m.Content)
			next[m.SenderID] = n + 1
		}
	})
}

func TestMessagingService_FetchHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("should mark messages read and record exactly one receipt", func(t *testing.T) {
		req := require.New(t)
		f := newFixture()
		alice, bob := f.user(t, "alice"), f.user(t, "bob")
		g := f.group(t, alice, bob)

		m1, err := f.messaging.SendMessage(ctx, alice.ID, g.ID, "hello")
		req.NoError(err)
		m2, err := f.messaging.SendMessage(ctx, alice.ID, g.ID, "again")
		req.NoError(err)

		history, err := f.messaging.FetchHistory(ctx, bob.ID, g.ID)
		req.NoError(err)
		req.Len(history, 2)
		req.Equal(m1.ID, history[0].ID)
		req.Equal(m2.ID, history[1].ID)
		req.True(history[0].IsRead)
		req.True(history[1].IsRead)

		_, err = f.messaging.FetchHistory(ctx, bob.ID, g.ID)
		req.NoError(err)

		receipts, err := f.messages.ListReceipts(ctx, m1.ID)
		req.NoError(err)
		req.Len(receipts, 1)
		req.Equal(bob.ID, receipts[0].UserID)
	})

	t.Run("should leave the requester's own messages unread", func(t *testing.T) {
		req := require.New(t)
		f := newFixture()
		alice, bob := f.user(t, "alice"), f.user(t, "bob")
		g := f.group(t, alice, bob)

		_, err := f.messaging.SendMessage(ctx, alice.ID, g.ID, "mine")
		req.NoError(err)

		history, err := f.messaging.FetchHistory(ctx, alice.ID, g.ID)
		req.NoError(err)
		req.False(history[0].IsRead)

		unread, err := f.messages.CountUnread(ctx, g.ID, bob.ID)
		req.NoError(err)
		req.Equal(1, unread)
	})

	t.Run("should report unknown groups as not found", func(t *testing.T) {
		f := newFixture()
		alice := f.user(t, "alice")

		_, err := f.messaging.FetchHistory(ctx, alice.ID, uuid.New())
		require.ErrorIs(t, err, apperrors.ErrGroupNotFound)
	})

	t.Run("should leave nothing unread once every member has looked", func(t *testing.T) {
		req := require.New(t)
		f := newFixture()
		a, b, c := f.user(t, "a"), f.user(t, "b"), f.user(t, "c")
		g := f.group(t, a, b, c)

		// given
		hi, err := f.messaging.SendMessage(ctx, a.ID, g.ID, "hi")
		req.NoError(err)

		// when
		var wg sync.WaitGroup
		results := make([][]*domain.Message, 2)
		for i, reader := range []*domain.User{b, c} {
			wg.Add(1)
			go func(i int, reader *domain.User) {
				defer wg.Done()
				history, err := f.messaging.FetchHistory(ctx, reader.ID, g.ID)
				req.NoError(err)
				results[i] = history
			}(i, reader)
		}
		wg.Wait()

		// then
		for _, history := range results {
			req.Len(history, 1)
			req.Equal(hi.ID, history[0].ID)
		}
		unread, err := f.messages.CountUnread(ctx, g.ID, a.ID)
		req.NoError(err)
		req.Zero(unread)
	})
}

func TestMessagingService_MarkRead(t *testing.T) {
	ctx := context.Background()

	t.Run("should be idempotent per reader", func(t *testing.T) {
		req := require.New(t)
		f := newFixture()
		alice, bob := f.user(t, "alice"), f.user(t, "bob")
		g := f.group(t, alice, bob)
		msg, err := f.messaging.SendMessage(ctx, alice.ID, g.ID, "hello")
		req.NoError(err)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				req.NoError(f.messaging.MarkRead(ctx, bob.ID, msg.ID))
			}()
		}
		wg.Wait()

		receipts, err := f.messages.ListReceipts(ctx, msg.ID)
		req.NoError(err)
		req.Len(receipts, 1)

		reads := f.publisher.userEvents(alice.ID, domain.EventMessageRead)
		req.Len(reads, 1)
		req.Equal(domain.MessageReadPayload{MessageID: msg.ID, ReaderID: bob.ID, ReaderName: "bob"}, reads[0].Payload)
		req.Empty(f.publisher.userEvents(bob.ID, domain.EventMessageRead))

		stored, err := f.messages.GetByID(ctx, msg.ID)
		req.NoError(err)
		req.True(stored.IsRead)
	})

	t.Run("should ignore the sender reading their own message", func(t *testing.T) {
		req := require.New(t)
		f := newFixture()
		alice := f.user(t, "alice")
		g := f.group(t, alice)
		msg, err := f.messaging.SendMessage(ctx, alice.ID, g.ID, "note to self")
		req.NoError(err)

		req.NoError(f.messaging.MarkRead(ctx, alice.ID, msg.ID))

		receipts, err := f.messages.ListReceipts(ctx, msg.ID)
		req.NoError(err)
		req.Empty(receipts)
		stored, err := f.messages.GetByID(ctx, msg.ID)
		req.NoError(err)
		req.False(stored.IsRead)
	})

	t.Run("should refuse readers outside the group", func(t *testing.T) {
		req := require.New(t)
		f := newFixture()
		alice, eve := f.user(t, "alice"), f.user(t, "eve")
		g := f.group(t, alice)
		msg, err := f.messaging.SendMessage(ctx, alice.ID, g.ID, "private")
		req.NoError(err)

		req.ErrorIs(f.messaging.MarkRead(ctx, eve.ID, msg.ID), apperrors.ErrForbidden)
		req.ErrorIs(f.messaging.MarkRead(ctx, eve.ID, 9999), apperrors.ErrMessageNotFound)
	})
}

func TestMessagingService_Groups(t *testing.T) {
	ctx := context.Background()

	t.Run("should always include the creator and drop duplicates", func(t *testing.T) {
		req := require.New(t)
		f := newFixture()
		alice, bob := f.user(t, "alice"), f.user(t, "bob")

		g, err := f.messaging.CreateGroup(ctx, alice.ID, " team ", "desc", []uuid.UUID{bob.ID, bob.ID, alice.ID, uuid.New()})
		req.NoError(err)
		req.Equal("team", g.Name)
		req.Equal([]uuid.UUID{alice.ID, bob.ID}, g.Members)

		members, err := f.groups.ListMembers(ctx, g.ID)
		req.NoError(err)
		req.ElementsMatch([]uuid.UUID{alice.ID, bob.ID}, members)
	})

	t.Run("should require a name", func(t *testing.T) {
		f := newFixture()
		alice := f.user(t, "alice")

		_, err := f.messaging.CreateGroup(ctx, alice.ID, "  ", "", nil)
		require.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("should return the same direct chat in either order", func(t *testing.T) {
		req := require.New(t)
		f := newFixture()
		a, b, c := f.user(t, "a"), f.user(t, "b"), f.user(t, "c")

		ab, err := f.messaging.StartDirectChat(ctx, a.ID, b.ID)
		req.NoError(err)
		again, err := f.messaging.StartDirectChat(ctx, a.ID, b.ID)
		req.NoError(err)
		reversed, err := f.messaging.StartDirectChat(ctx, b.ID, a.ID)
		req.NoError(err)

		req.Equal(ab.ID, again.ID)
		req.Equal(ab.ID, reversed.ID)
		req.True(ab.IsDirectChat)

		// a has another direct chat; it must not be mistaken for a-b
		ac, err := f.messaging.StartDirectChat(ctx, a.ID, c.ID)
		req.NoError(err)
		req.NotEqual(ab.ID, ac.ID)
		bc, err := f.messaging.StartDirectChat(ctx, c.ID, b.ID)
		req.NoError(err)
		req.NotEqual(ab.ID, bc.ID)
		req.NotEqual(ac.ID, bc.ID)
	})

	t.Run("should converge on one direct chat under concurrent starts", func(t *testing.T) {
		req := require.New(t)
		f := newFixture()
		a, b := f.user(t, "a"), f.user(t, "b")

		ids := make([]uuid.UUID, 20)
		var wg sync.WaitGroup
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				from, to := a, b
				if i%2 == 1 {
					from, to = b, a
				}
				g, err := f.messaging.StartDirectChat(ctx, from.ID, to.ID)
				req.NoError(err)
				ids[i] = g.ID
			}(i)
		}
		wg.Wait()

		for _, id := range ids {
			req.Equal(ids[0], id)
		}
	})

	t.Run("should reject self chats and unknown users", func(t *testing.T) {
		req := require.New(t)
		f := newFixture()
		a := f.user(t, "a")

		_, err := f.messaging.StartDirectChat(ctx, a.ID, a.ID)
		req.ErrorIs(err, apperrors.ErrValidation)

		_, err = f.messaging.StartDirectChat(ctx, a.ID, uuid.New())
		req.ErrorIs(err, apperrors.ErrUserNotFound)
	})

	t.Run("should list conversations with previews and unread counts", func(t *testing.T) {
		req := require.New(t)
		f := newFixture()
		alice, bob := f.user(t, "alice"), f.user(t, "bob")

		team, err := f.messaging.CreateGroup(ctx, alice.ID, "team", "daily", []uuid.UUID{bob.ID})
		req.NoError(err)
		dm, err := f.messaging.StartDirectChat(ctx, alice.ID, bob.ID)
		req.NoError(err)
		_, err = f.messaging.SendMessage(ctx, alice.ID, dm.ID, "first")
		req.NoError(err)
		_, err = f.messaging.SendMessage(ctx, alice.ID, dm.ID, "second")
		req.NoError(err)

		convs, err := f.messaging.ListConversations(ctx, bob.ID)
		req.NoError(err)
		req.Len(convs, 2)

		byID := map[uuid.UUID]domain.Conversation{}
		for _, c := range convs {
			byID[c.ID] = c
		}

		req.Equal("team", byID[team.ID].Name)
		req.Equal("daily", byID[team.ID].Description)
		req.Nil(byID[team.ID].LastMessage)
		req.Zero(byID[team.ID].UnreadCount)

		direct := byID[dm.ID]
		req.True(direct.IsDirect)
		req.Equal("alice", direct.Name)
		req.Equal(alice.ID, *direct.UserID)
		req.Equal("second", *direct.LastMessage)
		req.Equal(2, direct.UnreadCount)
	})
}

func TestMessagingService_AddMember(t *testing.T) {
	ctx := context.Background()

	t.Run("should let an invited user read and write", func(t *testing.T) {
		req := require.New(t)
		f := newFixture()
		alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
		team, err := f.messaging.CreateGroup(ctx, alice.ID, "team", "", []uuid.UUID{bob.ID})
		req.NoError(err)

		// given
		_, err = f.messaging.SendMessage(ctx, carol.ID, team.ID, "hi")
		req.ErrorIs(err, apperrors.ErrForbidden)

		// when
		g, err := f.messaging.AddMember(ctx, bob.ID, team.ID, carol.ID)

		// then
		req.NoError(err)
		req.ElementsMatch([]uuid.UUID{alice.ID, bob.ID, carol.ID}, g.Members)
		_, err = f.messaging.SendMessage(ctx, carol.ID, team.ID, "hi")
		req.NoError(err)
		history, err := f.messaging.FetchHistory(ctx, carol.ID, team.ID)
		req.NoError(err)
		req.Len(history, 1)
	})

	t.Run("should treat a repeated add as a no-op", func(t *testing.T) {
		req := require.New(t)
		f := newFixture()
		alice, bob := f.user(t, "alice"), f.user(t, "bob")
		team, err := f.messaging.CreateGroup(ctx, alice.ID, "team", "", nil)
		req.NoError(err)

		_, err = f.messaging.AddMember(ctx, alice.ID, team.ID, bob.ID)
		req.NoError(err)
		g, err := f.messaging.AddMember(ctx, alice.ID, team.ID, bob.ID)
		req.NoError(err)
		req.Len(g.Members, 2)

		members, err := f.groups.ListMembers(ctx, team.ID)
		req.NoError(err)
		req.Len(members, 2)
	})

	t.Run("should reject outsiders, direct chats and unknown ids", func(t *testing.T) {
		req := require.New(t)
		f := newFixture()
		alice, bob, eve := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "eve")
		team, err := f.messaging.CreateGroup(ctx, alice.ID, "team", "", nil)
		req.NoError(err)
		dm, err := f.messaging.StartDirectChat(ctx, alice.ID, bob.ID)
		req.NoError(err)

		_, err = f.messaging.AddMember(ctx, eve.ID, team.ID, eve.ID)
		req.ErrorIs(err, apperrors.ErrForbidden)

		_, err = f.messaging.AddMember(ctx, alice.ID, dm.ID, eve.ID)
		req.ErrorIs(err, apperrors.ErrValidation)

		_, err = f.messaging.AddMember(ctx, alice.ID, team.ID, uuid.New())
		req.ErrorIs(err, apperrors.ErrUserNotFound)

		_, err = f.messaging.AddMember(ctx, alice.ID, uuid.New(), bob.ID)
		req.ErrorIs(err, apperrors.ErrGroupNotFound)
	})
}
