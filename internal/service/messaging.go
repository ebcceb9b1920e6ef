package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"wequack/internal/domain"
	"wequack/internal/metrics"
	"wequack/internal/repository"
	apperrors "wequack/pkg/errors"
	"wequack/pkg/logger"
)

type MessagingService interface {
	SendMessage(ctx context.Context, senderID, groupID uuid.UUID, content string) (*domain.Message, error)
	// FetchHistory returns the group history and marks as read every unread
	// message written by someone else, recording a receipt for the requester.
	FetchHistory(ctx context.Context, requesterID, groupID uuid.UUID) ([]*domain.Message, error)
	MarkRead(ctx context.Context, readerID uuid.UUID, messageID int64) error
	CreateGroup(ctx context.Context, creatorID uuid.UUID, name, description string, memberIDs []uuid.UUID) (*domain.Group, error)
	StartDirectChat(ctx context.Context, initiatorID, otherUserID uuid.UUID) (*domain.Group, error)
	// AddMember lets a member invite another user into a group chat.
	// Adding an existing member is a no-op.
	AddMember(ctx context.Context, requesterID, groupID, userID uuid.UUID) (*domain.Group, error)
	ListConversations(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error)
}

type messagingService struct {
	userRepo    repository.UserRepository
	groupRepo   repository.GroupRepository
	messageRepo repository.MessageRepository
	rooms       RoomDirectory
	publisher   Publisher
	log         logger.Logger
}

func NewMessagingService(
	userRepo repository.UserRepository,
	groupRepo repository.GroupRepository,
	messageRepo repository.MessageRepository,
	rooms RoomDirectory,
	publisher Publisher,
	log logger.Logger,
) MessagingService {
	return &messagingService{
		userRepo:    userRepo,
		groupRepo:   groupRepo,
		messageRepo: messageRepo,
		rooms:       rooms,
		publisher:   publisher,
		log:         log,
	}
}

func (s *messagingService) SendMessage(ctx context.Context, senderID, groupID uuid.UUID, content string) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: message content is required", apperrors.ErrValidation)
	}
	if utf8.RuneCountInString(content) > domain.MaxMessageLength {
		return nil, fmt.Errorf("%w: message is too long (max %d characters)", apperrors.ErrValidation, domain.MaxMessageLength)
	}

	ok, err := s.rooms.IsMember(ctx, senderID, groupID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: not a member of group %s", apperrors.ErrForbidden, groupID)
	}

	sender, err := s.userRepo.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	members, err := s.groupRepo.ListMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}

	message := &domain.Message{
		GroupID:    groupID,
		SenderID:   senderID,
		SenderName: sender.Username,
		Content:    content,
	}
	// The write completes before any fan-out, so a client reacting to
	// new_message always finds it in the history.
	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, err
	}
	metrics.MessagesSent.Inc()

	s.publisher.PublishToConnections(s.rooms.Subscribers(groupID), domain.NewMessageEvent(message))

	preview := domain.Preview(content)
	for _, memberID := range members {
		if memberID == senderID {
			continue
		}
		s.publisher.PublishToUser(memberID, domain.Event{
			Kind:    domain.EventMessageNotification,
			Channel: domain.UserChannel(memberID),
			Payload: domain.MessageNotificationPayload{
				GroupID:        groupID,
				SenderName:     sender.Username,
				ContentPreview: preview,
			},
		})
	}

	return message, nil
}

func (s *messagingService) FetchHistory(ctx context.Context, requesterID, groupID uuid.UUID) ([]*domain.Message, error) {
	if err := s.authorize(ctx, requesterID, groupID); err != nil {
		return nil, err
	}

	marked, err := s.messageRepo.MarkGroupRead(ctx, groupID, requesterID)
	if err != nil {
		return nil, err
	}
	if len(marked) > 0 {
		metrics.ReadReceipts.Add(float64(len(marked)))
		s.log.Debug("Marked messages read on fetch", "group_id", groupID, "user_id", requesterID, "count", len(marked))
	}

	return s.messageRepo.ListByGroup(ctx, groupID)
}

func (s *messagingService) MarkRead(ctx context.Context, readerID uuid.UUID, messageID int64) error {
	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if message.SenderID == readerID {
		return nil
	}

	ok, err := s.rooms.IsMember(ctx, readerID, message.GroupID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: not a member of group %s", apperrors.ErrForbidden, message.GroupID)
	}

	if err := s.messageRepo.MarkRead(ctx, messageID); err != nil {
		return err
	}
	created, err := s.messageRepo.CreateReadReceipt(ctx, messageID, readerID)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}
	metrics.ReadReceipts.Inc()

	reader, err := s.userRepo.GetByID(ctx, readerID)
	if err != nil {
		return err
	}
	s.publisher.PublishToUser(message.SenderID, domain.Event{
		Kind:    domain.EventMessageRead,
		Channel: domain.UserChannel(message.SenderID),
		Payload: domain.MessageReadPayload{
			MessageID:  messageID,
			ReaderID:   readerID,
			ReaderName: reader.Username,
		},
	})
	return nil
}

func (s *messagingService) CreateGroup(ctx context.Context, creatorID uuid.UUID, name, description string, memberIDs []uuid.UUID) (*domain.Group, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)

	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", apperrors.ErrValidation)
	}
	if utf8.RuneCountInString(name) > domain.MaxGroupNameLength {
		return nil, fmt.Errorf("%w: group name is too long (max %d characters)", apperrors.ErrValidation, domain.MaxGroupNameLength)
	}
	if utf8.RuneCountInString(description) > domain.MaxGroupDescriptionLength {
		return nil, fmt.Errorf("%w: description is too long (max %d characters)", apperrors.ErrValidation, domain.MaxGroupDescriptionLength)
	}

	// Создатель всегда участник; повторы и неизвестные пользователи отбрасываются
	candidates := lo.Uniq(append([]uuid.UUID{creatorID}, memberIDs...))
	known, err := s.userRepo.GetByIDs(ctx, candidates)
	if err != nil {
		return nil, err
	}
	if _, ok := known[creatorID]; !ok {
		return nil, apperrors.ErrUserNotFound
	}
	members := lo.Filter(candidates, func(id uuid.UUID, _ int) bool {
		_, ok := known[id]
		return ok
	})

	group := &domain.Group{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		CreatorID:   creatorID,
		Members:     members,
	}
	if err := s.groupRepo.Create(ctx, group); err != nil {
		return nil, err
	}

	s.log.Info("Group created", "group_id", group.ID, "creator_id", creatorID, "members", len(members))
	return group, nil
}

func (s *messagingService) StartDirectChat(ctx context.Context, initiatorID, otherUserID uuid.UUID) (*domain.Group, error) {
	if initiatorID == otherUserID {
		return nil, fmt.Errorf("%w: cannot start a direct chat with yourself", apperrors.ErrValidation)
	}

	other, err := s.userRepo.GetByID(ctx, otherUserID)
	if err != nil {
		return nil, err
	}

	group, err := s.groupRepo.FindDirectChatBetween(ctx, initiatorID, otherUserID)
	if err == nil {
		return group, nil
	}
	if !errors.Is(err, apperrors.ErrGroupNotFound) {
		return nil, err
	}

	initiator, err := s.userRepo.GetByID(ctx, initiatorID)
	if err != nil {
		return nil, err
	}

	group = &domain.Group{
		ID:           uuid.New(),
		Name:         fmt.Sprintf("Direct: %s and %s", initiator.Username, other.Username),
		CreatorID:    initiatorID,
		IsDirectChat: true,
		Members:      []uuid.UUID{initiatorID, otherUserID},
	}
	err = s.groupRepo.Create(ctx, group)
	if err == nil {
		s.log.Info("Direct chat created", "group_id", group.ID, "user_a", initiatorID, "user_b", otherUserID)
		return group, nil
	}
	if !errors.Is(err, apperrors.ErrConflict) {
		return nil, err
	}

	// A concurrent call created the chat first; read it back once.
	group, err = s.groupRepo.FindDirectChatBetween(ctx, initiatorID, otherUserID)
	if err != nil {
		s.log.Error("Direct chat conflict did not resolve", "error", err, "user_a", initiatorID, "user_b", otherUserID)
		return nil, fmt.Errorf("%w: direct chat lookup after conflict: %v", apperrors.ErrInternalServer, err)
	}
	return group, nil
}

func (s *messagingService) AddMember(ctx context.Context, requesterID, groupID, userID uuid.UUID) (*domain.Group, error) {
	if err := s.authorize(ctx, requesterID, groupID); err != nil {
		return nil, err
	}

	group, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.IsDirectChat {
		return nil, fmt.Errorf("%w: direct chats have exactly two members", apperrors.ErrValidation)
	}
	if lo.Contains(group.Members, userID) {
		return group, nil
	}

	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.groupRepo.AddMember(ctx, groupID, userID); err != nil {
		return nil, err
	}

	s.log.Info("Group member added", "group_id", groupID, "user_id", userID, "added_by", requesterID)
	return s.groupRepo.GetByID(ctx, groupID)
}

func (s *messagingService) ListConversations(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	groups, err := s.groupRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var otherIDs []uuid.UUID
	for _, g := range groups {
		if other, ok := g.OtherMember(userID); ok {
			otherIDs = append(otherIDs, other)
		}
	}
	others, err := s.userRepo.GetByIDs(ctx, otherIDs)
	if err != nil {
		return nil, err
	}

	conversations := make([]domain.Conversation, 0, len(groups))
	for _, g := range groups {
		conv := domain.Conversation{
			ID:       g.ID,
			Name:     g.Name,
			IsDirect: g.IsDirectChat,
		}
		if g.IsDirectChat {
			otherID, ok := g.OtherMember(userID)
			other, found := others[otherID]
			if !ok || !found {
				continue
			}
			conv.Name = other.Username
			conv.UserID = &other.ID
			conv.Status = other.Status
		} else {
			conv.Description = g.Description
		}

		last, err := s.messageRepo.LastMessage(ctx, g.ID)
		switch {
		case err == nil:
			conv.LastMessage = &last.Content
			conv.LastMessageTime = &last.CreatedAt
		case !apperrors.IsNotFound(err):
			return nil, err
		}

		if conv.UnreadCount, err = s.messageRepo.CountUnread(ctx, g.ID, userID); err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, nil
}

// authorize distinguishes an unknown group from a group the user is not in.
func (s *messagingService) authorize(ctx context.Context, userID, groupID uuid.UUID) error {
	ok, err := s.rooms.IsMember(ctx, userID, groupID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if _, err := s.groupRepo.GetByID(ctx, groupID); err != nil {
		return err
	}
	return fmt.Errorf("%w: not a member of group %s", apperrors.ErrForbidden, groupID)
}
