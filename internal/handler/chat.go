package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"wequack/internal/domain"
	"wequack/internal/middleware"
	"wequack/internal/service"
	"wequack/pkg/logger"
)

type ChatHandler struct {
	messagingService service.MessagingService
	userService      service.UserService
	log              logger.Logger
}

func NewChatHandler(messagingService service.MessagingService, userService service.UserService, log logger.Logger) *ChatHandler {
	return &ChatHandler{
		messagingService: messagingService,
		userService:      userService,
		log:              log,
	}
}

type CreateGroupRequest struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Members     []uuid.UUID `json:"members"`
}

type AddMemberRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

type DirectChatResponse struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	IsDirect bool      `json:"is_direct"`
}

func (h *ChatHandler) ListConversations(c *gin.Context) {
	userID, exists := middleware.UserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	conversations, err := h.messagingService.ListConversations(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if conversations == nil {
		conversations = []domain.Conversation{}
	}

	c.JSON(http.StatusOK, conversations)
}

// GetMessages returns the group history; reading it marks the caller's
// unread messages as read.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	userID, exists := middleware.UserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group ID"})
		return
	}

	messages, err := h.messagingService.FetchHistory(c.Request.Context(), userID, groupID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if messages == nil {
		messages = []*domain.Message{}
	}

	c.JSON(http.StatusOK, messages)
}

func (h *ChatHandler) CreateGroup(c *gin.Context) {
	userID, exists := middleware.UserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	group, err := h.messagingService.CreateGroup(c.Request.Context(), userID, req.Name, req.Description, req.Members)
	if err != nil {
		h.log.Warn("Failed to create group", "error", err, "user_id", userID)
		_ = c.Error(err)
		return
	}

	h.log.Info("Group created", "group_id", group.ID, "creator_id", userID, "members", len(group.Members))
	c.JSON(http.StatusCreated, group)
}

func (h *ChatHandler) AddMember(c *gin.Context) {
	userID, exists := middleware.UserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group ID"})
		return
	}

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if req.UserID == uuid.Nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	group, err := h.messagingService.AddMember(c.Request.Context(), userID, groupID, req.UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, group)
}

func (h *ChatHandler) StartDirectChat(c *gin.Context) {
	userID, exists := middleware.UserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	otherID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	group, err := h.messagingService.StartDirectChat(c.Request.Context(), userID, otherID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	other, err := h.userService.GetUser(c.Request.Context(), otherID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, DirectChatResponse{
		ID:       group.ID,
		Name:     other.Username,
		IsDirect: true,
	})
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	userID, exists := middleware.UserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	messageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || messageID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message ID"})
		return
	}

	if err := h.messagingService.MarkRead(c.Request.Context(), userID, messageID); err != nil {
		_ = c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}
