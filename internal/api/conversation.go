package api

import (
	"net/http"

	"ai-chat-gateway/backend/internal/repository"
	"ai-chat-gateway/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ConversationHandler serves read-back of stored conversation history
type ConversationHandler struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	logger        *logger.Logger
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	log *logger.Logger,
) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		messages:      messages,
		logger:        log,
	}
}

// RegisterRoutesV1 registers conversation routes on the v1 group
func (h *ConversationHandler) RegisterRoutesV1(v1 *gin.RouterGroup) {
	v1.GET("/conversations/:id/messages", h.GetMessages)
}

// GetMessages returns the ordered message history of a conversation
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID"})
		return
	}

	conversation, err := h.conversations.GetByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}

	messages, err := h.messages.GetByConversation(id)
	if err != nil {
		h.logger.LogError(err, "Failed to load conversation messages", "conversation_id", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error retrieving messages"})
		return
	}

	formatted := make([]gin.H, len(messages))
	for i, msg := range messages {
		formatted[i] = gin.H{
			"id":        msg.ID,
			"role":      msg.Role,
			"content":   msg.Content,
			"createdAt": msg.CreatedAt,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"conversationId": conversation.ID,
		"title":          conversation.Title,
		"messages":       formatted,
		"count":          len(formatted),
	})
}
