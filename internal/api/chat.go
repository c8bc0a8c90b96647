package api

import (
	"net/http"

	"ai-chat-gateway/backend/internal/service"
	apperrors "ai-chat-gateway/backend/pkg/errors"
	"ai-chat-gateway/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ChatHandler exposes the single turn endpoint
type ChatHandler struct {
	chatService *service.ChatService
	logger      *logger.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService *service.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      log,
	}
}

// chatRequest is the inbound turn payload
type chatRequest struct {
	Messages       []service.Turn `json:"messages"`
	ConversationID string         `json:"conversationId"`
	GuestID        string         `json:"guestId"`
}

// chatMessageResponse is the assistant reply shape
type chatMessageResponse struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the success envelope; conversationId is present only when
// the conversation was created for this turn
type chatResponse struct {
	ConversationID string              `json:"conversationId,omitempty"`
	Message        chatMessageResponse `json:"message"`
}

// RegisterRoutesV1 registers the chat route on the v1 group
func (h *ChatHandler) RegisterRoutesV1(v1 *gin.RouterGroup) {
	v1.POST("/chat", h.HandleChat)
}

// HandleChat processes one chat turn
func (h *ChatHandler) HandleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Error binding JSON for chat turn", "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "messages is required and must not be empty"})
		return
	}

	result, err := h.chatService.HandleTurn(service.TurnInput{
		Messages:       req.Messages,
		ConversationID: req.ConversationID,
		GuestID:        req.GuestID,
		Authorization:  c.GetHeader("Authorization"),
		ClientIP:       c.ClientIP(),
	})
	if err != nil {
		status := apperrors.GetStatusCode(err)
		if status >= http.StatusInternalServerError {
			logger.FromContext(c).LogError(err, "Chat turn failed", "code", apperrors.GetErrorCode(err))
		}
		c.JSON(status, gin.H{"error": apperrors.GetErrorMessage(err)})
		return
	}

	c.JSON(http.StatusOK, chatResponse{
		ConversationID: result.ConversationID,
		Message: chatMessageResponse{
			ID:      result.MessageID,
			Role:    "assistant",
			Content: result.Content,
		},
	})
}
