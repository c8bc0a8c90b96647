package service

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"ai-chat-gateway/backend/ai"
	"ai-chat-gateway/backend/internal/models"
	"ai-chat-gateway/backend/internal/repository"
	apperrors "ai-chat-gateway/backend/pkg/errors"
	"ai-chat-gateway/backend/pkg/logger"

	"github.com/google/uuid"
)

// CompletionProvider is the slice of the LLM client the orchestrator needs
type CompletionProvider interface {
	Configured() bool
	Model() string
	Provider() string
	CreateChatCompletion(ctx context.Context, messages []ai.ChatMessage) (*ai.Completion, error)
}

// Turn is one entry of the submitted conversation history
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnInput carries everything one inbound chat request provides
type TurnInput struct {
	Messages       []Turn
	ConversationID string // optional; trusted as-is when supplied
	GuestID        string
	Authorization  string // raw Authorization header value, may be empty
	ClientIP       string
}

// TurnResult is the successful outcome of one turn
type TurnResult struct {
	ConversationID string // set only when the conversation was created for this turn
	MessageID      string
	Content        string
}

// ChatService runs the turn pipeline: validate, resolve identity, admit,
// resolve the conversation, persist the user turn, invoke the model, persist
// the reply and its metrics, respond. Steps within one request are strictly
// sequential; the rate-limit state injected via the admission controller is
// the only mutable state shared across requests.
type ChatService struct {
	identity      *IdentityResolver
	admission     *AdmissionController
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	recorder      *InvocationRecorder
	provider      CompletionProvider
	systemPrompt  string
	titleMaxLen   int
	logger        *logger.Logger
}

// NewChatService wires the pipeline components together
func NewChatService(
	identity *IdentityResolver,
	admission *AdmissionController,
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	recorder *InvocationRecorder,
	provider CompletionProvider,
	systemPrompt string,
	titleMaxLen int,
	log *logger.Logger,
) *ChatService {
	return &ChatService{
		identity:      identity,
		admission:     admission,
		conversations: conversations,
		messages:      messages,
		recorder:      recorder,
		provider:      provider,
		systemPrompt:  systemPrompt,
		titleMaxLen:   titleMaxLen,
		logger:        log,
	}
}

// HandleTurn processes one chat turn end to end. Downstream calls run on a
// fresh context: a caller disconnect must not cancel in-flight store or
// provider work.
func (s *ChatService) HandleTurn(input TurnInput) (*TurnResult, error) {
	ctx := context.Background()

	// ValidateInput
	if len(input.Messages) == 0 {
		return nil, apperrors.NewBadRequestError("EMPTY_MESSAGES", "Request must include at least one message")
	}

	// ResolveIdentity: any verification failure degrades to anonymous
	userID := s.identity.Resolve(input.Authorization)

	// CheckAdmission
	key := s.admission.ClientKey(userID, input.GuestID, input.ClientIP)
	if err := s.admission.Admit(ctx, key, userID, len(input.Messages)); err != nil {
		return nil, err
	}

	// ResolveConversation
	conversationID, created, err := s.resolveConversation(input, userID)
	if err != nil {
		return nil, err
	}

	// PersistUserTurn: best-effort, the reply still matters if this write is lost
	if userTurn := lastUserTurn(input.Messages); userTurn != nil {
		msg := &models.Message{
			ID:             uuid.New(),
			ConversationID: conversationID,
			Role:           models.RoleUser,
			Content:        userTurn.Content,
		}
		if err := s.messages.Create(msg); err != nil {
			s.logger.LogError(err, "Failed to persist user turn", "conversation_id", conversationID)
		}
	}

	// InvokeModel
	if !s.provider.Configured() {
		return nil, apperrors.NewInternalServerError("PROVIDER_NOT_CONFIGURED",
			"Chat service is not configured")
	}

	payload := s.buildPayload(input.Messages, s.admission.MaxMessages(userID))

	start := time.Now()
	completion, err := s.provider.CreateChatCompletion(ctx, payload)
	elapsed := time.Since(start)
	if err != nil {
		return nil, mapProviderError(err)
	}

	// PersistAssistantTurn and RecordMetrics: both best-effort, independently
	reply := &models.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           models.RoleAssistant,
		Content:        completion.Content,
	}
	if err := s.messages.Create(reply); err != nil {
		s.logger.LogError(err, "Failed to persist assistant turn", "conversation_id", conversationID)
	}

	s.recorder.Record(&conversationID, s.provider.Provider(), s.provider.Model(), elapsed, completion.Usage)

	// RespondSuccess: re-send the conversation id only when it is new to the caller
	result := &TurnResult{
		MessageID: uuid.New().String(),
		Content:   completion.Content,
	}
	if created {
		result.ConversationID = conversationID.String()
	}
	return result, nil
}

// resolveConversation returns a conversation id guaranteed to reference a
// durable row, creating one when the client supplied none. Creation failure
// aborts the pipeline before any provider call.
func (s *ChatService) resolveConversation(input TurnInput, userID *uint) (uuid.UUID, bool, error) {
	if input.ConversationID != "" {
		id, err := uuid.Parse(input.ConversationID)
		if err != nil {
			return uuid.Nil, false, apperrors.NewBadRequestError("INVALID_CONVERSATION_ID",
				"conversationId is not a valid id")
		}
		return id, false, nil
	}

	conversation := &models.Conversation{
		ID:    uuid.New(),
		Title: s.deriveTitle(input.Messages),
	}
	if userID != nil {
		conversation.UserID = userID
	} else if input.GuestID != "" {
		guestID := input.GuestID
		conversation.GuestID = &guestID
	}

	if err := s.conversations.Create(conversation); err != nil {
		s.logger.LogError(err, "Failed to create conversation")
		return uuid.Nil, false, apperrors.NewInternalServerError("CONVERSATION_CREATE_FAILED",
			"Could not start a new conversation")
	}

	return conversation.ID, true, nil
}

// deriveTitle takes a bounded prefix of the first user turn. The bound
// counts characters, not bytes; cutting mid-rune would hand the store
// invalid UTF-8.
func (s *ChatService) deriveTitle(messages []Turn) string {
	for _, m := range messages {
		if m.Role == models.RoleUser {
			title := m.Content
			if utf8.RuneCountInString(title) > s.titleMaxLen {
				runes := []rune(title)
				title = string(runes[:s.titleMaxLen])
			}
			return title
		}
	}
	return ""
}

// buildPayload prepends the system instruction and truncates the history to
// the tier ceiling, so admission capping and context-window capping share
// one number.
func (s *ChatService) buildPayload(messages []Turn, maxMessages int) []ai.ChatMessage {
	if len(messages) > maxMessages {
		messages = messages[len(messages)-maxMessages:]
	}

	payload := make([]ai.ChatMessage, 0, len(messages)+1)
	payload = append(payload, ai.ChatMessage{Role: models.RoleSystem, Content: s.systemPrompt})
	for _, m := range messages {
		payload = append(payload, ai.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return payload
}

// lastUserTurn finds the most recent user-role entry, searching from the end
func lastUserTurn(messages []Turn) *Turn {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			return &messages[i]
		}
	}
	return nil
}

// mapProviderError translates provider failures into the caller-facing taxonomy
func mapProviderError(err error) error {
	switch {
	case errors.Is(err, ai.ErrNotConfigured):
		return apperrors.NewInternalServerError("PROVIDER_NOT_CONFIGURED",
			"Chat service is not configured")
	case errors.Is(err, ai.ErrEmptyReply):
		return apperrors.NewInternalServerError("PROVIDER_EMPTY_REPLY",
			"The assistant returned no reply")
	case errors.Is(err, ai.ErrUpstream):
		return apperrors.NewBadGatewayError("PROVIDER_ERROR",
			"The assistant is currently unavailable")
	default:
		return apperrors.NewBadGatewayError("PROVIDER_ERROR",
			"The assistant is currently unavailable")
	}
}
