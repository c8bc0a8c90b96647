package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"ai-chat-gateway/backend/ai"
	"ai-chat-gateway/backend/internal/models"
	apperrors "ai-chat-gateway/backend/pkg/errors"
	"ai-chat-gateway/backend/pkg/jwt"
	"ai-chat-gateway/backend/pkg/ratelimit"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConversationRepo struct {
	created    []*models.Conversation
	failCreate bool
}

func (f *fakeConversationRepo) Create(c *models.Conversation) error {
	if f.failCreate {
		return errors.New("insert failed")
	}
	f.created = append(f.created, c)
	return nil
}

func (f *fakeConversationRepo) GetByID(id uuid.UUID) (*models.Conversation, error) {
	for _, c := range f.created {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, errors.New("record not found")
}

type fakeMessageRepo struct {
	created    []*models.Message
	failCreate bool
}

func (f *fakeMessageRepo) Create(m *models.Message) error {
	if f.failCreate {
		return errors.New("insert failed")
	}
	f.created = append(f.created, m)
	return nil
}

func (f *fakeMessageRepo) GetByConversation(conversationID uuid.UUID) ([]models.Message, error) {
	var out []models.Message
	for _, m := range f.created {
		if m.ConversationID == conversationID {
			out = append(out, *m)
		}
	}
	return out, nil
}

type fakeInvocationRepo struct {
	created []*models.ModelInvocation
}

func (f *fakeInvocationRepo) Create(inv *models.ModelInvocation) error {
	f.created = append(f.created, inv)
	return nil
}

// fakeProvider scripts the completion outcome and captures the payload sent
type fakeProvider struct {
	configured bool
	reply      string
	usage      *ai.Usage
	err        error
	payload    []ai.ChatMessage
	calls      int
}

func (f *fakeProvider) Configured() bool { return f.configured }
func (f *fakeProvider) Model() string    { return "test-model" }
func (f *fakeProvider) Provider() string { return "test" }

func (f *fakeProvider) CreateChatCompletion(_ context.Context, messages []ai.ChatMessage) (*ai.Completion, error) {
	f.calls++
	f.payload = messages
	if f.err != nil {
		return nil, f.err
	}
	return &ai.Completion{Content: f.reply, Usage: f.usage}, nil
}

type chatFixture struct {
	service       *ChatService
	conversations *fakeConversationRepo
	messages      *fakeMessageRepo
	invocations   *fakeInvocationRepo
	provider      *fakeProvider
	jwtService    *jwt.Service
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()

	log := testLogger()
	jwtService := jwt.NewService("test-secret", time.Hour)
	limiter := ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterOptions{
		Window:  60 * time.Second,
		Max:     20,
		MaxKeys: 100,
	})

	conversations := &fakeConversationRepo{}
	messages := &fakeMessageRepo{}
	invocations := &fakeInvocationRepo{}
	provider := &fakeProvider{configured: true, reply: "Hi there!"}

	svc := NewChatService(
		NewIdentityResolver(jwtService, nil, log),
		NewAdmissionController(limiter, 12, 40, log),
		conversations,
		messages,
		NewInvocationRecorder(invocations, log),
		provider,
		"You are a helpful assistant.",
		80,
		log,
	)

	return &chatFixture{
		service:       svc,
		conversations: conversations,
		messages:      messages,
		invocations:   invocations,
		provider:      provider,
		jwtService:    jwtService,
	}
}

func guestTurn(content string) TurnInput {
	return TurnInput{
		Messages: []Turn{{Role: models.RoleUser, Content: content}},
		GuestID:  "guest-abc",
		ClientIP: "203.0.113.9",
	}
}

func TestHandleTurnFirstGuestTurn(t *testing.T) {
	f := newChatFixture(t)

	result, err := f.service.HandleTurn(guestTurn("Hello"))
	require.NoError(t, err)

	// One conversation created, owned by the guest, titled after the turn
	require.Len(t, f.conversations.created, 1)
	conv := f.conversations.created[0]
	require.NotNil(t, conv.GuestID)
	assert.Equal(t, "guest-abc", *conv.GuestID)
	assert.Nil(t, conv.UserID)
	assert.Equal(t, "Hello", conv.Title)

	// The new id is echoed back to the caller
	assert.Equal(t, conv.ID.String(), result.ConversationID)
	assert.Equal(t, "Hi there!", result.Content)
	assert.NotEmpty(t, result.MessageID)

	// User turn and assistant turn both persisted
	require.Len(t, f.messages.created, 2)
	assert.Equal(t, models.RoleUser, f.messages.created[0].Role)
	assert.Equal(t, "Hello", f.messages.created[0].Content)
	assert.Equal(t, models.RoleAssistant, f.messages.created[1].Role)
	assert.Equal(t, "Hi there!", f.messages.created[1].Content)

	// Exactly one invocation row
	assert.Len(t, f.invocations.created, 1)
}

func TestHandleTurnAuthenticatedOwnership(t *testing.T) {
	f := newChatFixture(t)
	token, err := f.jwtService.GenerateToken(7, "user@example.com")
	require.NoError(t, err)

	input := guestTurn("Hello")
	input.Authorization = "Bearer " + token

	_, err = f.service.HandleTurn(input)
	require.NoError(t, err)

	require.Len(t, f.conversations.created, 1)
	conv := f.conversations.created[0]
	require.NotNil(t, conv.UserID)
	assert.Equal(t, uint(7), *conv.UserID)
	assert.Nil(t, conv.GuestID, "a resolved user owns the conversation even when a guest id is present")
}

func TestHandleTurnInvalidTokenDegradesToGuest(t *testing.T) {
	f := newChatFixture(t)

	input := guestTurn("Hello")
	input.Authorization = "Bearer not-a-real-token"

	_, err := f.service.HandleTurn(input)
	require.NoError(t, err)

	require.Len(t, f.conversations.created, 1)
	assert.Nil(t, f.conversations.created[0].UserID)
	require.NotNil(t, f.conversations.created[0].GuestID)
}

func TestHandleTurnExistingConversationNotEchoed(t *testing.T) {
	f := newChatFixture(t)

	input := guestTurn("Hello again")
	input.ConversationID = uuid.New().String()

	result, err := f.service.HandleTurn(input)
	require.NoError(t, err)

	assert.Empty(t, result.ConversationID, "a known id is not re-sent")
	assert.Empty(t, f.conversations.created, "no conversation row created")
}

func TestHandleTurnInvalidConversationID(t *testing.T) {
	f := newChatFixture(t)

	input := guestTurn("Hello")
	input.ConversationID = "not-a-uuid"

	_, err := f.service.HandleTurn(input)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 400, appErr.StatusCode)
	assert.Equal(t, "INVALID_CONVERSATION_ID", appErr.Code)
}

func TestHandleTurnEmptyMessages(t *testing.T) {
	f := newChatFixture(t)

	_, err := f.service.HandleTurn(TurnInput{GuestID: "guest-abc"})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 400, appErr.StatusCode)
	assert.Zero(t, f.provider.calls)
}

func TestHandleTurnGuestOverCap(t *testing.T) {
	f := newChatFixture(t)

	input := TurnInput{GuestID: "guest-abc"}
	for i := 0; i < 13; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		input.Messages = append(input.Messages, Turn{Role: role, Content: fmt.Sprintf("turn %d", i)})
	}

	_, err := f.service.HandleTurn(input)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 403, appErr.StatusCode)

	// Denied before any write or provider call
	assert.Empty(t, f.conversations.created)
	assert.Empty(t, f.messages.created)
	assert.Empty(t, f.invocations.created)
	assert.Zero(t, f.provider.calls)
}

func TestHandleTurnRateLimited(t *testing.T) {
	f := newChatFixture(t)

	for i := 0; i < 20; i++ {
		_, err := f.service.HandleTurn(guestTurn("hi"))
		require.NoError(t, err)
	}

	_, err := f.service.HandleTurn(guestTurn("hi"))
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 429, appErr.StatusCode)
}

func TestHandleTurnProviderFailure(t *testing.T) {
	f := newChatFixture(t)
	f.provider.err = fmt.Errorf("%w: status 503", ai.ErrUpstream)

	_, err := f.service.HandleTurn(guestTurn("Hello"))
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 502, appErr.StatusCode)

	// The user turn was already persisted; nothing after the failure was
	require.Len(t, f.messages.created, 1)
	assert.Equal(t, models.RoleUser, f.messages.created[0].Role)
	assert.Empty(t, f.invocations.created)
}

func TestHandleTurnEmptyReply(t *testing.T) {
	f := newChatFixture(t)
	f.provider.err = ai.ErrEmptyReply

	_, err := f.service.HandleTurn(guestTurn("Hello"))
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 500, appErr.StatusCode)
	assert.Empty(t, f.invocations.created)
}

func TestHandleTurnProviderNotConfigured(t *testing.T) {
	f := newChatFixture(t)
	f.provider.configured = false

	_, err := f.service.HandleTurn(guestTurn("Hello"))
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 500, appErr.StatusCode)
	assert.Equal(t, "PROVIDER_NOT_CONFIGURED", appErr.Code)
	assert.Zero(t, f.provider.calls)
}

func TestHandleTurnConversationCreateFailure(t *testing.T) {
	f := newChatFixture(t)
	f.conversations.failCreate = true

	_, err := f.service.HandleTurn(guestTurn("Hello"))
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 500, appErr.StatusCode)
	assert.Equal(t, "CONVERSATION_CREATE_FAILED", appErr.Code)
	assert.Zero(t, f.provider.calls, "creation failure aborts before the provider call")
}

func TestHandleTurnMessagePersistFailureIsNonFatal(t *testing.T) {
	f := newChatFixture(t)
	f.messages.failCreate = true

	result, err := f.service.HandleTurn(guestTurn("Hello"))
	require.NoError(t, err, "lost turn writes must not fail the request")
	assert.Equal(t, "Hi there!", result.Content)
	assert.Len(t, f.invocations.created, 1, "metrics are recorded independently")
}

func TestHandleTurnPayloadShape(t *testing.T) {
	f := newChatFixture(t)

	input := TurnInput{
		GuestID: "guest-abc",
		Messages: []Turn{
			{Role: models.RoleUser, Content: "first"},
			{Role: models.RoleAssistant, Content: "reply"},
			{Role: models.RoleUser, Content: "second"},
		},
	}

	_, err := f.service.HandleTurn(input)
	require.NoError(t, err)

	require.Len(t, f.provider.payload, 4)
	assert.Equal(t, models.RoleSystem, f.provider.payload[0].Role)
	assert.Equal(t, "You are a helpful assistant.", f.provider.payload[0].Content)
	assert.Equal(t, "first", f.provider.payload[1].Content)
	assert.Equal(t, "second", f.provider.payload[3].Content)
}

func TestHandleTurnAuthenticatedHistoryTruncated(t *testing.T) {
	f := newChatFixture(t)
	token, err := f.jwtService.GenerateToken(7, "user@example.com")
	require.NoError(t, err)

	input := TurnInput{Authorization: "Bearer " + token}
	for i := 0; i < 50; i++ {
		input.Messages = append(input.Messages, Turn{Role: models.RoleUser, Content: fmt.Sprintf("turn %d", i)})
	}

	_, err = f.service.HandleTurn(input)
	require.NoError(t, err, "authenticated histories are truncated, never rejected")

	// System prompt plus the newest 40 turns
	require.Len(t, f.provider.payload, 41)
	assert.Equal(t, "turn 10", f.provider.payload[1].Content)
	assert.Equal(t, "turn 49", f.provider.payload[40].Content)
}

func TestHandleTurnPersistsLastUserTurn(t *testing.T) {
	f := newChatFixture(t)

	input := TurnInput{
		GuestID: "guest-abc",
		Messages: []Turn{
			{Role: models.RoleUser, Content: "older question"},
			{Role: models.RoleAssistant, Content: "older answer"},
			{Role: models.RoleUser, Content: "newest question"},
			{Role: models.RoleAssistant, Content: "stale trailing reply"},
		},
	}

	_, err := f.service.HandleTurn(input)
	require.NoError(t, err)

	require.NotEmpty(t, f.messages.created)
	assert.Equal(t, "newest question", f.messages.created[0].Content,
		"the most recent user-role entry is the one stored")
}

func TestHandleTurnTitleTruncated(t *testing.T) {
	f := newChatFixture(t)

	long := strings.Repeat("a", 200)
	_, err := f.service.HandleTurn(guestTurn(long))
	require.NoError(t, err)

	require.Len(t, f.conversations.created, 1)
	assert.Equal(t, strings.Repeat("a", 80), f.conversations.created[0].Title)
}

func TestHandleTurnTitleTruncatedOnRuneBoundary(t *testing.T) {
	f := newChatFixture(t)

	// The 80th character of this message is multi-byte; a byte-indexed cut
	// would split it and store invalid UTF-8
	long := strings.Repeat("a", 79) + strings.Repeat("é", 30)
	_, err := f.service.HandleTurn(guestTurn(long))
	require.NoError(t, err)

	require.Len(t, f.conversations.created, 1)
	title := f.conversations.created[0].Title
	assert.True(t, utf8.ValidString(title))
	assert.Equal(t, 80, utf8.RuneCountInString(title))
	assert.Equal(t, strings.Repeat("a", 79)+"é", title)
}

func TestHandleTurnRecordsUsage(t *testing.T) {
	f := newChatFixture(t)
	in, out, total := 10, 5, 15
	f.provider.usage = &ai.Usage{InputTokens: &in, OutputTokens: &out, TotalTokens: &total}

	_, err := f.service.HandleTurn(guestTurn("Hello"))
	require.NoError(t, err)

	require.Len(t, f.invocations.created, 1)
	row := f.invocations.created[0]
	assert.Equal(t, "test", row.Provider)
	assert.Equal(t, "test-model", row.Model)
	require.NotNil(t, row.TotalTokens)
	assert.Equal(t, 15, *row.TotalTokens)
}

func TestHandleTurnAbsentUsageStaysAbsent(t *testing.T) {
	f := newChatFixture(t)
	f.provider.usage = nil

	_, err := f.service.HandleTurn(guestTurn("Hello"))
	require.NoError(t, err)

	require.Len(t, f.invocations.created, 1)
	row := f.invocations.created[0]
	assert.Nil(t, row.PromptTokens)
	assert.Nil(t, row.CompletionTokens)
	assert.Nil(t, row.TotalTokens)
}
