package service

import (
	"context"
	"time"

	"ai-chat-gateway/backend/ai"
	"ai-chat-gateway/backend/internal/models"
	"ai-chat-gateway/backend/internal/repository"
	"ai-chat-gateway/backend/pkg/logger"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InvocationRecorder appends one ModelInvocation row per successful LLM call
// and mirrors the numbers to the process meter. Every write is best-effort:
// failures are logged and never surface to the caller.
type InvocationRecorder struct {
	repo    repository.InvocationRepository
	logger  *logger.Logger
	calls   metric.Int64Counter
	tokens  metric.Int64Counter
	latency metric.Float64Histogram
}

// NewInvocationRecorder creates a recorder writing to the given repository
func NewInvocationRecorder(repo repository.InvocationRepository, log *logger.Logger) *InvocationRecorder {
	meter := otel.Meter("ai-chat-gateway/backend")

	calls, err := meter.Int64Counter("llm.invocations",
		metric.WithDescription("Completed LLM calls"))
	if err != nil {
		log.LogError(err, "Failed to create invocation counter")
	}
	tokens, err := meter.Int64Counter("llm.tokens",
		metric.WithDescription("Tokens reported by the provider"))
	if err != nil {
		log.LogError(err, "Failed to create token counter")
	}
	latency, err := meter.Float64Histogram("llm.latency",
		metric.WithDescription("Wall-clock latency of LLM calls"),
		metric.WithUnit("ms"))
	if err != nil {
		log.LogError(err, "Failed to create latency histogram")
	}

	return &InvocationRecorder{
		repo:    repo,
		logger:  log,
		calls:   calls,
		tokens:  tokens,
		latency: latency,
	}
}

// Record writes the invocation row and updates the meter. Called only after
// a successful provider response; failed calls never produce a row.
func (r *InvocationRecorder) Record(conversationID *uuid.UUID, provider, model string, elapsed time.Duration, usage *ai.Usage) {
	invocation := &models.ModelInvocation{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Provider:       provider,
		Model:          model,
		LatencyMs:      elapsed.Milliseconds(),
	}

	if usage != nil {
		invocation.PromptTokens = usage.InputTokens
		invocation.CompletionTokens = usage.OutputTokens
		invocation.TotalTokens = usage.TotalTokens
	}

	if err := r.repo.Create(invocation); err != nil {
		r.logger.LogError(err, "Failed to record model invocation",
			"provider", provider,
			"model", model,
		)
	}

	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
	)

	if r.calls != nil {
		r.calls.Add(ctx, 1, attrs)
	}
	if r.latency != nil {
		r.latency.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	}
	if r.tokens != nil && invocation.TotalTokens != nil {
		r.tokens.Add(ctx, int64(*invocation.TotalTokens), attrs)
	}
}
