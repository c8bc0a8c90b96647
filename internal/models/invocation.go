package models

import (
	"time"

	"github.com/google/uuid"
)

// ModelInvocation records one successful LLM call: latency plus whatever
// token accounting the provider reported. Token columns stay NULL when the
// provider omits them; they are never zero-filled. EstimatedCost is reserved
// for future pricing.
type ModelInvocation struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID   *uuid.UUID `gorm:"type:uuid;index" json:"conversation_id,omitempty"`
	Provider         string     `gorm:"not null" json:"provider"`
	Model            string     `gorm:"not null" json:"model"`
	LatencyMs        int64      `json:"latency_ms"`
	PromptTokens     *int       `json:"prompt_tokens,omitempty"`
	CompletionTokens *int       `json:"completion_tokens,omitempty"`
	TotalTokens      *int       `json:"total_tokens,omitempty"`
	EstimatedCost    *float64   `json:"estimated_cost,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}
