package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is the durable record a chat turn belongs to. Ownership is
// either a registered user or an opaque guest id; exactly one of the two is
// set once the row is written.
type Conversation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    *uint     `gorm:"index" json:"user_id,omitempty"`
	GuestID   *string   `gorm:"index" json:"guest_id,omitempty"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}
