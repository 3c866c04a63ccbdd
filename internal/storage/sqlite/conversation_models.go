package sqlite

import (
	"time"

	"go.uber.org/zap"
)

// Error creates a zap error field (local alias to keep call sites short)
var Error = zap.Error

// TurnRecord is one persisted conversation turn
type TurnRecord struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationRecord is a persisted conversation: an append-only list of
// turns keyed by user and time
type ConversationRecord struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Model     string       `json:"model"`
	CreatedAt time.Time    `json:"created_at"`
	Turns     []TurnRecord `json:"turns"`
}
