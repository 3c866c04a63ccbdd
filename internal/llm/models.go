package llm

import (
	"fmt"
)

// Role identifies the author of a conversation turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn sent to a provider
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a uniform streaming request, independent of the provider that
// will serve it. Model is the concrete provider model identifier, already
// resolved from the client's selector.
type Request struct {
	Messages    []Message
	Model       string
	System      string
	MaxTokens   int
	Temperature float64
}

// ProviderError represents a failure reported by (or while reaching) an
// upstream model provider
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}
