package llm

import "context"

// Roles used in chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a conversation message.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Client defines the interface for chat providers.
type Client interface {
	// Reply returns the next assistant message for the conversation. The
	// provider prepends its own system instruction; messages carry only the
	// session turns.
	Reply(ctx context.Context, messages []Message) (string, error)
}
