package llm

import (
	"context"

	"github.com/yanqian/formfiller/pkg/metrics"
)

// Role tags the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a single chat completion call. An empty Model selects the
// provider default.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
}

// Completion is the text the model produced plus reported token usage.
type Completion struct {
	Content string
	Usage   metrics.TokenUsage
}

// Model describes one model a provider can serve.
type Model struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
}

// Provider is a chat-capable LLM backend.
type Provider interface {
	Name() string
	DefaultModel() string
	Chat(ctx context.Context, req Request) (Completion, error)
	ListModels(ctx context.Context) ([]Model, error)
}
