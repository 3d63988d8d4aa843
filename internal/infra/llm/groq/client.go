package groq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/yanqian/formfiller/internal/domain/llm"
	"github.com/yanqian/formfiller/pkg/metrics"
)

const (
	// ProviderName is the registry key for Groq Cloud.
	ProviderName   = "groq"
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama-3.3-70b-versatile"
)

// Config configures the Groq client.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// Client talks to Groq's OpenAI-compatible endpoint.
type Client struct {
	client openai.Client
	model  string
}

// NewClient constructs a Groq client. The API key is required.
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("GROQ_API_KEY is not set")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL + "/"),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(max(cfg.MaxRetries, 0)),
	}
	return &Client{client: openai.NewClient(opts...), model: model}, nil
}

// Name implements llm.Provider.
func (c *Client) Name() string {
	return ProviderName
}

// DefaultModel implements llm.Provider.
func (c *Client) DefaultModel() string {
	return c.model
}

// Chat implements llm.Provider.
func (c *Client) Chat(ctx context.Context, req llm.Request) (llm.Completion, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    toMessages(req.Messages),
		Temperature: openai.Float(req.Temperature),
	}
	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.Completion{}, fmt.Errorf("groq chat: %w", err)
	}
	if len(completion.Choices) == 0 {
		return llm.Completion{}, errors.New("groq chat: empty choices")
	}
	return llm.Completion{
		Content: completion.Choices[0].Message.Content,
		Usage: metrics.TokenUsage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}, nil
}

// ListModels implements llm.Provider.
func (c *Client) ListModels(ctx context.Context) ([]llm.Model, error) {
	page, err := c.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("groq list models: %w", err)
	}
	out := make([]llm.Model, 0, len(page.Data))
	for _, m := range page.Data {
		out = append(out, llm.Model{ID: m.ID, DisplayName: m.OwnedBy})
	}
	return out, nil
}

func toMessages(msgs []llm.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case llm.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case llm.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

var _ llm.Provider = (*Client)(nil)
