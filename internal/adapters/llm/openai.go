package llm

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/PabloGalante/voicechat/internal/domain"
)

// OpenAIConfig configures OpenAI or any API-compatible endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

func newOpenAIClient(cfg OpenAIConfig) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}

// OpenAIClient implements domain.Completer with chat completions.
type OpenAIClient struct {
	client *openai.Client
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	return &OpenAIClient{client: newOpenAIClient(cfg)}, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, model string, messages []domain.Message, temperature float64) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(messages),
		Temperature: float32(temperature),
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []domain.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case domain.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case domain.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}
