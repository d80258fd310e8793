package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
)

type AnthropicConfig struct {
	APIKey  string
	BaseURL string
}

type AnthropicClient struct {
	client *anthropic.Client
}

func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	var opts []anthropic.ClientOption
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		opts = append(opts, anthropic.WithBaseURL(base))
	}
	return &AnthropicClient{client: anthropic.NewClient(strings.TrimSpace(cfg.APIKey), opts...)}, nil
}

func (c *AnthropicClient) Complete(ctx context.Context, req Request) (string, error) {
	system, turns := splitSystem(req.Messages)
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	msgReq := anthropic.MessagesRequest{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		System:    system,
		Messages:  make([]anthropic.Message, 0, len(turns)),
	}
	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		msgReq.Temperature = &temp
	}
	for _, turn := range turns {
		role := anthropic.RoleUser
		if turn.Role == RoleAssistant {
			role = anthropic.RoleAssistant
		}
		msgReq.Messages = append(msgReq.Messages, anthropic.Message{
			Role:    role,
			Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(turn.Content)},
		})
	}

	resp, err := c.client.CreateMessages(ctx, msgReq)
	if err != nil {
		return "", fmt.Errorf("anthropic create message: %w", err)
	}
	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			out.WriteString(*block.Text)
		}
	}
	return out.String(), nil
}
