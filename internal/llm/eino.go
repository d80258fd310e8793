package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EinoClient drives any eino chat model. The requested model name is passed
// per call so one client can serve every candidate.
type EinoClient struct {
	chat model.BaseChatModel
}

func NewEinoClient(chat model.BaseChatModel) (*EinoClient, error) {
	if chat == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	return &EinoClient{chat: chat}, nil
}

// NewEinoOpenAIClient builds an eino OpenAI chat model. BaseURL is the API
// root without the /v1 suffix, matching OpenAIConfig.
func NewEinoOpenAIClient(ctx context.Context, cfg OpenAIConfig, defaultModel string) (*EinoClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL != "" && !strings.HasSuffix(baseURL, "/v1") {
		baseURL += "/v1"
	}
	chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: baseURL,
		Model:   defaultModel,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create eino chat model: %w", err)
	}
	return NewEinoClient(chat)
}

func (c *EinoClient) Complete(ctx context.Context, req Request) (string, error) {
	input := make([]*schema.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		input = append(input, &schema.Message{Role: einoRole(msg.Role), Content: msg.Content})
	}
	var opts []model.Option
	if req.Model != "" {
		opts = append(opts, model.WithModel(req.Model))
	}
	if req.Temperature != nil {
		opts = append(opts, model.WithTemperature(float32(*req.Temperature)))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	resp, err := c.chat.Generate(ctx, input, opts...)
	if err != nil {
		return "", fmt.Errorf("eino generate: %w", err)
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	return resp.Content, nil
}

func einoRole(role Role) schema.RoleType {
	switch role {
	case RoleSystem:
		return schema.System
	case RoleAssistant:
		return schema.Assistant
	default:
		return schema.User
	}
}
