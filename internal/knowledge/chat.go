package knowledge

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ChatMessage 对话消息
type ChatMessage struct {
	Role    string // system | user | assistant
	Content string
}

// ChatModel 定义补全模型接口
type ChatModel interface {
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
	Ready() bool
}

// NoopChatModel 默认占位实现
type NoopChatModel struct{}

func (n *NoopChatModel) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	return "", errors.New("chat provider not configured")
}

func (n *NoopChatModel) Ready() bool {
	return false
}

// OpenAIChatOptions OpenAI补全配置
type OpenAIChatOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// OpenAIChatModel 使用OpenAI Chat Completion API（非流式）
type OpenAIChatModel struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAIChatModel 创建OpenAI补全模型
func NewOpenAIChatModel(opts OpenAIChatOptions) ChatModel {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return &NoopChatModel{}
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2000
	}

	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	return &OpenAIChatModel{
		client:      openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: float32(opts.Temperature),
	}
}

func (m *OpenAIChatModel) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	if m.client == nil {
		return "", errors.New("openai client not initialized")
	}
	if len(messages) == 0 {
		return "", errors.New("messages are empty")
	}

	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       m.model,
		Messages:    chatMessages,
		MaxTokens:   m.maxTokens,
		Temperature: m.temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion response empty")
	}

	return resp.Choices[0].Message.Content, nil
}

func (m *OpenAIChatModel) Ready() bool {
	return m.client != nil
}
