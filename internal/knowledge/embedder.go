package knowledge

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Embedder 定义文本向量化接口
// EmbedBatch对应入库场景（每批约10个分块），Embed对应单查询场景
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Ready() bool
}

// NoopEmbedder 默认占位实现
type NoopEmbedder struct{}

func (n *NoopEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedding provider not configured")
}

func (n *NoopEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("embedding provider not configured")
}

func (n *NoopEmbedder) Dimensions() int {
	return 0
}

func (n *NoopEmbedder) Ready() bool {
	return false
}

// OpenAIEmbedderOptions OpenAI嵌入配置
type OpenAIEmbedderOptions struct {
	APIKey  string
	BaseURL string
	Model   string
	// Dimensions 请求降维后的向量维度（text-embedding-3系列支持）
	Dimensions int
}

// OpenAIEmbedder 使用OpenAI Embedding API
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIEmbedder 创建OpenAI嵌入向量生成器
func NewOpenAIEmbedder(opts OpenAIEmbedderOptions) Embedder {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return &NoopEmbedder{}
	}
	if opts.Model == "" {
		opts.Model = "text-embedding-3-small"
	}
	if opts.Dimensions <= 0 {
		opts.Dimensions = 1024
	}

	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(cfg),
		model:      opts.Model,
		dimensions: opts.Dimensions,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("texts are empty")
	}
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, errors.New("text is empty")
		}
	}
	if e.client == nil {
		return nil, errors.New("openai client not initialized")
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(e.model),
		Input:      texts,
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.New("embedding response size mismatch")
	}

	vectors := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		vector := make([]float32, len(item.Embedding))
		copy(vector, item.Embedding)
		vectors[i] = vector
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *OpenAIEmbedder) Ready() bool {
	return e.client != nil
}
