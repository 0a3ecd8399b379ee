package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/aihub/medical-rag/internal/ollama"
)

// OllamaEmbedder 使用Ollama /api/embed 生成向量
type OllamaEmbedder struct {
	client     *ollama.Client
	model      string
	dimensions atomic.Int64
	limiter    limiter
}

// NewOllamaEmbedder 创建Ollama嵌入向量生成器
func NewOllamaEmbedder(client *ollama.Client, model string) Embedder {
	if client == nil || strings.TrimSpace(client.BaseURL()) == "" {
		return &NoopEmbedder{}
	}
	return &OllamaEmbedder{
		client:  client,
		model:   model,
		limiter: newLimiter(4),
	}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text is empty")
	}
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if err := e.limiter.acquire(ctx); err != nil {
		return nil, err
	}
	defer e.limiter.release()

	resp, err := e.client.Embed(ctx, ollama.EmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrEmbeddingCount, len(texts), len(resp.Embeddings))
	}
	e.dimensions.Store(int64(len(resp.Embeddings[0])))
	return resp.Embeddings, nil
}

// Dimensions 首次调用前返回0
func (e *OllamaEmbedder) Dimensions() int {
	return int(e.dimensions.Load())
}

func (e *OllamaEmbedder) Ready() bool {
	return e.client != nil
}
