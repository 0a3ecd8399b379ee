package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/aihub/medical-rag/internal/ollama"
	"github.com/sashabaranov/go-openai"
)

// ErrEmptyGeneration 生成服务返回空文本
var ErrEmptyGeneration = errors.New("generation returned empty text")

// GenerateOptions 采样参数；Temperature始终下发，其余零值表示使用服务端默认
type GenerateOptions struct {
	Temperature       float64
	TopP              float64
	RepetitionPenalty float64
	NumCtx            int
}

// GenerateRequest 一次非流式生成请求
type GenerateRequest struct {
	Prompt  string
	Options GenerateOptions
}

// Generator 外部文本生成能力
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	Model() string
}

// OllamaGenerator 通过Ollama /api/generate 生成
type OllamaGenerator struct {
	client *ollama.Client
	model  string
}

// NewOllamaGenerator 创建Ollama生成器
func NewOllamaGenerator(client *ollama.Client, model string) *OllamaGenerator {
	return &OllamaGenerator{client: client, model: model}
}

// Model 模型名称
func (g *OllamaGenerator) Model() string {
	return g.model
}

// Generate 实现 Generator
func (g *OllamaGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	resp, err := g.client.Generate(ctx, ollama.GenerateRequest{
		Model:   g.model,
		Prompt:  req.Prompt,
		Options: ollamaOptions(req.Options),
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Response)
	if text == "" {
		return "", ErrEmptyGeneration
	}
	return text, nil
}

func ollamaOptions(o GenerateOptions) *ollama.Options {
	opts := &ollama.Options{Temperature: ollama.Float64(o.Temperature)}
	if o.TopP > 0 {
		opts.TopP = ollama.Float64(o.TopP)
	}
	if o.RepetitionPenalty > 0 {
		opts.RepetitionPenalty = ollama.Float64(o.RepetitionPenalty)
	}
	if o.NumCtx > 0 {
		opts.NumCtx = ollama.Int(o.NumCtx)
	}
	return opts
}

// OpenAIGenerator 通过OpenAI兼容的Chat Completions接口生成
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator baseURL为空时使用官方地址
func NewOpenAIGenerator(apiKey, baseURL, model string) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIGenerator{client: openai.NewClientWithConfig(cfg), model: model}
}

// Model 模型名称
func (g *OpenAIGenerator) Model() string {
	return g.model
}

// Generate 实现 Generator；repetition_penalty 没有对应参数，不下发
func (g *OpenAIGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: openAITemperature(req.Options.Temperature),
	}
	if req.Options.TopP > 0 {
		chatReq.TopP = float32(req.Options.TopP)
	}

	resp, err := g.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyGeneration
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyGeneration
	}
	return text, nil
}

// openAITemperature go-openai 的 temperature 字段带 omitempty，0 会被省略而变成服务端默认值(1.0)，
// 用最小正数代替
func openAITemperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}
