package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrEmptyResponse 模型返回空内容
var ErrEmptyResponse = errors.New("ollama: empty response")

// Client Ollama HTTP客户端，支持生成与向量化
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// Options 生成参数
type Options struct {
	Temperature       *float64 `json:"temperature,omitempty"`
	TopP              *float64 `json:"top_p,omitempty"`
	RepetitionPenalty *float64 `json:"repetition_penalty,omitempty"`
	NumCtx            *int     `json:"num_ctx,omitempty"`
}

// GenerateRequest /api/generate 请求
type GenerateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  bool     `json:"stream"`
	Options *Options `json:"options,omitempty"`
}

// GenerateResponse /api/generate 非流式响应
type GenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	TotalDuration   int64  `json:"total_duration"`
}

// EmbedRequest /api/embed 请求
type EmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbedResponse /api/embed 响应
type EmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

type apiError struct {
	Error string `json:"error"`
}

// NewClient 创建Ollama客户端，timeout为单次HTTP请求的上限
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// BaseURL 返回服务地址
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Generate 调用 /api/generate，stream固定为false
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	req.Stream = false

	var resp GenerateResponse
	if err := c.post(ctx, "/api/generate", req, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Response) == "" {
		return nil, ErrEmptyResponse
	}

	c.logger.Debug("Ollama generate success",
		zap.String("model", req.Model),
		zap.Int("prompt_tokens", resp.PromptEvalCount),
		zap.Int("completion_tokens", resp.EvalCount))

	return &resp, nil
}

// Embed 调用 /api/embed，一次请求批量向量化
func (c *Client) Embed(ctx context.Context, req EmbedRequest) (*EmbedResponse, error) {
	var resp EmbedResponse
	if err := c.post(ctx, "/api/embed", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(req.Input) {
		return nil, fmt.Errorf("ollama: 向量数量不匹配: 期望 %d, 实际 %d", len(req.Input), len(resp.Embeddings))
	}

	c.logger.Debug("Ollama embed success",
		zap.String("model", req.Model),
		zap.Int("input_count", len(req.Input)))

	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("ollama client not initialized")
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("API调用失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp apiError
		if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error != "" {
			return fmt.Errorf("Ollama API错误: %s (HTTP %d)", errorResp.Error, resp.StatusCode)
		}
		return fmt.Errorf("Ollama API错误: HTTP %d - %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	return nil
}

// Float64 构造可选参数指针
func Float64(v float64) *float64 { return &v }

// Int 构造可选参数指针
func Int(v int) *int { return &v }
