package services

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/aihub/medical-rag/internal/knowledge"
	"github.com/stretchr/testify/mock"
)

// MockGenerator 模拟生成服务
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockGenerator) Model() string {
	return "mock"
}

// MockSearcher 模拟检索
type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) Search(ctx context.Context, queryText string, k int) ([]knowledge.SearchResult, error) {
	args := m.Called(ctx, queryText, k)
	results, _ := args.Get(0).([]knowledge.SearchResult)
	return results, args.Error(1)
}

// funcGenerator 由函数驱动的生成器，并记录收到的prompt
type funcGenerator struct {
	fn func(ctx context.Context, req GenerateRequest) (string, error)

	mu      sync.Mutex
	prompts []string
}

func (g *funcGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, req.Prompt)
	g.mu.Unlock()
	return g.fn(ctx, req)
}

func (g *funcGenerator) Model() string { return "func" }

func (g *funcGenerator) seen() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

// isRewrite 根据prompt判断是改写请求还是回答请求
func isRewrite(req GenerateRequest) bool {
	return strings.Contains(req.Prompt, "== 改寫結果 ==")
}

// staticSearcher 始终返回固定结果
type staticSearcher struct {
	results []knowledge.SearchResult
	err     error
}

func (s staticSearcher) Search(ctx context.Context, queryText string, k int) ([]knowledge.SearchResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	if k < len(s.results) {
		return s.results[:k], nil
	}
	return s.results, nil
}

func result(id int, answer string, score float64) knowledge.SearchResult {
	return knowledge.SearchResult{
		Record:   knowledge.Record{ID: id, Question: "q", Answer: answer, Source: "data/health.json"},
		Distance: 1 - score,
		Score:    score,
	}
}

// wordEmbedder 按词频生成向量，附带一个常量维度避免零向量
type wordEmbedder struct {
	vocab []string
}

func (w wordEmbedder) vector(text string) []float32 {
	vec := make([]float32, len(w.vocab)+1)
	vec[len(w.vocab)] = 0.01
	for i, word := range w.vocab {
		vec[i] = float32(strings.Count(text, word))
	}
	return vec
}

func (w wordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return w.vector(text), nil
}

func (w wordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = w.vector(t)
	}
	return out, nil
}

func (w wordEmbedder) Dimensions() int { return len(w.vocab) + 1 }

func (w wordEmbedder) Ready() bool { return true }

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
