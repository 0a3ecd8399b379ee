package services

import (
	"fmt"
	"strings"

	"github.com/aihub/medical-rag/internal/knowledge"
)

// DefaultScoreThreshold 默认相关度阈值
const DefaultScoreThreshold = 0.35

// Source 回答引用的来源
type Source struct {
	ID       int     `json:"id"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
	RecordID int     `json:"record_id"`
	Origin   string  `json:"origin,omitempty"`
}

// referenceBlock 单条参考资料块
func referenceBlock(n int, answer string) string {
	return fmt.Sprintf("[Reference %d]\n%s", n, answer)
}

// AssembleContext 按排序保留分数不低于threshold的结果并编号
// maxItems<=0 表示不限条数；没有结果通过时返回空串与空切片
func AssembleContext(results []knowledge.SearchResult, threshold float64, maxItems int) (string, []Source) {
	return assemble(results, threshold, maxItems, 0)
}

func assemble(results []knowledge.SearchResult, threshold float64, maxItems, tokenBudget int) (string, []Source) {
	sources := make([]Source, 0, len(results))
	blocks := make([]string, 0, len(results))
	used := 0

	for _, r := range results {
		if r.Score < threshold {
			continue
		}
		if maxItems > 0 && len(sources) >= maxItems {
			break
		}

		n := len(sources) + 1
		block := referenceBlock(n, r.Record.Answer)
		if tokenBudget > 0 {
			cost := EstimateTokens(block)
			if used+cost > tokenBudget && len(sources) > 0 {
				break
			}
			used += cost
		}

		blocks = append(blocks, block)
		sources = append(sources, Source{
			ID:       n,
			Content:  r.Record.Answer,
			Score:    r.Score,
			RecordID: r.Record.ID,
			Origin:   r.Record.Source,
		})
	}
	return strings.Join(blocks, "\n\n"), sources
}

// ContextAssembler 带配置的上下文拼接
type ContextAssembler struct {
	threshold   float64
	maxItems    int
	tokenBudget int
}

// NewContextAssembler tokenBudget<=0 表示不限制
func NewContextAssembler(threshold float64, maxItems, tokenBudget int) *ContextAssembler {
	return &ContextAssembler{threshold: threshold, maxItems: maxItems, tokenBudget: tokenBudget}
}

// Assemble 拼接上下文；首条结果即使超出预算也会保留
func (a *ContextAssembler) Assemble(results []knowledge.SearchResult) (string, []Source) {
	return assemble(results, a.threshold, a.maxItems, a.tokenBudget)
}

// Threshold 当前阈值
func (a *ContextAssembler) Threshold() float64 {
	return a.threshold
}
