package services

import (
	"fmt"

	"github.com/longbridgeapp/opencc"
)

// TextNormalizer 文字变体转换，仅作用于生成结果
type TextNormalizer interface {
	Normalize(text string) (string, error)
}

// OpenCCNormalizer 简体转台湾繁体(含惯用词)
type OpenCCNormalizer struct {
	cc *opencc.OpenCC
}

// NewOpenCCNormalizer conversion 例如 s2twp
func NewOpenCCNormalizer(conversion string) (*OpenCCNormalizer, error) {
	if conversion == "" {
		conversion = "s2twp"
	}
	cc, err := opencc.New(conversion)
	if err != nil {
		return nil, fmt.Errorf("初始化OpenCC失败: %w", err)
	}
	return &OpenCCNormalizer{cc: cc}, nil
}

// Normalize 实现 TextNormalizer
func (n *OpenCCNormalizer) Normalize(text string) (string, error) {
	return n.cc.Convert(text)
}

// NoopNormalizer 原样返回
type NoopNormalizer struct{}

// Normalize 实现 TextNormalizer
func (NoopNormalizer) Normalize(text string) (string, error) {
	return text, nil
}
