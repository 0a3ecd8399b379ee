package knowledge

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// RawItem 语料中的一条问答
type RawItem struct {
	Question string `json:"question" validate:"max=4000"`
	Answer   string `json:"answer" validate:"max=20000"`
	Source   string `json:"source,omitempty" validate:"max=512"`
}

// CorpusStats 语料读取统计
type CorpusStats struct {
	Files    int
	Missing  int
	Items    int
	Rejected int
}

// CorpusLoader 读取JSON数组或JSONL格式的问答语料
type CorpusLoader struct {
	files    []string
	validate *validator.Validate
	logger   *zap.Logger
}

// NewCorpusLoader 创建语料读取器
func NewCorpusLoader(files []string, logger *zap.Logger) *CorpusLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CorpusLoader{
		files:    files,
		validate: validator.New(),
		logger:   logger,
	}
}

// Files 返回配置的语料文件
func (l *CorpusLoader) Files() []string {
	return l.files
}

// Load 读取全部语料文件
// 单个文件缺失时跳过；全部缺失或格式错误时返回 ErrCorpusConfig
func (l *CorpusLoader) Load() ([]RawItem, CorpusStats, error) {
	var (
		items []RawItem
		stats CorpusStats
	)
	if len(l.files) == 0 {
		return nil, stats, fmt.Errorf("%w: no corpus files configured", ErrCorpusConfig)
	}

	for _, path := range l.files {
		fileItems, err := readCorpusFile(path)
		if errors.Is(err, os.ErrNotExist) {
			stats.Missing++
			l.logger.Warn("语料文件不存在，跳过", zap.String("file", path))
			continue
		}
		if err != nil {
			return nil, stats, fmt.Errorf("%w: %s: %v", ErrCorpusConfig, path, err)
		}
		stats.Files++

		for _, item := range fileItems {
			if err := l.validate.Struct(item); err != nil {
				stats.Rejected++
				continue
			}
			if strings.TrimSpace(item.Source) == "" {
				item.Source = filepath.Base(path)
			}
			items = append(items, item)
		}
		l.logger.Info("语料文件读取完成", zap.String("file", path), zap.Int("items", len(fileItems)))
	}

	if stats.Files == 0 {
		return nil, stats, fmt.Errorf("%w: none of %v could be read", ErrCorpusConfig, l.files)
	}
	stats.Items = len(items)
	return items, stats, nil
}

func readCorpusFile(path string) ([]RawItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if strings.EqualFold(filepath.Ext(path), ".jsonl") || trimmed[0] != '[' {
		return decodeJSONL(bytes.NewReader(trimmed))
	}

	var items []RawItem
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("解析JSON失败: %w", err)
	}
	return items, nil
}

func decodeJSONL(r io.Reader) ([]RawItem, error) {
	var items []RawItem
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var item RawItem
		if err := json.Unmarshal(text, &item); err != nil {
			return nil, fmt.Errorf("第%d行解析失败: %w", line, err)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
