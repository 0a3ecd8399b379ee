package knowledge

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// keywordEmbedder 按关键词出现次数生成向量，结果可预测
type keywordEmbedder struct {
	vocab []string

	mu         sync.Mutex
	batchCalls int
	embedCalls int
	err        error
}

func newKeywordEmbedder(vocab ...string) *keywordEmbedder {
	return &keywordEmbedder{vocab: vocab}
}

func (k *keywordEmbedder) vector(text string) []float32 {
	vec := make([]float32, len(k.vocab)+1)
	vec[len(k.vocab)] = 0.01
	for i, word := range k.vocab {
		vec[i] = float32(strings.Count(text, word))
	}
	return vec
}

func (k *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	k.mu.Lock()
	k.embedCalls++
	err := k.err
	k.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return k.vector(text), nil
}

func (k *keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	k.mu.Lock()
	k.batchCalls++
	err := k.err
	k.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = k.vector(t)
	}
	return out, nil
}

func (k *keywordEmbedder) Dimensions() int { return len(k.vocab) + 1 }

func (k *keywordEmbedder) Ready() bool { return true }

func (k *keywordEmbedder) batches() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.batchCalls
}

func writeCorpus(t *testing.T, dir, name string, items []RawItem) string {
	t.Helper()
	data, err := json.Marshal(items)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func medicalItems() []RawItem {
	return []RawItem{
		{Question: "發燒怎麼辦", Answer: "多喝水並注意休息，高燒不退請就醫"},
		{Question: "頭痛的原因", Answer: "睡眠不足、壓力或感冒都可能引起頭痛"},
		{Question: "咳嗽吃什麼藥", Answer: "乾咳與濕咳用藥不同，請諮詢藥師"},
	}
}

func medicalEmbedder() *keywordEmbedder {
	return newKeywordEmbedder("發燒", "頭痛", "咳嗽", "休息")
}
