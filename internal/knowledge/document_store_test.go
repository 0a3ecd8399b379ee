package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shortEmbedder struct{ *keywordEmbedder }

func (s shortEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := s.keywordEmbedder.EmbedBatch(ctx, texts)
	if err != nil || len(out) == 0 {
		return out, err
	}
	return out[:len(out)-1], nil
}

func TestBuildDocumentStore(t *testing.T) {
	items := []RawItem{
		{Question: " 發燒怎麼辦 ", Answer: " 多休息 ", Source: "a.json"},
		{Question: "   ", Answer: "沒有問題的答案"},
		{Question: "頭痛", Answer: ""},
		{Question: "咳嗽", Answer: "喝溫水"},
		{Question: "", Answer: "x"},
		{Question: "發燒 頭痛", Answer: "休息"},
	}
	embedder := medicalEmbedder()

	store, err := BuildDocumentStore(context.Background(), items, embedder, 2)
	require.NoError(t, err)

	require.Equal(t, 4, store.Len())
	assert.Equal(t, 2, embedder.batches())
	assert.Equal(t, embedder.Dimensions(), store.Dimension())

	first, ok := store.Get(0)
	require.True(t, ok)
	assert.Equal(t, 0, first.ID)
	assert.Equal(t, "發燒怎麼辦", first.Question)
	assert.Equal(t, "多休息", first.Answer)
	assert.Equal(t, "a.json", first.Source)
	assert.Equal(t, "Question: 發燒怎麼辦\nAnswer: 多休息", first.Text())

	for i, r := range store.Records() {
		assert.Equal(t, i, r.ID)
	}
	_, ok = store.Get(4)
	assert.False(t, ok)
}

func TestBuildDocumentStore_Empty(t *testing.T) {
	embedder := medicalEmbedder()
	store, err := BuildDocumentStore(context.Background(), []RawItem{{Question: ""}}, embedder, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 0, embedder.batches())
	assert.Empty(t, store.Embeddings())
}

func TestBuildDocumentStore_EmbedderFailures(t *testing.T) {
	broken := medicalEmbedder()
	broken.err = errors.New("connection refused")
	_, err := BuildDocumentStore(context.Background(), medicalItems(), broken, 10)
	assert.ErrorContains(t, err, "connection refused")

	_, err = BuildDocumentStore(context.Background(), medicalItems(), shortEmbedder{medicalEmbedder()}, 10)
	assert.ErrorIs(t, err, ErrEmbeddingCount)
}

func TestBuildDocumentStore_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := BuildDocumentStore(ctx, medicalItems(), medicalEmbedder(), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewDocumentStore_DimensionCheck(t *testing.T) {
	_, err := NewDocumentStore([]Record{
		{Question: "a", Embedding: []float32{1, 2}},
		{Question: "b", Embedding: []float32{1}},
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
