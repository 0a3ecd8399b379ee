package knowledge

import (
	"context"
	"fmt"
	"strings"
)

// DefaultBatchSize 构建时每批向量化的文本数
const DefaultBatchSize = 512

// Record 已索引的问答记录，ID等于其在DocumentStore中的位置
type Record struct {
	ID        int       `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Source    string    `json:"source"`
	Embedding []float32 `json:"-"`
}

// Text 返回用于向量化的组合文本
func (r Record) Text() string {
	return CombinedText(r.Question, r.Answer)
}

// CombinedText 问答组合文本
func CombinedText(question, answer string) string {
	return "Question: " + question + "\nAnswer: " + answer
}

// DocumentStore 有序的记录集合，构建后只读
type DocumentStore struct {
	records   []Record
	dimension int
}

// NewDocumentStore 用已有记录创建存储，校验ID与维度
func NewDocumentStore(records []Record) (*DocumentStore, error) {
	store := &DocumentStore{records: make([]Record, 0, len(records))}
	for _, r := range records {
		if err := store.append(r.Question, r.Answer, r.Source, r.Embedding); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (s *DocumentStore) append(question, answer, source string, embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("%w: record %d has no embedding", ErrDimensionMismatch, len(s.records))
	}
	if s.dimension == 0 {
		s.dimension = len(embedding)
	} else if len(embedding) != s.dimension {
		return fmt.Errorf("%w: record %d has %d, want %d", ErrDimensionMismatch, len(s.records), len(embedding), s.dimension)
	}
	s.records = append(s.records, Record{
		ID:        len(s.records),
		Question:  question,
		Answer:    answer,
		Source:    source,
		Embedding: embedding,
	})
	return nil
}

// BuildDocumentStore 过滤空问题、批量向量化并构建存储
func BuildDocumentStore(ctx context.Context, items []RawItem, embedder Embedder, batchSize int) (*DocumentStore, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	kept := make([]RawItem, 0, len(items))
	texts := make([]string, 0, len(items))
	for _, item := range items {
		q := strings.TrimSpace(item.Question)
		if q == "" {
			continue
		}
		a := strings.TrimSpace(item.Answer)
		kept = append(kept, RawItem{Question: q, Answer: a, Source: item.Source})
		texts = append(texts, CombinedText(q, a))
	}

	store := &DocumentStore{records: make([]Record, 0, len(kept))}
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vectors, err := embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d-%d: %w", start, end, err)
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("%w: batch %d-%d returned %d", ErrEmbeddingCount, start, end, len(vectors))
		}
		for i, vec := range vectors {
			item := kept[start+i]
			if err := store.append(item.Question, item.Answer, item.Source, vec); err != nil {
				return nil, err
			}
		}
	}
	return store, nil
}

// Len 记录数
func (s *DocumentStore) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// Dimension 向量维度，空存储为0
func (s *DocumentStore) Dimension() int {
	if s == nil {
		return 0
	}
	return s.dimension
}

// Get 按位置获取记录
func (s *DocumentStore) Get(pos int) (Record, bool) {
	if s == nil || pos < 0 || pos >= len(s.records) {
		return Record{}, false
	}
	return s.records[pos], true
}

// Records 返回记录切片，调用方不得修改
func (s *DocumentStore) Records() []Record {
	if s == nil {
		return nil
	}
	return s.records
}

// Embeddings 按位置返回全部向量
func (s *DocumentStore) Embeddings() [][]float32 {
	out := make([][]float32, s.Len())
	for i, r := range s.Records() {
		out[i] = r.Embedding
	}
	return out
}

// Texts 按位置返回组合文本
func (s *DocumentStore) Texts() []string {
	out := make([]string, s.Len())
	for i, r := range s.Records() {
		out[i] = r.Text()
	}
	return out
}
