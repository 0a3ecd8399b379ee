package knowledge

import (
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

const snapshotVersion = 1

// Metadata 快照中每条记录的结构化元数据
type Metadata struct {
	Question string
	Answer   string
	Source   string
}

// Snapshot 持久化的语料与向量，三个数组按位置对齐
type Snapshot struct {
	Version    int
	Model      string
	Metric     Metric
	Dimension  int
	CreatedAt  time.Time
	Texts      []string
	Metadatas  []Metadata
	Embeddings [][]float32
}

// NewSnapshot 从DocumentStore生成快照
func NewSnapshot(store *DocumentStore, model string, metric Metric) *Snapshot {
	snap := &Snapshot{
		Version:    snapshotVersion,
		Model:      model,
		Metric:     metric,
		Dimension:  store.Dimension(),
		CreatedAt:  time.Now().UTC(),
		Texts:      store.Texts(),
		Metadatas:  make([]Metadata, store.Len()),
		Embeddings: store.Embeddings(),
	}
	for i, r := range store.Records() {
		snap.Metadatas[i] = Metadata{Question: r.Question, Answer: r.Answer, Source: r.Source}
	}
	return snap
}

// Validate 检查版本、数组长度与维度
func (s *Snapshot) Validate() error {
	if s.Version != snapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, s.Version)
	}
	n := len(s.Texts)
	if len(s.Metadatas) != n || len(s.Embeddings) != n {
		return fmt.Errorf("%w: texts=%d metadatas=%d embeddings=%d",
			ErrCorruptSnapshot, n, len(s.Metadatas), len(s.Embeddings))
	}
	for i, vec := range s.Embeddings {
		if len(vec) != s.Dimension {
			return fmt.Errorf("%w: embedding %d has %d dims, want %d", ErrCorruptSnapshot, i, len(vec), s.Dimension)
		}
	}
	return nil
}

// Store 从快照恢复DocumentStore，不重新向量化
func (s *Snapshot) Store() (*DocumentStore, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	records := make([]Record, len(s.Texts))
	for i, meta := range s.Metadatas {
		records[i] = Record{Question: meta.Question, Answer: meta.Answer, Source: meta.Source, Embedding: s.Embeddings[i]}
	}
	store, err := NewDocumentStore(records)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return store, nil
}

// SaveSnapshot 以 gob+zstd 写入，先写临时文件再重命名
func SaveSnapshot(path string, snap *Snapshot) (err error) {
	if err := snap.Validate(); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("创建快照目录失败: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("创建临时快照失败: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	buffered := bufio.NewWriter(tmp)
	enc, err := zstd.NewWriter(buffered)
	if err != nil {
		return err
	}
	if err = gob.NewEncoder(enc).Encode(snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("编码快照失败: %w", err)
	}
	if err = enc.Close(); err != nil {
		return err
	}
	if err = buffered.Flush(); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadSnapshot 读取并校验快照
func LoadSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("打开快照失败: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	defer dec.Close()

	var snap Snapshot
	if err := gob.NewDecoder(dec).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return &snap, nil
}
