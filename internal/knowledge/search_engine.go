package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// SnapshotMirror 快照的远端副本(对象存储)
type SnapshotMirror interface {
	// Download 将远端快照写到localPath，远端不存在时返回 false
	Download(ctx context.Context, localPath string) (bool, error)
	Upload(ctx context.Context, localPath string) error
}

// SearchResult 检索结果
type SearchResult struct {
	Record   Record  `json:"record"`
	Distance float64 `json:"distance"`
	Score    float64 `json:"score"`
}

// EngineOptions 检索引擎配置
type EngineOptions struct {
	CorpusFiles  []string
	SnapshotPath string
	Metric       Metric
	BatchSize    int
	// Model 向量模型名称，写入快照，模型变化时强制重建
	Model  string
	Mirror SnapshotMirror
}

// EngineStats 引擎状态
type EngineStats struct {
	Ready       bool      `json:"ready"`
	Records     int       `json:"records"`
	Dimension   int       `json:"dimension"`
	Metric      Metric    `json:"metric"`
	Origin      string    `json:"origin"`
	InstalledAt time.Time `json:"installed_at"`
}

// engineState 一次构建或加载的不可变结果
type engineState struct {
	store       *DocumentStore
	index       *FlatIndex
	origin      string
	installedAt time.Time
}

// SearchEngine 向量化查询、近邻检索、按位置映射回记录
type SearchEngine struct {
	embedder Embedder
	corpus   *CorpusLoader
	opts     EngineOptions
	logger   *zap.Logger

	state     atomic.Pointer[engineState]
	buildMu   sync.Mutex
	readyOnce sync.Once
	ready     chan struct{}
}

// NewSearchEngine 创建检索引擎，调用Initialize后才可检索
func NewSearchEngine(embedder Embedder, opts EngineOptions, logger *zap.Logger) *SearchEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Metric == "" {
		opts.Metric = MetricCosine
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &SearchEngine{
		embedder: embedder,
		corpus:   NewCorpusLoader(opts.CorpusFiles, logger),
		opts:     opts,
		logger:   logger,
		ready:    make(chan struct{}),
	}
}

// Initialize 优先加载有效快照，否则读取语料全量构建并保存快照
func (e *SearchEngine) Initialize(ctx context.Context) error {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	start := time.Now()
	snap, err := e.loadSnapshot(ctx)
	if err == nil {
		if err = e.installSnapshot(snap); err == nil {
			e.logger.Info("从快照加载索引",
				zap.String("path", e.opts.SnapshotPath),
				zap.Int("records", e.Stats().Records),
				zap.Duration("elapsed", time.Since(start)))
			buildDuration.WithLabelValues("load").Observe(time.Since(start).Seconds())
			return nil
		}
	}

	switch {
	case errors.Is(err, ErrSnapshotNotFound):
		e.logger.Info("未找到快照，开始全量构建", zap.String("path", e.opts.SnapshotPath))
	case errors.Is(err, ErrCorruptSnapshot):
		snapshotFallbacks.Inc()
		e.logger.Warn("快照损坏，回退为全量构建", zap.String("path", e.opts.SnapshotPath), zap.Error(err))
	default:
		e.logger.Warn("快照不可用，开始全量构建", zap.Error(err))
	}

	return e.rebuildLocked(ctx)
}

// Rebuild 重新读取语料、全量向量化并原子替换索引
func (e *SearchEngine) Rebuild(ctx context.Context) error {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()
	return e.rebuildLocked(ctx)
}

// TryRebuild 与Rebuild相同，已有构建进行中时立即返回 ErrRebuildInProgress
func (e *SearchEngine) TryRebuild(ctx context.Context) error {
	if !e.buildMu.TryLock() {
		return ErrRebuildInProgress
	}
	defer e.buildMu.Unlock()
	return e.rebuildLocked(ctx)
}

// CheckCorpus 只读取并校验语料文件，不做向量化
func (e *SearchEngine) CheckCorpus() error {
	_, _, err := e.corpus.Load()
	return err
}

func (e *SearchEngine) rebuildLocked(ctx context.Context) error {
	start := time.Now()

	items, stats, err := e.corpus.Load()
	if err != nil {
		return err
	}
	store, err := BuildDocumentStore(ctx, items, e.embedder, e.opts.BatchSize)
	if err != nil {
		return fmt.Errorf("构建索引失败: %w", err)
	}
	if err := e.install(store, "build"); err != nil {
		return err
	}
	buildDuration.WithLabelValues("build").Observe(time.Since(start).Seconds())

	e.logger.Info("索引构建完成",
		zap.Int("files", stats.Files),
		zap.Int("items", stats.Items),
		zap.Int("rejected", stats.Rejected),
		zap.Int("records", store.Len()),
		zap.Duration("elapsed", time.Since(start)))
	if store.Len() == 0 {
		e.logger.Warn("语料中没有有效问答，检索将始终返回空结果")
	}

	e.persist(ctx, store)
	return nil
}

// persist 保存快照并上传，失败只记录日志
func (e *SearchEngine) persist(ctx context.Context, store *DocumentStore) {
	if e.opts.SnapshotPath == "" {
		return
	}
	if err := SaveSnapshot(e.opts.SnapshotPath, NewSnapshot(store, e.opts.Model, e.opts.Metric)); err != nil {
		e.logger.Warn("保存快照失败", zap.String("path", e.opts.SnapshotPath), zap.Error(err))
		return
	}
	if e.opts.Mirror != nil {
		if err := e.opts.Mirror.Upload(ctx, e.opts.SnapshotPath); err != nil {
			e.logger.Warn("上传快照失败", zap.Error(err))
		}
	}
}

func (e *SearchEngine) loadSnapshot(ctx context.Context) (*Snapshot, error) {
	if e.opts.SnapshotPath == "" {
		return nil, ErrSnapshotNotFound
	}
	snap, err := LoadSnapshot(e.opts.SnapshotPath)
	if errors.Is(err, ErrSnapshotNotFound) && e.opts.Mirror != nil {
		found, dlErr := e.opts.Mirror.Download(ctx, e.opts.SnapshotPath)
		if dlErr != nil {
			e.logger.Warn("下载远端快照失败", zap.Error(dlErr))
			return nil, ErrSnapshotNotFound
		}
		if !found {
			return nil, ErrSnapshotNotFound
		}
		snap, err = LoadSnapshot(e.opts.SnapshotPath)
	}
	if err != nil {
		return nil, err
	}
	if snap.Model != e.opts.Model || snap.Metric != e.opts.Metric {
		return nil, fmt.Errorf("snapshot is stale: model=%q metric=%q, want model=%q metric=%q",
			snap.Model, snap.Metric, e.opts.Model, e.opts.Metric)
	}
	return snap, nil
}

func (e *SearchEngine) installSnapshot(snap *Snapshot) error {
	store, err := snap.Store()
	if err != nil {
		return err
	}
	return e.install(store, "snapshot")
}

// install 构建索引后原子替换状态，进行中的检索继续使用旧状态
func (e *SearchEngine) install(store *DocumentStore, origin string) error {
	index, err := NewFlatIndex(store.Embeddings(), e.opts.Metric)
	if err != nil {
		return err
	}
	e.state.Store(&engineState{
		store:       store,
		index:       index,
		origin:      origin,
		installedAt: time.Now(),
	})
	indexRecords.Set(float64(store.Len()))
	e.readyOnce.Do(func() { close(e.ready) })
	return nil
}

// Ready 是否已完成首次构建或加载
func (e *SearchEngine) Ready() bool {
	return e.state.Load() != nil
}

// WaitReady 阻塞直到引擎可用或ctx结束
func (e *SearchEngine) WaitReady(ctx context.Context) error {
	select {
	case <-e.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Search 检索与queryText最相近的k条记录
// 空查询或k<=0返回空结果；索引为空时返回空结果
func (e *SearchEngine) Search(ctx context.Context, queryText string, k int) ([]SearchResult, error) {
	st := e.state.Load()
	if st == nil {
		return nil, ErrEngineNotReady
	}
	if strings.TrimSpace(queryText) == "" || k <= 0 || st.store.Len() == 0 {
		return []SearchResult{}, nil
	}

	vec, err := e.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	neighbors, err := st.index.Query(vec, k)
	if errors.Is(err, ErrEmptyIndex) {
		return []SearchResult{}, nil
	}
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(neighbors))
	for _, n := range neighbors {
		record, ok := st.store.Get(n.Position)
		if !ok {
			continue
		}
		results = append(results, SearchResult{
			Record:   record,
			Distance: n.Distance,
			Score:    st.index.Metric().Score(n.Distance),
		})
	}
	return results, nil
}

// Metric 当前度量
func (e *SearchEngine) Metric() Metric {
	return e.opts.Metric
}

// CorpusFiles 语料文件列表
func (e *SearchEngine) CorpusFiles() []string {
	return e.corpus.Files()
}

// Stats 当前索引状态
func (e *SearchEngine) Stats() EngineStats {
	st := e.state.Load()
	if st == nil {
		return EngineStats{Metric: e.opts.Metric}
	}
	return EngineStats{
		Ready:       true,
		Records:     st.store.Len(),
		Dimension:   st.store.Dimension(),
		Metric:      st.index.Metric(),
		Origin:      st.origin,
		InstalledAt: st.installedAt,
	}
}
