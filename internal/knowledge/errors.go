package knowledge

import "errors"

var (
	// ErrEngineNotReady 索引尚未构建或加载完成
	ErrEngineNotReady = errors.New("search engine not ready")
	// ErrEmptyIndex 索引中没有任何记录
	ErrEmptyIndex = errors.New("vector index is empty")
	// ErrCorruptSnapshot 快照无法解码或数组长度不一致
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
	// ErrSnapshotNotFound 快照文件不存在
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrCorpusConfig 语料文件缺失或格式错误
	ErrCorpusConfig = errors.New("corpus configuration error")
	// ErrDimensionMismatch 向量维度不一致
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrEmbeddingCount 向量化返回的数量与输入不一致
	ErrEmbeddingCount = errors.New("embedding count mismatch")
	// ErrRebuildInProgress 已有构建在进行
	ErrRebuildInProgress = errors.New("index rebuild already in progress")
	// ErrEmbedderNotConfigured 未配置向量化服务
	ErrEmbedderNotConfigured = errors.New("embedding provider not configured")
)
