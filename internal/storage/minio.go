package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aihub/medical-rag/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// SnapshotMirror 将索引快照同步到MinIO/S3，供多实例共享
type SnapshotMirror struct {
	client *minio.Client
	bucket string
	object string
	logger *zap.Logger
}

// normalizeEndpoint minio.New 不接受协议前缀
func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimSuffix(endpoint, "/")
}

// NewSnapshotMirror 创建MinIO客户端，不立即连接
func NewSnapshotMirror(cfg config.ObjectStorageConfig, logger *zap.Logger) (*SnapshotMirror, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint not configured")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "rag-snapshots"
	}
	if cfg.Object == "" {
		cfg.Object = "medical_rag_store.snap"
	}

	client, err := minio.New(normalizeEndpoint(cfg.Endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &SnapshotMirror{
		client: client,
		bucket: cfg.Bucket,
		object: cfg.Object,
		logger: logger,
	}, nil
}

// EnsureBucket 确保bucket存在，带有限次数重试
func (m *SnapshotMirror) EnsureBucket(ctx context.Context, attempts int) error {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		exists, err := m.client.BucketExists(ctx, m.bucket)
		if err == nil && exists {
			return nil
		}
		if err == nil {
			err = m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
			code := minio.ToErrorResponse(err).Code
			if err == nil || code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
				m.logger.Info("MinIO bucket 已就绪", zap.String("bucket", m.bucket))
				return nil
			}
		}
		lastErr = err

		if i < attempts-1 {
			wait := time.Duration(i+1) * 2 * time.Second
			m.logger.Warn("MinIO 连接失败，稍后重试",
				zap.Int("attempt", i+1), zap.Duration("wait", wait), zap.Error(err))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("failed to ensure bucket %s: %w", m.bucket, lastErr)
}

// Download 下载远端快照，对象不存在时返回 false
func (m *SnapshotMirror) Download(ctx context.Context, localPath string) (bool, error) {
	if _, err := m.client.StatObject(ctx, m.bucket, m.object, minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat snapshot object: %w", err)
	}
	if err := m.client.FGetObject(ctx, m.bucket, m.object, localPath, minio.GetObjectOptions{}); err != nil {
		return false, fmt.Errorf("download snapshot object: %w", err)
	}
	m.logger.Info("已从对象存储下载快照", zap.String("bucket", m.bucket), zap.String("object", m.object))
	return true, nil
}

// Upload 上传本地快照
func (m *SnapshotMirror) Upload(ctx context.Context, localPath string) error {
	info, err := m.client.FPutObject(ctx, m.bucket, m.object, localPath, minio.PutObjectOptions{
		ContentType: "application/zstd",
	})
	if err != nil {
		return fmt.Errorf("upload snapshot object: %w", err)
	}
	m.logger.Info("快照已上传到对象存储",
		zap.String("bucket", m.bucket),
		zap.String("object", m.object),
		zap.Int64("size", info.Size))
	return nil
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}
