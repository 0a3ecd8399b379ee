package database

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/aihub/medical-rag/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// OpenRedis 连接Redis并测试连通性
func OpenRedis(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if log != nil {
		log.Info("Redis连接成功", zap.String("addr", rdb.Options().Addr))
	}
	return rdb, nil
}
