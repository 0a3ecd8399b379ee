package consul

import (
	"strconv"

	"github.com/aihub/medical-rag/internal/config"
	"go.uber.org/zap"
)

// ApplyKVOverrides 用Consul KV中的运行参数覆盖本地配置，缺失的键保持不变
func ApplyKVOverrides(client *Client, prefix string, cfg *config.Config, logger *zap.Logger) int {
	if !client.IsEnabled() || cfg == nil {
		return 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	applied := 0
	get := func(key string) (string, bool) {
		value, ok, err := client.GetKV(prefix + "/" + key)
		if err != nil {
			logger.Debug("Failed to get Consul key, keeping local value", zap.String("key", key), zap.Error(err))
			return "", false
		}
		return value, ok
	}
	setString := func(key string, dst *string) {
		if v, ok := get(key); ok && v != "" {
			*dst = v
			applied++
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := get(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
				applied++
			}
		}
	}
	setFloat := func(key string, dst *float64) {
		if v, ok := get(key); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
				applied++
			}
		}
	}

	setString("generation/model", &cfg.Generation.Model)
	setFloat("generation/temperature", &cfg.Generation.Temperature)
	setInt("retrieval/top_k", &cfg.Retrieval.TopK)
	setFloat("retrieval/score_threshold", &cfg.Retrieval.ScoreThreshold)
	setInt("retrieval/max_items", &cfg.Retrieval.MaxItems)
	setInt("chat/history_limit", &cfg.Chat.HistoryLimit)

	if applied > 0 {
		logger.Info("Applied configuration overrides from Consul", zap.String("prefix", prefix), zap.Int("keys", applied))
	}
	return applied
}
