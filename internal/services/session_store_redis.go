package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSessionStore 每个用户一个Redis列表，写入与裁剪在同一事务中完成
type RedisSessionStore struct {
	client *redis.Client
	prefix string
	opts   SessionOptions
}

// NewRedisSessionStore 创建Redis会话存储
func NewRedisSessionStore(client *redis.Client, prefix string, opts SessionOptions) *RedisSessionStore {
	if prefix == "" {
		prefix = "rag:session:"
	}
	return &RedisSessionStore{client: client, prefix: prefix, opts: opts}
}

func (s *RedisSessionStore) key(userID string) string {
	return s.prefix + userID
}

// History 实现 SessionStore
func (s *RedisSessionStore) History(ctx context.Context, userID string, limit int) ([]Turn, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	raw, err := s.client.LRange(ctx, s.key(userID), start, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("读取会话历史失败: %w", err)
	}

	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("解析会话记录失败: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Append 实现 SessionStore
func (s *RedisSessionStore) Append(ctx context.Context, userID string, role Role, content string) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return s.push(ctx, userID, Turn{Role: role, Content: content, CreatedAt: time.Now()})
}

// AppendExchange 实现 SessionStore
func (s *RedisSessionStore) AppendExchange(ctx context.Context, userID, question, answer string) error {
	return s.push(ctx, userID, exchange(question, answer, time.Now())...)
}

func (s *RedisSessionStore) push(ctx context.Context, userID string, turns ...Turn) error {
	values := make([]interface{}, len(turns))
	for i, t := range turns {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("序列化会话记录失败: %w", err)
		}
		values[i] = data
	}

	key := s.key(userID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		if c := s.opts.turnCap(); c > 0 {
			pipe.LTrim(ctx, key, int64(-c), -1)
		}
		if s.opts.TTL > 0 {
			pipe.Expire(ctx, key, s.opts.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("写入会话历史失败: %w", err)
	}
	return nil
}
