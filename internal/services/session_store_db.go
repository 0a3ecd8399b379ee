package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ConversationTurn 对话记录表
type ConversationTurn struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    string    `gorm:"size:128;index:idx_turns_user_id;not null"`
	Role      string    `gorm:"size:16;not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName 表名
func (ConversationTurn) TableName() string {
	return "conversation_turns"
}

// DBSessionStore 基于PostgreSQL的持久化会话存储
type DBSessionStore struct {
	db   *gorm.DB
	opts SessionOptions
	now  func() time.Time
}

// NewDBSessionStore 创建数据库会话存储
func NewDBSessionStore(db *gorm.DB, opts SessionOptions) *DBSessionStore {
	return &DBSessionStore{db: db, opts: opts, now: time.Now}
}

// Migrate 创建对话记录表
func (s *DBSessionStore) Migrate() error {
	return s.db.AutoMigrate(&ConversationTurn{})
}

// History 实现 SessionStore
// 相邻两条(或最新一条与当前时间)间隔超过TTL处即为会话过期边界，之前的记录不返回
func (s *DBSessionStore) History(ctx context.Context, userID string, limit int) ([]Turn, error) {
	query := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []ConversationTurn
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("查询会话历史失败: %w", err)
	}
	rows = s.live(rows)

	turns := make([]Turn, len(rows))
	for i, row := range rows {
		turns[len(rows)-1-i] = Turn{Role: Role(row.Role), Content: row.Content, CreatedAt: row.CreatedAt}
	}
	return turns, nil
}

// Append 实现 SessionStore
func (s *DBSessionStore) Append(ctx context.Context, userID string, role Role, content string) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return s.insert(ctx, userID, Turn{Role: role, Content: content, CreatedAt: s.now()})
}

// AppendExchange 实现 SessionStore
func (s *DBSessionStore) AppendExchange(ctx context.Context, userID, question, answer string) error {
	return s.insert(ctx, userID, exchange(question, answer, s.now())...)
}

// live 按id倒序的记录中截取未过期的部分
func (s *DBSessionStore) live(rows []ConversationTurn) []ConversationTurn {
	if s.opts.TTL <= 0 {
		return rows
	}
	last := s.now()
	for i, row := range rows {
		if last.Sub(row.CreatedAt) > s.opts.TTL {
			return rows[:i]
		}
		last = row.CreatedAt
	}
	return rows
}

func (s *DBSessionStore) insert(ctx context.Context, userID string, turns ...Turn) error {
	rows := make([]ConversationTurn, len(turns))
	for i, t := range turns {
		rows[i] = ConversationTurn{UserID: userID, Role: string(t.Role), Content: t.Content, CreatedAt: t.CreatedAt}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.opts.TTL > 0 {
			// 会话已过期则先清空旧记录
			cutoff := rows[0].CreatedAt.Add(-s.opts.TTL)
			if err := tx.Exec(
				`DELETE FROM conversation_turns WHERE user_id = ? AND NOT EXISTS (
					SELECT 1 FROM conversation_turns WHERE user_id = ? AND created_at > ?)`,
				userID, userID, cutoff,
			).Error; err != nil {
				return err
			}
		}
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}
		c := s.opts.turnCap()
		if c <= 0 {
			return nil
		}
		return tx.Exec(
			`DELETE FROM conversation_turns WHERE user_id = ? AND id NOT IN (
				SELECT id FROM conversation_turns WHERE user_id = ? ORDER BY id DESC LIMIT ?)`,
			userID, userID, c,
		).Error
	})
	if err != nil {
		return fmt.Errorf("写入会话历史失败: %w", err)
	}
	return nil
}
