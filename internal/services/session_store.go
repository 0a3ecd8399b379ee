package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Role 对话角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid 是否为已知角色
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn 一条对话记录
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrInvalidRole 未知角色
var ErrInvalidRole = errors.New("invalid conversation role")

// SessionStore 按用户保存有界的对话历史
type SessionStore interface {
	// History 按时间顺序返回最近limit条，limit<=0返回全部，未知用户返回空
	History(ctx context.Context, userID string, limit int) ([]Turn, error)
	// Append 追加一条记录，新用户自动初始化
	Append(ctx context.Context, userID string, role Role, content string) error
	// AppendExchange 原子地追加 user 与 assistant 两条记录
	AppendExchange(ctx context.Context, userID, question, answer string) error
}

// SessionOptions 历史保留策略
type SessionOptions struct {
	// MaxTurns 每个用户最多保留的条数，向下取偶数，0表示不限
	MaxTurns int
	// TTL 用户无活动超过该时长后历史失效，0表示不过期
	TTL time.Duration
}

// turnCap 向下取偶数，保证裁剪时按整轮问答移除
func (o SessionOptions) turnCap() int {
	if o.MaxTurns <= 0 {
		return 0
	}
	c := o.MaxTurns - o.MaxTurns%2
	if c == 0 {
		c = 2
	}
	return c
}

func exchange(question, answer string, now time.Time) []Turn {
	return []Turn{
		{Role: RoleUser, Content: question, CreatedAt: now},
		{Role: RoleAssistant, Content: answer, CreatedAt: now},
	}
}

func tail(turns []Turn, limit int) []Turn {
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// memorySweepInterval 两次清理过期会话的最小间隔
const memorySweepInterval = time.Minute

type memorySession struct {
	turns      []Turn
	lastActive time.Time
}

// MemorySessionStore 进程内会话存储
type MemorySessionStore struct {
	mu        sync.Mutex
	sessions  map[string]*memorySession
	opts      SessionOptions
	now       func() time.Time
	lastSweep time.Time
}

// NewMemorySessionStore 创建内存会话存储
func NewMemorySessionStore(opts SessionOptions) *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*memorySession),
		opts:     opts,
		now:      time.Now,
	}
}

// History 实现 SessionStore
func (s *MemorySessionStore) History(ctx context.Context, userID string, limit int) ([]Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.live(userID)
	if sess == nil {
		return []Turn{}, nil
	}
	return tail(sess.turns, limit), nil
}

// Append 实现 SessionStore
func (s *MemorySessionStore) Append(ctx context.Context, userID string, role Role, content string) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(userID, Turn{Role: role, Content: content, CreatedAt: s.now()})
	return nil
}

// AppendExchange 实现 SessionStore
func (s *MemorySessionStore) AppendExchange(ctx context.Context, userID, question, answer string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(userID, exchange(question, answer, s.now())...)
	return nil
}

// Users 当前保存历史的用户数
func (s *MemorySessionStore) Users() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *MemorySessionStore) appendLocked(userID string, turns ...Turn) {
	s.sweepLocked()
	sess := s.live(userID)
	if sess == nil {
		sess = &memorySession{}
		s.sessions[userID] = sess
	}
	sess.turns = append(sess.turns, turns...)
	if c := s.opts.turnCap(); c > 0 && len(sess.turns) > c {
		sess.turns = append([]Turn(nil), sess.turns[len(sess.turns)-c:]...)
	}
	sess.lastActive = s.now()
}

// sweepLocked 删除所有过期会话，间隔不足 memorySweepInterval 时跳过
func (s *MemorySessionStore) sweepLocked() {
	if s.opts.TTL <= 0 {
		return
	}
	now := s.now()
	if now.Sub(s.lastSweep) < memorySweepInterval {
		return
	}
	s.lastSweep = now
	for userID, sess := range s.sessions {
		if now.Sub(sess.lastActive) > s.opts.TTL {
			delete(s.sessions, userID)
		}
	}
}

// live 返回未过期的会话，过期的会被删除
func (s *MemorySessionStore) live(userID string) *memorySession {
	sess, ok := s.sessions[userID]
	if !ok {
		return nil
	}
	if s.opts.TTL > 0 && s.now().Sub(sess.lastActive) > s.opts.TTL {
		delete(s.sessions, userID)
		return nil
	}
	return sess
}
