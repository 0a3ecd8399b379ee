package controllers

import (
	"context"
	"sync"

	"github.com/aihub/medical-rag/internal/config"
	"github.com/aihub/medical-rag/internal/knowledge"
	"github.com/aihub/medical-rag/internal/services"
	"go.uber.org/zap"
)

// ChatService 问答编排
type ChatService interface {
	ProcessChat(ctx context.Context, userID, question string) (*services.ChatResult, error)
	Breakers() []services.BreakerStats
}

// SearchService 检索引擎
type SearchService interface {
	Search(ctx context.Context, queryText string, k int) ([]knowledge.SearchResult, error)
	TryRebuild(ctx context.Context) error
	Stats() knowledge.EngineStats
}

// Dependencies 控制器共享的服务
type Dependencies struct {
	Config *config.Config
	Chat   ChatService
	Engine SearchService
	Logger *zap.Logger
}

var (
	depsMu sync.RWMutex
	deps   *Dependencies
)

// SetDependencies 在注册路由前调用
func SetDependencies(d *Dependencies) {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	depsMu.Lock()
	deps = d
	depsMu.Unlock()
}

func currentDeps() *Dependencies {
	depsMu.RLock()
	defer depsMu.RUnlock()
	return deps
}
