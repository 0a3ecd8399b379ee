package controllers

import (
	"github.com/aihub/medical-rag/internal/config"
	"github.com/aihub/medical-rag/internal/knowledge"
	"github.com/aihub/medical-rag/internal/services"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

// ControllerFactory 从DI容器取出控制器依赖
type ControllerFactory struct {
	container *dig.Container
}

// NewControllerFactory 创建控制器工厂
func NewControllerFactory(container *dig.Container) *ControllerFactory {
	return &ControllerFactory{
		container: container,
	}
}

// Dependencies 解析控制器所需的服务
func (f *ControllerFactory) Dependencies() (*Dependencies, error) {
	var d *Dependencies

	err := f.container.Invoke(func(cfg *config.Config, chat *services.ChatOrchestrator, engine *knowledge.SearchEngine, log *zap.Logger) {
		d = &Dependencies{
			Config: cfg,
			Chat:   chat,
			Engine: engine,
			Logger: log.Named("http"),
		}
	})
	if err != nil {
		return nil, err
	}

	return d, nil
}
