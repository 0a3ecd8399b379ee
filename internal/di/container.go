package di

import (
	"github.com/aihub/medical-rag/internal/config"
	"go.uber.org/dig"
)

// BuildContainer 创建容器并注册全部提供者，依赖在首次Invoke时才构造
func BuildContainer(cfg *config.Config) (*dig.Container, error) {
	container := dig.New()
	if err := RegisterProviders(container, cfg); err != nil {
		return nil, err
	}
	return container, nil
}
