package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/aihub/medical-rag/app/controllers"
	"github.com/aihub/medical-rag/internal/config"
	"github.com/aihub/medical-rag/internal/consul"
	"github.com/aihub/medical-rag/internal/di"
	"github.com/aihub/medical-rag/internal/knowledge"
	"github.com/aihub/medical-rag/internal/logger"
	"github.com/joho/godotenv"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

const (
	initRetryBase = time.Second
	initRetryMax  = time.Minute
	// initWaitOnShutdown 关闭时等待初始化协程退出的上限
	initWaitOnShutdown = 10 * time.Second
)

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	Config    *config.Config
	Container *dig.Container
	Engine    *knowledge.SearchEngine

	mu              sync.Mutex
	cleanupTasks    []func() error
	stopped         bool
	consulClient    *consul.Client
	serviceRegistry *consul.ServiceRegistry
	cancel          context.CancelFunc
	initDone        chan struct{}

	retryBase time.Duration
	retryMax  time.Duration
}

// Init bootstraps configuration, logger, the DI container and the HTTP
// dependencies. The index is not loaded here, see Start.
func Init() (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to read .env: %v", err)
	}

	if err := config.LoadConfig(); err != nil {
		return nil, err
	}
	cfg := config.AppConfig

	if err := logger.InitLogger(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}

	container, err := di.BuildContainer(cfg)
	if err != nil {
		return nil, err
	}
	app := &App{
		Config:    cfg,
		Container: container,
		retryBase: initRetryBase,
		retryMax:  initRetryMax,
	}

	// Consul 可选：运行参数覆盖与服务注册
	// 提供者按需构造，覆盖在其余依赖解析之前生效
	if err := container.Invoke(func(client *consul.Client) {
		app.consulClient = client
	}); err != nil {
		logger.Warn("Failed to initialize Consul client", zap.Error(err))
	} else if consul.ApplyKVOverrides(app.consulClient, cfg.Consul.ServiceName, cfg, logger.Named("consul")) > 0 {
		if err := config.Validate(cfg); err != nil {
			return nil, fmt.Errorf("consul overrides: %w", err)
		}
	}

	if err := container.Invoke(func(closers *di.Closers) {
		app.addCleanup(closers.CloseAll)
	}); err != nil {
		return nil, err
	}

	deps, err := controllers.NewControllerFactory(container).Dependencies()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve dependencies: %w", err)
	}
	controllers.SetDependencies(deps)

	if err := container.Invoke(func(engine *knowledge.SearchEngine) {
		app.Engine = engine
	}); err != nil {
		return nil, err
	}

	return app, nil
}

// Start 校验语料后在后台加载或构建索引，失败时退避重试；
// 完成后按配置启动语料监听。语料不可读返回 knowledge.ErrCorpusConfig，应终止启动。
// 索引就绪前 /ask 与 /health 返回503
func (a *App) Start() error {
	if err := a.Engine.CheckCorpus(); err != nil {
		return fmt.Errorf("语料配置错误: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.mu.Lock()
	a.cancel = cancel
	a.initDone = done
	a.mu.Unlock()

	go func() {
		defer close(done)
		if err := a.initializeWithRetry(ctx); err != nil {
			return
		}
		stats := a.Engine.Stats()
		logger.Info("索引就绪",
			zap.Int("records", stats.Records),
			zap.Int("dimension", stats.Dimension),
			zap.String("origin", stats.Origin))

		if a.Config.Index.WatchCorpus {
			a.startWatcher(ctx)
		}
	}()

	a.register()
	return nil
}

// initializeWithRetry 反复调用 Initialize 直到成功或ctx结束
func (a *App) initializeWithRetry(ctx context.Context) error {
	log := logger.Named("bootstrap")
	wait := a.retryBase
	for attempt := 1; ; attempt++ {
		err := a.Engine.Initialize(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("索引初始化失败，稍后重试",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if wait *= 2; wait > a.retryMax {
			wait = a.retryMax
		}
	}
}

func (a *App) startWatcher(ctx context.Context) {
	watcher, err := knowledge.NewCorpusWatcher(a.Config.Corpus.Files, a.Engine, a.Config.Index.WatchDebounce, logger.Named("watcher"))
	if err != nil {
		logger.Warn("Failed to watch corpus files", zap.Error(err))
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		_ = watcher.Close()
		return
	}
	watcher.Start(ctx)
	a.cleanupTasks = append(a.cleanupTasks, watcher.Close)
}

func (a *App) register() {
	if !a.consulClient.IsEnabled() {
		return
	}
	registry := consul.NewServiceRegistry(
		a.consulClient,
		a.Config.Consul.ServiceID,
		a.Config.Consul.ServiceName,
		logger.Named("consul"),
	)
	if err := registry.Register(a.Config); err != nil {
		logger.Warn("Failed to register service with Consul", zap.Error(err))
		return
	}
	a.serviceRegistry = registry
	a.addCleanup(registry.Deregister)
	logger.Info("Service registered with Consul",
		zap.String("service_id", registry.ServiceID()),
		zap.String("service_name", a.Config.Consul.ServiceName))
}

func (a *App) addCleanup(fn func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleanupTasks = append(a.cleanupTasks, fn)
}

// Shutdown flushes/logs and closes resources gracefully.
func (a *App) Shutdown() {
	a.mu.Lock()
	a.stopped = true
	cancel, done := a.cancel, a.initDone
	tasks := a.cleanupTasks
	a.cleanupTasks = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(initWaitOnShutdown):
			logger.Warn("索引初始化未在限定时间内退出")
		}
	}

	// Execute cleanup tasks in reverse order (best effort).
	for i := len(tasks) - 1; i >= 0; i-- {
		if err := tasks[i](); err != nil {
			logger.Warn("Cleanup error", zap.Error(err))
		}
	}

	// Flush logger buffers.
	logger.Sync()
}
