package di

import (
	"context"
	"fmt"
	"sync"

	"github.com/aihub/medical-rag/internal/config"
	"github.com/aihub/medical-rag/internal/consul"
	"github.com/aihub/medical-rag/internal/database"
	"github.com/aihub/medical-rag/internal/kafka"
	"github.com/aihub/medical-rag/internal/knowledge"
	"github.com/aihub/medical-rag/internal/logger"
	"github.com/aihub/medical-rag/internal/ollama"
	"github.com/aihub/medical-rag/internal/services"
	"github.com/aihub/medical-rag/internal/storage"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

// Closers 收集需要在退出时释放的资源，按注册的逆序关闭
type Closers struct {
	mu  sync.Mutex
	fns []func() error
}

// Add 注册释放函数
func (c *Closers) Add(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns = append(c.fns, fn)
}

// CloseAll 关闭全部资源，返回第一个错误
func (c *Closers) CloseAll() error {
	c.mu.Lock()
	fns := c.fns
	c.fns = nil
	c.mu.Unlock()

	var first error
	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Breakers 生成与改写各自独立的熔断器
type Breakers struct {
	Answer  *services.CircuitBreaker
	Rewrite *services.CircuitBreaker
}

// RegisterProviders 注册所有依赖提供者
func RegisterProviders(container *dig.Container, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config not loaded")
	}

	providers := []interface{}{
		func() *config.Config { return cfg },
		func() *zap.Logger { return logger.GetLogger() },
		func() *Closers { return &Closers{} },
		provideConsul,
		provideEmbedder,
		provideSnapshotMirror,
		provideSearchEngine,
		provideSessionStore,
		provideGenerator,
		provideBreakers,
		provideNormalizer,
		provideRewriter,
		provideAssembler,
		providePublisher,
		provideOrchestrator,
	}
	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return err
		}
	}
	return nil
}

func provideConsul(cfg *config.Config, log *zap.Logger) (*consul.Client, error) {
	return consul.NewClient(cfg.Consul.Address, cfg.Consul.Enabled, log.Named("consul"))
}

func provideEmbedder(cfg *config.Config, log *zap.Logger) (knowledge.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		return knowledge.NewOpenAIEmbedder(cfg.Embedding.APIKey, cfg.Embedding.BaseURL, cfg.Embedding.Model), nil
	case "ollama", "":
		client := ollama.NewClient(cfg.Embedding.BaseURL, cfg.Embedding.Timeout, log.Named("ollama"))
		return knowledge.NewOllamaEmbedder(client, cfg.Embedding.Model), nil
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", config.ErrInvalidConfig, cfg.Embedding.Provider)
	}
}

// provideSnapshotMirror 未启用对象存储时返回nil
func provideSnapshotMirror(cfg *config.Config, log *zap.Logger) (knowledge.SnapshotMirror, error) {
	if !cfg.Storage.Enabled {
		return nil, nil
	}
	mirror, err := storage.NewSnapshotMirror(cfg.Storage, log.Named("minio"))
	if err != nil {
		return nil, err
	}
	if err := mirror.EnsureBucket(context.Background(), 3); err != nil {
		log.Warn("快照存储桶不可用，禁用快照同步", zap.Error(err))
		return nil, nil
	}
	return mirror, nil
}

func provideSearchEngine(cfg *config.Config, embedder knowledge.Embedder, mirror knowledge.SnapshotMirror, log *zap.Logger) (*knowledge.SearchEngine, error) {
	metric, err := knowledge.ParseMetric(cfg.Retrieval.Metric)
	if err != nil {
		return nil, err
	}
	return knowledge.NewSearchEngine(embedder, knowledge.EngineOptions{
		CorpusFiles:  cfg.Corpus.Files,
		SnapshotPath: cfg.Snapshot.Path,
		Metric:       metric,
		BatchSize:    cfg.Embedding.BatchSize,
		Model:        cfg.Embedding.Model,
		Mirror:       mirror,
	}, log.Named("search")), nil
}

func provideSessionStore(cfg *config.Config, closers *Closers, log *zap.Logger) (services.SessionStore, error) {
	opts := services.SessionOptions{MaxTurns: cfg.Session.MaxTurns, TTL: cfg.Session.TTL}

	switch cfg.Session.Backend {
	case "redis":
		client, err := database.OpenRedis(context.Background(), cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		closers.Add(client.Close)
		return services.NewRedisSessionStore(client, cfg.Session.KeyPrefix, opts), nil
	case "postgres":
		db, err := database.OpenPostgres(cfg.Database.URL, log)
		if err != nil {
			return nil, err
		}
		closers.Add(func() error { return database.Close(db) })
		store := services.NewDBSessionStore(db, opts)
		if err := store.Migrate(); err != nil {
			return nil, fmt.Errorf("failed to migrate conversation_turns: %w", err)
		}
		return store, nil
	case "memory", "":
		return services.NewMemorySessionStore(opts), nil
	default:
		return nil, fmt.Errorf("%w: unknown session backend %q", config.ErrInvalidConfig, cfg.Session.Backend)
	}
}

func provideGenerator(cfg *config.Config, log *zap.Logger) (services.Generator, error) {
	switch cfg.Generation.Provider {
	case "openai":
		return services.NewOpenAIGenerator(cfg.Generation.APIKey, cfg.Generation.BaseURL, cfg.Generation.Model), nil
	case "ollama", "":
		client := ollama.NewClient(cfg.Generation.BaseURL, cfg.Generation.Timeout, log.Named("ollama"))
		return services.NewOllamaGenerator(client, cfg.Generation.Model), nil
	default:
		return nil, fmt.Errorf("%w: unknown generation provider %q", config.ErrInvalidConfig, cfg.Generation.Provider)
	}
}

func provideBreakers(cfg *config.Config) *Breakers {
	g := cfg.Generation
	return &Breakers{
		Answer:  services.NewCircuitBreaker("generation", g.BreakerFailures, 1, g.BreakerCooldown),
		Rewrite: services.NewCircuitBreaker("rewrite", g.BreakerFailures, 1, g.BreakerCooldown),
	}
}

// provideNormalizer OpenCC初始化失败时退化为原样输出
func provideNormalizer(log *zap.Logger) services.TextNormalizer {
	n, err := services.NewOpenCCNormalizer("s2twp")
	if err != nil {
		log.Warn("OpenCC不可用，回答不做繁简转换", zap.Error(err))
		return services.NoopNormalizer{}
	}
	return n
}

func provideRewriter(cfg *config.Config, gen services.Generator, breakers *Breakers, log *zap.Logger) *services.QueryRewriter {
	return services.NewQueryRewriter(gen, breakers.Rewrite,
		cfg.Generation.RewriteTemperature, cfg.Generation.RewriteTimeout, log.Named("rewriter"))
}

func provideAssembler(cfg *config.Config) *services.ContextAssembler {
	r := cfg.Retrieval
	return services.NewContextAssembler(r.ScoreThreshold, r.MaxItems, r.MaxContextTokens)
}

func providePublisher(cfg *config.Config, closers *Closers, log *zap.Logger) services.TranscriptPublisher {
	if !cfg.Kafka.Enabled {
		return services.NoopPublisher{}
	}
	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, log.Named("kafka"))
	if err != nil {
		log.Warn("Kafka不可用，问答记录不发布", zap.Error(err))
		return services.NoopPublisher{}
	}
	publisher := services.NewAsyncPublisher(producer, 256, log.Named("transcripts"))
	closers.Add(func() error {
		publisher.Close()
		return producer.Close()
	})
	return publisher
}

type orchestratorParams struct {
	dig.In

	Config     *config.Config
	Sessions   services.SessionStore
	Engine     *knowledge.SearchEngine
	Rewriter   *services.QueryRewriter
	Assembler  *services.ContextAssembler
	Generator  services.Generator
	Breakers   *Breakers
	Normalizer services.TextNormalizer
	Publisher  services.TranscriptPublisher
	Logger     *zap.Logger
}

func provideOrchestrator(p orchestratorParams) *services.ChatOrchestrator {
	g := p.Config.Generation
	return services.NewChatOrchestrator(services.ChatDeps{
		Sessions:   p.Sessions,
		Searcher:   p.Engine,
		Rewriter:   p.Rewriter,
		Assembler:  p.Assembler,
		Generator:  p.Generator,
		Breaker:    p.Breakers.Answer,
		Normalizer: p.Normalizer,
		Publisher:  p.Publisher,
		Logger:     p.Logger.Named("chat"),
	}, services.ChatOptions{
		TopK:         p.Config.Retrieval.TopK,
		HistoryLimit: p.Config.Chat.HistoryLimit,
		Generation: services.GenerateOptions{
			Temperature:       g.Temperature,
			TopP:              g.TopP,
			RepetitionPenalty: g.RepetitionPenalty,
			NumCtx:            g.NumCtx,
		},
		GenerationTimeout: g.Timeout,
	})
}
