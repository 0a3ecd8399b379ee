package services

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/aihub/medical-rag/internal/errors"
	"github.com/aihub/medical-rag/internal/kafka"
	"github.com/aihub/medical-rag/internal/knowledge"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Searcher 检索能力，由 knowledge.SearchEngine 实现
type Searcher interface {
	Search(ctx context.Context, queryText string, k int) ([]knowledge.SearchResult, error)
}

// ChatOptions 对话流程参数
type ChatOptions struct {
	TopK              int
	HistoryLimit      int
	Generation        GenerateOptions
	GenerationTimeout time.Duration
}

// ChatResult 一次问答的结果
type ChatResult struct {
	Answer         string   `json:"answer"`
	Sources        []Source `json:"sources"`
	RequestID      string   `json:"-"`
	RewrittenQuery string   `json:"-"`
}

// ChatOrchestrator 串联 历史→改写→检索→拼接→生成→写回历史
type ChatOrchestrator struct {
	sessions   SessionStore
	searcher   Searcher
	rewriter   *QueryRewriter
	assembler  *ContextAssembler
	generator  Generator
	breaker    *CircuitBreaker
	normalizer TextNormalizer
	publisher  TranscriptPublisher
	opts       ChatOptions
	locks      *userLocks
	logger     *zap.Logger
}

// ChatDeps 编排器依赖
type ChatDeps struct {
	Sessions   SessionStore
	Searcher   Searcher
	Rewriter   *QueryRewriter
	Assembler  *ContextAssembler
	Generator  Generator
	Breaker    *CircuitBreaker
	Normalizer TextNormalizer
	Publisher  TranscriptPublisher
	Logger     *zap.Logger
}

// NewChatOrchestrator 创建编排器，可选依赖为空时使用默认实现
func NewChatOrchestrator(deps ChatDeps, opts ChatOptions) *ChatOrchestrator {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Normalizer == nil {
		deps.Normalizer = NoopNormalizer{}
	}
	if deps.Publisher == nil {
		deps.Publisher = NoopPublisher{}
	}
	if deps.Assembler == nil {
		deps.Assembler = NewContextAssembler(DefaultScoreThreshold, 0, 0)
	}
	if deps.Rewriter == nil {
		deps.Rewriter = NewQueryRewriter(deps.Generator, nil, 0.1, 30*time.Second, deps.Logger)
	}
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 6
	}
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = 120 * time.Second
	}

	return &ChatOrchestrator{
		sessions:   deps.Sessions,
		searcher:   deps.Searcher,
		rewriter:   deps.Rewriter,
		assembler:  deps.Assembler,
		generator:  deps.Generator,
		breaker:    deps.Breaker,
		normalizer: deps.Normalizer,
		publisher:  deps.Publisher,
		opts:       opts,
		locks:      newUserLocks(),
		logger:     deps.Logger,
	}
}

func fallback(requestID string) *ChatResult {
	return &ChatResult{Answer: FallbackMessage, Sources: []Source{}, RequestID: requestID}
}

func observe(stage string, start time.Time) {
	stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// ProcessChat 处理一次问答
// 生成之前失败返回 FallbackMessage 与 AppError；生成失败返回 ApologyMessage 且不写历史
func (o *ChatOrchestrator) ProcessChat(ctx context.Context, userID, question string) (*ChatResult, error) {
	requestID := uuid.NewString()
	log := o.logger.With(zap.String("request_id", requestID), zap.String("user_id", userID))
	begin := time.Now()

	if strings.TrimSpace(question) == "" {
		return &ChatResult{Answer: EmptyQuestionMessage, Sources: []Source{}, RequestID: requestID},
			apperrors.NewInvalidInputError("question", "must not be empty").WithRequestID(requestID)
	}

	release, err := o.locks.acquire(ctx, userID)
	if err != nil {
		chatRequests.WithLabelValues("fallback").Inc()
		return fallback(requestID), apperrors.FromKnowledgeError(err).WithRequestID(requestID)
	}
	defer release()

	// 1. 历史
	start := time.Now()
	history, err := o.sessions.History(ctx, userID, o.opts.HistoryLimit)
	observe("history", start)
	if err != nil {
		sessionErrors.WithLabelValues("history").Inc()
		chatRequests.WithLabelValues("fallback").Inc()
		appErr := apperrors.NewSessionStoreError("history").WithCause(err).WithRequestID(requestID)
		apperrors.Log(log, "读取会话历史失败", appErr)
		return fallback(requestID), appErr
	}

	// 2. 改写
	start = time.Now()
	query := o.rewriter.Rewrite(ctx, question, history)
	observe("rewrite", start)

	// 3. 检索
	start = time.Now()
	results, err := o.searcher.Search(ctx, query, o.opts.TopK)
	observe("search", start)
	if err != nil {
		chatRequests.WithLabelValues("fallback").Inc()
		appErr := apperrors.FromKnowledgeError(err).WithRequestID(requestID)
		apperrors.Log(log, "检索失败", appErr)
		return fallback(requestID), appErr
	}

	// 4. 拼接上下文
	contextText, sources := o.assembler.Assemble(results)
	sourcesPerAnswer.Observe(float64(len(sources)))

	// 5. 生成
	start = time.Now()
	raw, err := o.generate(ctx, answerPrompt(question, history, contextText))
	observe("generate", start)
	if err != nil {
		chatRequests.WithLabelValues("apology").Inc()
		log.Warn("生成回答失败", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return &ChatResult{Answer: ApologyMessage, Sources: []Source{}, RequestID: requestID, RewrittenQuery: query}, nil
	}

	// 6. 文字转换
	answer, err := o.normalizer.Normalize(raw)
	if err != nil {
		log.Warn("文字转换失败，使用原文", zap.Error(err))
		answer = raw
	}

	// 7. 写回历史
	if err := o.sessions.AppendExchange(ctx, userID, question, answer); err != nil {
		sessionErrors.WithLabelValues("append").Inc()
		apperrors.Log(log, "写入会话历史失败", apperrors.NewSessionStoreError("append").WithCause(err))
	}

	chatRequests.WithLabelValues("ok").Inc()
	o.publish(userID, question, query, answer, sources, time.Since(begin))
	log.Info("问答完成",
		zap.String("rewritten", query),
		zap.Int("sources", len(sources)),
		zap.Duration("elapsed", time.Since(begin)))

	return &ChatResult{Answer: answer, Sources: sources, RequestID: requestID, RewrittenQuery: query}, nil
}

func (o *ChatOrchestrator) generate(ctx context.Context, prompt string) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, o.opts.GenerationTimeout)
	defer cancel()

	var text string
	call := func() error {
		var err error
		text, err = o.generator.Generate(genCtx, GenerateRequest{Prompt: prompt, Options: o.opts.Generation})
		return err
	}
	var err error
	if o.breaker != nil {
		err = o.breaker.Call(call)
	} else {
		err = call()
	}
	return text, err
}

func (o *ChatOrchestrator) publish(userID, question, query, answer string, sources []Source, elapsed time.Duration) {
	summaries := make([]kafka.SourceSummary, len(sources))
	for i, s := range sources {
		summaries[i] = kafka.SourceSummary{RecordID: s.RecordID, Source: s.Origin, Score: s.Score}
	}
	o.publisher.Publish(&kafka.TranscriptMessage{
		UserID:         userID,
		Question:       question,
		RewrittenQuery: query,
		Answer:         answer,
		Sources:        summaries,
		LatencyMS:      elapsed.Milliseconds(),
		Timestamp:      time.Now(),
	})
}

// Breakers 熔断器状态，用于健康检查
func (o *ChatOrchestrator) Breakers() []BreakerStats {
	var stats []BreakerStats
	if o.breaker != nil {
		stats = append(stats, o.breaker.Stats())
	}
	if o.rewriter != nil && o.rewriter.breaker != nil {
		stats = append(stats, o.rewriter.breaker.Stats())
	}
	return stats
}
