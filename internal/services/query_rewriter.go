package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// QueryRewriter 利用对话历史把追问改写为可独立检索的问题
type QueryRewriter struct {
	generator   Generator
	breaker     *CircuitBreaker
	temperature float64
	timeout     time.Duration
	logger      *zap.Logger
}

// NewQueryRewriter breaker 可为 nil
func NewQueryRewriter(generator Generator, breaker *CircuitBreaker, temperature float64, timeout time.Duration, logger *zap.Logger) *QueryRewriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &QueryRewriter{
		generator:   generator,
		breaker:     breaker,
		temperature: temperature,
		timeout:     timeout,
		logger:      logger,
	}
}

// Rewrite 无历史时原样返回且不调用外部服务；任何失败都回退为原问题
func (r *QueryRewriter) Rewrite(ctx context.Context, question string, history []Turn) string {
	if len(history) == 0 {
		return question
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rewritten string
	call := func() error {
		text, err := r.generator.Generate(callCtx, GenerateRequest{
			Prompt:  rewritePrompt(question, history),
			Options: GenerateOptions{Temperature: r.temperature},
		})
		rewritten = text
		return err
	}

	var err error
	if r.breaker != nil {
		err = r.breaker.Call(call)
	} else {
		err = call()
	}

	rewritten = strings.TrimSpace(rewritten)
	if err != nil || rewritten == "" {
		rewriteFallbacks.Inc()
		r.logger.Warn("问题改写失败，使用原问题", zap.String("question", question), zap.Error(err))
		return question
	}

	r.logger.Debug("问题改写完成", zap.String("question", question), zap.String("rewritten", rewritten))
	return rewritten
}
