package errors

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/aihub/medical-rag/internal/knowledge"
)

// FromKnowledgeError 将检索引擎的哨兵错误映射为AppError
func FromKnowledgeError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	switch {
	case stderrors.Is(err, knowledge.ErrEngineNotReady):
		return NewEngineNotReadyError().WithCause(err)
	case stderrors.Is(err, knowledge.ErrEmptyIndex):
		return NewEmptyIndexError().WithCause(err)
	case stderrors.Is(err, knowledge.ErrCorruptSnapshot):
		return NewSystemError(ErrCodeCorruptSnapshot, "snapshot is corrupt").WithCause(err)
	case stderrors.Is(err, knowledge.ErrCorpusConfig),
		stderrors.Is(err, knowledge.ErrEmbedderNotConfigured):
		return NewConfigError("corpus or embedding configuration is invalid").WithCause(err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return &AppError{
			Code:     ErrCodeTimeout,
			Message:  "request timed out",
			Type:     ErrorTypeExternal,
			HTTPCode: http.StatusGatewayTimeout,
			Cause:    err,
		}
	default:
		return NewExternalCallError("retrieval").WithCause(err)
	}
}
