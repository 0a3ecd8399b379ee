package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/aihub/medical-rag/internal/knowledge"
	"github.com/stretchr/testify/assert"
)

func TestFromKnowledgeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		http int
	}{
		{"not ready", knowledge.ErrEngineNotReady, ErrCodeEngineNotReady, http.StatusServiceUnavailable},
		{"empty index", fmt.Errorf("search: %w", knowledge.ErrEmptyIndex), ErrCodeEmptyIndex, http.StatusOK},
		{"corrupt", knowledge.ErrCorruptSnapshot, ErrCodeCorruptSnapshot, http.StatusInternalServerError},
		{"corpus", knowledge.ErrCorpusConfig, ErrCodeConfig, http.StatusInternalServerError},
		{"timeout", context.DeadlineExceeded, ErrCodeTimeout, http.StatusGatewayTimeout},
		{"other", stderrors.New("dial tcp: refused"), ErrCodeExternalCall, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := FromKnowledgeError(tt.err)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, tt.http, appErr.HTTPCode)
			assert.ErrorIs(t, appErr, tt.err)
		})
	}

	assert.Nil(t, FromKnowledgeError(nil))
	existing := NewValidationError("bad")
	assert.Same(t, existing, FromKnowledgeError(existing))
}
