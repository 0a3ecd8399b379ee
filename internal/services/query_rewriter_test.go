package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var feverHistory = []Turn{
	{Role: RoleUser, Content: "我發燒了"},
	{Role: RoleAssistant, Content: "請多喝水並休息"},
}

func TestQueryRewriter_NoHistoryIsIdentity(t *testing.T) {
	gen := new(MockGenerator)
	rewriter := NewQueryRewriter(gen, nil, 0.1, time.Second, nil)

	assert.Equal(t, "頭痛怎麼辦", rewriter.Rewrite(context.Background(), "頭痛怎麼辦", nil))
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestQueryRewriter_UsesHistory(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(req GenerateRequest) bool {
		return strings.Contains(req.Prompt, "user: 我發燒了") &&
			strings.Contains(req.Prompt, "assistant: 請多喝水並休息") &&
			strings.Contains(req.Prompt, "要吃藥嗎") &&
			req.Options.Temperature == 0.1
	})).Return("  發燒要吃藥嗎  ", nil).Once()

	rewriter := NewQueryRewriter(gen, nil, 0.1, time.Second, nil)
	assert.Equal(t, "發燒要吃藥嗎", rewriter.Rewrite(context.Background(), "要吃藥嗎", feverHistory))
	gen.AssertExpectations(t)
}

func TestQueryRewriter_FallsBack(t *testing.T) {
	tests := []struct {
		name string
		text string
		err  error
	}{
		{name: "error", err: errors.New("connection refused")},
		{name: "empty", text: "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := new(MockGenerator)
			gen.On("Generate", mock.Anything, mock.Anything).Return(tt.text, tt.err)

			rewriter := NewQueryRewriter(gen, nil, 0.1, time.Second, nil)
			assert.Equal(t, "要吃藥嗎", rewriter.Rewrite(context.Background(), "要吃藥嗎", feverHistory))
		})
	}
}

func TestQueryRewriter_OpenBreakerSkipsCall(t *testing.T) {
	gen := new(MockGenerator)
	breaker := NewCircuitBreaker("rewrite", 1, 1, time.Hour)
	_ = breaker.Call(func() error { return errors.New("down") })

	rewriter := NewQueryRewriter(gen, breaker, 0.1, time.Second, nil)
	assert.Equal(t, "要吃藥嗎", rewriter.Rewrite(context.Background(), "要吃藥嗎", feverHistory))
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}
