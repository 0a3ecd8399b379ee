package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aihub/medical-rag/internal/config"
	apperrors "github.com/aihub/medical-rag/internal/errors"
	"github.com/aihub/medical-rag/internal/knowledge"
	"github.com/aihub/medical-rag/internal/services"
	"github.com/beego/beego/v2/server/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChat struct {
	mu       sync.Mutex
	result   *services.ChatResult
	err      error
	users    []string
	breakers []services.BreakerStats
}

func (f *fakeChat) ProcessChat(ctx context.Context, userID, question string) (*services.ChatResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, userID)
	return f.result, f.err
}

func (f *fakeChat) Breakers() []services.BreakerStats { return f.breakers }

func (f *fakeChat) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.users...)
}

type fakeEngine struct {
	results []knowledge.SearchResult
	err     error
	stats   knowledge.EngineStats
	rebuilt chan struct{}
	release chan struct{}
	lastK   int
}

func (f *fakeEngine) Search(ctx context.Context, q string, k int) ([]knowledge.SearchResult, error) {
	f.lastK = k
	return f.results, f.err
}

func (f *fakeEngine) TryRebuild(ctx context.Context) error {
	if f.rebuilt != nil {
		f.rebuilt <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return nil
}

func (f *fakeEngine) Stats() knowledge.EngineStats { return f.stats }

func TestMain(m *testing.M) {
	web.BConfig.CopyRequestBody = true
	chat := &ChatController{}
	web.Router("/ask", chat, "post:Ask")
	web.Router("/api/search", chat, "get:Search")
	web.Router("/api/index/rebuild", chat, "post:Rebuild")
	web.Router("/health", chat, "get:Health")
	os.Exit(m.Run())
}

func setup(chat *fakeChat, engine *fakeEngine) *config.Config {
	cfg := config.Default()
	SetDependencies(&Dependencies{Config: cfg, Chat: chat, Engine: engine})
	return cfg
}

func serve(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	web.BeeApp.Handlers.ServeHTTP(rec, req)
	return rec
}

func decodeAsk(t *testing.T, rec *httptest.ResponseRecorder) AskResponse {
	t.Helper()
	var resp AskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestAsk_Success(t *testing.T) {
	chat := &fakeChat{result: &services.ChatResult{
		Answer:    "多喝水並休息",
		Sources:   []services.Source{{ID: 1, Content: "多喝水", Score: 0.82}},
		RequestID: "req-1",
	}}
	setup(chat, &fakeEngine{})

	rec := serve(http.MethodPost, "/ask", `{"question":"發燒怎麼辦"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
	resp := decodeAsk(t, rec)
	assert.Equal(t, "多喝水並休息", resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, 1, resp.Sources[0].ID)
	assert.Equal(t, []string{"demo_user"}, chat.calls())
}

func TestAsk_ExplicitUser(t *testing.T) {
	chat := &fakeChat{result: &services.ChatResult{Answer: "ok", Sources: []services.Source{}}}
	setup(chat, &fakeEngine{})

	rec := serve(http.MethodPost, "/ask", `{"question":"頭痛","user_id":"alice"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"alice"}, chat.calls())
}

func TestAsk_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty question", `{"question":"   "}`},
		{"missing question", `{"user_id":"alice"}`},
		{"invalid json", `{"question":`},
		{"empty body", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &fakeChat{}
			setup(chat, &fakeEngine{})

			rec := serve(http.MethodPost, "/ask", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeAsk(t, rec)
			assert.Equal(t, services.EmptyQuestionMessage, resp.Answer)
			assert.NotNil(t, resp.Sources)
			assert.Empty(t, resp.Sources)
			assert.Empty(t, chat.calls())
		})
	}
}

func TestAsk_QuestionTooLong(t *testing.T) {
	chat := &fakeChat{}
	cfg := setup(chat, &fakeEngine{})
	cfg.Chat.MaxQuestionLen = 5

	rec := serve(http.MethodPost, "/ask", `{"question":"這個問題超過五個字了"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, chat.calls())
}

func TestAsk_Failures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"engine initializing", apperrors.NewEngineNotReadyError(), http.StatusServiceUnavailable},
		{"session store down", apperrors.NewSessionStoreError("history"), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &fakeChat{
				result: &services.ChatResult{Answer: services.FallbackMessage, Sources: []services.Source{}},
				err:    tt.err,
			}
			setup(chat, &fakeEngine{})

			rec := serve(http.MethodPost, "/ask", `{"question":"發燒怎麼辦"}`)
			assert.Equal(t, tt.status, rec.Code)
			resp := decodeAsk(t, rec)
			assert.Equal(t, services.FallbackMessage, resp.Answer)
			assert.Empty(t, resp.Sources)
		})
	}
}

func TestSearch(t *testing.T) {
	engine := &fakeEngine{
		results: []knowledge.SearchResult{{
			Record:   knowledge.Record{ID: 0, Question: "發燒", Answer: "多喝水"},
			Distance: 0.1,
			Score:    0.9,
		}},
		stats: knowledge.EngineStats{Ready: true, Metric: knowledge.MetricCosine},
	}
	setup(&fakeChat{}, engine)

	rec := serve(http.MethodGet, "/api/search?q=%E7%99%BC%E7%87%92&k=1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, engine.lastK)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Metric  string                   `json:"metric"`
			Results []knowledge.SearchResult `json:"results"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "cosine", body.Data.Metric)
	require.Len(t, body.Data.Results, 1)
	assert.InDelta(t, 0.9, body.Data.Results[0].Score, 1e-9)
}

func TestSearch_Errors(t *testing.T) {
	setup(&fakeChat{}, &fakeEngine{err: knowledge.ErrEngineNotReady})
	assert.Equal(t, http.StatusBadRequest, serve(http.MethodGet, "/api/search", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(http.MethodGet, "/api/search?q=x&k=abc", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(http.MethodGet, "/api/search?q=x", "").Code)
}

func TestRebuild(t *testing.T) {
	engine := &fakeEngine{rebuilt: make(chan struct{}, 1)}
	cfg := setup(&fakeChat{}, engine)
	cfg.Index.AdminEnabled = true

	rec := serve(http.MethodPost, "/api/index/rebuild", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	select {
	case <-engine.rebuilt:
	case <-time.After(time.Second):
		t.Fatal("rebuild was not triggered")
	}

	cfg.Index.AdminEnabled = false
	assert.Equal(t, http.StatusForbidden, serve(http.MethodPost, "/api/index/rebuild", "").Code)
}

func TestRebuild_DisabledByDefault(t *testing.T) {
	engine := &fakeEngine{rebuilt: make(chan struct{}, 1)}
	setup(&fakeChat{}, engine)

	assert.Equal(t, http.StatusForbidden, serve(http.MethodPost, "/api/index/rebuild", "").Code)
	assert.Empty(t, engine.rebuilt)
}

func TestRebuild_RejectsWhileInFlight(t *testing.T) {
	engine := &fakeEngine{rebuilt: make(chan struct{}, 1), release: make(chan struct{})}
	cfg := setup(&fakeChat{}, engine)
	cfg.Index.AdminEnabled = true
	require.Eventually(t, func() bool { return !rebuildInFlight.Load() }, time.Second, 5*time.Millisecond)

	require.Equal(t, http.StatusAccepted, serve(http.MethodPost, "/api/index/rebuild", "").Code)
	<-engine.rebuilt

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusConflict, serve(http.MethodPost, "/api/index/rebuild", "").Code)
	}

	close(engine.release)
	assert.Eventually(t, func() bool { return !rebuildInFlight.Load() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, http.StatusAccepted, serve(http.MethodPost, "/api/index/rebuild", "").Code)
	<-engine.rebuilt
}

func TestHealth(t *testing.T) {
	chat := &fakeChat{breakers: []services.BreakerStats{{Name: "generation", State: "closed"}}}
	engine := &fakeEngine{stats: knowledge.EngineStats{Ready: false}}
	setup(chat, engine)

	rec := serve(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "initializing")

	engine.stats = knowledge.EngineStats{Ready: true, Records: 3}
	rec = serve(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"generation"`)
}
