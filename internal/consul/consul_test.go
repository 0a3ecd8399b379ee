package consul

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aihub/medical-rag/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeAgent(t *testing.T, kv map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/v1/health/state/"):
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte("[]"))
		case strings.HasPrefix(r.URL.Path, "/v1/kv/"):
			key := strings.TrimPrefix(r.URL.Path, "/v1/kv/")
			value, ok := kv[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Consul-Index", "1")
			_ = json.NewEncoder(w).Encode([]map[string]interface{}{{
				"Key":   key,
				"Value": base64.StdEncoding.EncodeToString([]byte(value)),
			}})
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClient_Disabled(t *testing.T) {
	c, err := NewClient("", false, nil)
	require.NoError(t, err)
	assert.False(t, c.IsEnabled())
	assert.NoError(t, c.DeregisterService("x"))
	assert.Equal(t, 0, ApplyKVOverrides(c, "rag", config.Default(), nil))
}

func TestApplyKVOverrides(t *testing.T) {
	srv := fakeAgent(t, map[string]string{
		"rag/retrieval/top_k":           "5",
		"rag/retrieval/score_threshold": "0.5",
		"rag/generation/model":          "qwen2.5:7b",
		"rag/chat/history_limit":        "not-a-number",
	})
	c, err := NewClient(strings.TrimPrefix(srv.URL, "http://"), true, nil)
	require.NoError(t, err)
	require.True(t, c.IsEnabled())

	cfg := config.Default()
	applied := ApplyKVOverrides(c, "rag", cfg, nil)

	assert.Equal(t, 3, applied)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.InDelta(t, 0.5, cfg.Retrieval.ScoreThreshold, 1e-9)
	assert.Equal(t, "qwen2.5:7b", cfg.Generation.Model)
	assert.Equal(t, 6, cfg.Chat.HistoryLimit)
}

func TestRegistration(t *testing.T) {
	t.Setenv("SERVICE_HOST", "rag-1")
	c, _ := NewClient("", false, nil)
	sr := NewServiceRegistry(c, "", "medical-rag", nil)
	assert.True(t, strings.HasPrefix(sr.ServiceID(), "medical-rag-"))

	cfg := config.Default()
	reg := sr.Registration(cfg)
	assert.Equal(t, "medical-rag", reg.Name)
	assert.Equal(t, cfg.Server.Port, reg.Port)
	assert.Equal(t, "http://rag-1:5000/health", reg.Check.HTTP)

	assert.NoError(t, sr.Register(cfg))
}
