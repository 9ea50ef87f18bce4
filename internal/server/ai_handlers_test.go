package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpd/internal/ai"
	"mcpd/internal/config"
)

// fakeGPT answers chat completions with content and counts the calls.
func fakeGPT(t *testing.T, status int, content string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream exploded"}}`))
			return
		}
		msg, _ := json.Marshal(content)
		_, _ = w.Write([]byte(`{
  "id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": ` + string(msg) + `}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 40, "completion_tokens": 15, "total_tokens": 55}
}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func fakeGemini(t *testing.T, text string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		part, _ := json.Marshal(text)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates": [{"content": {"role": "model", "parts": [{"text": ` + string(part) + `}]}, "finishReason": "STOP"}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func aiStats(t *testing.T, base string) ai.Stats {
	t.Helper()
	resp, b := do(t, http.MethodGet, base+"/api/ai/stats", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st ai.Stats
	require.NoError(t, json.Unmarshal(b, &st))
	return st
}

func TestAIDisabled(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	for _, name := range config.AIEndpoints {
		resp, b := do(t, http.MethodPost, ts.URL+"/api/ai/"+name, map[string]string{"logs": "x"}, nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, name)
		assert.JSONEq(t, `{"error":"AI features are not enabled"}`, string(b))
	}
	// stats stay readable with the flag off
	resp, _ := do(t, http.MethodGet, ts.URL+"/api/ai/stats", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAILogSummarizeCaches(t *testing.T) {
	upstream, calls := fakeGPT(t, http.StatusOK, "Here you go:\n{\"summary\":\"db timeouts\",\"issues\":[],\"severity\":\"error\"}\nThanks")
	ts, _ := newTestServer(t, func(c *config.Config) {
		c.AI.Enabled = true
		c.AI.GPT.APIKey = "sk-test"
		c.AI.GPT.BaseURL = upstream.URL
	})

	body := map[string]any{"logs": []string{"ERROR db timeout", "ERROR db timeout"}}
	resp, b := do(t, http.MethodPost, ts.URL+"/api/ai/log-summarize", body, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(b))
	m := decode(t, b)
	assert.Equal(t, true, m["success"])
	assert.Equal(t, false, m["cached"])
	assert.Equal(t, "db timeouts", m["data"].(map[string]any)["summary"])
	assert.Contains(t, m["raw"], "Here you go")

	resp, b = do(t, http.MethodPost, ts.URL+"/api/ai/log-summarize", body, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decode(t, b)["cached"])
	assert.EqualValues(t, 1, calls.Load())

	st := aiStats(t, ts.URL)
	assert.Equal(t, ai.ProviderStats{Calls: 1, Tokens: 55}, st.GPT)
	assert.Equal(t, 1, st.Cache.Hits)
	assert.Equal(t, 1, st.Cache.Misses)

	_, b = do(t, http.MethodGet, ts.URL+"/api/monitoring/stats", nil, nil)
	endpoints := decode(t, b)["aiEndpoints"].(map[string]any)
	ls := endpoints["log-summarize"].(map[string]any)
	assert.EqualValues(t, 2, ls["calls"])
	assert.EqualValues(t, 55, ls["tokens"])
	assert.EqualValues(t, 1, ls["cacheHits"])
}

func TestAIFallbackOnProse(t *testing.T) {
	upstream, _ := fakeGPT(t, http.StatusOK, "Looks fine to me.")
	ts, _ := newTestServer(t, func(c *config.Config) {
		c.AI.Enabled = true
		c.AI.GPT.APIKey = "sk-test"
		c.AI.GPT.BaseURL = upstream.URL
	})
	resp, b := do(t, http.MethodPost, ts.URL+"/api/ai/code-review", map[string]any{"code": "func main() {}", "language": "go"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	m := decode(t, b)
	data := m["data"].(map[string]any)
	assert.Contains(t, data, "issues")
	assert.Contains(t, data, "suggestions")
	assert.Equal(t, "Looks fine to me.", m["raw"])
}

func TestAIUpstreamError(t *testing.T) {
	upstream, _ := fakeGPT(t, http.StatusInternalServerError, "")
	ts, _ := newTestServer(t, func(c *config.Config) {
		c.AI.Enabled = true
		c.AI.GPT.APIKey = "sk-test"
		c.AI.GPT.BaseURL = upstream.URL
	})
	resp, b := do(t, http.MethodPost, ts.URL+"/api/ai/debug-canvas", map[string]any{"error": "TypeError: x is undefined"}, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	m := decode(t, b)
	assert.Equal(t, false, m["success"])
	assert.Contains(t, m["error"], "GPT API error: 500")

	st := aiStats(t, ts.URL)
	assert.Equal(t, 1, st.GPT.Calls)
	assert.Equal(t, 1, st.GPT.Errors)
}

func TestAIMissingKey(t *testing.T) {
	ts, _ := newTestServer(t, func(c *config.Config) { c.AI.Enabled = true })
	resp, b := do(t, http.MethodPost, ts.URL+"/api/ai/design-tokens", map[string]any{"description": "calm fintech dashboard"}, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, decode(t, b)["error"], "GEMINI_API_KEY")
	assert.Equal(t, 1, aiStats(t, ts.URL).Gemini.Errors)
}

func TestAIBadInput(t *testing.T) {
	ts, _ := newTestServer(t, func(c *config.Config) { c.AI.Enabled = true })

	resp, b := do(t, http.MethodPost, ts.URL+"/api/ai/microcopy", map[string]any{"tone": "friendly"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, `"context" is required`, decode(t, b)["error"])

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/ai/microcopy", strings.NewReader("{not json"))
	require.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestAIGeminiMicrocopy(t *testing.T) {
	upstream := fakeGemini(t, `{"variants":["Save changes","Keep it"]}`)
	ts, _ := newTestServer(t, func(c *config.Config) {
		c.AI.Enabled = true
		c.AI.Gemini.APIKey = "g-test"
		c.AI.Gemini.BaseURL = upstream.URL
	})
	resp, b := do(t, http.MethodPost, ts.URL+"/api/ai/microcopy", map[string]any{"context": "save button"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(b))
	data := decode(t, b)["data"].(map[string]any)
	assert.Equal(t, []any{"Save changes", "Keep it"}, data["variants"])

	st := aiStats(t, ts.URL)
	assert.Equal(t, 1, st.Gemini.Calls)
	// 39 characters -> ceil(39/4)
	assert.Equal(t, 10, st.Gemini.Tokens)
}

func TestAILimiterIsSeparate(t *testing.T) {
	ts, _ := newTestServer(t, func(c *config.Config) {
		c.AI.RateLimit = config.Limit{WindowMs: 60000, Max: 1}
	})
	resp, _ := do(t, http.MethodGet, ts.URL+"/api/ai/stats", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, ts.URL+"/api/ai/log-summarize", map[string]string{"logs": "x"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAILimiterIgnoresForwardedHeaders(t *testing.T) {
	ts, _ := newTestServer(t, func(c *config.Config) {
		c.AI.RateLimit = config.Limit{WindowMs: 60000, Max: 1}
	})
	allowed := 0
	for i := 0; i < 20; i++ {
		resp, _ := do(t, http.MethodGet, ts.URL+"/api/ai/stats", nil, map[string]string{
			"X-Forwarded-For": fmt.Sprintf("198.51.100.%d", i),
		})
		if resp.StatusCode == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 1, allowed)
}
