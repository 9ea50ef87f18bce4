package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"mcpd/internal/llm"
)

const completion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "hello"}}],
  "usage": {"prompt_tokens": 5, "completion_tokens": 7, "total_tokens": 12}
}`

func TestCallNonStreaming(t *testing.T) {
	var got map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k-123" {
			t.Errorf("authorization header: %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completion))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(Config{APIKey: "k-123", BaseURL: srv.URL + "/v1", Timeout: 5 * time.Second})
	res, err := c.Call(context.Background(), llm.Request{Prompt: "hi", MaxTokens: 300, Temperature: 0.2})
	if err != nil {
		t.Fatal(err)
	}
	if res.Provider() != llm.GPT {
		t.Fatalf("provider: %s", res.Provider())
	}
	if s := res.ExtractContent(); s != "hello" {
		t.Fatalf("got %q", s)
	}
	if res.Tokens() != 12 {
		t.Fatalf("tokens: %d", res.Tokens())
	}
	if got["model"] != DefaultModel {
		t.Fatalf("model sent: %v", got["model"])
	}
	if got["max_tokens"] != float64(300) {
		t.Fatalf("max_tokens sent: %v", got["max_tokens"])
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("messages sent: %v", got["messages"])
	}
	if m, _ := msgs[0].(map[string]any); m["role"] != "user" || m["content"] != "hi" {
		t.Fatalf("message sent: %v", msgs[0])
	}
}

func TestCallModelOverride(t *testing.T) {
	var model string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		model = body.Model
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completion))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "k", Model: "gpt-4o", BaseURL: srv.URL})
	if _, err := c.Call(context.Background(), llm.Request{Prompt: "x"}); err != nil {
		t.Fatal(err)
	}
	if model != "gpt-4o" {
		t.Fatalf("configured model not used: %q", model)
	}
	if _, err := c.Call(context.Background(), llm.Request{Prompt: "x", Model: "o3-mini"}); err != nil {
		t.Fatal(err)
	}
	if model != "o3-mini" {
		t.Fatalf("request model not used: %q", model)
	}
}

func TestCallUpstreamErrorNoRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "k", BaseURL: srv.URL + "/v1"})
	_, err := c.Call(context.Background(), llm.Request{Prompt: "hi"})
	var ue *llm.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("want UpstreamError, got %T %v", err, err)
	}
	if ue.Status != http.StatusTooManyRequests {
		t.Fatalf("status: %d", ue.Status)
	}
	want := `GPT API error: 429 {"error":{"message":"slow down"}}`
	if err.Error() != want {
		t.Fatalf("message:\n got %s\nwant %s", err.Error(), want)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected exactly one upstream call, got %d", n)
	}
}

func TestCallWithoutKey(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.Call(context.Background(), llm.Request{Prompt: "hi"})
	if !errors.Is(err, llm.ErrNotConfigured) {
		t.Fatalf("want ErrNotConfigured, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("no request expected without a key")
	}
}

func TestExtractContentToleratesMissingFields(t *testing.T) {
	var nilResp *llm.GPTResponse
	if nilResp.ExtractContent() != "" || nilResp.Tokens() != 0 {
		t.Fatal("nil response should be empty")
	}
	if (&llm.GPTResponse{}).ExtractContent() != "" {
		t.Fatal("no choices should be empty")
	}
}
