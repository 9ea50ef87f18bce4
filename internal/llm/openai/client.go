// Package openai is the GPT chat-completion provider.
package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"mcpd/internal/llm"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	// maxErrBody caps how much of an error response is kept.
	maxErrBody = 4 << 10
)

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

type Client struct {
	apiKey string
	model  string
	api    sdk.Client
}

func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	api := sdk.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"),
		option.WithHTTPClient(hc),
		option.WithMaxRetries(0),
		option.WithMiddleware(upstreamErrors),
	)
	return &Client{apiKey: cfg.APIKey, model: cfg.Model, api: api}
}

func (c *Client) Name() llm.Name { return llm.GPT }

// Call implements llm.Provider using the chat completions API.
func (c *Client) Call(ctx context.Context, req llm.Request) (llm.Response, error) {
	if c.apiKey == "" {
		return nil, llm.NotConfigured(llm.GPT, "GPT_API_KEY")
	}
	model := req.Model
	if model == "" {
		model = c.model
	}
	params := sdk.ChatCompletionNewParams{
		Model:       sdk.ChatModel(model),
		Messages:    []sdk.ChatCompletionMessageParamUnion{sdk.UserMessage(req.Prompt)},
		Temperature: sdk.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(req.MaxTokens))
	}
	res, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		var ue *llm.UpstreamError
		if errors.As(err, &ue) {
			return nil, ue
		}
		var ae *sdk.Error
		if errors.As(err, &ae) {
			return nil, &llm.UpstreamError{Provider: llm.GPT, Status: ae.StatusCode, Body: ae.RawJSON()}
		}
		return nil, &llm.UpstreamError{Provider: llm.GPT, Body: err.Error()}
	}
	out := &llm.GPTResponse{
		Model: res.Model,
		Usage: llm.GPTUsage{
			PromptTokens:     int(res.Usage.PromptTokens),
			CompletionTokens: int(res.Usage.CompletionTokens),
			TotalTokens:      int(res.Usage.TotalTokens),
		},
	}
	for _, ch := range res.Choices {
		out.Choices = append(out.Choices, llm.GPTChoice{Content: ch.Message.Content, FinishReason: ch.FinishReason})
	}
	return out, nil
}

// upstreamErrors turns any non-2xx answer into an *llm.UpstreamError that
// keeps the raw body, whatever its shape.
func upstreamErrors(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
	res, err := next(req)
	if err != nil || res.StatusCode/100 == 2 {
		return res, err
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrBody))
	return nil, &llm.UpstreamError{Provider: llm.GPT, Status: res.StatusCode, Body: strings.TrimSpace(string(body))}
}
