// Package gemini is the Gemini generate-content provider.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"google.golang.org/genai"

	"mcpd/internal/llm"
)

const (
	DefaultModel      = "gemini-1.5-flash"
	DefaultAPIVersion = "v1beta"
)

type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides https://generativelanguage.googleapis.com.
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	cfg Config

	once   sync.Once
	api    *genai.Client
	apiErr error
}

func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg}
}

func (c *Client) Name() llm.Name { return llm.Gemini }

func (c *Client) client(ctx context.Context) (*genai.Client, error) {
	c.once.Do(func() {
		c.api, c.apiErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:     c.cfg.APIKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: c.cfg.HTTPClient,
			HTTPOptions: genai.HTTPOptions{
				BaseURL:    c.cfg.BaseURL,
				APIVersion: DefaultAPIVersion,
			},
		})
	})
	return c.api, c.apiErr
}

// Call implements llm.Provider using the generateContent API.
func (c *Client) Call(ctx context.Context, req llm.Request) (llm.Response, error) {
	if c.cfg.APIKey == "" {
		return nil, llm.NotConfigured(llm.Gemini, "GEMINI_API_KEY")
	}
	api, err := c.client(ctx)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	gc := &genai.GenerateContentConfig{Temperature: genai.Ptr(float32(req.Temperature))}
	if req.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(req.MaxTokens)
	}
	res, err := api.Models.GenerateContent(ctx, model, []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}, gc)
	if err != nil {
		var ae genai.APIError
		if errors.As(err, &ae) {
			return nil, &llm.UpstreamError{Provider: llm.Gemini, Status: ae.Code, Body: ae.Message}
		}
		return nil, &llm.UpstreamError{Provider: llm.Gemini, Body: err.Error()}
	}
	return convert(model, res), nil
}

func convert(model string, res *genai.GenerateContentResponse) *llm.GeminiResponse {
	out := &llm.GeminiResponse{Model: model}
	if res == nil {
		return out
	}
	if res.ModelVersion != "" {
		out.Model = res.ModelVersion
	}
	for _, cand := range res.Candidates {
		if cand == nil {
			continue
		}
		gc := llm.GeminiCandidate{FinishReason: string(cand.FinishReason)}
		if cand.Content != nil {
			for _, p := range cand.Content.Parts {
				if p != nil {
					gc.Parts = append(gc.Parts, p.Text)
				}
			}
		}
		out.Candidates = append(out.Candidates, gc)
	}
	return out
}
