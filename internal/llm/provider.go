// Package llm defines the upstream AI provider contract and the response
// shapes the two supported providers return.
package llm

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Name identifies an upstream provider.
type Name string

const (
	GPT    Name = "gpt"
	Gemini Name = "gemini"
)

// Label is the provider name used in error messages.
func (n Name) Label() string {
	switch n {
	case GPT:
		return "GPT"
	case Gemini:
		return "Gemini"
	default:
		return string(n)
	}
}

// Request is one completion call. An empty Model means the provider default.
type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
	Model       string
}

// Provider performs a single upstream call. Implementations never retry.
type Provider interface {
	Name() Name
	Call(ctx context.Context, req Request) (Response, error)
}

// Response is either a *GPTResponse or a *GeminiResponse.
type Response interface {
	Provider() Name
	// ExtractContent returns the generated text, or "" when the payload
	// lacks it.
	ExtractContent() string
	// Tokens is the usage charged for the call.
	Tokens() int
	sealed()
}

// GPTResponse is a chat-completion result.
type GPTResponse struct {
	Model   string      `json:"model"`
	Choices []GPTChoice `json:"choices"`
	Usage   GPTUsage    `json:"usage"`
}

type GPTChoice struct {
	Content      string `json:"content"`
	FinishReason string `json:"finishReason,omitempty"`
}

type GPTUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

func (r *GPTResponse) Provider() Name { return GPT }

func (r *GPTResponse) ExtractContent() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Content
}

// Tokens reports the exact usage returned by the API.
func (r *GPTResponse) Tokens() int {
	if r == nil {
		return 0
	}
	return r.Usage.TotalTokens
}

func (*GPTResponse) sealed() {}

// GeminiResponse is a generate-content result.
type GeminiResponse struct {
	Model      string            `json:"model"`
	Candidates []GeminiCandidate `json:"candidates"`
}

type GeminiCandidate struct {
	Parts        []string `json:"parts"`
	FinishReason string   `json:"finishReason,omitempty"`
}

func (r *GeminiResponse) Provider() Name { return Gemini }

func (r *GeminiResponse) ExtractContent() string {
	if r == nil || len(r.Candidates) == 0 || len(r.Candidates[0].Parts) == 0 {
		return ""
	}
	return r.Candidates[0].Parts[0]
}

// Tokens estimates usage from the generated text; the API response carries
// no token count we rely on.
func (r *GeminiResponse) Tokens() int {
	return EstimateTokens(r.ExtractContent())
}

func (*GeminiResponse) sealed() {}

// EstimateTokens is ceil(runes / 4), counting Unicode code points rather
// than bytes or UTF-16 units.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}

// ErrNotConfigured means the provider's API key is missing.
var ErrNotConfigured = errors.New("provider not configured")

// UpstreamError is a non-2xx answer from a provider.
type UpstreamError struct {
	Provider Name
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s API error: %s", e.Provider.Label(), e.Body)
	}
	return fmt.Sprintf("%s API error: %d %s", e.Provider.Label(), e.Status, e.Body)
}

// NotConfigured builds the error returned when key env var is unset.
func NotConfigured(n Name, envKey string) error {
	return fmt.Errorf("%s: %w: %s is not set", n.Label(), ErrNotConfigured, envKey)
}
