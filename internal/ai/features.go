package ai

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mcpd/internal/config"
	"mcpd/internal/llm"
)

// Input is the decoded JSON body of an AI route.
type Input map[string]any

// Text returns the field as prompt text: strings as-is, string lists joined
// by newlines, anything else as compact JSON.
func (in Input) Text(key string) string {
	v, ok := in[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []any:
		lines := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				lines = append(lines, s)
				continue
			}
			b, _ := json.Marshal(item)
			lines = append(lines, string(b))
		}
		return strings.Join(lines, "\n")
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// Int returns a numeric field, or def.
func (in Input) Int(key string, def int) int {
	if f, ok := in[key].(float64); ok && f > 0 {
		return int(f)
	}
	return def
}

func (in Input) or(key, def string) string {
	if s := strings.TrimSpace(in.Text(key)); s != "" {
		return s
	}
	return def
}

// Feature describes one /api/ai endpoint.
type Feature struct {
	Name        string
	Provider    llm.Name
	Required    string
	MaxTokens   int
	CacheTTL    time.Duration
	Temperature float64
	Prompt      func(Input) string
	Fallback    func() map[string]any
}

// Features returns the endpoint catalogue with the given overrides applied.
func Features(overrides map[string]config.Endpoint) map[string]Feature {
	out := make(map[string]Feature, len(catalogue))
	for _, f := range catalogue {
		if o, ok := overrides[f.Name]; ok {
			if o.MaxTokens != nil {
				f.MaxTokens = *o.MaxTokens
			}
			if o.CacheTTLSeconds != nil {
				f.CacheTTL = time.Duration(*o.CacheTTLSeconds) * time.Second
			}
		}
		out[f.Name] = f
	}
	return out
}

const jsonOnly = "Respond with a single JSON object and nothing else."

var catalogue = []Feature{
	{
		Name:        "log-summarize",
		Provider:    llm.GPT,
		Required:    "logs",
		MaxTokens:   500,
		CacheTTL:    5 * time.Minute,
		Temperature: 0.3,
		Prompt: func(in Input) string {
			return fmt.Sprintf(`Summarize the following application logs for a developer.
Context: %s

Logs:
%s

%s Shape: {"summary": string, "issues": [{"message": string, "count": number}], "severity": "info"|"warning"|"error"|"critical"}`,
				in.or("context", "none"), in.Text("logs"), jsonOnly)
		},
		Fallback: func() map[string]any {
			return map[string]any{"summary": "Unable to parse AI response", "issues": []any{}, "severity": "unknown"}
		},
	},
	{
		Name:        "code-review",
		Provider:    llm.GPT,
		Required:    "code",
		MaxTokens:   1000,
		CacheTTL:    10 * time.Minute,
		Temperature: 0.2,
		Prompt: func(in Input) string {
			return fmt.Sprintf(`Review this %s code. Focus: %s.

%s

%s Shape: {"issues": [{"line": number, "severity": string, "message": string}], "suggestions": [string], "score": number (0-100)}`,
				in.or("language", "source"), in.or("focus", "correctness, readability and performance"), in.Text("code"), jsonOnly)
		},
		Fallback: func() map[string]any {
			return map[string]any{"issues": []any{}, "suggestions": []any{}, "score": nil}
		},
	},
	{
		Name:        "design-tokens",
		Provider:    llm.Gemini,
		Required:    "description",
		MaxTokens:   800,
		CacheTTL:    time.Hour,
		Temperature: 0.7,
		Prompt: func(in Input) string {
			return fmt.Sprintf(`Propose design tokens for this product: %s
Brand notes: %s

%s Shape: {"colors": {name: hex}, "typography": {name: {"fontFamily": string, "fontSize": string, "fontWeight": number}}, "spacing": {name: string}}`,
				in.Text("description"), in.or("brand", "none"), jsonOnly)
		},
		Fallback: func() map[string]any {
			return map[string]any{"colors": map[string]any{}, "typography": map[string]any{}, "spacing": map[string]any{}}
		},
	},
	{
		Name:        "microcopy",
		Provider:    llm.Gemini,
		Required:    "context",
		MaxTokens:   300,
		CacheTTL:    30 * time.Minute,
		Temperature: 0.8,
		Prompt: func(in Input) string {
			return fmt.Sprintf(`Write %d short UI microcopy variants.
Element: %s
Context: %s
Tone: %s

%s Shape: {"variants": [string]}`,
				in.Int("count", 3), in.or("element", "label"), in.Text("context"), in.or("tone", "friendly"), jsonOnly)
		},
		Fallback: func() map[string]any {
			return map[string]any{"variants": []any{}}
		},
	},
	{
		Name:        "debug-canvas",
		Provider:    llm.GPT,
		Required:    "error",
		MaxTokens:   800,
		CacheTTL:    2 * time.Minute,
		Temperature: 0.2,
		Prompt: func(in Input) string {
			return fmt.Sprintf(`Diagnose this HTML canvas rendering problem.
Error: %s
Code:
%s
Canvas state: %s

%s Shape: {"diagnosis": string, "fixes": [{"description": string, "code": string}]}`,
				in.Text("error"), in.or("code", "not provided"), in.or("state", "not provided"), jsonOnly)
		},
		Fallback: func() map[string]any {
			return map[string]any{"diagnosis": "Unable to parse AI response", "fixes": []any{}}
		},
	},
}
