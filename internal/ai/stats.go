package ai

import (
	"sync"

	"mcpd/internal/llm"
)

type ProviderStats struct {
	Calls  int `json:"calls"`
	Tokens int `json:"tokens"`
	Errors int `json:"errors"`
}

type CacheStats struct {
	Hits    int     `json:"hits"`
	Misses  int     `json:"misses"`
	Entries int     `json:"entries"`
	HitRate float64 `json:"hitRate"`
}

// Stats is the AI usage snapshot served by /api/ai/stats.
type Stats struct {
	GPT    ProviderStats `json:"gpt"`
	Gemini ProviderStats `json:"gemini"`
	Cache  CacheStats    `json:"cache"`
}

type usage struct {
	mu        sync.Mutex
	providers map[llm.Name]*ProviderStats
}

func newUsage() *usage {
	return &usage{providers: map[llm.Name]*ProviderStats{
		llm.GPT:    {},
		llm.Gemini: {},
	}}
}

func (u *usage) get(n llm.Name) *ProviderStats {
	ps, ok := u.providers[n]
	if !ok {
		ps = &ProviderStats{}
		u.providers[n] = ps
	}
	return ps
}

func (u *usage) success(n llm.Name, tokens int) {
	u.mu.Lock()
	ps := u.get(n)
	ps.Calls++
	ps.Tokens += tokens
	u.mu.Unlock()
}

func (u *usage) failure(n llm.Name) {
	u.mu.Lock()
	ps := u.get(n)
	ps.Calls++
	ps.Errors++
	u.mu.Unlock()
}

func (u *usage) snapshot(n llm.Name) ProviderStats {
	u.mu.Lock()
	defer u.mu.Unlock()
	return *u.get(n)
}
