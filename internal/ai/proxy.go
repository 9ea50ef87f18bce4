// Package ai proxies the /api/ai endpoints to the upstream providers,
// caching results and metering usage.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mcpd/internal/llm"
	"mcpd/internal/store"
)

var ErrUnknownEndpoint = errors.New("unknown AI endpoint")

// InputError is a request body the endpoint cannot use.
type InputError struct {
	Field string
}

func (e *InputError) Error() string { return fmt.Sprintf("%q is required", e.Field) }

// Result is one endpoint answer.
type Result struct {
	Data   map[string]any `json:"data"`
	Raw    string         `json:"raw"`
	Cached bool           `json:"cached"`
}

type Options struct {
	Providers []llm.Provider
	Features  map[string]Feature
	Cache     *Cache
	Ledger    store.Ledger
	Logger    *zap.Logger
}

// Proxy is safe for concurrent use.
type Proxy struct {
	providers map[llm.Name]llm.Provider
	features  map[string]Feature
	cache     *Cache
	ledger    store.Ledger
	usage     *usage
	log       *zap.Logger
}

func New(opts Options) *Proxy {
	p := &Proxy{
		providers: make(map[llm.Name]llm.Provider, len(opts.Providers)),
		features:  opts.Features,
		cache:     opts.Cache,
		ledger:    opts.Ledger,
		usage:     newUsage(),
		log:       opts.Logger,
	}
	for _, pr := range opts.Providers {
		p.providers[pr.Name()] = pr
	}
	if p.features == nil {
		p.features = Features(nil)
	}
	if p.cache == nil {
		p.cache = NewCache(DefaultCacheEntries, nil)
	}
	if p.ledger == nil {
		p.ledger = store.NewMem()
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	return p
}

// Call performs one upstream call and meters it. Every failure, including
// a missing provider or API key, counts as an error for that provider.
func (p *Proxy) Call(ctx context.Context, name llm.Name, req llm.Request) (llm.Response, error) {
	pr, ok := p.providers[name]
	if !ok {
		p.usage.failure(name)
		return nil, llm.NotConfigured(name, strings.ToUpper(string(name))+"_API_KEY")
	}
	res, err := pr.Call(ctx, req)
	if err != nil {
		p.usage.failure(name)
		p.log.Warn("ai.upstream_error", zap.String("provider", string(name)), zap.Error(err))
		return nil, err
	}
	p.usage.success(name, res.Tokens())
	return res, nil
}

// Run serves one /api/ai/<endpoint> request.
func (p *Proxy) Run(ctx context.Context, endpoint string, in Input) (Result, error) {
	f, ok := p.features[endpoint]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownEndpoint, endpoint)
	}
	if strings.TrimSpace(in.Text(f.Required)) == "" {
		return Result{}, &InputError{Field: f.Required}
	}
	call := func(ctx context.Context, in Input) (llm.Response, error) {
		return p.Call(ctx, f.Provider, llm.Request{
			Prompt:      f.Prompt(in),
			MaxTokens:   f.MaxTokens,
			Temperature: f.Temperature,
		})
	}
	res, cached, err := CallWithCache(ctx, p.cache, endpoint, call, in, f.CacheTTL)
	if err != nil {
		p.record(ctx, store.Usage{Endpoint: endpoint, Provider: string(f.Provider), Error: true})
		return Result{}, err
	}
	tokens := res.Tokens()
	if cached {
		tokens = 0
	}
	p.record(ctx, store.Usage{Endpoint: endpoint, Provider: string(f.Provider), Tokens: tokens, Cached: cached})

	raw := res.ExtractContent()
	return Result{Data: ParseJSON(raw, f.Fallback()), Raw: raw, Cached: cached}, nil
}

func (p *Proxy) record(ctx context.Context, u store.Usage) {
	if err := p.ledger.Record(context.WithoutCancel(ctx), u); err != nil {
		p.log.Warn("ai.usage_record_failed", zap.String("endpoint", u.Endpoint), zap.Error(err))
	}
}

// Stats returns provider and cache counters.
func (p *Proxy) Stats() Stats {
	return Stats{
		GPT:    p.usage.snapshot(llm.GPT),
		Gemini: p.usage.snapshot(llm.Gemini),
		Cache:  p.cache.Stats(),
	}
}

// EndpointUsage returns the per-endpoint ledger totals.
func (p *Proxy) EndpointUsage(ctx context.Context) (map[string]store.EndpointUsage, error) {
	return p.ledger.Snapshot(ctx)
}

// Close releases the ledger.
func (p *Proxy) Close() error { return p.ledger.Close() }
