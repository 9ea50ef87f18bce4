// Package store keeps the per-endpoint AI usage ledger.
package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Usage is one recorded call against a named AI endpoint.
type Usage struct {
	Endpoint string
	Provider string
	Tokens   int
	Error    bool
	Cached   bool
	At       time.Time
}

// EndpointUsage is the running total for one endpoint.
type EndpointUsage struct {
	Calls       int            `json:"calls"`
	Tokens      int            `json:"tokens"`
	Errors      int            `json:"errors"`
	CacheHits   int            `json:"cacheHits"`
	Providers   map[string]int `json:"providers,omitempty"`
	FirstUsedAt time.Time      `json:"firstUsedAt"`
	LastUsedAt  time.Time      `json:"lastUsedAt"`
}

// Ledger records endpoint usage. Implementations are safe for concurrent use.
type Ledger interface {
	Record(ctx context.Context, u Usage) error
	Snapshot(ctx context.Context) (map[string]EndpointUsage, error)
	Close() error
}

var ErrNoEndpoint = errors.New("usage endpoint required")

func validate(u *Usage) error {
	if u.Endpoint == "" {
		return ErrNoEndpoint
	}
	if u.At.IsZero() {
		u.At = time.Now()
	}
	if u.Tokens < 0 {
		u.Tokens = 0
	}
	return nil
}

// Mem is the map-backed Ledger.
type Mem struct {
	mu   sync.RWMutex
	rows map[string]*EndpointUsage
}

func NewMem() *Mem {
	return &Mem{rows: make(map[string]*EndpointUsage)}
}

func (s *Mem) Record(_ context.Context, u Usage) error {
	if err := validate(&u); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[u.Endpoint]
	if !ok {
		row = &EndpointUsage{FirstUsedAt: u.At}
		s.rows[u.Endpoint] = row
	}
	row.Calls++
	row.Tokens += u.Tokens
	if u.Error {
		row.Errors++
	}
	if u.Cached {
		row.CacheHits++
	} else if u.Provider != "" {
		if row.Providers == nil {
			row.Providers = make(map[string]int)
		}
		row.Providers[u.Provider]++
	}
	row.LastUsedAt = u.At
	return nil
}

func (s *Mem) Snapshot(context.Context) (map[string]EndpointUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]EndpointUsage, len(s.rows))
	for k, v := range s.rows {
		cp := *v
		if v.Providers != nil {
			cp.Providers = make(map[string]int, len(v.Providers))
			for p, n := range v.Providers {
				cp.Providers[p] = n
			}
		}
		out[k] = cp
	}
	return out, nil
}

func (s *Mem) Close() error { return nil }
