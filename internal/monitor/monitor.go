// Package monitor aggregates health checks and per-endpoint request and
// error counters for the monitoring route.
package monitor

import (
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"mcpd/internal/clock"
)

// MaxSamples bounds the response-time window used for the rolling average.
const MaxSamples = 100

// Checks is the health-check part of a Snapshot.
type Checks struct {
	TotalChecks         int        `json:"totalChecks"`
	Failures            int        `json:"failures"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastStatus          string     `json:"lastStatus"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt"`
	LastFailureAt       *time.Time `json:"lastFailureAt"`
	AvgResponseMs       float64    `json:"avgResponseMs"`
	Samples             int        `json:"samples"`
}

// Snapshot is a point-in-time copy of the aggregated state.
type Snapshot struct {
	StartedAt     time.Time      `json:"startedAt"`
	Uptime        string         `json:"uptime"`
	UptimeSeconds int64          `json:"uptimeSeconds"`
	Checks        Checks         `json:"checks"`
	Requests      map[string]int `json:"requests"`
	Errors        map[string]int `json:"errors"`
}

// Monitor is safe for concurrent use.
type Monitor struct {
	clock     clock.Clock
	startedAt time.Time

	mu       sync.Mutex
	checks   Checks
	samples  []float64
	requests map[string]int
	errors   map[string]int
}

func New(c clock.Clock) *Monitor {
	if c == nil {
		c = clock.NewReal()
	}
	return &Monitor{
		clock:     c,
		startedAt: c.Now(),
		checks:    Checks{LastStatus: "unknown"},
		requests:  make(map[string]int),
		errors:    make(map[string]int),
	}
}

// RecordCheck feeds one health check outcome into the rolling average.
func (m *Monitor) RecordCheck(ok bool, durationMs float64) {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checks.TotalChecks++
	if ok {
		m.checks.ConsecutiveFailures = 0
		m.checks.LastStatus = "ok"
		m.checks.LastSuccessAt = &now
	} else {
		m.checks.Failures++
		m.checks.ConsecutiveFailures++
		m.checks.LastStatus = "error"
		m.checks.LastFailureAt = &now
	}

	m.samples = append(m.samples, durationMs)
	if len(m.samples) > MaxSamples {
		m.samples = m.samples[len(m.samples)-MaxSamples:]
	}
	var sum float64
	for _, s := range m.samples {
		sum += s
	}
	m.checks.AvgResponseMs = sum / float64(len(m.samples))
	m.checks.Samples = len(m.samples)
}

// EndpointKey formats the counter key for a request.
func EndpointKey(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

func (m *Monitor) TrackRequest(key string) {
	m.mu.Lock()
	m.requests[key]++
	m.mu.Unlock()
}

func (m *Monitor) TrackError(key string) {
	m.mu.Lock()
	m.errors[key]++
	m.mu.Unlock()
}

// Snapshot copies the current state.
func (m *Monitor) Snapshot() Snapshot {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		StartedAt:     m.startedAt,
		Uptime:        strings.TrimSpace(humanize.RelTime(m.startedAt, now, "", "")),
		UptimeSeconds: int64(now.Sub(m.startedAt) / time.Second),
		Checks:        m.checks,
		Requests:      make(map[string]int, len(m.requests)),
		Errors:        make(map[string]int, len(m.errors)),
	}
	if m.checks.LastSuccessAt != nil {
		t := *m.checks.LastSuccessAt
		s.Checks.LastSuccessAt = &t
	}
	if m.checks.LastFailureAt != nil {
		t := *m.checks.LastFailureAt
		s.Checks.LastFailureAt = &t
	}
	for k, v := range m.requests {
		s.Requests[k] = v
	}
	for k, v := range m.errors {
		s.Errors[k] = v
	}
	return s
}
