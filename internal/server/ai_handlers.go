package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"mcpd/internal/ai"
	"mcpd/internal/monitor"
	"mcpd/internal/ratelimit"
	"mcpd/internal/store"
)

// requireAI answers 503 while AI features are switched off.
func (s *Server) requireAI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.AI.Enabled {
			writeError(w, http.StatusServiceUnavailable, "AI features are not enabled")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type aiResponse struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Raw     string         `json:"raw"`
	Cached  bool           `json:"cached"`
}

func (s *Server) handleAI(endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.MaxBodyBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		}
		var in ai.Input
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				writeAIError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			writeAIError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		res, err := s.proxy.Run(r.Context(), endpoint, in)
		if err != nil {
			var inErr *ai.InputError
			if errors.As(err, &inErr) {
				writeAIError(w, http.StatusBadRequest, err.Error())
				return
			}
			s.log.Error("ai.failed", zap.String("endpoint", endpoint), zap.Error(err))
			writeAIError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, aiResponse{Success: true, Data: res.Data, Raw: res.Raw, Cached: res.Cached})
	}
}

func (s *Server) handleAIStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.proxy.Stats())
}

type monitoringResponse struct {
	monitor.Snapshot
	RateLimits  map[string]ratelimit.Stats     `json:"rateLimits"`
	Sandbox     sandboxStats                   `json:"sandbox"`
	AI          *ai.Stats                      `json:"ai,omitempty"`
	AIEndpoints map[string]store.EndpointUsage `json:"aiEndpoints,omitempty"`
}

type sandboxStats struct {
	AllowedPaths []string `json:"allowedPaths"`
	ReadOnly     bool     `json:"readOnly"`
	WriteEnabled bool     `json:"writeEnabled"`
}

// handleMonitoringStats merges the AI usage into the monitor snapshot on a
// best-effort basis: a ledger failure only drops the endpoint section.
func (s *Server) handleMonitoringStats(w http.ResponseWriter, r *http.Request) {
	out := monitoringResponse{
		Snapshot: s.monitor.Snapshot(),
		RateLimits: map[string]ratelimit.Stats{
			"general": s.general.Stats(),
			"ai":      s.aiLimit.Stats(),
		},
		Sandbox: sandboxStats{
			AllowedPaths: s.sandbox.Allowed(),
			ReadOnly:     s.gate.ReadOnly,
			WriteEnabled: s.gate.WriteEnabled,
		},
	}
	st := s.proxy.Stats()
	out.AI = &st
	usage, err := s.proxy.EndpointUsage(r.Context())
	if err != nil {
		s.log.Warn("monitoring.ai_usage_unavailable", zap.Error(err))
	} else {
		out.AIEndpoints = usage
	}
	writeJSON(w, http.StatusOK, out)
}
