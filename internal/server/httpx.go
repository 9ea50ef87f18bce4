package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mcpd/internal/monitor"
	"mcpd/internal/ratelimit"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}

type aiError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeAIError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, aiError{Error: msg})
}

// logMiddleware assigns a request id and logs one line per request.
func logMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			// request-id propagation: accept client-provided or generate
			reqID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", reqID)
			rec := monitor.NewRecorder(w)
			next.ServeHTTP(rec, r)
			logger.Info("http.req",
				zap.String("req_id", reqID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("userAgent", r.UserAgent()),
				zap.String("remoteIP", ratelimit.ClientIP(r)),
				zap.Int("status", rec.Status()),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.Int("bytes", rec.Bytes()),
			)
		})
	}
}
