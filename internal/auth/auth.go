// Package auth gates mutating routes behind a single shared bearer token.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"mcpd/internal/ratelimit"
)

// Outcome of a token check.
type Outcome int

const (
	Allow Outcome = iota
	Unauthenticated
	Forbidden
)

func (o Outcome) Status() int {
	switch o {
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusOK
	}
}

// Check compares the Authorization header against token. An empty token
// means the gate is open.
func Check(token, header string) Outcome {
	if token == "" {
		return Allow
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return Unauthenticated
	}
	got := header[len(prefix):]
	if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
		return Forbidden
	}
	return Allow
}

// Gate wraps handlers with the bearer check.
type Gate struct {
	token  string
	logger *zap.Logger
}

func New(token string, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{token: token, logger: logger}
}

// Open reports whether no token is configured.
func (g *Gate) Open() bool { return g.token == "" }

// Require rejects requests without the configured token. With no token
// configured every request passes and a warning is logged for each one.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.Open() {
			g.logger.Warn("auth.open",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remoteIP", ratelimit.ClientIP(r)),
				zap.String("hint", "set MCP_AUTH_TOKEN to protect mutating routes"),
			)
			next.ServeHTTP(w, r)
			return
		}
		switch Check(g.token, r.Header.Get("Authorization")) {
		case Unauthenticated:
			deny(w, http.StatusUnauthorized, "Missing or invalid Authorization header")
		case Forbidden:
			g.logger.Warn("auth.denied", zap.String("path", r.URL.Path), zap.String("remoteIP", ratelimit.ClientIP(r)))
			deny(w, http.StatusForbidden, "Invalid token")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
