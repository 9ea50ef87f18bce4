package log

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var nameToLevel = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
}

// New builds a JSON production logger. An empty level falls back to
// MCP_LOG_LEVEL, then info.
func New(level string) (*zap.Logger, error) {
	if level == "" {
		level = os.Getenv("MCP_LOG_LEVEL")
	}
	lvl := zapcore.InfoLevel
	if level != "" {
		l, ok := nameToLevel[strings.ToLower(level)]
		if !ok {
			return nil, fmt.Errorf("unknown log level %q", level)
		}
		lvl = l
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// Secret returns a zap field whose value is redacted.
func Secret(key, value string) zap.Field {
	return zap.String(key, Redact(value))
}

var secretLike = regexp.MustCompile(`(?i)^(sk-|bearer\s+)?[a-z0-9_\-]{20,}$`)

// LooksSecret reports whether s resembles an API key or bearer token.
func LooksSecret(s string) bool { return secretLike.MatchString(s) }

// Redact keeps the first and last four characters of s.
func Redact(s string) string {
	if strings.HasPrefix(strings.ToLower(s), "bearer ") {
		return "Bearer " + Redact(strings.TrimSpace(s[len("bearer "):]))
	}
	n := len(s)
	if n == 0 {
		return ""
	}
	if n <= 8 {
		return "***"
	}
	return fmt.Sprintf("%s***%s", s[:4], s[n-4:])
}
