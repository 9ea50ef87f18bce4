package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// KnownKeys defines environment variable keys that mcpd recognizes.
var KnownKeys = []string{
	"PORT",
	"MCP_PORT",
	"MCP_ROOT",
	"MCP_ALLOWED_PATHS",
	"MCP_AUTH_TOKEN",
	"MCP_WRITE_ENABLED",
	"MCP_READONLY",
	"MCP_TRUST_PROXY",
	"MCP_MAX_BODY",
	"MCP_LOG_LEVEL",
	"MCP_RATE_LIMIT_WINDOW_MS",
	"MCP_RATE_LIMIT_MAX",
	"MCP_SERVER_URL",
	"MCP_ALLOWED_TOOLS",
	"MCP_LEDGER_DSN",
	"AI_FEATURES_ENABLED",
	"AI_RATE_LIMIT_WINDOW_MS",
	"AI_RATE_LIMIT_MAX",
	"AI_TIMEOUT",
	"AI_CACHE_MAX_ENTRIES",
	"GPT_API_KEY",
	"GPT_MODEL",
	"GPT_BASE_URL",
	"GEMINI_API_KEY",
	"GEMINI_MODEL",
	"GEMINI_BASE_URL",
}

// AIEndpoints lists the business endpoints served under /api/ai. Each one
// reads AI_MAX_TOKENS_<SUFFIX> and AI_CACHE_TTL_<SUFFIX>.
var AIEndpoints = []string{
	"log-summarize",
	"code-review",
	"design-tokens",
	"microcopy",
	"debug-canvas",
}

// EnvSuffix maps an endpoint name to its env var suffix: log-summarize -> LOG_SUMMARIZE.
func EnvSuffix(endpoint string) string {
	return strings.ToUpper(strings.ReplaceAll(endpoint, "-", "_"))
}

// DefaultPaths are searched, in order, when no config path is given.
var DefaultPaths = []string{"mcp.config.yaml", "mcp.config.yml", "mcp.config.json"}

type Config struct {
	Port         int      `yaml:"port" json:"port"`
	Root         string   `yaml:"root" json:"root"`
	AllowedPaths []string `yaml:"allowed_paths" json:"allowed_paths"`
	ReadOnly     bool     `yaml:"read_only" json:"read_only"`
	MaxBody      string   `yaml:"max_body" json:"max_body"`
	LogLevel     string   `yaml:"log_level" json:"log_level"`
	RateLimit    Limit    `yaml:"rate_limit" json:"rate_limit"`
	AI           AI       `yaml:"ai" json:"ai"`
	// AllowedTools restricts the MCP tools served on /mcp; empty serves all.
	AllowedTools []string `yaml:"allowed_tools" json:"allowed_tools"`
	// LedgerDSN is the SQLite DSN for endpoint usage; empty keeps it in memory.
	LedgerDSN string `yaml:"ledger_dsn" json:"ledger_dsn"`
	// TrustProxy keys clients by X-Forwarded-For/X-Real-IP instead of the
	// socket address. Only enable it behind a proxy that overwrites them.
	TrustProxy bool `yaml:"trust_proxy" json:"trust_proxy"`

	// Env only.
	AuthToken    string `yaml:"-" json:"-"`
	WriteEnabled bool   `yaml:"-" json:"-"`

	// Derived from MaxBody.
	MaxBodyBytes int64 `yaml:"-" json:"-"`
	// Source is the file the config was read from, empty for defaults.
	Source string `yaml:"-" json:"-"`
}

// Limit configures one windowed rate limiter. Max <= 0 disables it.
type Limit struct {
	WindowMs int `yaml:"window_ms" json:"window_ms"`
	Max      int `yaml:"max" json:"max"`
}

type AI struct {
	Enabled         bool                `yaml:"enabled" json:"enabled"`
	RateLimit       Limit               `yaml:"rate_limit" json:"rate_limit"`
	TimeoutSeconds  int                 `yaml:"timeout_seconds" json:"timeout_seconds"`
	CacheMaxEntries int                 `yaml:"cache_max_entries" json:"cache_max_entries"`
	GPT             Provider            `yaml:"gpt" json:"gpt"`
	Gemini          Provider            `yaml:"gemini" json:"gemini"`
	Endpoints       map[string]Endpoint `yaml:"endpoints" json:"endpoints"`
}

type Provider struct {
	Model   string `yaml:"model" json:"model"`
	BaseURL string `yaml:"base_url" json:"base_url"`
	APIKey  string `yaml:"-" json:"-"`
}

// Endpoint overrides per-endpoint defaults. Nil means "use the built-in default";
// a CacheTTLSeconds of 0 disables caching for that endpoint.
type Endpoint struct {
	MaxTokens       *int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	CacheTTLSeconds *int `yaml:"cache_ttl_seconds,omitempty" json:"cache_ttl_seconds,omitempty"`
}

// Default returns a Config with the service defaults and the working
// directory as sandbox root.
func Default() Config {
	root, err := os.Getwd()
	if err != nil {
		root = "."
	}
	return Config{
		Port:      8787,
		Root:      root,
		MaxBody:   "1MB",
		RateLimit: Limit{WindowMs: 1000, Max: 60},
		AI: AI{
			RateLimit:       Limit{WindowMs: 60000, Max: 10},
			TimeoutSeconds:  60,
			CacheMaxEntries: 500,
			GPT:             Provider{Model: "gpt-4o-mini"},
			Gemini:          Provider{Model: "gemini-1.5-flash"},
			Endpoints:       map[string]Endpoint{},
		},
	}
}

// Load reads the config file at path (or the first of DefaultPaths that
// exists when path is empty), overlays the process environment and validates
// the result.
func Load(path string) (Config, error) {
	return LoadWith(path, os.Getenv)
}

// LoadWith is Load with an injectable environment lookup.
func LoadWith(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path == "" {
		for _, p := range DefaultPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path != "" {
		if err := readFile(path, &cfg); err != nil {
			return Config{}, err
		}
		cfg.Source = path
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.finalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if strings.HasSuffix(path, ".json") {
		err = json.Unmarshal(b, cfg)
	} else {
		err = yaml.Unmarshal(b, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	var errs []error
	setInt := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setBool := func(key string, dst *bool) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = parseBool(v)
		}
	}
	setString := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	setInt("MCP_PORT", &cfg.Port)
	setInt("PORT", &cfg.Port)
	setString("MCP_ROOT", &cfg.Root)
	if v := getenv("MCP_ALLOWED_PATHS"); v != "" {
		cfg.AllowedPaths = splitCSV(v)
	}
	setBool("MCP_READONLY", &cfg.ReadOnly)
	setBool("MCP_WRITE_ENABLED", &cfg.WriteEnabled)
	setBool("MCP_TRUST_PROXY", &cfg.TrustProxy)
	setString("MCP_AUTH_TOKEN", &cfg.AuthToken)
	setString("MCP_MAX_BODY", &cfg.MaxBody)
	setString("MCP_LOG_LEVEL", &cfg.LogLevel)
	setInt("MCP_RATE_LIMIT_WINDOW_MS", &cfg.RateLimit.WindowMs)
	setInt("MCP_RATE_LIMIT_MAX", &cfg.RateLimit.Max)
	if v := getenv("MCP_ALLOWED_TOOLS"); v != "" {
		cfg.AllowedTools = splitCSV(v)
	}
	setString("MCP_LEDGER_DSN", &cfg.LedgerDSN)

	setBool("AI_FEATURES_ENABLED", &cfg.AI.Enabled)
	setInt("AI_RATE_LIMIT_WINDOW_MS", &cfg.AI.RateLimit.WindowMs)
	setInt("AI_RATE_LIMIT_MAX", &cfg.AI.RateLimit.Max)
	setInt("AI_TIMEOUT", &cfg.AI.TimeoutSeconds)
	setInt("AI_CACHE_MAX_ENTRIES", &cfg.AI.CacheMaxEntries)
	setString("GPT_API_KEY", &cfg.AI.GPT.APIKey)
	setString("GPT_MODEL", &cfg.AI.GPT.Model)
	setString("GPT_BASE_URL", &cfg.AI.GPT.BaseURL)
	setString("GEMINI_API_KEY", &cfg.AI.Gemini.APIKey)
	setString("GEMINI_MODEL", &cfg.AI.Gemini.Model)
	setString("GEMINI_BASE_URL", &cfg.AI.Gemini.BaseURL)

	if cfg.AI.Endpoints == nil {
		cfg.AI.Endpoints = map[string]Endpoint{}
	}
	for _, name := range AIEndpoints {
		ep := cfg.AI.Endpoints[name]
		suffix := EnvSuffix(name)
		if v := strings.TrimSpace(getenv("AI_MAX_TOKENS_" + suffix)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("AI_MAX_TOKENS_%s: %w", suffix, err))
			} else {
				ep.MaxTokens = &n
			}
		}
		if v := strings.TrimSpace(getenv("AI_CACHE_TTL_" + suffix)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("AI_CACHE_TTL_%s: %w", suffix, err))
			} else {
				ep.CacheTTLSeconds = &n
			}
		}
		if ep.MaxTokens != nil || ep.CacheTTLSeconds != nil {
			cfg.AI.Endpoints[name] = ep
		}
	}
	return errors.Join(errs...)
}

func (c *Config) finalize() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	root, err := filepath.Abs(c.Root)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}
	fi, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("sandbox root: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("sandbox root %s is not a directory", root)
	}
	c.Root = root
	for _, p := range c.AllowedPaths {
		clean := filepath.Clean(p)
		if filepath.IsAbs(p) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return fmt.Errorf("allowed path %q must be relative to the root", p)
		}
	}
	if c.MaxBody == "" {
		c.MaxBody = "1MB"
	}
	n, err := humanize.ParseBytes(c.MaxBody)
	if err != nil {
		return fmt.Errorf("max_body: %w", err)
	}
	c.MaxBodyBytes = int64(n)
	return nil
}

// Redacted returns a copy safe to print: secrets are masked.
func (c Config) Redacted(redact func(string) string) map[string]any {
	out := map[string]any{
		"port":          c.Port,
		"root":          c.Root,
		"allowed_paths": c.AllowedPaths,
		"read_only":     c.ReadOnly,
		"write_enabled": c.WriteEnabled,
		"auth_token":    redact(c.AuthToken),
		"max_body":      humanize.Bytes(uint64(c.MaxBodyBytes)),
		"rate_limit":    c.RateLimit,
		"allowed_tools": c.AllowedTools,
		"ledger_dsn":    c.LedgerDSN,
		"trust_proxy":   c.TrustProxy,
		"ai": map[string]any{
			"enabled":           c.AI.Enabled,
			"rate_limit":        c.AI.RateLimit,
			"timeout_seconds":   c.AI.TimeoutSeconds,
			"cache_max_entries": c.AI.CacheMaxEntries,
			"gpt":               map[string]string{"model": c.AI.GPT.Model, "base_url": c.AI.GPT.BaseURL, "api_key": redact(c.AI.GPT.APIKey)},
			"gemini":            map[string]string{"model": c.AI.Gemini.Model, "base_url": c.AI.Gemini.BaseURL, "api_key": redact(c.AI.Gemini.APIKey)},
			"endpoints":         c.AI.Endpoints,
		},
	}
	if c.Source != "" {
		out["source"] = c.Source
	}
	return out
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
