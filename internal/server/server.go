// Package server wires the sandbox, limiters, auth gate, monitor and AI
// proxy into the HTTP surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mcpd/internal/ai"
	"mcpd/internal/auth"
	"mcpd/internal/clock"
	"mcpd/internal/config"
	"mcpd/internal/fstools"
	"mcpd/internal/llm"
	"mcpd/internal/llm/gemini"
	"mcpd/internal/llm/openai"
	mylog "mcpd/internal/log"
	"mcpd/internal/monitor"
	"mcpd/internal/ratelimit"
	"mcpd/internal/sandbox"
	"mcpd/internal/store"
)

const shutdownTimeout = 5 * time.Second

// Server owns every per-process service object. Nothing is global, so
// tests can build as many isolated instances as they need.
type Server struct {
	cfg     config.Config
	log     *zap.Logger
	sandbox *sandbox.Sandbox
	gate    sandbox.WriteGate
	auth    *auth.Gate
	general *ratelimit.Limiter
	aiLimit *ratelimit.Limiter
	monitor *monitor.Monitor
	proxy   *ai.Proxy
	mcp     http.Handler
}

// New builds a Server from cfg. A nil clock means the wall clock.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, clk clock.Clock) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.NewReal()
	}
	sb, err := sandbox.New(cfg.Root, cfg.AllowedPaths)
	if err != nil {
		return nil, fmt.Errorf("sandbox: %w", err)
	}
	dsn := cfg.LedgerDSN
	if dsn == "" {
		dsn = store.MemoryDSN
	}
	ledger, err := store.Open(ctx, dsn)
	if err != nil {
		logger.Warn("ledger.fallback", zap.String("dsn", dsn), zap.Error(err))
	}

	s := &Server{
		cfg:     cfg,
		log:     logger,
		sandbox: sb,
		gate:    sandbox.WriteGate{ReadOnly: cfg.ReadOnly, WriteEnabled: cfg.WriteEnabled},
		auth:    auth.New(cfg.AuthToken, logger),
		general: ratelimit.New(time.Duration(cfg.RateLimit.WindowMs)*time.Millisecond, cfg.RateLimit.Max, clk),
		aiLimit: ratelimit.New(time.Duration(cfg.AI.RateLimit.WindowMs)*time.Millisecond, cfg.AI.RateLimit.Max, clk),
		monitor: monitor.New(clk),
	}
	s.proxy = ai.New(ai.Options{
		Providers: providers(cfg.AI),
		Features:  ai.Features(cfg.AI.Endpoints),
		Cache:     ai.NewCache(cfg.AI.CacheMaxEntries, clk),
		Ledger:    ledger,
		Logger:    logger,
	})
	s.mcp = fstools.Handler(fstools.NewServer(fstools.Options{
		Sandbox:      sb,
		Gate:         s.gate,
		MaxBytes:     cfg.MaxBodyBytes,
		AllowedTools: cfg.AllowedTools,
		Logger:       logger,
	}))
	if s.auth.Open() {
		logger.Warn("auth.disabled", zap.String("hint", "MCP_AUTH_TOKEN is not set; /write and /mcp accept any caller"))
	}
	return s, nil
}

func providers(c config.AI) []llm.Provider {
	timeout := time.Duration(c.TimeoutSeconds) * time.Second
	return []llm.Provider{
		openai.New(openai.Config{APIKey: c.GPT.APIKey, Model: c.GPT.Model, BaseURL: c.GPT.BaseURL, Timeout: timeout}),
		gemini.New(gemini.Config{APIKey: c.Gemini.APIKey, Model: c.Gemini.Model, BaseURL: c.Gemini.BaseURL, Timeout: timeout}),
	}
}

// Handler returns the routed HTTP surface.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.middleware(r)

	r.Get("/health", s.handleHealth)
	r.Get("/ls", s.handleList)
	r.Get("/read", s.handleRead)
	r.With(s.rejectReadOnly, s.auth.Require).Post("/write", s.handleWrite)
	r.Handle("/mcp", s.auth.Require(s.mcp))

	r.Get("/api/monitoring/stats", s.handleMonitoringStats)
	r.Route("/api/ai", func(r chi.Router) {
		r.Use(ratelimit.Middleware(s.aiLimit, ratelimit.ByClientIP("ai:"), s.log))
		r.Get("/stats", s.handleAIStats)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAI)
			for _, name := range config.AIEndpoints {
				r.Post("/"+name, s.handleAI(name))
			}
		})
	})
	return r
}

// middleware installs the stack shared by every route. The recoverer sits
// inside the monitor so a panic is counted as the 500 it becomes.
func (s *Server) middleware(r chi.Router) {
	if s.cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(logMiddleware(s.log))
	r.Use(s.monitor.Middleware)
	r.Use(chimw.Recoverer)
	r.Use(ratelimit.Middleware(s.general, ratelimit.ByClientIP(""), s.log))
}

// Close releases the usage ledger.
func (s *Server) Close() error { return s.proxy.Close() }

// Run serves on the configured port until ctx is cancelled or the process
// receives SIGINT/SIGTERM, then drains in-flight requests.
func Run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := New(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server.listen",
			zap.String("addr", srv.Addr),
			zap.String("root", cfg.Root),
			zap.Bool("readOnly", cfg.ReadOnly),
			zap.Bool("writeEnabled", cfg.WriteEnabled),
			zap.Bool("aiEnabled", cfg.AI.Enabled),
			mylog.Secret("authToken", cfg.AuthToken),
		)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		logger.Info("server.shutdown")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
