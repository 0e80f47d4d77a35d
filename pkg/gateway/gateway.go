// Package gateway provides the public API for embedding the transform
// gateway. This is the stable API for external consumers.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/passagehq/passage/internal/config"
	"github.com/passagehq/passage/internal/content"
	contentmemory "github.com/passagehq/passage/internal/content/memory"
	contentsqlite "github.com/passagehq/passage/internal/content/sqlite"
	"github.com/passagehq/passage/internal/domain"
	"github.com/passagehq/passage/internal/metrics"
	"github.com/passagehq/passage/internal/pipeline"
	"github.com/passagehq/passage/internal/server"
	"github.com/passagehq/passage/internal/transform"
)

// Gateway assembles the transform pipeline, content store and HTTP
// surfaces. Embedders register internal target handlers on InternalMux
// before calling Start.
type Gateway struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   content.Store
	metrics *metrics.PipelineMetrics

	internal *chi.Mux
	orch     *pipeline.Orchestrator
	srv      *server.Server
}

// Option is a functional option for configuring a Gateway.
type Option func(*Gateway) error

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) error {
		g.logger = logger
		return nil
	}
}

// WithMemoryStore uses an in-memory content store.
func WithMemoryStore() Option {
	return func(g *Gateway) error {
		g.store = contentmemory.New()
		return nil
	}
}

// WithSQLiteStore uses a SQLite content store at the given path.
func WithSQLiteStore(path string) Option {
	return func(g *Gateway) error {
		store, err := contentsqlite.New(path)
		if err != nil {
			return fmt.Errorf("create sqlite content store: %w", err)
		}
		g.store = store
		return nil
	}
}

// WithStore uses a caller-supplied content store.
func WithStore(store content.Store) Option {
	return func(g *Gateway) error {
		g.store = store
		return nil
	}
}

// WithMetrics overrides the default metrics set.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(g *Gateway) error {
		g.metrics = m
		return nil
	}
}

// New creates a Gateway from configuration. Defaults: slog.Default
// logging, a store picked by cfg.Storage, fresh metrics.
func New(cfg *config.Config, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		cfg:      cfg,
		logger:   slog.Default(),
		internal: server.NewInternalMux(),
	}

	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if g.store == nil {
		switch cfg.Storage.Type {
		case "sqlite":
			store, err := contentsqlite.New(cfg.Storage.SQLite.Path)
			if err != nil {
				return nil, fmt.Errorf("create sqlite content store: %w", err)
			}
			g.store = store
		default:
			g.store = contentmemory.New()
		}
	}
	if g.metrics == nil {
		g.metrics = metrics.New()
	}

	orch, err := pipeline.New(pipeline.Config{
		Loader:    transform.NewLoader(g.store, g.logger),
		Executor:  server.NewInternalExecutor(g.internal),
		Resolver:  g.store,
		MaxHops:   cfg.Pipeline.MaxHops,
		Logger:    g.logger,
		Metrics:   g.metrics,
		RequestID: server.GetRequestID,
	})
	if err != nil {
		return nil, err
	}
	g.orch = orch

	gateways := make([]*domain.GatewayConfig, 0, len(cfg.Gateways))
	for _, rec := range cfg.Gateways {
		gateways = append(gateways, rec.Domain())
	}
	handler := server.NewGatewayHandler(orch, gateways)

	srvOpts := server.Options{Metrics: g.metrics}
	if cfg.Server.RateLimit.Enabled {
		limiter := server.NewIPLimiter(cfg.Server.RateLimit.PerSecond, cfg.Server.RateLimit.Burst)
		limiter.OnDenied = func(string) { g.metrics.RateLimited() }
		srvOpts.RateLimiter = limiter
	}
	g.srv = server.New(cfg.Server.Port, g.logger, handler, srvOpts)

	return g, nil
}

// InternalMux exposes the mux internal targets are registered on.
// Handlers registered here are only reachable through the pipeline.
func (g *Gateway) InternalMux() *chi.Mux {
	return g.internal
}

// Store exposes the content store, for ingesting transform source and
// templates.
func (g *Gateway) Store() content.Store {
	return g.store
}

// Handler exposes the public router, for embedding and tests.
func (g *Gateway) Handler() http.Handler {
	return g.srv.Router
}

// Pipeline exposes the orchestrator for non-HTTP request origins
// (batch, CLI).
func (g *Gateway) Pipeline() *pipeline.Orchestrator {
	return g.orch
}

// Start serves the public router until the context is cancelled, then
// shuts down gracefully.
func (g *Gateway) Start(ctx context.Context) error {
	return g.srv.Start(ctx)
}
