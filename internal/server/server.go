package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/passagehq/passage/internal/metrics"
)

// Server hosts the public gateway endpoints. Internal target handlers
// live on a separate mux (see NewInternalMux) that is never mounted
// here.
type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger
}

// Options configures optional server behavior.
type Options struct {
	// RateLimiter, when set, guards the gateway endpoints.
	RateLimiter *IPLimiter

	// Metrics, when set, is served on /metrics.
	Metrics *metrics.PipelineMetrics
}

// New builds the public router with the standard middleware chain.
func New(port int, logger *slog.Logger, handler *GatewayHandler, opts Options) *Server {
	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	if opts.RateLimiter != nil {
		r.Use(opts.RateLimiter.Middleware)
	}
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(middleware.Recoverer)

	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "passage")
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler())
	}

	r.Handle("/g/{gateway}", handler)
	r.Handle("/g/{gateway}/*", handler)

	return &Server{
		Router: r,
		Port:   port,
		logger: logger,
	}
}

// Start serves the public router until the context is cancelled, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.Port),
		Handler: s.Router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", slog.Int("port", s.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// NewInternalMux creates the mux internal targets are registered on.
// Handlers registered here are reachable only through the
// InternalExecutor, never from the network.
func NewInternalMux() *chi.Mux {
	return chi.NewRouter()
}
