package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/passagehq/passage/internal/config"
	"github.com/passagehq/passage/internal/telemetry"
	"github.com/passagehq/passage/pkg/gateway"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	shutdown, err := telemetry.InitTracer("passage", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	cfgPath := os.Getenv("PASSAGE_CONFIG")
	if cfgPath == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			cfgPath = "config.yaml"
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	gw, err := gateway.New(cfg, gateway.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to create gateway: %v", err)
	}

	registerBuiltins(gw)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
	}()

	if err := gw.Start(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// registerBuiltins mounts the internal targets every deployment gets.
// Gateways registered by operators typically point at handlers mounted
// by the embedding application; /echo is the built-in smoke target.
func registerBuiltins(gw *gateway.Gateway) {
	gw.InternalMux().Handle("/echo", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := make(map[string]string, len(r.Header))
		for k, v := range r.Header {
			if len(v) > 0 {
				headers[k] = v[0]
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"method":       r.Method,
			"path":         r.URL.Path,
			"query_string": r.URL.RawQuery,
			"headers":      headers,
		})
	}))
}
