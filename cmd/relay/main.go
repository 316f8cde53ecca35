package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"relay/internal/pipeline"
	"relay/internal/platform/config"
	"relay/internal/platform/server"
	"relay/internal/platform/telemetry"
	"relay/internal/relay"
	"relay/internal/relay/adapter/inmem"
	"relay/internal/relay/adapter/jwks"
	"relay/internal/relay/httpadapter"
	"relay/internal/relay/middleware"
	"relay/internal/relay/terminal"
)

func main() {
	cfg := config.Load()

	// Logging
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	shutdown, err := telemetry.Setup(context.Background(), "relay")
	if err != nil {
		slog.Error("telemetry setup failed", "error", err)
		os.Exit(1)
	}

	metrics, err := telemetry.NewPipelineMetrics()
	if err != nil {
		slog.Error("metrics initialization failed", "error", err)
		os.Exit(1)
	}

	// Rate limiter
	rl := inmem.NewRateLimiter(cfg.RateLimit.Rate, cfg.RateLimit.Burst, time.Now)
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Cleanup()
			}
		}
	}()

	// JWKS client (optional)
	var keys relay.KeyProvider
	if cfg.JWKSEndpoint != "" {
		keys = jwks.NewClient(cfg.JWKSEndpoint, 5*time.Minute)
	}

	root, err := buildPipeline(cfg, logger, rl, keys, metrics)
	if err != nil {
		slog.Error("pipeline assembly failed", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "service": "relay"})
	})
	mux.Handle("/", httpadapter.New(root,
		httpadapter.WithTimeout(cfg.RequestTimeout),
		httpadapter.WithLogger(logger),
	))

	srv := server.New(cfg.Addr, mux)

	slog.Info("relay starting",
		"addr", cfg.Addr,
		"pipeline_file", cfg.PipelineFile,
		"upstream_url", cfg.UpstreamURL,
		"jwks_endpoint", cfg.JWKSEndpoint,
	)

	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
	}

	if err := shutdown(context.Background()); err != nil {
		slog.Error("telemetry shutdown error", "error", err)
	}
}

// buildPipeline loads the manifest named by PIPELINE_FILE, or falls back
// to a built-in chain proxying everything to UPSTREAM_URL.
func buildPipeline(cfg config.Config, logger *slog.Logger, rl relay.RateLimiter, keys relay.KeyProvider, metrics *telemetry.PipelineMetrics) (relay.Handler, error) {
	if cfg.PipelineFile != "" {
		reg := pipeline.StockRegistry(pipeline.StockDeps{
			Logger:  logger,
			Limiter: rl,
			Keys:    keys,
			Metrics: metrics,
		})
		return pipeline.Load(cfg.PipelineFile, reg)
	}

	upstream, err := terminal.NewUpstream(cfg.UpstreamURL, "default", metrics)
	if err != nil {
		return nil, err
	}

	b := relay.NewBuilder().
		Use(middleware.Metrics(metrics)).
		Use(middleware.RequestID).
		Use(middleware.Logging(logger)).
		Use(middleware.Recovery).
		Use(middleware.MaxBodySize(cfg.MaxBodyBytes)).
		Use(middleware.RateLimit(rl, metrics))
	if keys != nil {
		b.Use(middleware.Auth(keys, middleware.AuthConfig{
			PublicPaths: []string{"/healthz", "/readyz"},
		}, metrics))
	}
	return b.Terminal(upstream).Build()
}
