package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the relay server.
type Config struct {
	Addr           string
	PipelineFile   string // YAML manifest path; empty means the built-in default pipeline
	UpstreamURL    string // Proxy target for the default pipeline (e.g. http://backend:9000)
	JWKSEndpoint   string // Empty disables the auth middleware in the default pipeline
	LogLevel       string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	RateLimit      RateLimitConfig
}

// RateLimitConfig holds token bucket parameters for per-IP rate limiting.
type RateLimitConfig struct {
	Rate  float64
	Burst int
}

// Load reads configuration from environment variables, falling back to defaults.
func Load() Config {
	return Config{
		Addr:           envOr("RELAY_ADDR", ":8080"),
		PipelineFile:   envOr("PIPELINE_FILE", ""),
		UpstreamURL:    envOr("UPSTREAM_URL", "http://localhost:9000"),
		JWKSEndpoint:   envOr("JWKS_ENDPOINT", ""),
		LogLevel:       envOr("LOG_LEVEL", "info"),
		RequestTimeout: envDuration("REQUEST_TIMEOUT", 30*time.Second),
		MaxBodyBytes:   int64(envInt("MAX_BODY_BYTES", 1<<20)),
		RateLimit: RateLimitConfig{
			Rate:  envFloat("RATE_LIMIT_RATE", 100),
			Burst: envInt("RATE_LIMIT_BURST", 20),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", fallback)
			return fallback
		}
		return n
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			slog.Warn("invalid float env var, using default", "key", key, "value", v, "default", fallback)
			return fallback
		}
		return f
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", fallback)
			return fallback
		}
		return d
	}
	return fallback
}
