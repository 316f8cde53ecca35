package pipeline

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"relay/internal/domain"
	"relay/internal/platform/telemetry"
	"relay/internal/relay"
	"relay/internal/relay/adapter/inmem"
	"relay/internal/relay/middleware"
	"relay/internal/relay/terminal"
)

// StockDeps carries the runtime dependencies the stock factories close
// over. Nil fields disable the factories that need them: a manifest
// naming "auth" without a key provider fails at assembly, not at
// request time.
type StockDeps struct {
	Logger  *slog.Logger
	Limiter relay.RateLimiter
	Keys    relay.KeyProvider
	Metrics *telemetry.PipelineMetrics
}

// StockRegistry returns a registry with every built-in middleware and
// terminal registered under its manifest name.
func StockRegistry(deps StockDeps) *Registry {
	reg := NewRegistry()

	// Registration of built-ins cannot collide, ignore the errors.
	reg.RegisterMiddleware("request_id", func(*yaml.Node) (relay.Middleware, error) {
		return middleware.RequestID, nil
	})
	reg.RegisterMiddleware("logging", func(*yaml.Node) (relay.Middleware, error) {
		logger := deps.Logger
		if logger == nil {
			logger = slog.Default()
		}
		return middleware.Logging(logger), nil
	})
	reg.RegisterMiddleware("recovery", func(*yaml.Node) (relay.Middleware, error) {
		return middleware.Recovery, nil
	})
	reg.RegisterMiddleware("ratelimit", func(cfg *yaml.Node) (relay.Middleware, error) {
		limiter := deps.Limiter
		if limiter == nil {
			var c rateLimitConfig
			if err := DecodeConfig(cfg, &c); err != nil {
				return nil, err
			}
			if c.Rate <= 0 || c.Burst <= 0 {
				return nil, errors.New("ratelimit needs a shared limiter or rate/burst config")
			}
			limiter = inmem.NewRateLimiter(c.Rate, c.Burst, nil)
		}
		return middleware.RateLimit(limiter, deps.Metrics), nil
	})
	reg.RegisterMiddleware("bodylimit", func(cfg *yaml.Node) (relay.Middleware, error) {
		var c bodyLimitConfig
		if err := DecodeConfig(cfg, &c); err != nil {
			return nil, err
		}
		if c.MaxBytes <= 0 {
			return nil, errors.New("bodylimit needs max_bytes > 0")
		}
		return middleware.MaxBodySize(c.MaxBytes), nil
	})
	reg.RegisterMiddleware("metrics", func(*yaml.Node) (relay.Middleware, error) {
		return middleware.Metrics(deps.Metrics), nil
	})
	reg.RegisterMiddleware("honeypot", func(cfg *yaml.Node) (relay.Middleware, error) {
		var c honeypotConfig
		if err := DecodeConfig(cfg, &c); err != nil {
			return nil, err
		}
		return middleware.Honeypot(middleware.HoneypotConfig{
			TrapField:  c.TrapField,
			TrapHeader: c.TrapHeader,
		}, deps.Metrics), nil
	})
	reg.RegisterMiddleware("auth", func(cfg *yaml.Node) (relay.Middleware, error) {
		if deps.Keys == nil {
			return nil, errors.New("auth needs a key provider")
		}
		var c authConfig
		if err := DecodeConfig(cfg, &c); err != nil {
			return nil, err
		}
		return middleware.Auth(deps.Keys, middleware.AuthConfig{
			PublicPaths:   c.PublicPaths,
			RequiredScope: domain.Scope(c.RequiredScope),
		}, deps.Metrics), nil
	})

	reg.RegisterTerminal("static", func(cfg *yaml.Node) (relay.Handler, error) {
		var c staticConfig
		if err := DecodeConfig(cfg, &c); err != nil {
			return nil, err
		}
		return &terminal.Static{
			Status:      c.Status,
			ContentType: c.ContentType,
			Body:        c.Body,
		}, nil
	})
	reg.RegisterTerminal("echo", func(cfg *yaml.Node) (relay.Handler, error) {
		var c echoConfig
		if err := DecodeConfig(cfg, &c); err != nil {
			return nil, err
		}
		return &terminal.Echo{Name: c.Name}, nil
	})
	reg.RegisterTerminal("upstream", func(cfg *yaml.Node) (relay.Handler, error) {
		var c upstreamConfig
		if err := DecodeConfig(cfg, &c); err != nil {
			return nil, err
		}
		if c.URL == "" {
			return nil, errors.New("upstream needs a url")
		}
		return terminal.NewUpstream(c.URL, c.Name, deps.Metrics)
	})

	return reg
}

type rateLimitConfig struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

type bodyLimitConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

type honeypotConfig struct {
	TrapField  string `yaml:"trap_field"`
	TrapHeader string `yaml:"trap_header"`
}

type authConfig struct {
	PublicPaths   []string `yaml:"public_paths"`
	RequiredScope string   `yaml:"required_scope"`
}

type staticConfig struct {
	Status      int    `yaml:"status"`
	ContentType string `yaml:"content_type"`
	Body        string `yaml:"body"`
}

type echoConfig struct {
	Name string `yaml:"name"`
}

type upstreamConfig struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}
