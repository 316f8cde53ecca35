package middleware

import (
	"log/slog"
	"time"

	"relay/internal/relay"
)

// Logging returns a middleware that logs each request using slog.
// Handler errors are logged before being re-signaled upward.
func Logging(logger *slog.Logger) relay.Middleware {
	return func(next relay.Handler) relay.Handler {
		return relay.HandlerFunc(func(req *relay.Request) (*relay.Response, error) {
			start := time.Now()

			resp, err := next.Handle(req)

			durationMS := float64(time.Since(start).Microseconds()) / 1000.0
			if err != nil {
				logger.Error("request failed",
					"method", req.Method(),
					"path", req.Path(),
					"duration_ms", durationMS,
					"request_id", RequestIDFrom(req),
					"remote_addr", req.RemoteAddr(),
					"error", err,
				)
				return nil, err
			}

			logger.Info("request",
				"method", req.Method(),
				"path", req.Path(),
				"status", resp.Status,
				"duration_ms", durationMS,
				"request_id", RequestIDFrom(req),
				"remote_addr", req.RemoteAddr(),
			)
			return resp, nil
		})
	}
}
