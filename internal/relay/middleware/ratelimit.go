package middleware

import (
	"net"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"

	"relay/internal/domain"
	"relay/internal/platform/telemetry"
	"relay/internal/relay"
)

// RateLimit returns middleware that enforces per-client-IP rate limits.
// Denied requests short-circuit with 429 and a Retry-After header. A
// downstream error matching domain.ErrRateLimited (e.g. an upstream quota)
// is caught on the way back out and recast into a 429 as well.
// The metrics parameter is optional; pass nil to skip metric recording.
func RateLimit(limiter relay.RateLimiter, m *telemetry.PipelineMetrics) relay.Middleware {
	return func(next relay.Handler) relay.Handler {
		return relay.HandlerFunc(func(req *relay.Request) (*relay.Response, error) {
			ip := clientIP(req)
			if result := limiter.Allow(ip); !result.Allowed {
				if m != nil {
					m.RecordRateLimitDecision(req.Context(), "ip", "denied")
					m.RecordShortCircuit(req.Context(), "ratelimit")
				}
				resp := envelope(http.StatusTooManyRequests, domain.ErrorResponse{
					Error:      "rate_limited",
					Message:    "too many requests",
					RetryAfter: result.RetryAfter,
				})
				resp.Header.Set("Retry-After", strconv.Itoa(result.RetryAfter))
				return resp, nil
			}

			if m != nil {
				m.RecordRateLimitDecision(req.Context(), "ip", "allowed")
			}

			resp, err := next.Handle(req)
			if err != nil && errors.Is(err, domain.ErrRateLimited) {
				if m != nil {
					m.RecordRateLimitDecision(req.Context(), "downstream", "denied")
				}
				return envelope(http.StatusTooManyRequests, domain.ErrorResponse{
					Error:   "rate_limited",
					Message: "too many requests",
				}), nil
			}
			return resp, err
		})
	}
}

func clientIP(req *relay.Request) string {
	// Use RemoteAddr directly. X-Forwarded-For is client-controlled and
	// must not be trusted without a validated trusted proxy list.
	host, _, err := net.SplitHostPort(req.RemoteAddr())
	if err != nil {
		return req.RemoteAddr()
	}
	return host
}
