package middleware

import (
	"net/http"
	"time"

	"relay/internal/platform/telemetry"
	"relay/internal/relay"
)

// Metrics returns middleware that records request count and duration.
// Place as the outermost middleware to capture the full pipeline.
func Metrics(m *telemetry.PipelineMetrics) relay.Middleware {
	return func(next relay.Handler) relay.Handler {
		return relay.HandlerFunc(func(req *relay.Request) (*relay.Response, error) {
			start := time.Now()

			resp, err := next.Handle(req)

			if m != nil {
				duration := time.Since(start).Seconds()
				status := http.StatusInternalServerError
				if err == nil {
					status = resp.Status
				} else {
					m.RecordHandlerError(req.Context())
				}
				m.RecordRequest(req.Context(), req.Method(), req.Path(), status, duration)
			}
			return resp, err
		})
	}
}
