package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"relay/internal/domain"
	"relay/internal/relay"
)

// Recovery catches panics from downstream handlers and answers with a
// 500 JSON error instead.
func Recovery(next relay.Handler) relay.Handler {
	return relay.HandlerFunc(func(req *relay.Request) (resp *relay.Response, err error) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic recovered",
					"panic", r,
					"request_id", RequestIDFrom(req),
					"stack", string(debug.Stack()),
				)
				resp = envelope(http.StatusInternalServerError, domain.ErrorResponse{
					Error:   "internal_error",
					Message: "an unexpected error occurred",
				})
				err = nil
			}
		}()
		return next.Handle(req)
	})
}
