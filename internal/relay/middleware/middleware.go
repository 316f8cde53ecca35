// Package middleware provides the stock middleware shipped with the
// pipeline. Every middleware here follows the same contract: it may
// inspect or extend the request, short-circuit with its own Response, or
// transform the Response coming back from downstream.
package middleware

import (
	"log/slog"

	"relay/internal/domain"
	"relay/internal/relay"
)

// envelope builds the standard JSON error Response.
func envelope(status int, body domain.ErrorResponse) *relay.Response {
	resp, err := relay.JSON(status, body)
	if err != nil {
		slog.Error("encoding error envelope", "error", err)
		return relay.Text(status, body.Message)
	}
	return resp
}
