package middleware

import (
	"github.com/google/uuid"

	"relay/internal/relay"
)

const (
	requestIDKey    = "relay.request_id"
	requestIDHeader = "X-Request-ID"
)

// RequestID assigns a unique request ID to each request.
// If the incoming request already has an X-Request-ID header, it is
// preserved. The ID is stored in the request extensions and echoed on the
// response header.
func RequestID(next relay.Handler) relay.Handler {
	return relay.HandlerFunc(func(req *relay.Request) (*relay.Response, error) {
		id := req.HeaderValue(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		req.Set(requestIDKey, id)

		resp, err := next.Handle(req)
		if err != nil {
			return nil, err
		}
		resp.Header.Set(requestIDHeader, id)
		return resp, nil
	})
}

// RequestIDFrom returns the ID assigned by RequestID, or "".
func RequestIDFrom(req *relay.Request) string {
	v, _ := req.Value(requestIDKey)
	id, _ := v.(string)
	return id
}
