package terminal

import (
	"io"
	"net/http"

	"github.com/cockroachdb/errors"

	"relay/internal/relay"
	"relay/internal/relay/middleware"
)

// Echo reports request details back as JSON. Useful as a development
// terminal and for verifying what middleware upstream attached.
type Echo struct {
	// Name labels the responder in the echoed payload.
	Name string
}

func (e *Echo) Handle(req *relay.Request) (*relay.Response, error) {
	var bodyBytes int64
	if req.Body() != nil {
		n, err := io.Copy(io.Discard, req.Body())
		if err != nil {
			return nil, &relay.StatusError{
				Code: http.StatusBadRequest,
				Err:  errors.Wrap(err, "reading request body"),
			}
		}
		bodyBytes = n
	}

	payload := map[string]any{
		"responder":  e.Name,
		"method":     req.Method(),
		"path":       req.Path(),
		"query":      req.RawQuery(),
		"proto":      req.Proto(),
		"body_bytes": bodyBytes,
		"request_id": middleware.RequestIDFrom(req),
	}
	if p, ok := middleware.PrincipalFrom(req); ok {
		payload["principal_id"] = p.ID
	}
	return relay.JSON(http.StatusOK, payload)
}
