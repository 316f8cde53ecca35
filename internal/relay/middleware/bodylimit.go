package middleware

import (
	"io"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"

	"relay/internal/domain"
	"relay/internal/relay"
)

// MaxBodySize returns middleware that caps the request body at maxBytes.
// A declared Content-Length above the cap is rejected up front with 413.
// Otherwise the body is wrapped so that a downstream read crossing the cap
// fails with domain.ErrBodyTooLarge, which this middleware catches on the
// way back out and recasts into a 413 response.
func MaxBodySize(maxBytes int64) relay.Middleware {
	return func(next relay.Handler) relay.Handler {
		return relay.HandlerFunc(func(req *relay.Request) (*relay.Response, error) {
			if cl := req.HeaderValue("Content-Length"); cl != "" {
				if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > maxBytes {
					return tooLarge(), nil
				}
			}
			if req.Body() != nil {
				req.SetBody(&cappedReader{r: req.Body(), remaining: maxBytes})
			}

			resp, err := next.Handle(req)
			if err != nil && errors.Is(err, domain.ErrBodyTooLarge) {
				return tooLarge(), nil
			}
			return resp, err
		})
	}
}

func tooLarge() *relay.Response {
	return envelope(http.StatusRequestEntityTooLarge, domain.ErrorResponse{
		Error:   "body_too_large",
		Message: "request body exceeds the allowed size",
	})
}

// cappedReader passes through at most remaining bytes and fails with
// domain.ErrBodyTooLarge once a read would cross the cap.
type cappedReader struct {
	r         io.Reader
	remaining int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.remaining <= 0 {
		// Probe one byte: a body ending exactly at the cap is fine.
		var probe [1]byte
		n, err := c.r.Read(probe[:])
		if n > 0 {
			return 0, domain.ErrBodyTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	return n, err
}
