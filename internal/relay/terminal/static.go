// Package terminal holds the innermost handlers a pipeline can end in.
package terminal

import (
	"net/http"
	"strconv"
	"strings"

	"relay/internal/relay"
)

// Static serves a fixed response. The body reader is rebuilt on every
// request since Response bodies are single-pass.
type Static struct {
	Status      int
	ContentType string
	Body        string
}

func (s *Static) Handle(req *relay.Request) (*relay.Response, error) {
	status := s.Status
	if status == 0 {
		status = http.StatusOK
	}
	ct := s.ContentType
	if ct == "" {
		ct = "text/plain; charset=utf-8"
	}

	resp := relay.NewResponse(status)
	resp.Header.Set("Content-Type", ct)
	resp.Header.Set("Content-Length", strconv.Itoa(len(s.Body)))
	if s.Body != "" {
		resp.Body = strings.NewReader(s.Body)
	}
	return resp, nil
}
