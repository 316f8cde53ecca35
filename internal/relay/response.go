package relay

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Response is the three-part result of handling a request: status code,
// headers, and a lazy body. The body is a finite, single-pass byte stream;
// nil means empty. If the body implements io.Closer the adapter closes it
// after serialization.
type Response struct {
	Status int
	Header http.Header
	Body   io.Reader
}

// NewResponse returns a Response with the given status and an empty,
// case-insensitive header map.
func NewResponse(status int) *Response {
	return &Response{Status: status, Header: make(http.Header)}
}

// ValidStatus reports whether the status code is inside the valid HTTP
// range of 100-599.
func (r *Response) ValidStatus() bool {
	return r.Status >= 100 && r.Status <= 599
}

// Text returns a plain-text response with Content-Length set.
func Text(status int, body string) *Response {
	resp := NewResponse(status)
	resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	if body != "" {
		resp.Body = strings.NewReader(body)
	}
	return resp
}

// JSON marshals v and returns an application/json response.
func JSON(status int, v any) (*Response, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling response body")
	}
	resp := NewResponse(status)
	resp.Header.Set("Content-Type", "application/json")
	resp.Header.Set("Content-Length", strconv.Itoa(len(buf)))
	resp.Body = bytes.NewReader(buf)
	return resp, nil
}

// Chunks returns a lazy, single-pass body that yields each chunk exactly
// once. A Read call never spans two chunks.
func Chunks(chunks ...[]byte) io.Reader {
	return &chunkReader{chunks: chunks}
}

type chunkReader struct {
	chunks [][]byte
}

func (c *chunkReader) Read(p []byte) (int, error) {
	for len(c.chunks) > 0 && len(c.chunks[0]) == 0 {
		c.chunks = c.chunks[1:]
	}
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	return n, nil
}
