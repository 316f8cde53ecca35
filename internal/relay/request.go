package relay

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// RequestInfo carries the transport-level fields of one inbound request.
// An adapter populates it once; the resulting Request treats these fields
// as fixed.
type RequestInfo struct {
	Method     string
	Path       string
	RawQuery   string
	Proto      string
	Host       string
	RemoteAddr string
	Header     http.Header
	Body       io.Reader
}

// Request is the context object passed down a middleware chain. The
// transport fields are immutable after construction; only the extension
// map and the body read position may change while the chain runs. Each
// inbound request gets its own Request, so no synchronization is needed
// within a chain invocation.
type Request struct {
	ctx  context.Context
	info RequestInfo

	query       url.Values
	queryParsed bool

	ext map[string]any
}

// NewRequest builds the Request for one inbound transport request.
func NewRequest(ctx context.Context, info RequestInfo) *Request {
	if info.Header == nil {
		info.Header = make(http.Header)
	}
	return &Request{ctx: ctx, info: info}
}

// Context returns the context carried from the transport, including any
// cancellation or deadline the adapter attached.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

func (r *Request) Method() string     { return r.info.Method }
func (r *Request) Path() string       { return r.info.Path }
func (r *Request) RawQuery() string   { return r.info.RawQuery }
func (r *Request) Proto() string      { return r.info.Proto }
func (r *Request) Host() string       { return r.info.Host }
func (r *Request) RemoteAddr() string { return r.info.RemoteAddr }

// Header returns the request headers. Callers must treat the map as
// read-only; header lookups are case-insensitive.
func (r *Request) Header() http.Header { return r.info.Header }

// HeaderValue returns the first value for the named header, or "".
func (r *Request) HeaderValue(key string) string { return r.info.Header.Get(key) }

// Query parses the raw query string on first use and caches the result.
func (r *Request) Query() url.Values {
	if !r.queryParsed {
		r.query, _ = url.ParseQuery(r.info.RawQuery)
		r.queryParsed = true
	}
	return r.query
}

// Body returns the request body reader. The body is single-pass: bytes
// consumed by one handler are gone for everything downstream.
func (r *Request) Body() io.Reader { return r.info.Body }

// SetBody replaces the body reader. Middleware that wraps or caps the body
// uses this to hand its replacement downstream.
func (r *Request) SetBody(body io.Reader) { r.info.Body = body }

// Set stores an extension value under key. Keys are dotted and namespaced
// by the middleware that owns them (e.g. "relay.request_id") so unrelated
// middleware cannot collide.
func (r *Request) Set(key string, v any) {
	if r.ext == nil {
		r.ext = make(map[string]any)
	}
	r.ext[key] = v
}

// Value returns the extension value stored under key.
func (r *Request) Value(key string) (any, bool) {
	v, ok := r.ext[key]
	return v, ok
}
