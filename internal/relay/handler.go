// Package relay defines the handler contract and middleware composition
// primitives the rest of the pipeline is built on: a Handler answers one
// Request with one Response, and middleware are Handlers that wrap exactly
// one downstream Handler.
package relay

// Handler answers a single request with a single response.
//
// Implementations must return exactly one non-nil Response or a non-nil
// error, never both and never neither. A Handler must not mutate the
// request after returning.
type Handler interface {
	Handle(req *Request) (*Response, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(*Request) (*Response, error)

func (f HandlerFunc) Handle(req *Request) (*Response, error) { return f(req) }

// Middleware wraps a Handler with additional behavior. The next handler is
// supplied once at wiring time and owned exclusively by the returned
// Handler; it is never reassigned afterwards. A middleware may answer
// without calling next at all (short-circuit).
type Middleware func(next Handler) Handler

// Chain applies middleware in order: the first middleware is the outermost
// wrapper. The wired chain is immutable and safe to share across
// concurrently executing requests; per-request state lives only in the
// Request and Response.
func Chain(h Handler, mw ...Middleware) Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}
