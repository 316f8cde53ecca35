// Package httpadapter binds a relay pipeline to net/http. It translates
// each inbound request into a relay.Request, runs the root handler, and
// serializes the Response back to the connection. Handler errors never
// reach the transport uncaught: the adapter translates them into a JSON
// error envelope, the last line of defense.
package httpadapter

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/cockroachdb/errors"

	"relay/internal/domain"
	"relay/internal/relay"
)

// Adapter serves a relay pipeline over HTTP.
type Adapter struct {
	root    relay.Handler
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTimeout bounds each request with a deadline. On expiry the client
// receives a 504 while the in-flight handler call is abandoned, not
// interrupted; the handler still sees the expired context.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.timeout = d }
}

// WithLogger overrides the logger used for translation and serialization
// failures.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// New creates an Adapter serving the given root handler.
func New(root relay.Handler, opts ...Option) *Adapter {
	a := &Adapter{root: root, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	req := Translate(ctx, r)

	var resp *relay.Response
	if a.timeout > 0 {
		resp = a.invokeWithDeadline(ctx, req)
	} else {
		resp = a.invoke(req)
	}

	a.write(w, resp)
}

// Translate converts a transport-level request into the pipeline's request
// context.
func Translate(ctx context.Context, r *http.Request) *relay.Request {
	return relay.NewRequest(ctx, relay.RequestInfo{
		Method:     r.Method,
		Path:       r.URL.Path,
		RawQuery:   r.URL.RawQuery,
		Proto:      r.Proto,
		Host:       r.Host,
		RemoteAddr: r.RemoteAddr,
		Header:     r.Header,
		Body:       r.Body,
	})
}

// invoke runs the root handler and normalizes every failure mode into a
// well-formed Response. A panic is caught here too: pipelines without the
// recovery middleware still must not take down the process, and on the
// deadline path the handler runs on its own goroutine where nothing else
// would contain it.
func (a *Adapter) invoke(req *relay.Request) (out *relay.Response) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("handler panic",
				"panic", r,
				"method", req.Method(),
				"path", req.Path(),
				"stack", string(debug.Stack()),
			)
			out = envelope(http.StatusInternalServerError, domain.ErrorResponse{
				Error:   "internal_error",
				Message: "an unexpected error occurred",
			})
		}
	}()

	resp, err := a.root.Handle(req)
	switch {
	case err != nil:
		return a.errorResponse(req, err)
	case resp == nil:
		return a.errorResponse(req, errors.New("handler returned neither response nor error"))
	case !resp.ValidStatus():
		return a.errorResponse(req, errors.Newf("handler returned invalid status %d", resp.Status))
	}
	return resp
}

func (a *Adapter) invokeWithDeadline(ctx context.Context, req *relay.Request) *relay.Response {
	done := make(chan *relay.Response, 1)
	go func() { done <- a.invoke(req) }()

	select {
	case resp := <-done:
		return resp
	case <-ctx.Done():
		a.logger.Warn("request deadline exceeded",
			"method", req.Method(),
			"path", req.Path(),
			"timeout", a.timeout,
		)
		// Drain the abandoned call so its body gets closed.
		go func() {
			if resp := <-done; resp != nil {
				closeBody(resp)
			}
		}()
		return envelope(http.StatusGatewayTimeout, domain.ErrorResponse{
			Error:   "timeout",
			Message: "request timed out",
		})
	}
}

func (a *Adapter) errorResponse(req *relay.Request, err error) *relay.Response {
	var se *relay.StatusError
	if errors.As(err, &se) && se.Code >= 400 && se.Code <= 599 {
		a.logger.Warn("handler error",
			"status", se.Code,
			"method", req.Method(),
			"path", req.Path(),
			"error", err,
		)
		return envelope(se.Code, domain.ErrorResponse{
			Error:   errorLabel(se.Code),
			Message: http.StatusText(se.Code),
		})
	}

	a.logger.Error("handler error",
		"method", req.Method(),
		"path", req.Path(),
		"error", err,
	)
	return envelope(http.StatusInternalServerError, domain.ErrorResponse{
		Error:   "internal_error",
		Message: "an unexpected error occurred",
	})
}

func (a *Adapter) write(w http.ResponseWriter, resp *relay.Response) {
	h := w.Header()
	for key, vals := range resp.Header {
		for _, v := range vals {
			h.Add(key, v)
		}
	}
	w.WriteHeader(resp.Status)

	if resp.Body == nil {
		return
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		a.logger.Error("writing response body", "error", err)
	}
	closeBody(resp)
}

func closeBody(resp *relay.Response) {
	if c, ok := resp.Body.(io.Closer); ok {
		c.Close()
	}
}

func errorLabel(status int) string {
	if status >= 500 {
		return "internal_error"
	}
	return "request_error"
}

func envelope(status int, body domain.ErrorResponse) *relay.Response {
	resp, err := relay.JSON(status, body)
	if err != nil {
		slog.Error("encoding error envelope", "error", err)
		return relay.Text(status, body.Message)
	}
	return resp
}
