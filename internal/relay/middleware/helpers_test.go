package middleware_test

import (
	"context"
	"io"
	"net/http"

	"relay/internal/relay"
)

func newRequest(method, path string) *relay.Request {
	return relay.NewRequest(context.Background(), relay.RequestInfo{
		Method:     method,
		Path:       path,
		RemoteAddr: "192.0.2.1:4711",
	})
}

func okTerminal(body string) relay.Handler {
	return relay.HandlerFunc(func(req *relay.Request) (*relay.Response, error) {
		return relay.Text(http.StatusOK, body), nil
	})
}

func readBody(resp *relay.Response) string {
	if resp.Body == nil {
		return ""
	}
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}
